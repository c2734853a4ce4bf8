package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/internal/swap"
	"github.com/Checker-Finance/swap-engine/internal/tokens"
)

const erc20BalanceABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

var erc20ABI = mustParseABI(erc20BalanceABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// RPC is the subset of the Ethereum JSON-RPC the engine uses.
type RPC interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Client reads balances, receipts and gas prices from the chain.
// It implements swap.BalanceProvider, swap.ReceiptProvider and
// swap.GasPriceOracle.
type Client struct {
	logger *zap.Logger
	rpc    RPC
	closer func()
}

// Dial connects to an EVM JSON-RPC endpoint.
func Dial(ctx context.Context, logger *zap.Logger, endpoint string) (*Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, errors.New("chain rpc endpoint required")
	}
	ec, err := ethclient.DialContext(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	c := New(logger, ec)
	c.closer = ec.Close
	return c, nil
}

func New(logger *zap.Logger, rpc RPC) *Client {
	return &Client{logger: logger, rpc: rpc}
}

func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Balance returns wallet's holding of token in token units.
func (c *Client) Balance(ctx context.Context, wallet string, token tokens.Token) (decimal.Decimal, error) {
	if !common.IsHexAddress(wallet) {
		return decimal.Zero, fmt.Errorf("invalid wallet address %q", wallet)
	}
	owner := common.HexToAddress(wallet)

	if token.Native {
		wei, err := c.rpc.BalanceAt(ctx, owner, nil)
		metrics.IncChainRPC("eth_getBalance", err)
		if err != nil {
			return decimal.Zero, fmt.Errorf("native balance: %w", err)
		}
		return token.FromBaseUnits(wei), nil
	}

	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack balanceOf: %w", err)
	}
	contract := common.HexToAddress(token.Address)
	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	metrics.IncChainRPC("eth_call", err)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s balanceOf: %w", token.Symbol, err)
	}
	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return decimal.Zero, fmt.Errorf("%s balanceOf: unexpected result %x", token.Symbol, out)
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("%s balanceOf: unexpected type %T", token.Symbol, values[0])
	}
	return token.FromBaseUnits(raw), nil
}

// Receipt returns nil, nil while the transaction is not mined.
func (c *Client) Receipt(ctx context.Context, txHash string) (*swap.Receipt, error) {
	hash := common.HexToHash(txHash)
	if (hash == common.Hash{}) {
		return nil, fmt.Errorf("invalid transaction hash %q", txHash)
	}
	r, err := c.rpc.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		metrics.IncChainRPC("eth_getTransactionReceipt", nil)
		return nil, nil
	}
	metrics.IncChainRPC("eth_getTransactionReceipt", err)
	if err != nil {
		return nil, fmt.Errorf("fetch receipt: %w", err)
	}
	if r == nil {
		return nil, nil
	}

	out := &swap.Receipt{
		Succeeded: r.Status == gethtypes.ReceiptStatusSuccessful,
		GasUsed:   r.GasUsed,
		GasCost:   decimal.Zero,
	}
	if r.BlockNumber != nil {
		out.Block = r.BlockNumber.Uint64()
	}
	if r.EffectiveGasPrice != nil {
		wei := new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
		out.GasCost = decimal.NewFromBigInt(wei, -18)
	}
	c.logger.Debug("chain.receipt",
		zap.String("tx_hash", hash.Hex()),
		zap.Bool("succeeded", out.Succeeded),
		zap.Uint64("block", out.Block),
		zap.Uint64("gas_used", out.GasUsed))
	return out, nil
}

// GasPriceGwei returns the node's suggested gas price.
func (c *Client) GasPriceGwei(ctx context.Context) (decimal.Decimal, error) {
	wei, err := c.rpc.SuggestGasPrice(ctx)
	metrics.IncChainRPC("eth_gasPrice", err)
	if err != nil {
		return decimal.Zero, fmt.Errorf("suggest gas price: %w", err)
	}
	return decimal.NewFromBigInt(wei, -9), nil
}
