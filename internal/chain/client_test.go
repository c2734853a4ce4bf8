package chain

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/tokens"
)

const (
	testWallet = "0x1111111111111111111111111111111111111111"
	testHash   = "0x8f3c8b0a3e3f4f1c9a6c1a4f1c1b2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c"
)

type fakeRPC struct {
	balance  *big.Int
	callOut  []byte
	callTo   *common.Address
	receipt  *gethtypes.Receipt
	gasPrice *big.Int
	err      error
}

func (f *fakeRPC) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, f.err
}

func (f *fakeRPC) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.callTo = msg.To
	return f.callOut, f.err
}

func (f *fakeRPC) TransactionReceipt(context.Context, common.Hash) (*gethtypes.Receipt, error) {
	return f.receipt, f.err
}

func (f *fakeRPC) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.gasPrice, f.err
}

func usdcToken(t *testing.T) tokens.Token {
	t.Helper()
	tok, err := tokens.DefaultAmoy().Lookup("0x41e94eb019c0762f9bfcf9fb1e58725bfb0e7582")
	require.NoError(t, err)
	return tok
}

func TestBalance_ERC20(t *testing.T) {
	out, err := erc20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(50_000_000))
	require.NoError(t, err)
	rpc := &fakeRPC{callOut: out}
	c := New(zap.NewNop(), rpc)

	tok := usdcToken(t)
	bal, err := c.Balance(context.Background(), testWallet, tok)
	require.NoError(t, err)
	assert.Equal(t, "50", bal.String())
	require.NotNil(t, rpc.callTo)
	assert.Equal(t, common.HexToAddress(tok.Address), *rpc.callTo)
}

func TestBalance_Native(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	c := New(zap.NewNop(), &fakeRPC{balance: wei})

	native, err := tokens.DefaultAmoy().Lookup(tokens.NativeAddress)
	require.NoError(t, err)
	bal, err := c.Balance(context.Background(), testWallet, native)
	require.NoError(t, err)
	assert.Equal(t, "1.5", bal.String())
}

func TestBalance_Errors(t *testing.T) {
	c := New(zap.NewNop(), &fakeRPC{err: errors.New("connection refused")})
	_, err := c.Balance(context.Background(), testWallet, usdcToken(t))
	assert.ErrorContains(t, err, "connection refused")

	_, err = c.Balance(context.Background(), "nope", usdcToken(t))
	assert.Error(t, err)

	c = New(zap.NewNop(), &fakeRPC{callOut: []byte{0x01}})
	_, err = c.Balance(context.Background(), testWallet, usdcToken(t))
	assert.ErrorContains(t, err, "unexpected result")
}

func TestReceipt(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := New(zap.NewNop(), &fakeRPC{receipt: &gethtypes.Receipt{
			Status:            gethtypes.ReceiptStatusSuccessful,
			GasUsed:           150000,
			EffectiveGasPrice: big.NewInt(30_000_000_000),
			BlockNumber:       big.NewInt(42),
		}})
		r, err := c.Receipt(context.Background(), testHash)
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.True(t, r.Succeeded)
		assert.Equal(t, uint64(150000), r.GasUsed)
		assert.Equal(t, "0.0045", r.GasCost.String())
		assert.Equal(t, uint64(42), r.Block)
	})

	t.Run("reverted", func(t *testing.T) {
		c := New(zap.NewNop(), &fakeRPC{receipt: &gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed, GasUsed: 21000}})
		r, err := c.Receipt(context.Background(), testHash)
		require.NoError(t, err)
		assert.False(t, r.Succeeded)
		assert.True(t, r.GasCost.IsZero())
	})

	t.Run("not mined", func(t *testing.T) {
		c := New(zap.NewNop(), &fakeRPC{err: ethereum.NotFound})
		r, err := c.Receipt(context.Background(), testHash)
		require.NoError(t, err)
		assert.Nil(t, r)
	})

	t.Run("rpc error", func(t *testing.T) {
		c := New(zap.NewNop(), &fakeRPC{err: errors.New("503")})
		_, err := c.Receipt(context.Background(), testHash)
		assert.Error(t, err)
	})

	t.Run("bad hash", func(t *testing.T) {
		c := New(zap.NewNop(), &fakeRPC{})
		_, err := c.Receipt(context.Background(), "")
		assert.Error(t, err)
	})
}

// jsonRPCServer answers single JSON-RPC calls from a method → result table.
func jsonRPCServer(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		result, ok := results[req.Method]
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32601, "message": "method not found"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
}

func TestDial_RoundTrip(t *testing.T) {
	srv := jsonRPCServer(t, map[string]any{
		"eth_gasPrice":   "0x6fc23ac00",        // 30 gwei
		"eth_getBalance": "0x14d1120d7b160000", // 1.5 ether
	})
	defer srv.Close()

	c, err := Dial(context.Background(), zap.NewNop(), srv.URL)
	require.NoError(t, err)
	defer c.Close()

	gwei, err := c.GasPriceGwei(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "30", gwei.String())

	native, err := tokens.DefaultAmoy().Lookup(tokens.NativeAddress)
	require.NoError(t, err)
	bal, err := c.Balance(context.Background(), testWallet, native)
	require.NoError(t, err)
	assert.Equal(t, "1.5", bal.String())

	_, err = Dial(context.Background(), zap.NewNop(), "  ")
	assert.Error(t, err)
}
