package aggregator

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/swap-engine/pkg/model"
)

const (
	mockName = "1inch-mock"
	mockGas  = 150000
)

// mockRates are testnet reference rates keyed by "FROM/TO" symbol.
var mockRates = map[string]decimal.Decimal{
	"USDC/WETH":   decimal.RequireFromString("0.000285"),
	"WETH/USDC":   decimal.RequireFromString("3500"),
	"USDC/WMATIC": decimal.RequireFromString("1.25"),
	"WMATIC/USDC": decimal.RequireFromString("0.80"),
	"WETH/WMATIC": decimal.RequireFromString("4375"),
	"WMATIC/WETH": decimal.RequireFromString("0.000228"),
}

// impactPerUnit is the simulated impact, in percent, per unit of input
// valued in the source token.
var impactPerUnit = decimal.RequireFromString("0.0001")

// Mock serves deterministic quotes for local development on testnets
// where aggregator liquidity is missing.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Name() string { return mockName }

// Quote prices the pair at the reference rate minus a size-dependent impact,
// reporting the reference rate as the spot rate.
func (m *Mock) Quote(ctx context.Context, req QuoteRequest) (*model.RawQuote, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	pair := strings.ToUpper(req.From.Symbol) + "/" + strings.ToUpper(req.To.Symbol)
	if strings.EqualFold(req.From.Symbol, "MATIC") {
		pair = "WMATIC/" + strings.ToUpper(req.To.Symbol)
	}
	if strings.EqualFold(req.To.Symbol, "MATIC") {
		pair = strings.Split(pair, "/")[0] + "/WMATIC"
	}
	spot, ok := mockRates[pair]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported pair %s", ErrUnavailable, pair)
	}

	impact := req.Amount.Mul(impactPerUnit)
	if impact.GreaterThan(decimal.NewFromInt(50)) {
		impact = decimal.NewFromInt(50)
	}
	hundred := decimal.NewFromInt(100)
	toAmount := req.Amount.Mul(spot).Mul(hundred.Sub(impact)).Div(hundred).Truncate(req.To.Decimals)

	return &model.RawQuote{
		Provider:     mockName,
		FromToken:    req.From.Address,
		ToToken:      req.To.Address,
		FromAmount:   req.Amount,
		ToAmount:     toAmount,
		EstimatedGas: mockGas,
		SpotRate:     &spot,
		Route: []model.RouteHop{{
			Protocol:  "MOCK_POOL",
			Part:      hundred,
			FromToken: req.From.Address,
			ToToken:   req.To.Address,
		}},
	}, nil
}
