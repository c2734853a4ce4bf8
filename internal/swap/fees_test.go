package swap

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/swap-engine/internal/tokens"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

func amoyToken(t *testing.T, addr string) tokens.Token {
	t.Helper()
	tok, err := tokens.DefaultAmoy().Lookup(addr)
	require.NoError(t, err)
	return tok
}

func TestPriceQuote_USDCToWETH(t *testing.T) {
	calc := testCalculator()
	until := time.Date(2026, 5, 1, 10, 0, 30, 0, time.UTC)
	raw := &model.RawQuote{
		Provider:     "1inch",
		FromAmount:   dec("100"),
		ToAmount:     dec("0.05"),
		EstimatedGas: 150000,
	}

	q, err := calc.PriceQuote(raw, dec("1"), PricingContext{
		From:         amoyToken(t, usdc),
		To:           amoyToken(t, weth),
		GasPriceGwei: dec("30"),
		ValidUntil:   until,
	})
	require.NoError(t, err)

	assert.Equal(t, "0.0495", q.MinimumReceived.String())
	assert.Equal(t, "0.5", q.PlatformFee.String())
	assert.Equal(t, "0.0005", q.ExchangeRate.String())
	assert.Equal(t, "0.0045", q.EstimatedGasCost.String())
	assert.Equal(t, model.PriceImpactLow, q.PriceImpactLevel)
	assert.Equal(t, "USDC", q.FromTokenSymbol)
	assert.Equal(t, "WETH", q.ToTokenSymbol)
	assert.Equal(t, until, q.QuoteValidUntil)
	assert.True(t, q.MinimumReceived.LessThanOrEqual(q.ToAmount))
}

func TestPriceQuote_RejectsEmptyOutput(t *testing.T) {
	raw := &model.RawQuote{FromAmount: dec("1"), ToAmount: decimal.Zero}
	_, err := testCalculator().PriceQuote(raw, dec("1"), PricingContext{})
	assert.ErrorIs(t, err, ErrQuoteUnavailable)
}

func TestMinimumReceived_DecreasesWithSlippage(t *testing.T) {
	to := dec("0.05")
	prev := to
	for s := dec("0.1"); s.LessThanOrEqual(dec("50")); s = s.Add(dec("0.1")) {
		got := MinimumReceived(to, s, 8)
		assert.True(t, got.LessThan(prev), "slippage %s: %s should be below %s", s, got, prev)
		assert.True(t, got.LessThanOrEqual(to))
		prev = got
	}
}

func TestMinimumReceived_Truncates(t *testing.T) {
	// 0.123456789 × 0.99 = 0.12222222111
	assert.Equal(t, "0.12222222", MinimumReceived(dec("0.123456789"), dec("1"), 8).String())
	assert.Equal(t, "0.122222", MinimumReceived(dec("0.123456789"), dec("1"), 6).String())
}

func TestPlatformFee_Exact(t *testing.T) {
	calc := testCalculator()
	tests := map[string]string{
		"100":         "0.5",
		"1":           "0.005",
		"0.000001":    "0.000000005",
		"12345.67891": "61.72839455",
	}
	for in, want := range tests {
		assert.Equal(t, want, calc.PlatformFee(dec(in)).String(), in)
	}
}

func TestClassifyPriceImpact(t *testing.T) {
	tests := []struct {
		pct  string
		want model.PriceImpactLevel
	}{
		{"0", model.PriceImpactLow},
		{"0.99", model.PriceImpactLow},
		{"1", model.PriceImpactMedium},
		{"2.99", model.PriceImpactMedium},
		{"3", model.PriceImpactHigh},
		{"42", model.PriceImpactHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyPriceImpact(dec(tt.pct)), tt.pct)
	}
}

func TestPriceImpact(t *testing.T) {
	reported := dec("-1.234")
	assert.Equal(t, "1.23", PriceImpact(&model.RawQuote{PriceImpactPercent: &reported}).String())

	spot := dec("0.0005")
	derived := PriceImpact(&model.RawQuote{FromAmount: dec("100"), ToAmount: dec("0.04925"), SpotRate: &spot})
	assert.Equal(t, "1.5", derived.String())

	// better than spot is not negative impact
	better := PriceImpact(&model.RawQuote{FromAmount: dec("100"), ToAmount: dec("0.06"), SpotRate: &spot})
	assert.True(t, better.IsZero())

	assert.True(t, PriceImpact(&model.RawQuote{FromAmount: dec("1"), ToAmount: dec("1")}).IsZero())
}

func TestGasCost(t *testing.T) {
	assert.Equal(t, "0.0045", GasCost(150000, dec("30")).String())
	assert.Equal(t, "0.000021", GasCost(21000, dec("1")).String())
	assert.Equal(t, "0.000001", GasCost(1, dec("1000")).String())
	assert.True(t, GasCost(0, dec("30")).IsZero())
}

func TestRecommendSlippage(t *testing.T) {
	tests := map[string]string{
		"10":     "0.5",
		"99.99":  "0.5",
		"100":    "1",
		"999":    "1",
		"1000":   "2",
		"4999":   "2",
		"5000":   "3",
		"250000": "3",
	}
	for in, want := range tests {
		assert.Equal(t, want, RecommendSlippage(dec(in)).String(), in)
	}
}

func TestValidateSlippage(t *testing.T) {
	calc := testCalculator()
	assert.NoError(t, calc.ValidateSlippage(dec("0.1")))
	assert.NoError(t, calc.ValidateSlippage(dec("50")))
	assert.ErrorIs(t, calc.ValidateSlippage(dec("0.05")), ErrInvalidSlippage)
	assert.ErrorIs(t, calc.ValidateSlippage(dec("60")), ErrInvalidSlippage)

	assert.True(t, IsExcessiveSlippage(dec("5.01")))
	assert.False(t, IsExcessiveSlippage(dec("5")))
}

func TestValidateAmount(t *testing.T) {
	calc := testCalculator()
	assert.ErrorIs(t, calc.ValidateAmount(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, calc.ValidateAmount(dec("-1")), ErrInvalidAmount)
	assert.NoError(t, calc.ValidateAmount(dec("0.000001")))
}
