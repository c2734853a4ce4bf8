package swap

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/swap-engine/internal/tokens"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

var (
	hundred = decimal.NewFromInt(100)
	gweiPer = decimal.New(1, 9)

	impactMedium = decimal.NewFromInt(1)
	impactHigh   = decimal.NewFromInt(3)

	excessiveSlippage = decimal.NewFromInt(5)
)

const (
	impactPlaces  int32 = 2
	gasCostPlaces int32 = 6
)

// FeeConfig holds the pricing parameters.
type FeeConfig struct {
	PlatformFeePercentage decimal.Decimal
	MinSlippage           decimal.Decimal
	MaxSlippage           decimal.Decimal
}

// PricingContext carries the inputs to PriceQuote that do not come from
// the aggregator.
type PricingContext struct {
	From         tokens.Token
	To           tokens.Token
	GasPriceGwei decimal.Decimal
	ValidUntil   time.Time
}

// FeeCalculator prices raw quotes. All methods are pure.
type FeeCalculator struct {
	cfg FeeConfig
}

func NewFeeCalculator(cfg FeeConfig) *FeeCalculator {
	return &FeeCalculator{cfg: cfg}
}

// ValidateAmount rejects non-positive amounts.
func (c *FeeCalculator) ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &Error{
			Code:    CodeInvalidAmount,
			Message: "amount must be greater than zero",
			Details: map[string]any{"amount": amount},
		}
	}
	return nil
}

// ValidateSlippage enforces the configured inclusive bounds.
func (c *FeeCalculator) ValidateSlippage(s decimal.Decimal) error {
	if s.LessThan(c.cfg.MinSlippage) || s.GreaterThan(c.cfg.MaxSlippage) {
		return &Error{
			Code:    CodeInvalidSlippage,
			Message: "slippage tolerance must be between " + c.cfg.MinSlippage.String() + "% and " + c.cfg.MaxSlippage.String() + "%",
			Details: map[string]any{
				"slippage": s,
				"min":      c.cfg.MinSlippage,
				"max":      c.cfg.MaxSlippage,
			},
		}
	}
	return nil
}

// PlatformFee is fromAmount × pct / 100, exact.
func (c *FeeCalculator) PlatformFee(fromAmount decimal.Decimal) decimal.Decimal {
	return fromAmount.Mul(c.cfg.PlatformFeePercentage).Div(hundred)
}

// MinimumReceived floors toAmount × (1 − s/100) to the given precision.
func MinimumReceived(toAmount, slippage decimal.Decimal, places int32) decimal.Decimal {
	return toAmount.Mul(hundred.Sub(slippage)).Div(hundred).Truncate(places)
}

// ClassifyPriceImpact labels impact: low below 1%, medium below 3%, high otherwise.
func ClassifyPriceImpact(pct decimal.Decimal) model.PriceImpactLevel {
	switch {
	case pct.LessThan(impactMedium):
		return model.PriceImpactLow
	case pct.LessThan(impactHigh):
		return model.PriceImpactMedium
	default:
		return model.PriceImpactHigh
	}
}

// PriceImpact uses the aggregator's figure when present, otherwise derives
// it from the spot rate. Without either it is zero.
func PriceImpact(raw *model.RawQuote) decimal.Decimal {
	if raw.PriceImpactPercent != nil {
		return raw.PriceImpactPercent.Abs().Round(impactPlaces)
	}
	if raw.SpotRate == nil || !raw.SpotRate.IsPositive() || !raw.FromAmount.IsPositive() {
		return decimal.Zero
	}
	ideal := raw.FromAmount.Mul(*raw.SpotRate)
	impact := ideal.Sub(raw.ToAmount).Div(ideal).Mul(hundred)
	if impact.IsNegative() {
		return decimal.Zero
	}
	return impact.Round(impactPlaces)
}

// GasCost converts gas units at a gwei price to native token units.
func GasCost(gas uint64, gasPriceGwei decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(gas)).Mul(gasPriceGwei).Div(gweiPer).Round(gasCostPlaces)
}

// RecommendSlippage suggests a tolerance by trade size.
func RecommendSlippage(amount decimal.Decimal) decimal.Decimal {
	switch {
	case amount.LessThan(decimal.NewFromInt(100)):
		return decimal.RequireFromString("0.5")
	case amount.LessThan(decimal.NewFromInt(1000)):
		return decimal.NewFromInt(1)
	case amount.LessThan(decimal.NewFromInt(5000)):
		return decimal.NewFromInt(2)
	default:
		return decimal.NewFromInt(3)
	}
}

// IsExcessiveSlippage flags tolerances above 5%, which callers should warn on.
func IsExcessiveSlippage(s decimal.Decimal) bool {
	return s.GreaterThan(excessiveSlippage)
}

// PriceQuote turns a raw aggregator quote into a caller-facing Quote.
func (c *FeeCalculator) PriceQuote(raw *model.RawQuote, slippage decimal.Decimal, pc PricingContext) (*model.Quote, error) {
	if err := c.ValidateAmount(raw.FromAmount); err != nil {
		return nil, err
	}
	if err := c.ValidateSlippage(slippage); err != nil {
		return nil, err
	}
	if !raw.ToAmount.IsPositive() {
		return nil, &Error{Code: CodeQuoteUnavailable, Message: "aggregator returned no output amount"}
	}

	impact := PriceImpact(raw)
	return &model.Quote{
		FromToken:                tokens.Normalize(pc.From.Address),
		FromTokenSymbol:          pc.From.Symbol,
		ToToken:                  tokens.Normalize(pc.To.Address),
		ToTokenSymbol:            pc.To.Symbol,
		FromAmount:               raw.FromAmount,
		ToAmount:                 raw.ToAmount,
		ExchangeRate:             raw.ToAmount.Div(raw.FromAmount),
		PlatformFee:              c.PlatformFee(raw.FromAmount),
		PlatformFeePercentage:    c.cfg.PlatformFeePercentage,
		EstimatedGas:             raw.EstimatedGas,
		EstimatedGasCost:         GasCost(raw.EstimatedGas, pc.GasPriceGwei),
		PriceImpactPercent:       impact,
		PriceImpactLevel:         ClassifyPriceImpact(impact),
		SlippageTolerancePercent: slippage,
		MinimumReceived:          MinimumReceived(raw.ToAmount, slippage, pc.To.DisplayDecimals()),
		QuoteValidUntil:          pc.ValidUntil,
		Provider:                 raw.Provider,
		Route:                    raw.Route,
	}, nil
}
