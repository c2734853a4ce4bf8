package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceImpactLevel is an advisory label for how far a trade moves the market.
type PriceImpactLevel string

const (
	PriceImpactLow    PriceImpactLevel = "low"
	PriceImpactMedium PriceImpactLevel = "medium"
	PriceImpactHigh   PriceImpactLevel = "high"
)

// RouteHop is one leg of an aggregator route.
type RouteHop struct {
	Protocol  string          `json:"protocol"`
	Part      decimal.Decimal `json:"part"` // percentage of the amount routed through this leg
	FromToken string          `json:"fromToken"`
	ToToken   string          `json:"toToken"`
}

// RawQuote is what an aggregator returns before fees and risk are applied.
type RawQuote struct {
	Provider     string
	FromToken    string
	ToToken      string
	FromAmount   decimal.Decimal
	ToAmount     decimal.Decimal
	EstimatedGas uint64

	// PriceImpactPercent is set when the aggregator reports impact directly.
	PriceImpactPercent *decimal.Decimal
	// SpotRate is the marginal rate for a negligible amount, used to derive
	// impact when the aggregator does not report it.
	SpotRate *decimal.Decimal

	Route []RouteHop
}

// Quote is a priced, fee-adjusted and time-bounded swap proposal.
type Quote struct {
	FromToken                string           `json:"fromToken"`
	FromTokenSymbol          string           `json:"fromTokenSymbol"`
	ToToken                  string           `json:"toToken"`
	ToTokenSymbol            string           `json:"toTokenSymbol"`
	FromAmount               decimal.Decimal  `json:"fromAmount"`
	ToAmount                 decimal.Decimal  `json:"toAmount"`
	ExchangeRate             decimal.Decimal  `json:"exchangeRate"`
	PlatformFee              decimal.Decimal  `json:"platformFee"`
	PlatformFeePercentage    decimal.Decimal  `json:"platformFeePercentage"`
	EstimatedGas             uint64           `json:"estimatedGas"`
	EstimatedGasCost         decimal.Decimal  `json:"estimatedGasCost"`
	PriceImpactPercent       decimal.Decimal  `json:"priceImpactPercent"`
	PriceImpactLevel         PriceImpactLevel `json:"priceImpactLevel"`
	SlippageTolerancePercent decimal.Decimal  `json:"slippageTolerancePercent"`
	MinimumReceived          decimal.Decimal  `json:"minimumReceived"`
	QuoteValidUntil          time.Time        `json:"quoteValidUntil"`
	Provider                 string           `json:"provider"`
	Route                    []RouteHop       `json:"route,omitempty"`
}

// Clone returns a copy that shares no mutable state with q.
func (q *Quote) Clone() *Quote {
	if q == nil {
		return nil
	}
	c := *q
	if q.Route != nil {
		c.Route = append([]RouteHop(nil), q.Route...)
	}
	return &c
}

// ValidAt reports whether the quote may still be used at t.
// A quote is valid only strictly before QuoteValidUntil.
func (q *Quote) ValidAt(t time.Time) bool {
	return q != nil && t.Before(q.QuoteValidUntil)
}
