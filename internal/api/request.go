package api

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/swap-engine/internal/swap"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// ExecuteSwapRequest is the body of POST /api/v1/swap/execute.
// WalletAddress is optional; the user's wallet on record is used otherwise.
type ExecuteSwapRequest struct {
	WalletAddress string           `json:"walletAddress"`
	FromToken     string           `json:"fromToken"`
	ToToken       string           `json:"toToken"`
	FromAmount    decimal.Decimal  `json:"fromAmount"`
	Slippage      *decimal.Decimal `json:"slippage,omitempty"`
}

func (r ExecuteSwapRequest) Validate() error {
	if strings.TrimSpace(r.FromToken) == "" || strings.TrimSpace(r.ToToken) == "" {
		return &swap.Error{Code: swap.CodeInvalidTokenPair, Message: "fromToken and toToken are required"}
	}
	if !r.FromAmount.IsPositive() {
		return &swap.Error{Code: swap.CodeInvalidAmount, Message: "fromAmount must be greater than 0"}
	}
	return nil
}

// QuoteResponse is a quote plus advisory warnings for the caller.
type QuoteResponse struct {
	*model.Quote
	Warnings []string `json:"warnings,omitempty"`
}

// SlippageRecommendation is the body of the recommendation endpoint.
type SlippageRecommendation struct {
	Amount                decimal.Decimal `json:"amount"`
	RecommendedSlippage   decimal.Decimal `json:"recommendedSlippage"`
	MinSlippage           decimal.Decimal `json:"minSlippage"`
	MaxSlippage           decimal.Decimal `json:"maxSlippage"`
	ExcessiveAbovePercent decimal.Decimal `json:"excessiveAbovePercent"`
}

// TokenResponse describes one supported token.
type TokenResponse struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// VolumeResponse is the caller's confirmed volume in one token.
type VolumeResponse struct {
	Token  string          `json:"token"`
	Volume decimal.Decimal `json:"volume"`
}

// parseDecimalParam parses an optional decimal query value. Empty is zero.
func parseDecimalParam(raw string, code swap.Code, name string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &swap.Error{
			Code:    code,
			Message: name + " must be a decimal number",
			Details: map[string]any{name: raw},
		}
	}
	return d, nil
}

// parseOptionalDecimal is parseDecimalParam that keeps "absent" apart from
// an explicit zero. Empty returns nil.
func parseOptionalDecimal(raw string, code swap.Code, name string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := parseDecimalParam(raw, code, name)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
