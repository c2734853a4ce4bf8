package swap

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Code is the machine-readable error code returned to callers.
type Code string

const (
	CodeInvalidTokenPair     Code = "INVALID_TOKEN_PAIR"
	CodeInvalidAmount        Code = "INVALID_AMOUNT"
	CodeInvalidSlippage      Code = "INVALID_SLIPPAGE"
	CodeInvalidWallet        Code = "INVALID_WALLET_ADDRESS"
	CodeQuoteUnavailable     Code = "QUOTE_UNAVAILABLE"
	CodeQuoteExpired         Code = "QUOTE_EXPIRED"
	CodeInsufficientBalance  Code = "INSUFFICIENT_BALANCE"
	CodeBalanceUnavailable   Code = "BALANCE_UNAVAILABLE"
	CodeSwapSubmissionFailed Code = "SWAP_SUBMISSION_FAILED"
	CodeNotFound             Code = "NOT_FOUND"
	CodeInvalidFilter        Code = "INVALID_FILTER"
)

// Error is a domain error carrying a code, a caller-safe message and
// optional structured details.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrInvalidTokenPair     = &Error{Code: CodeInvalidTokenPair}
	ErrInvalidAmount        = &Error{Code: CodeInvalidAmount}
	ErrInvalidSlippage      = &Error{Code: CodeInvalidSlippage}
	ErrQuoteUnavailable     = &Error{Code: CodeQuoteUnavailable}
	ErrQuoteExpired         = &Error{Code: CodeQuoteExpired}
	ErrInsufficientBalance  = &Error{Code: CodeInsufficientBalance}
	ErrBalanceUnavailable   = &Error{Code: CodeBalanceUnavailable}
	ErrSwapSubmissionFailed = &Error{Code: CodeSwapSubmissionFailed}
	ErrNotFound             = &Error{Code: CodeNotFound}
)

func newError(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Err: cause}
}

// InsufficientBalanceError is a business outcome, not a fault.
type InsufficientBalanceError struct {
	Token     string
	Required  decimal.Decimal
	Available decimal.Decimal
	Shortfall decimal.Decimal
}

// NewInsufficientBalance derives the shortfall from required and available.
func NewInsufficientBalance(token string, required, available decimal.Decimal) *InsufficientBalanceError {
	return &InsufficientBalanceError{
		Token:     token,
		Required:  required,
		Available: available,
		Shortfall: required.Sub(available),
	}
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: required %s, available %s, shortfall %s",
		e.Token, e.Required, e.Available, e.Shortfall)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// AsError flattens e into the generic shape used on the wire.
func (e *InsufficientBalanceError) AsError() *Error {
	return &Error{
		Code:    CodeInsufficientBalance,
		Message: e.Error(),
		Details: map[string]any{
			"token":     e.Token,
			"required":  e.Required,
			"available": e.Available,
			"shortfall": e.Shortfall,
		},
	}
}

// CodeOf extracts the domain code from err, or "" for non-domain errors.
func CodeOf(err error) Code {
	var ib *InsufficientBalanceError
	if errors.As(err, &ib) {
		return CodeInsufficientBalance
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
