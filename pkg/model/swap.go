package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrSwapNotFound is returned by repositories when no swap matches.
var ErrSwapNotFound = errors.New("swap not found")

// ErrSwapTerminal is returned when a transition targets a swap that already
// reached Confirmed or Failed.
var ErrSwapTerminal = errors.New("swap already in terminal state")

// SwapStatus is the lifecycle state of a submitted swap.
type SwapStatus string

const (
	SwapStatusPending   SwapStatus = "pending"
	SwapStatusConfirmed SwapStatus = "confirmed"
	SwapStatusFailed    SwapStatus = "failed"
)

// Valid returns true if the status is one of the known constants.
func (s SwapStatus) Valid() bool {
	switch s {
	case SwapStatusPending, SwapStatusConfirmed, SwapStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions may leave s.
func (s SwapStatus) IsTerminal() bool {
	return s == SwapStatusConfirmed || s == SwapStatusFailed
}

func (s SwapStatus) String() string {
	return string(s)
}

func (s SwapStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

func (s *SwapStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSwapStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSwapStatus accepts any casing ("Pending", "CONFIRMED", ...).
func ParseSwapStatus(raw string) (SwapStatus, error) {
	s := SwapStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid swap status: %q", raw)
	}
	return s, nil
}

// SwapTransaction is the persisted record of one executed swap.
// Created Pending by the execution service; only StatusTransition.Apply
// and AttachHash mutate it afterwards, and only while Pending.
type SwapTransaction struct {
	ID                       uuid.UUID        `json:"id"`
	UserID                   uuid.UUID        `json:"userId"`
	WalletAddress            string           `json:"walletAddress"`
	FromToken                string           `json:"fromToken"`
	FromTokenSymbol          string           `json:"fromTokenSymbol"`
	ToToken                  string           `json:"toToken"`
	ToTokenSymbol            string           `json:"toTokenSymbol"`
	FromAmount               decimal.Decimal  `json:"fromAmount"`
	ToAmount                 decimal.Decimal  `json:"toAmount"`
	ExchangeRate             decimal.Decimal  `json:"exchangeRate"`
	PlatformFee              decimal.Decimal  `json:"platformFee"`
	PlatformFeePercentage    decimal.Decimal  `json:"platformFeePercentage"`
	PriceImpactPercent       decimal.Decimal  `json:"priceImpactPercent"`
	SlippageTolerancePercent decimal.Decimal  `json:"slippageTolerancePercent"`
	MinimumReceived          decimal.Decimal  `json:"minimumReceived"`
	DexProvider              string           `json:"dexProvider"`
	SubmissionID             string           `json:"submissionId,omitempty"`
	TransactionHash          *string          `json:"transactionHash,omitempty"`
	Status                   SwapStatus       `json:"status"`
	ErrorMessage             *string          `json:"errorMessage,omitempty"`
	GasUsed                  *uint64          `json:"gasUsed,omitempty"`
	GasCost                  *decimal.Decimal `json:"gasCost,omitempty"`
	CreatedAt                time.Time        `json:"createdAt"`
	UpdatedAt                time.Time        `json:"updatedAt"`
	ConfirmedAt              *time.Time       `json:"confirmedAt,omitempty"`
	FailedAt                 *time.Time       `json:"failedAt,omitempty"`
}

// AttachHash records a transaction hash learned after submission.
func (tx *SwapTransaction) AttachHash(hash string, at time.Time) error {
	if tx.Status.IsTerminal() {
		return ErrSwapTerminal
	}
	if hash == "" {
		return errors.New("empty transaction hash")
	}
	tx.TransactionHash = &hash
	tx.UpdatedAt = at
	return nil
}

// StatusTransition moves a pending swap into a terminal state. Build one
// with ConfirmTransition or FailTransition.
type StatusTransition struct {
	Status          SwapStatus
	TransactionHash string
	GasUsed         uint64
	GasCost         decimal.Decimal
	ErrorMessage    string
	At              time.Time
}

// ConfirmTransition requires the hash of the mined transaction.
func ConfirmTransition(hash string, gasUsed uint64, gasCost decimal.Decimal, at time.Time) (StatusTransition, error) {
	if hash == "" {
		return StatusTransition{}, errors.New("confirmed swap requires a transaction hash")
	}
	return StatusTransition{
		Status:          SwapStatusConfirmed,
		TransactionHash: hash,
		GasUsed:         gasUsed,
		GasCost:         gasCost,
		At:              at,
	}, nil
}

// FailTransition records why the swap did not settle.
func FailTransition(reason string, at time.Time) StatusTransition {
	if reason == "" {
		reason = "swap failed"
	}
	return StatusTransition{Status: SwapStatusFailed, ErrorMessage: reason, At: at}
}

// Apply mutates tx in place. It refuses to touch terminal swaps.
func (t StatusTransition) Apply(tx *SwapTransaction) error {
	if tx.Status.IsTerminal() {
		return ErrSwapTerminal
	}
	at := t.At
	switch t.Status {
	case SwapStatusConfirmed:
		if t.TransactionHash == "" {
			return errors.New("confirmed swap requires a transaction hash")
		}
		hash := t.TransactionHash
		gasUsed := t.GasUsed
		gasCost := t.GasCost
		tx.TransactionHash = &hash
		tx.GasUsed = &gasUsed
		tx.GasCost = &gasCost
		tx.ConfirmedAt = &at
	case SwapStatusFailed:
		msg := t.ErrorMessage
		tx.ErrorMessage = &msg
		tx.FailedAt = &at
		if t.TransactionHash != "" {
			hash := t.TransactionHash
			tx.TransactionHash = &hash
		}
	default:
		return fmt.Errorf("invalid transition target: %s", t.Status)
	}
	tx.Status = t.Status
	tx.UpdatedAt = at
	return nil
}

// SwapSortField is a whitelisted history sort column.
type SwapSortField string

const (
	SortByCreatedAt  SwapSortField = "createdAt"
	SortByFromAmount SwapSortField = "fromAmount"
)

// SwapFilter selects a page of a user's swap history.
type SwapFilter struct {
	UserID    uuid.UUID
	Status    *SwapStatus // nil means all
	Page      int
	PageSize  int
	SortBy    SwapSortField
	Ascending bool
}

// Offset returns the row offset for the filter's page.
func (f SwapFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// SwapPage is one page of history plus totals.
type SwapPage struct {
	Items      []SwapTransaction `json:"items"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalCount int               `json:"totalCount"`
	TotalPages int               `json:"totalPages"`
}

// SwapExecutionResult is returned to the caller of executeSwap.
type SwapExecutionResult struct {
	SwapID           uuid.UUID       `json:"swapId"`
	TransactionHash  *string         `json:"transactionHash,omitempty"`
	ExpectedToAmount decimal.Decimal `json:"expectedToAmount"`
	MinimumReceived  decimal.Decimal `json:"minimumReceived"`
	PlatformFee      decimal.Decimal `json:"platformFee"`
	Status           SwapStatus      `json:"status"`
}
