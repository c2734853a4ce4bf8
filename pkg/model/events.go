package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Envelope is the canonical event envelope.
// All messages published to NATS follow this format.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// SwapEventType names a swap lifecycle event.
type SwapEventType string

const (
	SwapEventSubmitted         SwapEventType = "swap.submitted"
	SwapEventConfirmed         SwapEventType = "swap.confirmed"
	SwapEventFailed            SwapEventType = "swap.failed"
	SwapEventReconciliationGap SwapEventType = "swap.reconciliation_gap"
)

// SwapEvent is emitted on every lifecycle change of a swap.
type SwapEvent struct {
	Type            SwapEventType   `json:"type"`
	SwapID          uuid.UUID       `json:"swap_id"`
	UserID          uuid.UUID       `json:"user_id"`
	WalletAddress   string          `json:"wallet_address"`
	FromToken       string          `json:"from_token"`
	ToToken         string          `json:"to_token"`
	FromAmount      decimal.Decimal `json:"from_amount"`
	ToAmount        decimal.Decimal `json:"to_amount"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	Status          SwapStatus      `json:"status"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
	SubmissionID    string          `json:"submission_id,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// NewSwapEvent snapshots tx into an event of the given type.
func NewSwapEvent(typ SwapEventType, tx *SwapTransaction, at time.Time) SwapEvent {
	evt := SwapEvent{
		Type:          typ,
		SwapID:        tx.ID,
		UserID:        tx.UserID,
		WalletAddress: tx.WalletAddress,
		FromToken:     tx.FromToken,
		ToToken:       tx.ToToken,
		FromAmount:    tx.FromAmount,
		ToAmount:      tx.ToAmount,
		PlatformFee:   tx.PlatformFee,
		Status:        tx.Status,
		SubmissionID:  tx.SubmissionID,
		Timestamp:     at,
	}
	if tx.TransactionHash != nil {
		evt.TransactionHash = *tx.TransactionHash
	}
	if tx.ErrorMessage != nil {
		evt.Reason = *tx.ErrorMessage
	}
	return evt
}
