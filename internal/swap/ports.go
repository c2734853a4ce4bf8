package swap

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/swap-engine/internal/aggregator"
	"github.com/Checker-Finance/swap-engine/internal/tokens"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// TokenDirectory resolves token metadata by address.
type TokenDirectory interface {
	Lookup(addr string) (tokens.Token, error)
}

// Aggregator returns raw quotes.
type Aggregator interface {
	Quote(ctx context.Context, req aggregator.QuoteRequest) (*model.RawQuote, error)
	Name() string
}

// GasPriceOracle returns the current gas price in gwei.
type GasPriceOracle interface {
	GasPriceGwei(ctx context.Context) (decimal.Decimal, error)
}

// BalanceProvider reads a wallet's balance of a token, in token units.
type BalanceProvider interface {
	Balance(ctx context.Context, wallet string, token tokens.Token) (decimal.Decimal, error)
}

// Receipt is what the chain reports for a mined transaction.
type Receipt struct {
	Succeeded bool
	GasUsed   uint64
	GasCost   decimal.Decimal // native token units
	Block     uint64
}

// ReceiptProvider looks up a transaction receipt. A nil receipt with a nil
// error means the transaction is not mined yet.
type ReceiptProvider interface {
	Receipt(ctx context.Context, txHash string) (*Receipt, error)
}

// SwapParams is what the submission layer needs to execute a swap.
type SwapParams struct {
	SwapID          uuid.UUID
	FromToken       tokens.Token
	ToToken         tokens.Token
	FromAmount      decimal.Decimal
	MinimumReceived decimal.Decimal
	Slippage        decimal.Decimal
}

// Submission is the submission layer's acknowledgement. TransactionHash is
// empty when the hash is only known later (e.g. bundled user operations).
type Submission struct {
	SubmissionID    string
	TransactionHash string
}

// SubmissionState is the submission layer's view of an earlier submission.
type SubmissionState struct {
	TransactionHash string
	Rejected        bool
	Reason          string
}

// Submitter executes swaps on behalf of a wallet.
type Submitter interface {
	Submit(ctx context.Context, wallet string, params SwapParams) (*Submission, error)
	Lookup(ctx context.Context, submissionID string) (*SubmissionState, error)
}

// Repository persists swaps. Mutations succeed only while a swap is pending.
type Repository interface {
	CreateSwap(ctx context.Context, tx *model.SwapTransaction) error
	GetSwap(ctx context.Context, id uuid.UUID) (*model.SwapTransaction, error)
	AttachTransactionHash(ctx context.Context, id uuid.UUID, hash string, at time.Time) (*model.SwapTransaction, error)
	// TransitionSwap applies t if the swap is still pending. applied is false
	// when another writer got there first; the returned swap is current.
	TransitionSwap(ctx context.Context, id uuid.UUID, t model.StatusTransition) (tx *model.SwapTransaction, applied bool, err error)
	ListSwaps(ctx context.Context, filter model.SwapFilter) ([]model.SwapTransaction, int, error)
}

// EventSink receives swap lifecycle events.
type EventSink interface {
	PublishSwapEvent(ctx context.Context, evt model.SwapEvent) error
}

// FeeRecorder books the platform fee of a confirmed swap.
type FeeRecorder interface {
	RecordFee(ctx context.Context, tx *model.SwapTransaction) error
}
