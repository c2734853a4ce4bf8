package swap

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TrackerConfig bounds the chain and submission-layer calls.
type TrackerConfig struct {
	RPCTimeout time.Duration
}

// Tracker owns the Pending → Confirmed | Failed transitions. It is the only
// writer of a swap after creation.
type Tracker struct {
	logger    *zap.Logger
	cfg       TrackerConfig
	repo      Repository
	receipts  ReceiptProvider
	submitter Submitter
	events    EventSink
	fees      FeeRecorder
	now       func() time.Time
}

// NewTracker wires a Tracker. events and fees may be nil.
func NewTracker(
	logger *zap.Logger,
	cfg TrackerConfig,
	repo Repository,
	receipts ReceiptProvider,
	submitter Submitter,
	events EventSink,
	fees FeeRecorder,
) *Tracker {
	return &Tracker{
		logger:    logger,
		cfg:       cfg,
		repo:      repo,
		receipts:  receipts,
		submitter: submitter,
		events:    events,
		fees:      fees,
		now:       time.Now,
	}
}

// WithClock overrides the time source (tests).
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) load(ctx context.Context, id uuid.UUID) (*model.SwapTransaction, error) {
	tx, err := t.repo.GetSwap(ctx, id)
	if errors.Is(err, model.ErrSwapNotFound) {
		return nil, &Error{Code: CodeNotFound, Message: "swap not found", Details: map[string]any{"swapId": id}}
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// GetStatus returns the persisted swap.
func (t *Tracker) GetStatus(ctx context.Context, id uuid.UUID) (*model.SwapTransaction, error) {
	return t.load(ctx, id)
}

// GetStatusForUser returns the swap only if userID owns it. A swap owned by
// someone else is reported as not found.
func (t *Tracker) GetStatusForUser(ctx context.Context, userID, id uuid.UUID) (*model.SwapTransaction, error) {
	tx, err := t.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, &Error{Code: CodeNotFound, Message: "swap not found", Details: map[string]any{"swapId": id}}
	}
	return tx, nil
}

// RefreshStatusForUser is RefreshStatus with the ownership check.
func (t *Tracker) RefreshStatusForUser(ctx context.Context, userID, id uuid.UUID) (*model.SwapTransaction, error) {
	if _, err := t.GetStatusForUser(ctx, userID, id); err != nil {
		return nil, err
	}
	return t.RefreshStatus(ctx, id)
}

// RefreshStatus checks the chain for a pending swap and records a terminal
// state once there is positive evidence for one. Terminal swaps are
// returned unchanged. Transient lookup failures leave the swap pending and
// are not returned as errors, so the next poll simply tries again.
func (t *Tracker) RefreshStatus(ctx context.Context, id uuid.UUID) (*model.SwapTransaction, error) {
	tx, err := t.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status.IsTerminal() {
		return tx, nil
	}

	if tx.TransactionHash == nil {
		next, done := t.resolveHash(ctx, tx)
		if done || next.TransactionHash == nil {
			return next, nil
		}
		tx = next
	}

	rctx, cancel := withTimeout(ctx, t.cfg.RPCTimeout)
	defer cancel()
	receipt, err := t.receipts.Receipt(rctx, *tx.TransactionHash)
	if err != nil {
		metrics.IncRefreshError("receipt")
		t.logger.Warn("swap.refresh.receipt_failed",
			zap.String("swap_id", tx.ID.String()),
			zap.String("tx_hash", *tx.TransactionHash),
			zap.Error(err))
		return tx, nil
	}
	if receipt == nil {
		return tx, nil
	}

	now := t.now().UTC()
	var tr model.StatusTransition
	if receipt.Succeeded {
		tr, err = model.ConfirmTransition(*tx.TransactionHash, receipt.GasUsed, receipt.GasCost, now)
		if err != nil {
			return tx, err
		}
	} else {
		tr = model.FailTransition("transaction reverted on-chain", now)
		tr.TransactionHash = *tx.TransactionHash
	}
	return t.transition(ctx, tx, tr)
}

// resolveHash asks the submission layer for the hash of a swap submitted
// without one. done is true when the swap reached a terminal state.
func (t *Tracker) resolveHash(ctx context.Context, tx *model.SwapTransaction) (*model.SwapTransaction, bool) {
	if tx.SubmissionID == "" {
		return tx, false
	}
	lctx, cancel := withTimeout(ctx, t.cfg.RPCTimeout)
	defer cancel()

	state, err := t.submitter.Lookup(lctx, tx.SubmissionID)
	if err != nil {
		metrics.IncRefreshError("submission_lookup")
		t.logger.Warn("swap.refresh.lookup_failed",
			zap.String("swap_id", tx.ID.String()),
			zap.String("submission_id", tx.SubmissionID),
			zap.Error(err))
		return tx, false
	}
	if state == nil {
		return tx, false
	}
	if state.Rejected {
		next, err := t.transition(ctx, tx, model.FailTransition(state.Reason, t.now().UTC()))
		if err != nil {
			return tx, false
		}
		return next, true
	}
	if state.TransactionHash == "" {
		return tx, false
	}

	next, err := t.repo.AttachTransactionHash(ctx, tx.ID, state.TransactionHash, t.now().UTC())
	if err != nil {
		metrics.IncRefreshError("attach_hash")
		t.logger.Warn("swap.refresh.attach_hash_failed",
			zap.String("swap_id", tx.ID.String()),
			zap.Error(err))
		return tx, false
	}
	t.logger.Info("swap.refresh.hash_attached",
		zap.String("swap_id", tx.ID.String()),
		zap.String("tx_hash", state.TransactionHash))
	return next, next.Status.IsTerminal()
}

func (t *Tracker) transition(ctx context.Context, tx *model.SwapTransaction, tr model.StatusTransition) (*model.SwapTransaction, error) {
	next, applied, err := t.repo.TransitionSwap(ctx, tx.ID, tr)
	if err != nil {
		metrics.IncRefreshError("persist")
		t.logger.Warn("swap.refresh.persist_failed",
			zap.String("swap_id", tx.ID.String()),
			zap.String("target", tr.Status.String()),
			zap.Error(err))
		return tx, err
	}
	if !applied {
		// another refresher won; its terminal state stands
		return next, nil
	}

	metrics.IncTransition(next.Status.String())
	t.logger.Info("swap.refresh.transitioned",
		zap.String("swap_id", next.ID.String()),
		zap.String("status", next.Status.String()),
		zap.Stringp("tx_hash", next.TransactionHash),
		zap.Stringp("error", next.ErrorMessage))

	if next.Status == model.SwapStatusConfirmed && t.fees != nil {
		if err := t.fees.RecordFee(ctx, next); err != nil {
			// the pending sweeper books it later
			metrics.IncError("ledger", "record_failed")
			t.logger.Error("swap.fee_record_failed", zap.String("swap_id", next.ID.String()), zap.Error(err))
		}
	}
	if t.events != nil {
		typ := model.SwapEventConfirmed
		if next.Status == model.SwapStatusFailed {
			typ = model.SwapEventFailed
		}
		_ = t.events.PublishSwapEvent(ctx, model.NewSwapEvent(typ, next, tr.At))
	}
	return next, nil
}

// HistoryQuery is the caller's history request before defaults apply.
type HistoryQuery struct {
	UserID    uuid.UUID
	Status    string // "", "all", "pending", "confirmed", "failed"
	Page      int
	PageSize  int
	SortBy    string // "createdAt" | "fromAmount"
	SortOrder string // "asc" | "desc"
}

// History returns a page of the user's swaps.
func (t *Tracker) History(ctx context.Context, q HistoryQuery) (*model.SwapPage, error) {
	filter := model.SwapFilter{
		UserID:   q.UserID,
		Page:     q.Page,
		PageSize: q.PageSize,
		SortBy:   model.SortByCreatedAt,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	switch q.Status {
	case "", "all":
	default:
		s, err := model.ParseSwapStatus(q.Status)
		if err != nil {
			return nil, &Error{Code: CodeInvalidFilter, Message: "status must be one of all, pending, confirmed, failed"}
		}
		filter.Status = &s
	}
	switch q.SortBy {
	case "", string(model.SortByCreatedAt):
	case string(model.SortByFromAmount):
		filter.SortBy = model.SortByFromAmount
	default:
		return nil, &Error{Code: CodeInvalidFilter, Message: "sortBy must be createdAt or fromAmount"}
	}
	switch q.SortOrder {
	case "", "desc":
	case "asc":
		filter.Ascending = true
	default:
		return nil, &Error{Code: CodeInvalidFilter, Message: "sortOrder must be asc or desc"}
	}

	items, total, err := t.repo.ListSwaps(ctx, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.SwapTransaction{}
	}
	return &model.SwapPage{
		Items:      items,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
		TotalPages: int(math.Ceil(float64(total) / float64(filter.PageSize))),
	}, nil
}
