package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// PendingLister finds swaps still waiting for a terminal state.
type PendingLister interface {
	ListPendingSwaps(ctx context.Context, olderThan time.Time, limit int) ([]uuid.UUID, error)
}

// Refresher re-checks one swap against the chain.
type Refresher interface {
	RefreshStatus(ctx context.Context, id uuid.UUID) (*model.SwapTransaction, error)
}

// UnbookedFeeLister finds confirmed swaps whose fee is missing from the ledger.
type UnbookedFeeLister interface {
	ListConfirmedWithoutFee(ctx context.Context, limit int) ([]model.SwapTransaction, error)
}

// FeeRecorder books the fee of a confirmed swap. Booking twice is a no-op.
type FeeRecorder interface {
	RecordFee(ctx context.Context, tx *model.SwapTransaction) error
}

// DefaultSweepInterval applies when the configured interval is not positive.
const DefaultSweepInterval = time.Minute

// SweeperConfig tunes the sweep cadence.
type SweeperConfig struct {
	Interval time.Duration
	MinAge   time.Duration // swaps younger than this are left to their poller
	Batch    int
}

// PendingSweeper periodically refreshes pending swaps that no client or
// poller is driving, e.g. after a restart or once a poll gave up.
type PendingSweeper struct {
	logger    *zap.Logger
	lister    PendingLister
	refresher Refresher
	cfg       SweeperConfig
	unbooked  UnbookedFeeLister
	fees      FeeRecorder
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewPendingSweeper constructs the background job.
func NewPendingSweeper(logger *zap.Logger, lister PendingLister, refresher Refresher, cfg SweeperConfig) *PendingSweeper {
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	return &PendingSweeper{
		logger:    logger,
		lister:    lister,
		refresher: refresher,
		cfg:       cfg,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// WithFeeBackfill makes every sweep also book fees that were lost when the
// ledger write after a confirmation failed.
func (s *PendingSweeper) WithFeeBackfill(lister UnbookedFeeLister, fees FeeRecorder) *PendingSweeper {
	s.unbooked = lister
	s.fees = fees
	return s
}

// Start runs the sweep loop until ctx is done or Stop is called.
func (s *PendingSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("pending_sweeper.started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("min_age", s.cfg.MinAge),
		zap.Int("batch", s.cfg.Batch))

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
			s.BackfillFees(ctx)
		case <-s.stopCh:
			s.logger.Info("pending_sweeper.stopped (manual stop)")
			return
		case <-ctx.Done():
			s.logger.Info("pending_sweeper.stopped (context canceled)")
			return
		}
	}
}

// Stop halts the loop. It is safe to call more than once.
func (s *PendingSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// RunOnce sweeps a single batch and reports how many swaps left Pending.
func (s *PendingSweeper) RunOnce(ctx context.Context) int {
	start := s.now()
	ids, err := s.lister.ListPendingSwaps(ctx, start.Add(-s.cfg.MinAge), s.cfg.Batch)
	if err != nil {
		metrics.IncError("pending_sweeper", "list_failed")
		s.logger.Error("pending_sweeper.list_failed", zap.Error(err))
		return 0
	}

	resolved := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		tx, err := s.refresher.RefreshStatus(ctx, id)
		if err != nil {
			s.logger.Warn("pending_sweeper.refresh_failed",
				zap.String("swap_id", id.String()),
				zap.Error(err))
			continue
		}
		if tx.Status.IsTerminal() {
			resolved++
		}
	}

	metrics.SetLastSweep(s.now())
	s.logger.Info("pending_sweeper.success",
		zap.Int("checked", len(ids)),
		zap.Int("resolved", resolved),
		zap.Duration("duration", s.now().Sub(start)))
	return resolved
}

// BackfillFees books up to one batch of missing fees and returns how many
// were booked. It is a no-op unless WithFeeBackfill was called.
func (s *PendingSweeper) BackfillFees(ctx context.Context) int {
	if s.unbooked == nil || s.fees == nil {
		return 0
	}
	txs, err := s.unbooked.ListConfirmedWithoutFee(ctx, s.cfg.Batch)
	if err != nil {
		metrics.IncError("pending_sweeper", "fee_list_failed")
		s.logger.Error("pending_sweeper.fee_list_failed", zap.Error(err))
		return 0
	}

	booked := 0
	for i := range txs {
		if ctx.Err() != nil {
			break
		}
		if err := s.fees.RecordFee(ctx, &txs[i]); err != nil {
			metrics.IncError("ledger", "backfill_failed")
			s.logger.Warn("pending_sweeper.fee_backfill_failed",
				zap.String("swap_id", txs[i].ID.String()),
				zap.Error(err))
			continue
		}
		booked++
	}
	if booked > 0 {
		s.logger.Info("pending_sweeper.fees_backfilled", zap.Int("booked", booked))
	}
	return booked
}
