package swap

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// Refresher is the part of the Tracker the poller drives.
type Refresher interface {
	RefreshStatus(ctx context.Context, id uuid.UUID) (*model.SwapTransaction, error)
}

// Poller refreshes newly submitted swaps server-side at a fixed interval
// until they reach a terminal state. Swaps still pending after maxDuration
// are left to the pending sweeper.
type Poller struct {
	logger      *zap.Logger
	refresher   Refresher
	interval    time.Duration
	maxDuration time.Duration

	baseCtx context.Context
	stopCh  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	active sync.Map // swap id -> context.CancelFunc
}

// Used when the configured values are not positive.
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultPollMaxDuration = 10 * time.Minute
)

// NewPoller constructs a poller. baseCtx bounds every poll it starts.
func NewPoller(baseCtx context.Context, logger *zap.Logger, refresher Refresher, interval, maxDuration time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxDuration <= 0 {
		maxDuration = DefaultPollMaxDuration
	}
	return &Poller{
		logger:      logger,
		refresher:   refresher,
		interval:    interval,
		maxDuration: maxDuration,
		baseCtx:     baseCtx,
		stopCh:      make(chan struct{}),
	}
}

// Watch starts polling swapID. Duplicate calls for a swap already being
// polled are ignored.
func (p *Poller) Watch(swapID uuid.UUID) {
	select {
	case <-p.stopCh:
		return
	default:
	}

	ctx, cancel := withTimeout(p.baseCtx, p.maxDuration)
	if _, loaded := p.active.LoadOrStore(swapID, cancel); loaded {
		cancel()
		p.logger.Debug("swap.poll_already_active", zap.String("swap_id", swapID.String()))
		return
	}
	metrics.ActivePolls.Inc()

	p.wg.Add(1)
	go func() {
		defer func() {
			p.active.Delete(swapID)
			cancel()
			metrics.ActivePolls.Dec()
			p.wg.Done()
		}()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("swap.poll_stopped",
					zap.String("swap_id", swapID.String()),
					zap.String("reason", ctx.Err().Error()))
				return

			case <-p.stopCh:
				p.logger.Info("swap.poll_stopped",
					zap.String("swap_id", swapID.String()),
					zap.String("reason", "poller_shutdown"))
				return

			case <-ticker.C:
				tx, err := p.refresher.RefreshStatus(ctx, swapID)
				if err != nil {
					p.logger.Warn("swap.poll_error",
						zap.String("swap_id", swapID.String()),
						zap.Error(err))
					if CodeOf(err) == CodeNotFound {
						return
					}
					continue
				}
				if tx.Status.IsTerminal() {
					p.logger.Info("swap.poll_terminal",
						zap.String("swap_id", swapID.String()),
						zap.String("status", tx.Status.String()))
					return
				}
			}
		}
	}()
}

// Cancel stops polling a single swap.
func (p *Poller) Cancel(swapID uuid.UUID) {
	if cancel, ok := p.active.Load(swapID); ok {
		cancel.(context.CancelFunc)()
	}
}

// IsPolling reports whether swapID is being polled.
func (p *Poller) IsPolling(swapID uuid.UUID) bool {
	_, ok := p.active.Load(swapID)
	return ok
}

// Stop ends every poll and waits for the goroutines to exit.
func (p *Poller) Stop() {
	p.once.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}
