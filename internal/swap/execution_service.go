package swap

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/pkg/model"
	"github.com/Checker-Finance/swap-engine/pkg/utils"
)

// ExecuteRequest is an authenticated user's request to swap.
type ExecuteRequest struct {
	UserID        uuid.UUID
	WalletAddress string
	FromToken     string
	ToToken       string
	FromAmount    decimal.Decimal
	Slippage      *decimal.Decimal // nil means the configured default
}

// ExecutionConfig bounds the external calls made while executing.
type ExecutionConfig struct {
	BalanceTimeout time.Duration
	SubmitTimeout  time.Duration
	PersistTimeout time.Duration
}

// Watcher starts server-side status polling for a new swap.
type Watcher interface {
	Watch(swapID uuid.UUID)
}

// ExecutionService re-quotes, checks balance, submits and persists swaps,
// strictly in that order.
type ExecutionService struct {
	logger    *zap.Logger
	cfg       ExecutionConfig
	quotes    *QuoteService
	balances  BalanceProvider
	submitter Submitter
	repo      Repository
	events    EventSink
	watcher   Watcher
	now       func() time.Time
}

// NewExecutionService wires an ExecutionService. events and watcher may be nil.
func NewExecutionService(
	logger *zap.Logger,
	cfg ExecutionConfig,
	quotes *QuoteService,
	balances BalanceProvider,
	submitter Submitter,
	repo Repository,
	events EventSink,
	watcher Watcher,
) *ExecutionService {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	return &ExecutionService{
		logger:    logger,
		cfg:       cfg,
		quotes:    quotes,
		balances:  balances,
		submitter: submitter,
		repo:      repo,
		events:    events,
		watcher:   watcher,
		now:       time.Now,
	}
}

// WithClock overrides the time source (tests).
func (s *ExecutionService) WithClock(now func() time.Time) *ExecutionService {
	s.now = now
	return s
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// ExecuteSwap runs quote → balance check → submit → persist. A swap row
// exists only if submission succeeded.
func (s *ExecutionService) ExecuteSwap(ctx context.Context, req ExecuteRequest) (*model.SwapExecutionResult, error) {
	if !common.IsHexAddress(req.WalletAddress) {
		metrics.IncExecution("invalid")
		return nil, &Error{
			Code:    CodeInvalidWallet,
			Message: "a valid wallet address is required",
			Details: map[string]any{"walletAddress": req.WalletAddress},
		}
	}

	// 1. fresh quote; a client-supplied one is never trusted
	quote, err := s.quotes.GetQuote(ctx, QuoteRequest{
		FromToken: req.FromToken,
		ToToken:   req.ToToken,
		Amount:    req.FromAmount,
		Slippage:  req.Slippage,
	})
	if err != nil {
		metrics.IncExecution("quote_failed")
		return nil, err
	}
	r, err := s.quotes.resolve(QuoteRequest{
		FromToken: quote.FromToken,
		ToToken:   quote.ToToken,
		Amount:    quote.FromAmount,
		Slippage:  &quote.SlippageTolerancePercent,
	})
	if err != nil {
		metrics.IncExecution("quote_failed")
		return nil, err
	}

	// 2. balance
	if err := s.checkBalance(ctx, req, r, quote); err != nil {
		return nil, err
	}

	// 3. the quote may have aged out while we waited on the chain
	if !quote.ValidAt(s.now()) {
		metrics.IncExecution("quote_expired")
		return nil, &Error{
			Code:    CodeQuoteExpired,
			Message: "quote expired before submission, please request a new quote",
			Details: map[string]any{"quoteValidUntil": quote.QuoteValidUntil},
		}
	}

	swapID := uuid.New()
	sub, err := s.submit(ctx, req, r, quote, swapID)
	if err != nil {
		return nil, err
	}

	// 4. persist exactly once
	now := s.now().UTC()
	tx := &model.SwapTransaction{
		ID:                       swapID,
		UserID:                   req.UserID,
		WalletAddress:            req.WalletAddress,
		FromToken:                quote.FromToken,
		FromTokenSymbol:          quote.FromTokenSymbol,
		ToToken:                  quote.ToToken,
		ToTokenSymbol:            quote.ToTokenSymbol,
		FromAmount:               quote.FromAmount,
		ToAmount:                 quote.ToAmount,
		ExchangeRate:             quote.ExchangeRate,
		PlatformFee:              quote.PlatformFee,
		PlatformFeePercentage:    quote.PlatformFeePercentage,
		PriceImpactPercent:       quote.PriceImpactPercent,
		SlippageTolerancePercent: quote.SlippageTolerancePercent,
		MinimumReceived:          quote.MinimumReceived,
		DexProvider:              quote.Provider,
		SubmissionID:             sub.SubmissionID,
		Status:                   model.SwapStatusPending,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if sub.TransactionHash != "" {
		h := sub.TransactionHash
		tx.TransactionHash = &h
	}

	result := &model.SwapExecutionResult{
		SwapID:           tx.ID,
		TransactionHash:  tx.TransactionHash,
		ExpectedToAmount: tx.ToAmount,
		MinimumReceived:  tx.MinimumReceived,
		PlatformFee:      tx.PlatformFee,
		Status:           tx.Status,
	}

	// the swap is live on-chain now; a client disconnect must not lose the row
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	defer cancel()
	if err := s.repo.CreateSwap(pctx, tx); err != nil {
		s.reconciliationGap(pctx, tx, err)
		metrics.IncExecution("reconciliation_gap")
		return result, nil
	}

	metrics.IncExecution("submitted")
	s.logger.Info("swap.execute.submitted",
		zap.String("swap_id", tx.ID.String()),
		zap.String("user_id", tx.UserID.String()),
		zap.String("wallet", utils.MaskAddress(tx.WalletAddress)),
		zap.String("pair", tx.FromTokenSymbol+"/"+tx.ToTokenSymbol),
		zap.String("from_amount", tx.FromAmount.String()),
		zap.String("min_received", tx.MinimumReceived.String()),
		zap.String("submission_id", tx.SubmissionID))

	if s.events != nil {
		_ = s.events.PublishSwapEvent(pctx, model.NewSwapEvent(model.SwapEventSubmitted, tx, now))
	}
	if s.watcher != nil {
		s.watcher.Watch(tx.ID)
	}
	return result, nil
}

func (s *ExecutionService) checkBalance(ctx context.Context, req ExecuteRequest, r *resolvedRequest, quote *model.Quote) error {
	bctx, cancel := withTimeout(ctx, s.cfg.BalanceTimeout)
	defer cancel()

	available, err := s.balances.Balance(bctx, req.WalletAddress, r.from)
	if err != nil {
		metrics.IncExecution("balance_unavailable")
		s.logger.Warn("swap.execute.balance_failed",
			zap.String("wallet", utils.MaskAddress(req.WalletAddress)),
			zap.String("token", r.from.Symbol),
			zap.Error(err))
		return newError(CodeBalanceUnavailable, "could not read wallet balance, please retry", err)
	}

	if available.LessThan(quote.FromAmount) {
		ib := NewInsufficientBalance(r.from.Symbol, quote.FromAmount, available)
		metrics.IncExecution("insufficient_balance")
		s.logger.Info("swap.execute.insufficient_balance",
			zap.String("user_id", req.UserID.String()),
			zap.String("token", ib.Token),
			zap.String("required", ib.Required.String()),
			zap.String("available", ib.Available.String()),
			zap.String("shortfall", ib.Shortfall.String()))
		return ib
	}
	return nil
}

func (s *ExecutionService) submit(ctx context.Context, req ExecuteRequest, r *resolvedRequest, quote *model.Quote, swapID uuid.UUID) (*Submission, error) {
	sctx, cancel := withTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	sub, err := s.submitter.Submit(sctx, req.WalletAddress, SwapParams{
		SwapID:          swapID,
		FromToken:       r.from,
		ToToken:         r.to,
		FromAmount:      quote.FromAmount,
		MinimumReceived: quote.MinimumReceived,
		Slippage:        quote.SlippageTolerancePercent,
	})
	if err == nil && (sub == nil || (sub.SubmissionID == "" && sub.TransactionHash == "")) {
		err = errors.New("submission layer returned no identifier")
	}
	if err != nil {
		metrics.IncExecution("submission_failed")
		s.logger.Warn("swap.execute.submission_failed",
			zap.String("swap_id", swapID.String()),
			zap.String("user_id", req.UserID.String()),
			zap.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
			zap.Error(err))
		return nil, newError(CodeSwapSubmissionFailed, "swap could not be submitted", err)
	}
	return sub, nil
}

// reconciliationGap records a swap that was submitted but has no row.
// It must be reconciled against the chain by an operator.
func (s *ExecutionService) reconciliationGap(ctx context.Context, tx *model.SwapTransaction, cause error) {
	metrics.ReconciliationGaps.Inc()
	hash := ""
	if tx.TransactionHash != nil {
		hash = *tx.TransactionHash
	}
	s.logger.Error("swap.reconciliation_gap",
		zap.String("swap_id", tx.ID.String()),
		zap.String("user_id", tx.UserID.String()),
		zap.String("wallet", tx.WalletAddress),
		zap.String("from_token", tx.FromToken),
		zap.String("to_token", tx.ToToken),
		zap.String("from_amount", tx.FromAmount.String()),
		zap.String("min_received", tx.MinimumReceived.String()),
		zap.String("submission_id", tx.SubmissionID),
		zap.String("tx_hash", hash),
		zap.Error(cause))

	if s.events != nil {
		evt := model.NewSwapEvent(model.SwapEventReconciliationGap, tx, s.now().UTC())
		evt.Reason = cause.Error()
		_ = s.events.PublishSwapEvent(ctx, evt)
	}
}
