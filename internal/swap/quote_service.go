package swap

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/aggregator"
	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/internal/quotecache"
	"github.com/Checker-Finance/swap-engine/internal/tokens"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// QuoteRequest is the caller's swap intent.
type QuoteRequest struct {
	FromToken string
	ToToken   string
	Amount    decimal.Decimal
	Slippage  *decimal.Decimal // nil means the configured default
}

// QuoteServiceConfig configures the QuoteService.
type QuoteServiceConfig struct {
	QuoteTTL            time.Duration
	AggregatorTimeout   time.Duration
	DefaultSlippage     decimal.Decimal
	DefaultGasPriceGwei decimal.Decimal
}

// QuoteService produces quotes from the cache or the aggregator.
type QuoteService struct {
	logger     *zap.Logger
	cfg        QuoteServiceConfig
	tokens     TokenDirectory
	aggregator Aggregator
	gas        GasPriceOracle // optional
	cache      quotecache.Cache
	calc       *FeeCalculator
	now        func() time.Time
}

// NewQuoteService wires a QuoteService. gas may be nil.
func NewQuoteService(
	logger *zap.Logger,
	cfg QuoteServiceConfig,
	dir TokenDirectory,
	agg Aggregator,
	gas GasPriceOracle,
	cache quotecache.Cache,
	calc *FeeCalculator,
) *QuoteService {
	return &QuoteService{
		logger:     logger,
		cfg:        cfg,
		tokens:     dir,
		aggregator: agg,
		gas:        gas,
		cache:      cache,
		calc:       calc,
		now:        time.Now,
	}
}

// WithClock overrides the time source (tests).
func (s *QuoteService) WithClock(now func() time.Time) *QuoteService {
	s.now = now
	return s
}

// Calculator exposes the pricing rules used by this service.
func (s *QuoteService) Calculator() *FeeCalculator { return s.calc }

type resolvedRequest struct {
	from     tokens.Token
	to       tokens.Token
	amount   decimal.Decimal
	slippage decimal.Decimal
}

// resolve validates and normalizes a request without any external call.
func (s *QuoteService) resolve(req QuoteRequest) (*resolvedRequest, error) {
	from := tokens.Normalize(req.FromToken)
	to := tokens.Normalize(req.ToToken)
	if from == "" || to == "" {
		return nil, newError(CodeInvalidTokenPair, "fromToken and toToken are required", nil)
	}
	if from == to {
		return nil, &Error{
			Code:    CodeInvalidTokenPair,
			Message: "fromToken and toToken must differ",
			Details: map[string]any{"fromToken": from, "toToken": to},
		}
	}
	if err := s.calc.ValidateAmount(req.Amount); err != nil {
		return nil, err
	}

	slippage := s.cfg.DefaultSlippage
	if req.Slippage != nil {
		slippage = *req.Slippage
	}
	if err := s.calc.ValidateSlippage(slippage); err != nil {
		return nil, err
	}
	// truncated so the served tolerance is never looser than the requested one
	slippage = slippage.Truncate(quotecache.SlippagePrecision)

	fromTok, err := s.tokens.Lookup(from)
	if err != nil {
		return nil, newError(CodeInvalidTokenPair, "unsupported fromToken "+from, err)
	}
	toTok, err := s.tokens.Lookup(to)
	if err != nil {
		return nil, newError(CodeInvalidTokenPair, "unsupported toToken "+to, err)
	}

	places := fromTok.Decimals
	if places > quotecache.AmountPrecision {
		places = quotecache.AmountPrecision
	}
	amount := req.Amount.Truncate(places)
	if err := s.calc.ValidateAmount(amount); err != nil {
		return nil, err
	}

	return &resolvedRequest{from: fromTok, to: toTok, amount: amount, slippage: slippage}, nil
}

// GetQuote returns a cached quote if one is still valid, otherwise asks the
// aggregator once. Aggregator failures are never retried here.
func (s *QuoteService) GetQuote(ctx context.Context, req QuoteRequest) (*model.Quote, error) {
	r, err := s.resolve(req)
	if err != nil {
		metrics.IncQuote("invalid")
		return nil, err
	}

	key := quotecache.Key{
		FromToken: r.from.Address,
		ToToken:   r.to.Address,
		Amount:    r.amount,
		Slippage:  r.slippage,
	}
	if q, ok := s.cache.Get(ctx, key); ok {
		metrics.IncQuote("cached")
		s.logger.Debug("swap.quote.cache_hit", zap.String("key", key.String()))
		return q, nil
	}

	raw, err := s.fetchRaw(ctx, r)
	if err != nil {
		metrics.IncQuote("unavailable")
		return nil, err
	}

	quote, err := s.calc.PriceQuote(raw, r.slippage, PricingContext{
		From:         r.from,
		To:           r.to,
		GasPriceGwei: s.gasPrice(ctx),
		ValidUntil:   s.now().UTC().Add(s.cfg.QuoteTTL),
	})
	if err != nil {
		metrics.IncQuote("unavailable")
		return nil, err
	}

	s.cache.Put(ctx, key, quote)
	metrics.IncQuote("ok")

	if quote.PriceImpactLevel != model.PriceImpactLow {
		s.logger.Warn("swap.quote.high_price_impact",
			zap.String("pair", r.from.Symbol+"/"+r.to.Symbol),
			zap.String("amount", r.amount.String()),
			zap.String("impact_pct", quote.PriceImpactPercent.String()))
	}
	s.logger.Info("swap.quote.created",
		zap.String("pair", r.from.Symbol+"/"+r.to.Symbol),
		zap.String("from_amount", quote.FromAmount.String()),
		zap.String("to_amount", quote.ToAmount.String()),
		zap.String("provider", quote.Provider),
		zap.Time("valid_until", quote.QuoteValidUntil))
	return quote, nil
}

func (s *QuoteService) fetchRaw(ctx context.Context, r *resolvedRequest) (*model.RawQuote, error) {
	if s.cfg.AggregatorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AggregatorTimeout)
		defer cancel()
	}

	raw, err := s.aggregator.Quote(ctx, aggregator.QuoteRequest{From: r.from, To: r.to, Amount: r.amount})
	if err != nil {
		reason := "unavailable"
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			reason = "timeout"
		case errors.Is(err, aggregator.ErrRateLimited):
			reason = "rate_limited"
		}
		s.logger.Warn("swap.quote.aggregator_failed",
			zap.String("provider", s.aggregator.Name()),
			zap.String("reason", reason),
			zap.Error(err))
		return nil, &Error{
			Code:    CodeQuoteUnavailable,
			Message: "quote provider is unavailable, please retry",
			Details: map[string]any{"reason": reason, "provider": s.aggregator.Name()},
			Err:     err,
		}
	}
	// the aggregator echoes inputs, but pricing relies on ours
	raw.FromAmount = r.amount
	return raw, nil
}

func (s *QuoteService) gasPrice(ctx context.Context) decimal.Decimal {
	if s.gas == nil {
		return s.cfg.DefaultGasPriceGwei
	}
	if s.cfg.AggregatorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AggregatorTimeout)
		defer cancel()
	}
	p, err := s.gas.GasPriceGwei(ctx)
	if err != nil || !p.IsPositive() {
		s.logger.Debug("swap.quote.gas_price_fallback", zap.Error(err))
		return s.cfg.DefaultGasPriceGwei
	}
	return p
}
