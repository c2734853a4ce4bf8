package swap

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/aggregator"
	"github.com/Checker-Finance/swap-engine/internal/quotecache"
	"github.com/Checker-Finance/swap-engine/internal/tokens"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

const (
	usdc   = "0x41e94eb019c0762f9bfcf9fb1e58725bfb0e7582"
	weth   = "0x360ad4f9a9a8efe9a8dcb5f461c4cc1047e1dcf9"
	wallet = "0x1111111111111111111111111111111111111111"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pct(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// callLog records the order of external calls.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeAggregator struct {
	mu       sync.Mutex
	toAmount decimal.Decimal
	gas      uint64
	impact   *decimal.Decimal
	err      error
	block    bool
	calls    int
	log      *callLog
}

func (f *fakeAggregator) Name() string { return "1inch" }

func (f *fakeAggregator) Quote(ctx context.Context, req aggregator.QuoteRequest) (*model.RawQuote, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	f.log.add("quote")
	if f.block {
		<-ctx.Done()
		return nil, errors.Join(aggregator.ErrUnavailable, ctx.Err())
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.RawQuote{
		Provider:           "1inch",
		FromToken:          req.From.Address,
		ToToken:            req.To.Address,
		FromAmount:         req.Amount,
		ToAmount:           f.toAmount,
		EstimatedGas:       f.gas,
		PriceImpactPercent: f.impact,
	}, nil
}

func (f *fakeAggregator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGas struct {
	price decimal.Decimal
	err   error
}

func (f *fakeGas) GasPriceGwei(context.Context) (decimal.Decimal, error) { return f.price, f.err }

type fakeBalances struct {
	balance decimal.Decimal
	err     error
	onCall  func()
	calls   int
	log     *callLog
}

func (f *fakeBalances) Balance(_ context.Context, _ string, _ tokens.Token) (decimal.Decimal, error) {
	f.calls++
	f.log.add("balance")
	if f.onCall != nil {
		f.onCall()
	}
	return f.balance, f.err
}

type fakeSubmitter struct {
	mu      sync.Mutex
	result  *Submission
	err     error
	block   bool
	submits []SwapParams
	lookup  *SubmissionState
	lookErr error
	lookups int
	log     *callLog
}

func (f *fakeSubmitter) Submit(ctx context.Context, _ string, params SwapParams) (*Submission, error) {
	f.mu.Lock()
	f.submits = append(f.submits, params)
	f.mu.Unlock()
	f.log.add("submit")
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeSubmitter) Lookup(context.Context, string) (*SubmissionState, error) {
	f.mu.Lock()
	f.lookups++
	f.mu.Unlock()
	return f.lookup, f.lookErr
}

func (f *fakeSubmitter) Submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

type fakeReceipts struct {
	mu      sync.Mutex
	receipt *Receipt
	err     error
	calls   int
}

func (f *fakeReceipts) Receipt(context.Context, string) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.receipt, f.err
}

func (f *fakeReceipts) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memRepo mirrors the conditional-update semantics of the Postgres store.
type memRepo struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]model.SwapTransaction
	createErr error
	getErr    error
	lostRace  *model.StatusTransition
	log       *callLog
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[uuid.UUID]model.SwapTransaction{}}
}

func (r *memRepo) CreateSwap(ctx context.Context, tx *model.SwapTransaction) error {
	r.log.add("persist")
	if r.createErr != nil {
		return r.createErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[tx.ID] = *tx
	return nil
}

func (r *memRepo) GetSwap(_ context.Context, id uuid.UUID) (*model.SwapTransaction, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.rows[id]
	if !ok {
		return nil, model.ErrSwapNotFound
	}
	return &tx, nil
}

func (r *memRepo) AttachTransactionHash(_ context.Context, id uuid.UUID, hash string, at time.Time) (*model.SwapTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.rows[id]
	if !ok {
		return nil, model.ErrSwapNotFound
	}
	if err := tx.AttachHash(hash, at); err == nil {
		r.rows[id] = tx
	}
	return &tx, nil
}

func (r *memRepo) TransitionSwap(_ context.Context, id uuid.UUID, t model.StatusTransition) (*model.SwapTransaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.rows[id]
	if !ok {
		return nil, false, model.ErrSwapNotFound
	}
	if r.lostRace != nil {
		// simulate a concurrent refresher committing first
		_ = r.lostRace.Apply(&tx)
		r.rows[id] = tx
		r.lostRace = nil
	}
	if tx.Status.IsTerminal() {
		return &tx, false, nil
	}
	if err := t.Apply(&tx); err != nil {
		return nil, false, err
	}
	r.rows[id] = tx
	return &tx, true, nil
}

func (r *memRepo) ListSwaps(_ context.Context, f model.SwapFilter) ([]model.SwapTransaction, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.SwapTransaction
	for _, tx := range r.rows {
		if tx.UserID != f.UserID {
			continue
		}
		if f.Status != nil && tx.Status != *f.Status {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		less := out[i].CreatedAt.Before(out[j].CreatedAt)
		if f.SortBy == model.SortByFromAmount {
			less = out[i].FromAmount.LessThan(out[j].FromAmount)
		}
		if f.Ascending {
			return less
		}
		return !less
	})
	total := len(out)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.PageSize
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *memRepo) put(tx model.SwapTransaction) {
	r.mu.Lock()
	r.rows[tx.ID] = tx
	r.mu.Unlock()
}

type fakeSink struct {
	mu     sync.Mutex
	events []model.SwapEvent
	err    error
}

func (f *fakeSink) PublishSwapEvent(_ context.Context, evt model.SwapEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.err
}

func (f *fakeSink) types() []model.SwapEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SwapEventType
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeFees struct {
	mu       sync.Mutex
	recorded []uuid.UUID
	err      error
}

func (f *fakeFees) RecordFee(_ context.Context, tx *model.SwapTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, tx.ID)
	return nil
}

type fakeWatcher struct {
	watched []uuid.UUID
}

func (f *fakeWatcher) Watch(id uuid.UUID) { f.watched = append(f.watched, id) }

func testCalculator() *FeeCalculator {
	return NewFeeCalculator(FeeConfig{
		PlatformFeePercentage: dec("0.5"),
		MinSlippage:           dec("0.1"),
		MaxSlippage:           dec("50"),
	})
}

func newTestQuoteService(agg *fakeAggregator, clk *testClock) (*QuoteService, *quotecache.Memory) {
	cache := quotecache.NewMemory(zap.NewNop(), 0, clk.Now)
	svc := NewQuoteService(zap.NewNop(), QuoteServiceConfig{
		QuoteTTL:            30 * time.Second,
		AggregatorTimeout:   time.Second,
		DefaultSlippage:     dec("1"),
		DefaultGasPriceGwei: dec("30"),
	}, tokens.DefaultAmoy(), agg, nil, cache, testCalculator()).WithClock(clk.Now)
	return svc, cache
}
