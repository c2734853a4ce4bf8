package quotecache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// Memory is an in-process cache. go-cache expires entries on its own
// clock; validity is still re-checked against the quote on every read.
type Memory struct {
	logger *zap.Logger
	items  *gocache.Cache
	now    func() time.Time
}

// NewMemory creates a cache. cleanup is how often go-cache drops expired
// items in the background; zero disables the janitor.
func NewMemory(logger *zap.Logger, cleanup time.Duration, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		logger: logger,
		items:  gocache.New(gocache.NoExpiration, cleanup),
		now:    now,
	}
}

func (m *Memory) Get(_ context.Context, key Key) (*model.Quote, bool) {
	k := key.String()
	v, ok := m.items.Get(k)
	if !ok {
		metrics.IncCache("memory", "miss")
		return nil, false
	}
	entry := v.(*Entry)
	if !entry.Quote.ValidAt(m.now()) {
		m.items.Delete(k)
		metrics.IncCache("memory", "expired")
		m.logger.Debug("quotecache.expired", zap.String("key", k))
		return nil, false
	}
	metrics.IncCache("memory", "hit")
	return entry.Quote.Clone(), true
}

func (m *Memory) Put(_ context.Context, key Key, quote *model.Quote) {
	now := m.now()
	ttl := quote.QuoteValidUntil.Sub(now)
	if ttl <= 0 {
		return
	}
	k := key.String()
	m.items.Set(k, &Entry{Key: k, Quote: quote.Clone(), InsertedAt: now}, ttl)
}

// Len reports how many entries are held, expired ones included.
func (m *Memory) Len() int {
	return m.items.ItemCount()
}
