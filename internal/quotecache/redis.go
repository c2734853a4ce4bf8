package quotecache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/metrics"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// Redis shares quotes across engine replicas. Errors are logged and
// reported as misses so quoting keeps working when Redis is down.
type Redis struct {
	logger *zap.Logger
	rdb    redis.Cmdable
	now    func() time.Time
}

func NewRedis(logger *zap.Logger, rdb redis.Cmdable, now func() time.Time) *Redis {
	if now == nil {
		now = time.Now
	}
	return &Redis{logger: logger, rdb: rdb, now: now}
}

func (r *Redis) Get(ctx context.Context, key Key) (*model.Quote, bool) {
	k := key.String()
	raw, err := r.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.IncCache("redis", "miss")
		return nil, false
	}
	if err != nil {
		metrics.IncCache("redis", "error")
		r.logger.Warn("quotecache.redis_get_failed", zap.String("key", k), zap.Error(err))
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Quote == nil {
		metrics.IncCache("redis", "error")
		r.logger.Warn("quotecache.redis_decode_failed", zap.String("key", k), zap.Error(err))
		r.rdb.Del(ctx, k)
		return nil, false
	}
	if !entry.Quote.ValidAt(r.now()) {
		metrics.IncCache("redis", "expired")
		r.rdb.Del(ctx, k)
		return nil, false
	}
	metrics.IncCache("redis", "hit")
	return entry.Quote, true
}

func (r *Redis) Put(ctx context.Context, key Key, quote *model.Quote) {
	now := r.now()
	ttl := quote.QuoteValidUntil.Sub(now)
	if ttl <= 0 {
		return
	}
	k := key.String()
	data, err := json.Marshal(Entry{Key: k, Quote: quote, InsertedAt: now})
	if err != nil {
		r.logger.Warn("quotecache.redis_encode_failed", zap.String("key", k), zap.Error(err))
		return
	}
	if err := r.rdb.Set(ctx, k, data, ttl).Err(); err != nil {
		metrics.IncCache("redis", "error")
		r.logger.Warn("quotecache.redis_set_failed", zap.String("key", k), zap.Error(err))
	}
}
