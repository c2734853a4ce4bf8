package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/pkg/model"
)

func newTestStore(t *testing.T) (*HybridStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &HybridStore{redis: rdb, logger: zap.NewNop()}, mr
}

func terminalSwap() *model.SwapTransaction {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tx := &model.SwapTransaction{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		FromToken:  "0x41e94eb019c0762f9bfcf9fb1e58725bfb0e7582",
		FromAmount: decimal.NewFromInt(100),
		ToAmount:   decimal.RequireFromString("0.05"),
		Status:     model.SwapStatusPending,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	tr, _ := model.ConfirmTransition("0xabc", 150000, decimal.RequireFromString("0.0045"), at.Add(time.Minute))
	_ = tr.Apply(tx)
	return tx
}

func TestGetSwap_FromRedisCache(t *testing.T) {
	store, mr := newTestStore(t)
	tx := terminalSwap()
	data, err := json.Marshal(tx)
	require.NoError(t, err)
	require.NoError(t, mr.Set(swapCacheKey(tx.ID), string(data)))

	// no Postgres: a hit must not need it
	got, err := store.GetSwap(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SwapStatusConfirmed, got.Status)
	assert.Equal(t, "0xabc", *got.TransactionHash)
	assert.True(t, got.FromAmount.Equal(tx.FromAmount))
}

func TestGetSwap_CorruptOrPendingCacheEntryDropped(t *testing.T) {
	store, mr := newTestStore(t)
	id := uuid.New()
	require.NoError(t, mr.Set(swapCacheKey(id), `{"status":"pending"}`))

	_, err := store.GetSwap(context.Background(), id)
	assert.ErrorIs(t, err, errPGUnavailable)
	assert.False(t, mr.Exists(swapCacheKey(id)))
}

func TestCacheTerminal(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	pending := &model.SwapTransaction{ID: uuid.New(), Status: model.SwapStatusPending}
	store.cacheTerminal(ctx, pending)
	assert.False(t, mr.Exists(swapCacheKey(pending.ID)), "pending rows are never cached")

	tx := terminalSwap()
	store.cacheTerminal(ctx, tx)
	require.True(t, mr.Exists(swapCacheKey(tx.ID)))
	assert.Equal(t, TerminalCacheTTL, mr.TTL(swapCacheKey(tx.ID)))

	mr.FastForward(TerminalCacheTTL)
	assert.False(t, mr.Exists(swapCacheKey(tx.ID)))
}

func TestRedisDown_FallsThrough(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.GetSwap(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errPGUnavailable)

	err = store.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestNilPG(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.CreateSwap(ctx, terminalSwap()), errPGUnavailable)
	_, _, err := store.TransitionSwap(ctx, uuid.New(), model.FailTransition("x", time.Now()))
	assert.ErrorIs(t, err, errPGUnavailable)
	_, _, err = store.ListSwaps(ctx, model.SwapFilter{})
	assert.ErrorIs(t, err, errPGUnavailable)
	assert.ErrorIs(t, store.HealthCheck(ctx), errPGUnavailable)
	assert.ErrorIs(t, store.EnsureSchema(ctx), errPGUnavailable)

	store.Close()
}
