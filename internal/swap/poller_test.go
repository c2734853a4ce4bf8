package swap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// scriptedRefresher returns pending until terminalAfter calls have been made.
type scriptedRefresher struct {
	mu            sync.Mutex
	calls         map[uuid.UUID]int
	terminalAfter int
	err           error
}

func (r *scriptedRefresher) RefreshStatus(_ context.Context, id uuid.UUID) (*model.SwapTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[uuid.UUID]int{}
	}
	r.calls[id]++
	if r.err != nil {
		return nil, r.err
	}
	status := model.SwapStatusPending
	if r.terminalAfter > 0 && r.calls[id] >= r.terminalAfter {
		status = model.SwapStatusConfirmed
	}
	return &model.SwapTransaction{ID: id, Status: status}, nil
}

func (r *scriptedRefresher) count(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

func TestPoller_StopsOnTerminal(t *testing.T) {
	ref := &scriptedRefresher{terminalAfter: 3}
	p := NewPoller(context.Background(), zap.NewNop(), ref, 5*time.Millisecond, time.Minute)
	defer p.Stop()

	id := uuid.New()
	p.Watch(id)
	assert.True(t, p.IsPolling(id))

	require.Eventually(t, func() bool { return !p.IsPolling(id) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, ref.count(id))
}

func TestPoller_DuplicateWatchIgnored(t *testing.T) {
	ref := &scriptedRefresher{terminalAfter: 4}
	p := NewPoller(context.Background(), zap.NewNop(), ref, 5*time.Millisecond, time.Minute)
	defer p.Stop()

	id := uuid.New()
	p.Watch(id)
	p.Watch(id)
	p.Watch(id)

	require.Eventually(t, func() bool { return !p.IsPolling(id) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 4, ref.count(id))
}

func TestPoller_StopsOnNotFound(t *testing.T) {
	ref := &scriptedRefresher{err: &Error{Code: CodeNotFound, Message: "swap not found"}}
	p := NewPoller(context.Background(), zap.NewNop(), ref, 5*time.Millisecond, time.Minute)
	defer p.Stop()

	id := uuid.New()
	p.Watch(id)
	require.Eventually(t, func() bool { return !p.IsPolling(id) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, ref.count(id))
}

func TestPoller_MaxDuration(t *testing.T) {
	ref := &scriptedRefresher{}
	p := NewPoller(context.Background(), zap.NewNop(), ref, 5*time.Millisecond, 40*time.Millisecond)
	defer p.Stop()

	id := uuid.New()
	p.Watch(id)
	require.Eventually(t, func() bool { return !p.IsPolling(id) }, time.Second, 5*time.Millisecond)
	assert.Positive(t, ref.count(id))
}

func TestPoller_CancelAndStop(t *testing.T) {
	ref := &scriptedRefresher{}
	p := NewPoller(context.Background(), zap.NewNop(), ref, 5*time.Millisecond, time.Minute)

	a, b := uuid.New(), uuid.New()
	p.Watch(a)
	p.Watch(b)

	p.Cancel(a)
	require.Eventually(t, func() bool { return !p.IsPolling(a) }, time.Second, 5*time.Millisecond)
	assert.True(t, p.IsPolling(b))

	p.Stop()
	assert.False(t, p.IsPolling(b))

	// watching after shutdown is a no-op
	p.Watch(uuid.New())
	p.Stop()
}

func TestNewPoller_NonPositiveDurations(t *testing.T) {
	p := NewPoller(context.Background(), zap.NewNop(), &scriptedRefresher{}, 0, -time.Minute)
	defer p.Stop()
	assert.Equal(t, DefaultPollInterval, p.interval)
	assert.Equal(t, DefaultPollMaxDuration, p.maxDuration)

	id := uuid.New()
	p.Watch(id)
	assert.True(t, p.IsPolling(id))
	p.Cancel(id)
	require.Eventually(t, func() bool { return !p.IsPolling(id) }, time.Second, 5*time.Millisecond)
}
