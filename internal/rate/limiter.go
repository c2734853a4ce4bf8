package rate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWouldExceedDeadline is returned by Wait when the next token arrives
// after the context deadline.
var ErrWouldExceedDeadline = errors.New("rate limit wait exceeds deadline")

// Config defines rate limiting parameters for an upstream.
type Config struct {
	RequestsPerSecond int
	Burst             int
}

// Limiter implements a token bucket.
type Limiter struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
	rate   float64
	burst  float64
	now    func() time.Time
}

// New creates a limiter with a full bucket.
func New(cfg Config) *Limiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		tokens: float64(burst),
		last:   time.Now(),
		rate:   float64(cfg.RequestsPerSecond),
		burst:  float64(burst),
		now:    time.Now,
	}
}

func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.last).Seconds()
	l.last = now
	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool {
	_, ok := l.reserve(false)
	return ok
}

// reserve returns how long the caller must wait for a token. When commit is
// true the token is taken immediately (it may go negative).
func (l *Limiter) reserve(commit bool) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.now())
	if l.tokens >= 1 {
		l.tokens--
		return 0, true
	}
	if l.rate <= 0 {
		return 0, false
	}
	wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
	if commit {
		l.tokens--
	}
	return wait, false
}

func (l *Limiter) cancel() {
	l.mu.Lock()
	l.tokens++
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.mu.Unlock()
}

// Wait blocks until a token becomes available. It fails fast instead of
// sleeping past the context deadline.
func (l *Limiter) Wait(ctx context.Context) error {
	wait, ok := l.reserve(false)
	if ok {
		return nil
	}
	if l.rate <= 0 {
		return ErrWouldExceedDeadline
	}
	if dl, has := ctx.Deadline(); has && l.now().Add(wait).After(dl) {
		return ErrWouldExceedDeadline
	}

	wait, ok = l.reserve(true)
	if ok {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		l.cancel()
		return ctx.Err()
	}
}

// Manager holds one limiter per upstream key.
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	defaults Config
}

func NewManager(defaults Config) *Manager {
	return &Manager{
		limiters: make(map[string]*Limiter),
		defaults: defaults,
	}
}

func (m *Manager) GetLimiter(key string) *Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[key]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[key]; ok {
		return lim
	}
	lim := New(m.defaults)
	m.limiters[key] = lim
	return lim
}

// Wait ensures rate limit compliance for a given key.
func (m *Manager) Wait(ctx context.Context, key string) error {
	return m.GetLimiter(key).Wait(ctx)
}
