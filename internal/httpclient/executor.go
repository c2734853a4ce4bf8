package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/rate"
)

// StatusError is the default error for non-2xx responses.
type StatusError struct {
	Upstream string
	Status   int
	Body     []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Upstream, e.Status)
}

// Backoff returns the retry sleep duration for the given attempt number.
func Backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 250 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// Observer is notified once per attempt with its outcome ("ok", "http_error",
// "server_error", "network_error", "decode_error", "rate_limited").
type Observer func(upstream, outcome string, elapsed time.Duration)

// Executor handles rate-limited HTTP execution with JSON decoding.
// With retryMax 0 every request is sent at most once, which is what callers
// that must not duplicate side effects or serve stale prices rely on.
type Executor struct {
	logger       *zap.Logger
	rateMgr      *rate.Manager
	http         *http.Client
	retryMax     int
	upstream     string
	errorHandler func(status int, body []byte) error
	observe      Observer
}

// New creates an Executor. errorHandler maps non-2xx responses to an
// upstream-specific error; if nil a *StatusError is returned.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	retryMax int,
	upstream string,
	errorHandler func(status int, body []byte) error,
) *Executor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Executor{
		logger:       logger,
		rateMgr:      rateMgr,
		http:         httpClient,
		retryMax:     retryMax,
		upstream:     upstream,
		errorHandler: errorHandler,
	}
}

// WithObserver attaches a per-attempt hook, typically a metrics recorder.
func (e *Executor) WithObserver(o Observer) *Executor {
	e.observe = o
	return e
}

func (e *Executor) record(outcome string, elapsed time.Duration) {
	if e.observe != nil {
		e.observe(e.upstream, outcome, elapsed)
	}
}

func (e *Executor) statusError(status int, body []byte) error {
	if e.errorHandler != nil {
		return e.errorHandler(status, body)
	}
	return &StatusError{Upstream: e.upstream, Status: status, Body: body}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DoJSON executes req, retrying 5xx and transport errors up to retryMax
// times, then JSON-decodes a 2xx body into out.
// rateLimitKey scopes the limiter per upstream.
func (e *Executor) DoJSON(ctx context.Context, req *http.Request, rateLimitKey string, out any) error {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
			e.record("rate_limited", 0)
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	req = req.WithContext(ctx)

	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, Backoff(attempt-1)); err != nil {
				return fmt.Errorf("%s request aborted: %w", e.upstream, errors.Join(err, lastErr))
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return fmt.Errorf("rewind request body: %w", err)
				}
				req.Body = body
			}
		}

		start := time.Now()
		resp, err := e.http.Do(req)
		if err != nil {
			e.record("network_error", time.Since(start))
			lastErr = err
			e.logger.Warn(e.upstream+".http_failed",
				zap.String("url", req.URL.Redacted()),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if ctx.Err() != nil {
				return fmt.Errorf("%s request failed: %w", e.upstream, err)
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		elapsed := time.Since(start)
		if readErr != nil {
			e.record("network_error", elapsed)
			lastErr = fmt.Errorf("read body: %w", readErr)
			continue
		}

		if resp.StatusCode >= 500 {
			e.record("server_error", elapsed)
			e.logger.Warn(e.upstream+".server_error",
				zap.Int("status", resp.StatusCode),
				zap.String("url", req.URL.Redacted()),
				zap.Duration("latency", elapsed))
			lastErr = e.statusError(resp.StatusCode, body)
			continue
		}

		if resp.StatusCode >= 400 {
			e.record("http_error", elapsed)
			return e.statusError(resp.StatusCode, body)
		}

		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				e.record("decode_error", elapsed)
				e.logger.Warn(e.upstream+".decode_failed",
					zap.String("url", req.URL.Redacted()),
					zap.Error(err))
				return fmt.Errorf("decode failed: %w", err)
			}
		}

		e.record("ok", elapsed)
		e.logger.Debug(e.upstream+".http_success",
			zap.String("url", req.URL.Redacted()),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))
		return nil
	}

	if e.retryMax == 0 {
		return lastErr
	}
	return fmt.Errorf("%s request failed after %d attempts: %w", e.upstream, e.retryMax+1, lastErr)
}
