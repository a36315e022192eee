package fetch

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/valtiodata/eduskunta-fetch/internal/api"
)

// PageFetcher performs a single page request without retrying.
// *api.Client satisfies this.
type PageFetcher interface {
	FetchPage(ctx context.Context, req api.PageRequest) (*api.RowsPage, error)
}

// RequestGate admits request starts. *ratelimit.Limiter satisfies this.
type RequestGate interface {
	Acquire(ctx context.Context) error
}

// Clock abstracts timer waits so backoff can be tested without sleeping.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RetryConfig controls the per-task retry loop.
type RetryConfig struct {
	// MaxAttempts counts the initial request. Default: 3.
	MaxAttempts int

	// InitialBackoff doubles each attempt. Default: 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay. Default: 30s.
	MaxBackoff time.Duration

	// RateLimitBackoff is the floor applied when the server answered 429.
	// Default: 5s.
	RateLimitBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:      3,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       30 * time.Second,
		RateLimitBackoff: 5 * time.Second,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = d.RateLimitBackoff
	}
	return c
}

// fetchWithRetry executes one download task: acquire the gate, perform the
// request, and retry transient failures with exponential backoff and jitter.
// Every retry re-acquires the gate, so retried requests still count against
// the rate limit.
func fetchWithRetry(ctx context.Context, fetcher PageFetcher, gate RequestGate, clock Clock, cfg RetryConfig, req api.PageRequest) (*api.RowsPage, error) {
	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := gate.Acquire(ctx); err != nil {
			return nil, &api.Error{Kind: api.KindCancelled, Table: req.Table, Err: err}
		}

		page, err := fetcher.FetchPage(ctx, req)
		if err == nil {
			return page, nil
		}
		lastErr = err

		kind := api.Kind(err)
		if !kind.Retryable() || attempt >= cfg.MaxAttempts {
			return nil, err
		}

		delay := backoff
		if kind == api.KindRateLimited && delay < cfg.RateLimitBackoff {
			delay = cfg.RateLimitBackoff
		}
		// ±20% jitter keeps concurrent retries from synchronizing.
		jittered := time.Duration(float64(delay) * (0.8 + rand.Float64()*0.4))

		select {
		case <-ctx.Done():
			return nil, &api.Error{Kind: api.KindCancelled, Table: req.Table, Err: ctx.Err()}
		case <-clock.After(jittered):
		}

		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return nil, lastErr
}
