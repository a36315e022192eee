// Package ratelimit gates request starts across all download workers.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter admits at most the configured number of request starts per second,
// shared by all workers. Safe for concurrent use. Waiters are served in
// roughly arrival order by the underlying token bucket.
type Limiter struct {
	lim *rate.Limiter
}

// New creates a limiter admitting perSecond request starts per second.
// Burst is kept at 1 so admissions stay evenly spaced and no 1-second window
// can exceed the configured ceiling. perSecond <= 0 disables limiting.
func New(perSecond float64) *Limiter {
	if perSecond <= 0 {
		return &Limiter{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Acquire blocks until one request start is admitted or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.lim.Wait(ctx)
}

// Rate returns the configured admission rate.
func (l *Limiter) Rate() float64 {
	return float64(l.lim.Limit())
}
