package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquire_RespectsRate(t *testing.T) {
	if testing.Short() {
		t.Skip("timing-sensitive")
	}

	const perSecond = 50.0
	l := New(perSecond)

	var admitted atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := l.Acquire(ctx); err != nil {
					return
				}
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	// 50/s over 0.5s plus the initial token: allow generous scheduling slack.
	if got := admitted.Load(); got > 35 {
		t.Errorf("admitted %d request starts in 500ms at rate 50/s", got)
	}
	if got := admitted.Load(); got < 10 {
		t.Errorf("admitted only %d request starts, limiter too strict", got)
	}
}

func TestAcquire_CancelledContext(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())

	// Drain the initial token.
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire() error: %v", err)
	}

	cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Error("Acquire() after cancel returned nil error")
	}
}

func TestNew_Unlimited(t *testing.T) {
	l := New(0)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("unlimited limiter blocked for %v", elapsed)
	}
}
