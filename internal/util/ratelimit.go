package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces operations to a per-minute budget by scheduling each
// caller one interval after the previous one. Up to burst operations may
// proceed without waiting, covering the short catch-up spurts the fetch job
// makes after a restart.
type RateLimiter struct {
	interval time.Duration

	mu     sync.Mutex
	credit int
	nextAt time.Time
}

// NewRateLimiter creates a RateLimiter allowing perMinute operations per
// minute with the given burst allowance (minimum 1).
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		interval: time.Minute / time.Duration(perMinute),
		credit:   burst,
	}
}

// Wait blocks until the caller's scheduled slot arrives or the context is
// cancelled. Slots are handed out in call order.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	now := time.Now()

	var wait time.Duration
	switch {
	case rl.credit > 0:
		rl.credit--
	case now.Before(rl.nextAt):
		wait = rl.nextAt.Sub(now)
	}

	if rl.nextAt.Before(now) {
		rl.nextAt = now
	}
	rl.nextAt = rl.nextAt.Add(rl.interval)
	rl.mu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
