package util

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff is a retry schedule: up to Attempts tries with exponentially
// growing delay starting at Base and capped at Max. Each delay gets up to
// 25% random jitter so concurrent fetch jobs don't retry in lockstep. A
// zero Base retries immediately; Attempts below 1 means a single try.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// Retry calls fn until it succeeds or the schedule is exhausted, returning
// nil on the first success or the last error. Context cancellation is
// honored between attempts.
func (b Backoff) Retry(ctx context.Context, fn func() error) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}

	delay := b.Base
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		d := delay
		if b.Max > 0 && d > b.Max {
			d = b.Max
		}
		if q := d / 4; q > 0 {
			d += rand.N(q)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
		delay *= 2
	}
	return err
}
