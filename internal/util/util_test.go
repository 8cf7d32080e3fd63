package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Backoff{Attempts: 5}.Retry(context.Background(), func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestBackoffRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Backoff{Attempts: maxAttempts}.Retry(context.Background(), func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestBackoffRetryZeroAttempts(t *testing.T) {
	attempts := 0
	err := Backoff{}.Retry(context.Background(), func() error {
		attempts++
		return errors.New("nope")
	})
	if err == nil || attempts != 1 {
		t.Errorf("Retry made %d attempts (err %v), want exactly 1 with the error", attempts, err)
	}
}

func TestBackoffRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Backoff{Attempts: 3, Base: time.Hour}.Retry(ctx, func() error {
		return errors.New("always")
	})
	if err != context.Canceled {
		t.Errorf("Retry error = %v, want context.Canceled", err)
	}
}

func TestRateLimiterBurstImmediate(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("burst of 3 took %v, want immediate", elapsed)
	}
}

func TestRateLimiterCancelled(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	// Burn the burst allowance.
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Fatal("Wait should fail on a cancelled context")
	}
}

func TestRateLimiterSpacing(t *testing.T) {
	// 6000/min = one slot every 10ms.
	rl := NewRateLimiter(6000, 1)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	start := time.Now()
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("second Wait returned after %v, want at least one interval", elapsed)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus", ""} {
		if NewLogger(level, "text") == nil {
			t.Errorf("NewLogger(%q) returned nil", level)
		}
	}
	if NewLogger("info", "json") == nil {
		t.Error("NewLogger json format returned nil")
	}
}
