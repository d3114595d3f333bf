package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayBounds(t *testing.T) {
	cfg := DefaultRetryConfig()
	for attempt := 1; attempt <= 8; attempt++ {
		delay := cfg.Delay(attempt)
		if delay < cfg.InitialDelay {
			t.Errorf("attempt %d delay %v below initial", attempt, delay)
		}
		if delay > cfg.MaxDelay {
			t.Errorf("attempt %d delay %v above max", attempt, delay)
		}
	}
}

func TestDelayGrows(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.Jitter = 0
	if cfg.Delay(1) != 500*time.Millisecond {
		t.Errorf("first delay = %v", cfg.Delay(1))
	}
	if cfg.Delay(2) != time.Second {
		t.Errorf("second delay = %v", cfg.Delay(2))
	}
	if cfg.Delay(10) != cfg.MaxDelay {
		t.Errorf("capped delay = %v", cfg.Delay(10))
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
	calls := 0
	_, err := RetryWithResult(context.Background(), cfg, func() (bool, error) {
		calls++
		if calls < 3 {
			return false, errors.New("transient")
		}
		return true, nil
	})
	if err != nil {
		t.Fatalf("RetryWithResult: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
	sentinel := errors.New("still broken")
	_, err := RetryWithResult(context.Background(), cfg, func() (int, error) { return 0, sentinel })
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want sentinel", err)
	}
}

func TestRetryWithResult(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
	calls := 0
	got, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Errorf("got %d, %v", got, err)
	}
}

func TestSleepRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("zero sleep err = %v", err)
	}
}
