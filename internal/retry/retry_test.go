package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoReturnsOnFirstSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Config{BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, MaxRetries: 3}, nil, func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one call on first success, got %d", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Config{BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, MaxRetries: 5}, nil, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 || calls != 3 {
		t.Fatalf("expected success on the third call, got value=%d calls=%d", got, calls)
	}
}

func TestDoExhaustsRetriesAndReturnsLastError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Config{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxRetries: 2}, nil, func() (int, error) {
		calls++
		return 0, errors.New("persistent")
	})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("expected MaxRetries+1=3 attempts, got %d", calls)
	}
}

func TestDoStopsImmediatelyWhenNotRetryable(t *testing.T) {
	calls := 0
	isRetryable := func(error) bool { return false }
	_, err := Do(context.Background(), Config{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxRetries: 5}, isRetryable, func() (int, error) {
		calls++
		return 0, errors.New("non-retryable")
	})
	if err == nil {
		t.Fatal("expected the non-retryable error to propagate")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt when isRetryable always returns false, got %d", calls)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, Config{BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, MaxRetries: 10}, nil, func() (int, error) {
		calls++
		return 0, errors.New("always fails")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls > 2 {
		t.Fatalf("expected cancellation to cut retries short, got %d calls", calls)
	}
}

func TestDefaultMatchesSpecdBackoff(t *testing.T) {
	cfg := Default()
	if cfg.BaseDelay != 100*time.Millisecond || cfg.MaxDelay != 5*time.Second || cfg.MaxRetries != 6 || cfg.JitterFrac != 0.2 {
		t.Fatalf("unexpected default config: %+v", cfg)
	}
}
