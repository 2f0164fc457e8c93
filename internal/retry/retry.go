// Package retry implements the exponential-backoff-with-jitter idiom used
// throughout this repo: the Bus Adapter's transient I/O retries and the
// Generator's live LLM client both share it, grounded on the teacher's
// providers.RetryConfig/RetryDo shape (github.com/vanducng-goclaw/internal/providers).
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Config controls backoff timing.
type Config struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	JitterFrac float64 // e.g. 0.2 for +-20%
}

// Default matches the Bus Adapter's spec'd backoff: start 100ms, cap 5s, +-20% jitter.
func Default() Config {
	return Config{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		MaxRetries: 6,
		JitterFrac: 0.2,
	}
}

func (c Config) delayFor(attempt int) time.Duration {
	d := c.BaseDelay * time.Duration(1<<attempt)
	if d > c.MaxDelay || d <= 0 {
		d = c.MaxDelay
	}
	jitter := (rand.Float64()*2 - 1) * c.JitterFrac
	return time.Duration(float64(d) * (1 + jitter))
}

// Do retries fn until it succeeds, the context is canceled, or MaxRetries is
// exhausted. isRetryable decides whether an error should trigger another
// attempt; a nil isRetryable retries every non-nil error.
func Do[T any](ctx context.Context, cfg Config, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(cfg.delayFor(attempt - 1)):
			}
		}
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if isRetryable != nil && !isRetryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}
