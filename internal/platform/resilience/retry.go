package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds retry configuration. Delay before attempt n+1 is
// BaseDelay * Multiplier^(n-1), capped at MaxDelay and randomized by
// ±Jitter.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64 // 0.0 to 1.0

	// OnRetry, if set, is invoked before each re-attempt with the
	// 1-based attempt number that just failed and its error. Used for
	// metrics and logging.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// Retry executes fn with bounded exponential-backoff retry. classify
// decides whether an error is worth another attempt; nil means
// IsRetryable. Terminal errors short-circuit immediately; exhaustion
// returns the last error annotated with the attempt count.
func Retry(ctx context.Context, cfg RetryConfig, classify func(error) bool, fn func(context.Context) error) error {
	_, err := RetryWithResult(ctx, cfg, classify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithResult is Retry for functions returning a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, classify func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if classify == nil {
		classify = IsRetryable
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !classify(err) {
			return zero, fmt.Errorf("non-retryable error: %w", err)
		}

		if ctx.Err() != nil {
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		select {
		case <-time.After(backoffDelay(attempt, cfg)):
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
		}
	}

	return zero, fmt.Errorf("giving up after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// backoffDelay computes the sleep before attempt n+1 (n is 1-based).
func backoffDelay(attempt int, cfg RetryConfig) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := float64(cfg.BaseDelay) * math.Pow(multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.Jitter > 0 {
		jitterAmount := delay * cfg.Jitter
		delay = delay - jitterAmount + rand.Float64()*jitterAmount*2
	}

	return time.Duration(delay)
}
