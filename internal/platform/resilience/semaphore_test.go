package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestConcurrencyLimiterBound verifies at most max callers hold a slot
func TestConcurrencyLimiterBound(t *testing.T) {
	limiter := NewConcurrencyLimiter(3)

	var current, peak int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = limiter.Do(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&current, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > 3 {
		t.Errorf("Expected at most 3 concurrent holders, observed %d", peak)
	}
	if peak < 1 {
		t.Error("Expected at least one holder")
	}

	t.Log("✓ Concurrency never exceeds the configured bound")
}

// TestConcurrencyLimiterCancelledAcquire verifies a blocked Acquire honors ctx
func TestConcurrencyLimiterCancelledAcquire(t *testing.T) {
	limiter := NewConcurrencyLimiter(1)

	if !limiter.TryAcquire() {
		t.Fatal("Expected the only slot to be free")
	}
	defer limiter.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Do(ctx, func(ctx context.Context) error {
		t.Error("fn must not run when acquire fails")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded, got %v", err)
	}

	t.Log("✓ Blocked acquire is released by context cancellation")
}

// TestConcurrencyLimiterReleasesOnError verifies slots are returned when fn fails
func TestConcurrencyLimiterReleasesOnError(t *testing.T) {
	limiter := NewConcurrencyLimiter(1)
	boom := errors.New("boom")

	if err := limiter.Do(context.Background(), func(ctx context.Context) error {
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("Expected fn error passthrough, got %v", err)
	}

	// Slot must be free again
	if !limiter.TryAcquire() {
		t.Fatal("Expected slot to be released after error")
	}
	limiter.Release()

	t.Log("✓ Slot is released even when fn fails")
}

func TestConcurrencyLimiterDefaultsToOne(t *testing.T) {
	limiter := NewConcurrencyLimiter(0)
	if limiter.Max() != 1 {
		t.Errorf("Expected max 1 for non-positive bound, got %d", limiter.Max())
	}
}
