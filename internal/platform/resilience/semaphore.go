package resilience

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyLimiter bounds simultaneous in-flight calls to an
// upstream, independent of request rate. Some RPC endpoints tolerate a
// steady request rate but degrade under parallel connections; this is
// the complementary primitive to the token-bucket Limiter, not a
// replacement for it.
type ConcurrencyLimiter struct {
	sem *semaphore.Weighted
	max int64
}

// NewConcurrencyLimiter creates a limiter allowing at most max
// concurrent holders.
func NewConcurrencyLimiter(max int64) *ConcurrencyLimiter {
	if max <= 0 {
		max = 1
	}
	return &ConcurrencyLimiter{
		sem: semaphore.NewWeighted(max),
		max: max,
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (c *ConcurrencyLimiter) Acquire(ctx context.Context) error {
	return c.sem.Acquire(ctx, 1)
}

// TryAcquire takes a slot without blocking.
func (c *ConcurrencyLimiter) TryAcquire() bool {
	return c.sem.TryAcquire(1)
}

// Release frees a slot taken by Acquire or TryAcquire.
func (c *ConcurrencyLimiter) Release() {
	c.sem.Release(1)
}

// Max returns the configured concurrency bound.
func (c *ConcurrencyLimiter) Max() int64 {
	return c.max
}

// Do runs fn while holding a slot.
func (c *ConcurrencyLimiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := c.Acquire(ctx); err != nil {
		return err
	}
	defer c.Release()
	return fn(ctx)
}
