package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrRateLimitExceeded is the sentinel matched by errors.Is for
	// rate-limit denials. Expected and recoverable by backoff.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrLimiterInternal signals broken limiter invariants. Seeing it
	// means a bug, not load.
	ErrLimiterInternal = errors.New("rate limiter internal error")
)

// RateLimitError carries the wait hint surfaced to callers
// ("try again in N seconds").
type RateLimitError struct {
	Principal  string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// Limits is the per-operation-class rate limit configuration. The
// minute bucket is the enforced limit: refill is one token per
// (minute / RequestsPerMinute), capped at BurstCapacity. Hour/day
// figures and cooldown are carried for operator visibility and the
// idle-purge window.
type Limits struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	BurstCapacity     int
	Cooldown          time.Duration
	CleanupInterval   time.Duration
}

// DefaultLimits is the general-purpose class.
func DefaultLimits() Limits {
	return Limits{
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
		RequestsPerDay:    10000,
		BurstCapacity:     10,
		Cooldown:          5 * time.Minute,
		CleanupInterval:   5 * time.Minute,
	}
}

// TradingLimits is the class for state-changing trade operations:
// small burst, slow refill.
func TradingLimits() Limits {
	return Limits{
		RequestsPerMinute: 5,
		RequestsPerHour:   50,
		RequestsPerDay:    200,
		BurstCapacity:     2,
		Cooldown:          10 * time.Minute,
		CleanupInterval:   5 * time.Minute,
	}
}

// PortfolioLimits is the class for portfolio reads.
func PortfolioLimits() Limits {
	return Limits{
		RequestsPerMinute: 20,
		RequestsPerHour:   200,
		RequestsPerDay:    1000,
		BurstCapacity:     5,
		Cooldown:          2 * time.Minute,
		CleanupInterval:   5 * time.Minute,
	}
}

// MarketDataLimits is the class for price/quote lookups.
func MarketDataLimits() Limits {
	return Limits{
		RequestsPerMinute: 30,
		RequestsPerHour:   500,
		RequestsPerDay:    2000,
		BurstCapacity:     10,
		Cooldown:          time.Minute,
		CleanupInterval:   5 * time.Minute,
	}
}

// refillInterval is the fixed interval at which one token returns.
func (l Limits) refillInterval() time.Duration {
	rpm := l.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	return time.Minute / time.Duration(rpm)
}

// bucket is a single principal's token bucket. Mutated only under the
// limiter mutex; counts are never observably negative or above
// capacity.
type bucket struct {
	tokens     int
	capacity   int
	lastRefill time.Time
	lastSeen   time.Time

	totalRequests   uint64
	blockedRequests uint64
}

// refill credits whole tokens for elapsed refill intervals, capped at
// capacity. lastRefill only advances by consumed intervals so partial
// progress toward the next token is preserved.
func (b *bucket) refill(now time.Time, interval time.Duration) {
	if interval <= 0 {
		return
	}
	elapsed := now.Sub(b.lastRefill)
	n := int(elapsed / interval)
	if n <= 0 {
		return
	}
	b.tokens += n
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(n) * interval)
}

// PrincipalStats is a snapshot of one principal's counters.
type PrincipalStats struct {
	Principal       string
	AvailableTokens int
	TotalRequests   uint64
	BlockedRequests uint64
	BlockRate       float64 // percent
}

// GlobalRateStats aggregates counters across all live principals.
type GlobalRateStats struct {
	ActivePrincipals int
	TotalRequests    uint64
	TotalBlocked     uint64
	BlockRate        float64 // percent
}

// Limiter enforces per-principal token buckets. Buckets are created
// lazily on first use and purged after an hour of inactivity; refill
// is computed lazily from elapsed time on each Check, with no
// background ticker.
type Limiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	lastCleanup time.Time
	idleWindow  time.Duration
}

// NewLimiter creates a rate limiter with the default one-hour idle
// purge window.
func NewLimiter() *Limiter {
	return &Limiter{
		buckets:     make(map[string]*bucket),
		lastCleanup: time.Now(),
		idleWindow:  time.Hour,
	}
}

// Check consumes one token for the principal under the given limits.
// Returns nil when allowed, a *RateLimitError (matching
// ErrRateLimitExceeded) when denied, or ErrLimiterInternal on broken
// invariants.
func (l *Limiter) Check(principal string, limits Limits) error {
	now := time.Now()
	interval := limits.refillInterval()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeCleanup(now, limits.CleanupInterval)

	b, ok := l.buckets[principal]
	if !ok {
		capacity := limits.BurstCapacity
		if capacity <= 0 {
			capacity = 1
		}
		b = &bucket{
			tokens:     capacity,
			capacity:   capacity,
			lastRefill: now,
		}
		l.buckets[principal] = b
	}

	b.lastSeen = now
	b.totalRequests++
	b.refill(now, interval)

	if b.tokens < 0 || b.tokens > b.capacity {
		return fmt.Errorf("%w: principal %q has %d/%d tokens",
			ErrLimiterInternal, principal, b.tokens, b.capacity)
	}

	if b.tokens >= 1 {
		b.tokens--
		return nil
	}

	b.blockedRequests++
	return &RateLimitError{
		Principal:  principal,
		RetryAfter: interval - now.Sub(b.lastRefill),
	}
}

// CheckWithRetry retries a denied Check with linear backoff
// (baseDelay * attempt), surfacing the rate-limit error only once
// maxRetries is exhausted. Internal errors are never retried.
func (l *Limiter) CheckWithRetry(ctx context.Context, principal string, limits Limits, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := l.Check(principal, limits)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrRateLimitExceeded) {
			return err
		}
		lastErr = err

		if attempt >= maxRetries {
			return lastErr
		}

		select {
		case <-time.After(baseDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// AddTokens credits tokens to a principal (premium allowance), capped
// at the bucket capacity. Unknown principals are ignored.
func (l *Limiter) AddTokens(principal string, n int) {
	if n <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[principal]; ok {
		b.tokens += n
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
}

// PrincipalStats returns a principal's counters, if it has a live
// bucket.
func (l *Limiter) PrincipalStats(principal string) (PrincipalStats, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[principal]
	if !ok {
		return PrincipalStats{}, false
	}

	stats := PrincipalStats{
		Principal:       principal,
		AvailableTokens: b.tokens,
		TotalRequests:   b.totalRequests,
		BlockedRequests: b.blockedRequests,
	}
	if b.totalRequests > 0 {
		stats.BlockRate = float64(b.blockedRequests) / float64(b.totalRequests) * 100.0
	}
	return stats, true
}

// GlobalStats aggregates counters across all live principals.
func (l *Limiter) GlobalStats() GlobalRateStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := GlobalRateStats{ActivePrincipals: len(l.buckets)}
	for _, b := range l.buckets {
		stats.TotalRequests += b.totalRequests
		stats.TotalBlocked += b.blockedRequests
	}
	if stats.TotalRequests > 0 {
		stats.BlockRate = float64(stats.TotalBlocked) / float64(stats.TotalRequests) * 100.0
	}
	return stats
}

// Reset drops all buckets (admin/testing).
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*bucket)
}

// maybeCleanup purges principals idle past the window. Piggybacked on
// Check so the limiter needs no background goroutine (caller must hold
// lock).
func (l *Limiter) maybeCleanup(now time.Time, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if now.Sub(l.lastCleanup) < interval {
		return
	}

	for principal, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleWindow {
			delete(l.buckets, principal)
		}
	}
	l.lastCleanup = now
}
