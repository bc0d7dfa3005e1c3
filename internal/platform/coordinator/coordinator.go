// Package coordinator implements the cache-through, deduplicating
// fetch orchestrator shared by every upstream integration. For N
// concurrent callers of the same key inside one fetch window, exactly
// one upstream call happens and all N observe the identical outcome;
// a failed fetch never populates the cache.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dexploarer/banshie-sub001/internal/platform/cache"
	"github.com/Dexploarer/banshie-sub001/internal/platform/observability"
	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
)

// FetchFunc produces the value for a key from upstream. The
// coordinator is transport-agnostic; price feeds, quote APIs, RPC and
// risk providers all reduce to this shape.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// inFlight is a single upstream fetch shared by all concurrent callers
// of its key. value/err are written by the owner before done is
// closed; the channel close publishes them to waiters.
type inFlight[V any] struct {
	id        string
	done      chan struct{}
	value     V
	err       error
	createdAt time.Time
	waiters   int
}

// Options configures a Coordinator.
type Options struct {
	// Retry governs the upstream fetch. Zero value means a single
	// attempt.
	Retry resilience.RetryConfig

	// Classify overrides the retryable-error predicate
	// (resilience.IsRetryable when nil).
	Classify func(error) bool

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Coordinator is a cache-through fetch deduplicator over one cache
// layer. The in-flight registry is mutated only under a short mutex,
// never while a fetch is running, so a slow key cannot block
// unrelated keys.
type Coordinator[V any] struct {
	name     string
	store    cache.Store[V]
	retry    resilience.RetryConfig
	classify func(error) bool
	logger   *observability.Logger
	metrics  *observability.Metrics

	mu       sync.Mutex
	inflight map[string]*inFlight[V]
}

// New creates a coordinator over the given store. name identifies the
// layer in logs and metrics.
func New[V any](name string, store cache.Store[V], opts Options) *Coordinator[V] {
	return &Coordinator[V]{
		name:     name,
		store:    store,
		retry:    opts.Retry,
		classify: opts.Classify,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		inflight: make(map[string]*inFlight[V]),
	}
}

// GetOrFetch returns the cached value for key, or fetches it upstream
// at most once no matter how many callers arrive concurrently.
//
// A waiter whose ctx ends stops waiting with ctx.Err() without
// disturbing the shared fetch. The fetch itself runs on a context
// detached from the triggering caller (context.WithoutCancel), so an
// abandoned trigger still completes and populates the cache for the
// remaining waiters.
func (c *Coordinator[V]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[V]) (V, error) {
	var zero V

	if val, ok := c.store.Get(ctx, key); ok {
		return val, nil
	}

	c.mu.Lock()
	if fl, ok := c.inflight[key]; ok {
		fl.waiters++
		c.mu.Unlock()
		return c.wait(ctx, fl)
	}

	fl := &inFlight[V]{
		id:        uuid.NewString(),
		done:      make(chan struct{}),
		createdAt: time.Now(),
		waiters:   1,
	}
	c.inflight[key] = fl
	c.mu.Unlock()

	c.fetchAndComplete(ctx, key, ttl, fetch, fl)

	if fl.err != nil {
		return zero, fl.err
	}
	return fl.value, nil
}

// wait blocks a non-owning caller on the shared outcome.
func (c *Coordinator[V]) wait(ctx context.Context, fl *inFlight[V]) (V, error) {
	var zero V

	c.metrics.RecordDedupWait(ctx, c.name)

	select {
	case <-fl.done:
		if fl.err != nil {
			return zero, fl.err
		}
		return fl.value, nil
	case <-ctx.Done():
		c.metrics.RecordAbandonedWait(context.Background(), c.name)
		return zero, ctx.Err()
	}
}

// fetchAndComplete runs the upstream fetch as the owner of fl and
// publishes the outcome.
func (c *Coordinator[V]) fetchAndComplete(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[V], fl *inFlight[V]) {
	// Detach from the triggering caller: its cancellation abandons its
	// wait, not the fetch other waiters depend on.
	fetchCtx := context.WithoutCancel(ctx)
	start := time.Now()

	c.metrics.RecordFetchStarted(ctx, c.name)
	if c.logger != nil {
		c.logger.LogDebug(ctx, "starting upstream fetch",
			"layer", c.name, "key", key, "request_id", fl.id)
	}

	value, err := resilience.RetryWithResult(fetchCtx, c.retry, c.classify, fetch)

	if err == nil {
		// A Set failure (serialization) is non-fatal: the value is
		// still delivered to every waiter, the next call refetches.
		if setErr := c.store.Set(fetchCtx, key, value, ttl); setErr != nil && c.logger != nil {
			c.logger.LogWarn(ctx, "failed to cache fetched value",
				"layer", c.name, "key", key, "error", setErr)
		}
		fl.value = value
	} else {
		fl.err = err
	}

	c.metrics.RecordFetchDuration(ctx, c.name, time.Since(start))

	c.complete(ctx, key, fl)
}

// complete removes the registry entry and wakes all waiters. The
// value/err slots are written before done is closed, so every waiter
// observes the same resolved outcome.
func (c *Coordinator[V]) complete(ctx context.Context, key string, fl *inFlight[V]) {
	c.mu.Lock()
	registered, ok := c.inflight[key]
	if ok && registered == fl {
		delete(c.inflight, key)
	}
	c.mu.Unlock()

	if !ok || registered != fl {
		// Registry invariant violated: the completing fetch was not the
		// registered one. Waiters are still released below; this is a
		// bug signal, not a deadlock.
		if c.logger != nil {
			c.logger.LogError(ctx, "coordinator registry invariant violated", nil,
				"layer", c.name, "key", key, "request_id", fl.id)
		}
	}

	close(fl.done)
}

// Invalidate force-evicts a key, e.g. after a state-changing action.
func (c *Coordinator[V]) Invalidate(ctx context.Context, key string) {
	c.store.Remove(ctx, key)
}

// InFlight returns the number of keys currently being fetched.
func (c *Coordinator[V]) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Stats exposes the underlying layer's counters.
func (c *Coordinator[V]) Stats() cache.LayerStats {
	return c.store.Stats()
}
