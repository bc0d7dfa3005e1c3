package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dexploarer/banshie-sub001/internal/platform/cache"
	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
)

func newTestCoordinator(t *testing.T) (*Coordinator[string], *cache.TTLStore[string]) {
	t.Helper()
	store := cache.NewTTLStore[string](100, time.Minute, time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	return New[string]("test-layer", store, Options{}), store
}

// TestGetOrFetchCachesValue verifies a successful fetch populates the store
func TestGetOrFetchCachesValue(t *testing.T) {
	coord, store := newTestCoordinator(t)
	var fetches int32

	fetch := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&fetches, 1)
		return "value-1", nil
	}

	got, err := coord.GetOrFetch(context.Background(), "key-1", time.Minute, fetch)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "value-1" {
		t.Errorf("Expected value-1, got %q", got)
	}

	// Second call is served from cache
	got, err = coord.GetOrFetch(context.Background(), "key-1", time.Minute, fetch)
	if err != nil {
		t.Fatalf("Unexpected error on cached read: %v", err)
	}
	if got != "value-1" {
		t.Errorf("Expected cached value-1, got %q", got)
	}
	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("Expected 1 upstream fetch, got %d", n)
	}

	if cached, ok := store.Get(context.Background(), "key-1"); !ok || cached != "value-1" {
		t.Error("Expected store to hold the fetched value")
	}

	t.Log("✓ Successful fetch populates the cache and later reads hit it")
}

// TestGetOrFetchDeduplicates verifies concurrent callers share one upstream fetch
func TestGetOrFetchDeduplicates(t *testing.T) {
	coord, _ := newTestCoordinator(t)

	var fetches int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&fetches, 1)
		<-release
		return "shared", nil
	}

	const callers = 50
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coord.GetOrFetch(context.Background(), "hot-key", time.Minute, fetch)
		}(i)
	}

	// Let the owner start and waiters pile up, then release the fetch
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Fatalf("Expected exactly 1 upstream fetch for %d callers, got %d", callers, n)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("Caller %d got error: %v", i, errs[i])
		}
		if results[i] != "shared" {
			t.Errorf("Caller %d got %q, want \"shared\"", i, results[i])
		}
	}
	if coord.InFlight() != 0 {
		t.Errorf("Expected empty in-flight registry, got %d", coord.InFlight())
	}

	t.Log("✓ 50 concurrent callers share a single upstream fetch")
}

// TestGetOrFetchFailureIsolation verifies a failed fetch never populates the cache
func TestGetOrFetchFailureIsolation(t *testing.T) {
	coord, store := newTestCoordinator(t)
	boom := errors.New("upstream down")
	var fetches int32

	fetch := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&fetches, 1)
		return "", &resilience.FetchError{Provider: "test", Op: "fetch", StatusCode: 400, Err: boom}
	}

	_, err := coord.GetOrFetch(context.Background(), "bad-key", time.Minute, fetch)
	if err == nil {
		t.Fatal("Expected error")
	}
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped upstream error, got %v", err)
	}

	if _, ok := store.Get(context.Background(), "bad-key"); ok {
		t.Error("Failed fetch must not populate the cache")
	}
	if coord.InFlight() != 0 {
		t.Errorf("Expected empty in-flight registry after failure, got %d", coord.InFlight())
	}

	// The next call retries upstream rather than serving a cached error
	_, _ = coord.GetOrFetch(context.Background(), "bad-key", time.Minute, fetch)
	if n := atomic.LoadInt32(&fetches); n != 2 {
		t.Errorf("Expected a fresh fetch after failure, got %d total", n)
	}

	t.Log("✓ Failed fetch leaves no cache entry and no in-flight residue")
}

// TestWaitersShareFailure verifies every waiter observes the same error
func TestWaitersShareFailure(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	boom := errors.New("shared failure")

	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		<-release
		return "", &resilience.FetchError{Provider: "test", Op: "fetch", StatusCode: 400, Err: boom}
	}

	const waiters = 10
	var wg sync.WaitGroup
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coord.GetOrFetch(context.Background(), "fail-key", time.Minute, fetch)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			t.Errorf("Waiter %d expected an error", i)
			continue
		}
		if !errors.Is(err, boom) {
			t.Errorf("Waiter %d got %v, want the shared failure", i, err)
		}
	}

	t.Log("✓ All waiters observe the identical fetch failure")
}

// TestAbandonedWaiterDoesNotCancelFetch verifies a waiter's cancellation
// abandons only its own wait
func TestAbandonedWaiterDoesNotCancelFetch(t *testing.T) {
	coord, store := newTestCoordinator(t)

	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		select {
		case <-release:
			return "survived", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	// Owner runs in the background
	ownerDone := make(chan error, 1)
	go func() {
		_, err := coord.GetOrFetch(context.Background(), "slow-key", time.Minute, fetch)
		ownerDone <- err
	}()

	// Wait for the fetch to register
	deadline := time.Now().Add(time.Second)
	for coord.InFlight() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Fetch never registered as in-flight")
		}
		time.Sleep(time.Millisecond)
	}

	// A waiter with a short deadline abandons its wait
	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := coord.GetOrFetch(waitCtx, "slow-key", time.Minute, fetch)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded for abandoned waiter, got %v", err)
	}

	// The shared fetch still completes and caches
	close(release)
	if err := <-ownerDone; err != nil {
		t.Fatalf("Owner fetch failed: %v", err)
	}
	if cached, ok := store.Get(context.Background(), "slow-key"); !ok || cached != "survived" {
		t.Error("Expected the abandoned fetch to still populate the cache")
	}

	t.Log("✓ Abandoned waiter exits early while the shared fetch completes")
}

// TestOwnerCancellationDoesNotAbortFetch verifies the fetch runs detached
// from the triggering caller's context
func TestOwnerCancellationDoesNotAbortFetch(t *testing.T) {
	coord, store := newTestCoordinator(t)

	fetch := func(ctx context.Context) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(30 * time.Millisecond):
			return "detached", nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	// The owner's call blocks through the fetch; the detached context
	// keeps the upstream call alive despite the cancellation.
	got, err := coord.GetOrFetch(ctx, "detach-key", time.Minute, fetch)
	if err != nil {
		t.Fatalf("Expected detached fetch to succeed, got %v", err)
	}
	if got != "detached" {
		t.Errorf("Expected \"detached\", got %q", got)
	}
	if _, ok := store.Get(context.Background(), "detach-key"); !ok {
		t.Error("Expected detached fetch to populate the cache")
	}

	t.Log("✓ Fetch survives cancellation of the triggering caller")
}

// TestGetOrFetchRetriesTransientErrors verifies the configured retry policy
// wraps the upstream fetch
func TestGetOrFetchRetriesTransientErrors(t *testing.T) {
	store := cache.NewTTLStore[string](100, time.Minute, time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	coord := New[string]("retry-layer", store, Options{
		Retry: resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Multiplier:  2.0,
		},
	})

	var fetches int32
	fetch := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&fetches, 1) < 3 {
			return "", &resilience.FetchError{Provider: "test", Op: "fetch", StatusCode: 503, Err: errors.New("unavailable")}
		}
		return "eventually", nil
	}

	got, err := coord.GetOrFetch(context.Background(), "flaky-key", time.Minute, fetch)
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if got != "eventually" {
		t.Errorf("Expected \"eventually\", got %q", got)
	}
	if n := atomic.LoadInt32(&fetches); n != 3 {
		t.Errorf("Expected 3 attempts, got %d", n)
	}

	t.Log("✓ Transient upstream errors are retried inside the shared fetch")
}

// TestInvalidate verifies force-eviction causes a fresh fetch
func TestInvalidate(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	var fetches int32

	fetch := func(ctx context.Context) (string, error) {
		return "v", nil
	}
	counting := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&fetches, 1)
		return fetch(ctx)
	}

	if _, err := coord.GetOrFetch(context.Background(), "key", time.Minute, counting); err != nil {
		t.Fatal(err)
	}
	coord.Invalidate(context.Background(), "key")
	if _, err := coord.GetOrFetch(context.Background(), "key", time.Minute, counting); err != nil {
		t.Fatal(err)
	}

	if n := atomic.LoadInt32(&fetches); n != 2 {
		t.Errorf("Expected a fresh fetch after invalidation, got %d total", n)
	}

	t.Log("✓ Invalidate forces the next read through to upstream")
}
