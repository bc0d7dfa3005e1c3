package cache

import (
	"context"
	"sync"
	"time"
)

// TTLStore is an in-memory store where freshness is driven by per-entry
// TTLs. Expired entries are dropped lazily on Get and swept by a
// background cleanup ticker. When the store is at capacity, the entry
// with the oldest insertion time is evicted to make room.
type TTLStore[V any] struct {
	maxSize    int
	defaultTTL time.Duration

	mu      sync.Mutex
	items   map[string]*entry[V]
	hits    uint64
	misses  uint64
	evicted uint64
	expired uint64

	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewTTLStore creates a TTL store with the given capacity and default
// TTL. cleanupInterval controls the background expiry sweep; a
// non-positive value uses one minute.
func NewTTLStore[V any](maxSize int, defaultTTL, cleanupInterval time.Duration) *TTLStore[V] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &TTLStore[V]{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		items:      make(map[string]*entry[V]),
		stopCh:     make(chan struct{}),
	}

	go s.cleanup(cleanupInterval)

	return s
}

// Get retrieves a live value, lazily evicting it if expired.
func (s *TTLStore[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.items[key]
	if !ok {
		s.misses++
		return zero, false
	}

	if ent.expired(now) {
		delete(s.items, key)
		s.expired++
		s.misses++
		return zero, false
	}

	ent.touch(now)
	s.hits++
	return ent.value, true
}

// Set stores a value. A non-positive ttl uses the store default.
func (s *TTLStore[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.items[key]; ok {
		ent.value = value
		ent.insertedAt = now
		ent.ttl = ttl
		return nil
	}

	if len(s.items) >= s.maxSize {
		s.evictOldest()
	}

	s.items[key] = &entry[V]{
		value:        value,
		insertedAt:   now,
		ttl:          ttl,
		lastAccessAt: now,
	}
	return nil
}

// Remove deletes a key if present.
func (s *TTLStore[V]) Remove(ctx context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Clear removes all entries.
func (s *TTLStore[V]) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*entry[V])
}

// Len returns the current number of entries.
func (s *TTLStore[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Stats returns a snapshot of the store's counters.
func (s *TTLStore[V]) Stats() LayerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return LayerStats{
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evicted,
		Expired:   s.expired,
		Entries:   len(s.items),
		Capacity:  s.maxSize,
	}
}

// Close stops the cleanup goroutine.
func (s *TTLStore[V]) Close() error {
	s.closeOnce.Do(func() { close(s.stopCh) })
	return nil
}

// evictOldest removes the entry with the earliest insertion time
// (caller must hold lock).
func (s *TTLStore[V]) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	first := true

	for key, ent := range s.items {
		if first || ent.insertedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = ent.insertedAt
			first = false
		}
	}

	if !first {
		delete(s.items, oldestKey)
		s.evicted++
	}
}

// cleanup periodically removes expired entries.
func (s *TTLStore[V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *TTLStore[V]) sweep() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, ent := range s.items {
		if ent.expired(now) {
			delete(s.items, key)
			s.expired++
		}
	}
}
