package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// lruItem pairs a key with its entry so an eviction from the list tail
// can also drop the index.
type lruItem[V any] struct {
	key string
	ent entry[V]
}

// LRUStore is a fixed-capacity in-memory store with least-recently-used
// eviction. Get refreshes recency; inserting beyond capacity evicts the
// least-recently-accessed entry regardless of its remaining TTL.
// Entries may additionally carry a TTL, checked lazily on Get.
type LRUStore[V any] struct {
	maxSize    int
	defaultTTL time.Duration

	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // front = most recently used
	hits    uint64
	misses  uint64
	evicted uint64
	expired uint64
}

// NewLRUStore creates an LRU store with the given capacity. defaultTTL
// of zero means entries never expire on their own.
func NewLRUStore[V any](maxSize int, defaultTTL time.Duration) *LRUStore[V] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &LRUStore[V]{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		index:      make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get retrieves a live value and refreshes its recency.
func (s *LRUStore[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.index[key]
	if !ok {
		s.misses++
		return zero, false
	}

	item := elem.Value.(*lruItem[V])
	if item.ent.expired(now) {
		s.removeElement(elem)
		s.expired++
		s.misses++
		return zero, false
	}

	item.ent.touch(now)
	s.order.MoveToFront(elem)
	s.hits++
	return item.ent.value, true
}

// Set stores a value at the most-recently-used position, evicting the
// least-recently-used entry when over capacity.
func (s *LRUStore[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.index[key]; ok {
		item := elem.Value.(*lruItem[V])
		item.ent.value = value
		item.ent.insertedAt = now
		item.ent.ttl = ttl
		s.order.MoveToFront(elem)
		return nil
	}

	elem := s.order.PushFront(&lruItem[V]{
		key: key,
		ent: entry[V]{value: value, insertedAt: now, ttl: ttl, lastAccessAt: now},
	})
	s.index[key] = elem

	if s.order.Len() > s.maxSize {
		if back := s.order.Back(); back != nil {
			s.removeElement(back)
			s.evicted++
		}
	}
	return nil
}

// Remove deletes a key if present.
func (s *LRUStore[V]) Remove(ctx context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.index[key]; ok {
		s.removeElement(elem)
	}
}

// Clear removes all entries.
func (s *LRUStore[V]) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = make(map[string]*list.Element)
	s.order.Init()
}

// Len returns the current number of entries.
func (s *LRUStore[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Stats returns a snapshot of the store's counters.
func (s *LRUStore[V]) Stats() LayerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return LayerStats{
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evicted,
		Expired:   s.expired,
		Entries:   s.order.Len(),
		Capacity:  s.maxSize,
	}
}

// Close is a no-op; the LRU store holds no background resources.
func (s *LRUStore[V]) Close() error {
	return nil
}

// removeElement drops an element from both list and index
// (caller must hold lock).
func (s *LRUStore[V]) removeElement(elem *list.Element) {
	item := elem.Value.(*lruItem[V])
	s.order.Remove(elem)
	delete(s.index, item.key)
}
