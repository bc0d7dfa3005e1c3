// Package cache provides the keyed stores backing the bot's request
// coordination layer: TTL and LRU in-memory stores, a Redis-backed
// store, a two-tier layered store, and a manager that groups named
// layers per logical dataset (prices, balances, positions, quotes,
// rebates).
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSerialization is returned by Set when a value cannot be encoded
	// for storage. Callers treat it as non-fatal: the entry is simply not
	// cached and the next read falls through to a fresh fetch.
	ErrSerialization = errors.New("cache: value serialization failed")
)

// Store is a keyed cache over values of type V.
//
// Get never fails; a decode error or backend failure is reported as a
// miss so that a broken cache can never abort a request. Set fails only
// when the value cannot be encoded.
type Store[V any] interface {
	// Get retrieves a value. The second return reports whether a live
	// (non-expired) entry was found.
	Get(ctx context.Context, key string) (V, bool)

	// Set stores a value with the given TTL. A non-positive ttl uses the
	// store's default.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Remove deletes a key if present.
	Remove(ctx context.Context, key string)

	// Clear removes all entries.
	Clear(ctx context.Context)

	// Len returns the current number of entries.
	Len() int

	// Stats returns a snapshot of the store's counters.
	Stats() LayerStats

	// Close releases background resources (cleanup goroutines,
	// connections).
	Close() error
}

// entry is a stored value plus the bookkeeping used for expiry and
// eviction decisions.
type entry[V any] struct {
	value        V
	insertedAt   time.Time
	ttl          time.Duration
	accessCount  uint64
	lastAccessAt time.Time
}

// expired reports whether the entry is past its TTL at now.
// A zero ttl means the entry never expires.
func (e *entry[V]) expired(now time.Time) bool {
	if e.ttl <= 0 {
		return false
	}
	return now.Sub(e.insertedAt) > e.ttl
}

func (e *entry[V]) touch(now time.Time) {
	e.accessCount++
	e.lastAccessAt = now
}

// LayerStats is a snapshot of a single store's counters.
type LayerStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Expired   uint64
	Entries   int
	Capacity  int
}

// HitRate returns hits/(hits+misses) in percent, or 0 before any access.
func (s LayerStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100.0
}

// Utilization returns entries/capacity in percent, or 0 for unbounded
// stores.
func (s LayerStats) Utilization() float64 {
	if s.Capacity <= 0 {
		return 0
	}
	return float64(s.Entries) / float64(s.Capacity) * 100.0
}
