package cache

import (
	"context"
	"time"
)

// l1MaxTTL caps the freshness window of the in-memory tier so a
// restart-surviving L2 entry cannot pin a stale value in memory.
const l1MaxTTL = time.Minute

// Layered is a two-tier store: a fast in-memory L1 in front of a
// slower, shared L2 (typically Redis). Writes go through both tiers;
// an L2 hit backfills L1 with a capped TTL.
type Layered[V any] struct {
	l1 Store[V]
	l2 Store[V]
}

// NewLayered creates a layered store. Either tier may be nil.
func NewLayered[V any](l1, l2 Store[V]) *Layered[V] {
	return &Layered[V]{l1: l1, l2: l2}
}

// Get checks L1 then L2; an L2 hit is backfilled into L1.
func (lc *Layered[V]) Get(ctx context.Context, key string) (V, bool) {
	if lc.l1 != nil {
		if val, ok := lc.l1.Get(ctx, key); ok {
			return val, true
		}
	}

	if lc.l2 != nil {
		if val, ok := lc.l2.Get(ctx, key); ok {
			if lc.l1 != nil {
				_ = lc.l1.Set(ctx, key, val, l1MaxTTL)
			}
			return val, true
		}
	}

	var zero V
	return zero, false
}

// Set writes through both tiers. L1 TTL is capped at l1MaxTTL. An error
// is returned only if every present tier failed.
func (lc *Layered[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	var l1Err, l2Err error

	if lc.l1 != nil {
		l1TTL := ttl
		if ttl > l1MaxTTL {
			l1TTL = l1MaxTTL
		}
		l1Err = lc.l1.Set(ctx, key, value, l1TTL)
	}

	if lc.l2 != nil {
		l2Err = lc.l2.Set(ctx, key, value, ttl)
	}

	if lc.l1 != nil && lc.l2 != nil && l1Err != nil && l2Err != nil {
		return l2Err
	}
	if lc.l1 == nil {
		return l2Err
	}
	if lc.l2 == nil {
		return l1Err
	}
	return nil
}

// Remove deletes the key from both tiers.
func (lc *Layered[V]) Remove(ctx context.Context, key string) {
	if lc.l1 != nil {
		lc.l1.Remove(ctx, key)
	}
	if lc.l2 != nil {
		lc.l2.Remove(ctx, key)
	}
}

// Clear clears both tiers.
func (lc *Layered[V]) Clear(ctx context.Context) {
	if lc.l1 != nil {
		lc.l1.Clear(ctx)
	}
	if lc.l2 != nil {
		lc.l2.Clear(ctx)
	}
}

// Len reports the L1 entry count; L2 sizing is owned by its backend.
func (lc *Layered[V]) Len() int {
	if lc.l1 != nil {
		return lc.l1.Len()
	}
	return 0
}

// Stats merges counters from both tiers. Entry count and capacity come
// from L1, which is the tier under local memory pressure.
func (lc *Layered[V]) Stats() LayerStats {
	var stats LayerStats
	if lc.l1 != nil {
		stats = lc.l1.Stats()
	}
	if lc.l2 != nil {
		l2 := lc.l2.Stats()
		stats.Hits += l2.Hits
		stats.Misses += l2.Misses
		stats.Evictions += l2.Evictions
		stats.Expired += l2.Expired
	}
	return stats
}

// Close closes both tiers.
func (lc *Layered[V]) Close() error {
	var l1Err, l2Err error
	if lc.l1 != nil {
		l1Err = lc.l1.Close()
	}
	if lc.l2 != nil {
		l2Err = lc.l2.Close()
	}
	if l1Err != nil {
		return l1Err
	}
	return l2Err
}

// InvalidateL1 drops only the in-memory copy, forcing the next read
// through to L2.
func (lc *Layered[V]) InvalidateL1(ctx context.Context, key string) {
	if lc.l1 != nil {
		lc.l1.Remove(ctx, key)
	}
}
