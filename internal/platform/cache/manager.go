package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/Dexploarer/banshie-sub001/internal/platform/observability"
)

// Layer is the type-erased view of a Store used for management
// operations: stats sampling, invalidation and shutdown. Every
// Store[V] satisfies it regardless of V.
type Layer interface {
	Remove(ctx context.Context, key string)
	Clear(ctx context.Context)
	Len() int
	Stats() LayerStats
	Close() error
}

// KeyFunc derives the cache key holding a principal's entry in a
// user-scoped layer, e.g. "balance:<wallet>".
type KeyFunc func(principal string) string

type userScope struct {
	layer Layer
	keyFn KeyFunc
}

// GlobalStats aggregates counters across all registered layers.
type GlobalStats struct {
	TotalHits    uint64
	TotalMisses  uint64
	TotalEntries int
	HitRate      float64 // percent
	Layers       map[string]LayerStats
}

// Manager tracks the named cache layers of the bot (token prices,
// balances, positions, quotes, rebate stats) so cross-cutting
// operations (user invalidation after a trade, global stats for the
// health reporter, shutdown) have a single entry point. Instances are
// constructed at wiring time and injected; there is no package-level
// manager.
type Manager struct {
	mu         sync.RWMutex
	layers     map[string]Layer
	userScoped map[string]userScope
	logger     *observability.Logger
}

// NewManager creates an empty layer registry.
func NewManager(logger *observability.Logger) *Manager {
	return &Manager{
		layers:     make(map[string]Layer),
		userScoped: make(map[string]userScope),
		logger:     logger,
	}
}

// Register adds a named layer.
func (m *Manager) Register(name string, layer Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layers[name] = layer
}

// RegisterUserScoped adds a named layer whose entries are keyed per
// principal; these are the layers force-evicted by InvalidateUser.
func (m *Manager) RegisterUserScoped(name string, layer Layer, keyFn KeyFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layers[name] = layer
	m.userScoped[name] = userScope{layer: layer, keyFn: keyFn}
}

// InvalidateUser force-evicts a principal's entries from every
// user-scoped layer. Called after state-changing actions (a completed
// trade) so stale balance/position data is never served.
func (m *Manager) InvalidateUser(ctx context.Context, principal string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, scope := range m.userScoped {
		scope.layer.Remove(ctx, scope.keyFn(principal))
		if m.logger != nil {
			m.logger.LogDebug(ctx, "invalidated user cache entry",
				"layer", name, "principal", principal)
		}
	}
}

// ClearAll empties every registered layer.
func (m *Manager) ClearAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, layer := range m.layers {
		layer.Clear(ctx)
	}
}

// GlobalStats sums counters across layers; the global hit rate is
// totalHits/(totalHits+totalMisses).
func (m *Manager) GlobalStats() GlobalStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := GlobalStats{Layers: make(map[string]LayerStats, len(m.layers))}
	for name, layer := range m.layers {
		ls := layer.Stats()
		stats.Layers[name] = ls
		stats.TotalHits += ls.Hits
		stats.TotalMisses += ls.Misses
		stats.TotalEntries += ls.Entries
	}

	if total := stats.TotalHits + stats.TotalMisses; total > 0 {
		stats.HitRate = float64(stats.TotalHits) / float64(total) * 100.0
	}
	return stats
}

// LayerNames returns the registered layer names, sorted.
func (m *Manager) LayerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.layers))
	for name := range m.layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close shuts down every registered layer, returning the first error.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var firstErr error
	for _, layer := range m.layers {
		if err := layer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
