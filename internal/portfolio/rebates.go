package portfolio

import (
	"context"
	"sync"
	"time"

	"github.com/Dexploarer/banshie-sub001/internal/platform/cache"
	"github.com/Dexploarer/banshie-sub001/internal/platform/coordinator"
	"github.com/Dexploarer/banshie-sub001/internal/platform/observability"
	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
)

// RebateStats summarizes a user's accumulated fee rebates.
type RebateStats struct {
	UserID      string    `json:"user_id"`
	TradeCount  uint64    `json:"trade_count"`
	VolumeUSD   float64   `json:"volume_usd"`
	RebatesUSD  float64   `json:"rebates_usd"`
	LastTradeAt time.Time `json:"last_trade_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RebateSource loads rebate stats for a user from the system of
// record.
type RebateSource func(ctx context.Context, userID string) (RebateStats, error)

// RebateTracker accumulates per-user rebate totals and serves reads
// through the user_rebates layer. The cache exists because stats are
// displayed far more often than they change.
type RebateTracker struct {
	source RebateSource
	coord  *coordinator.Coordinator[RebateStats]
	ttl    time.Duration

	mu     sync.Mutex
	ledger map[string]RebateStats
}

// NewRebateTracker creates a tracker over the rebate layer. When
// source is nil, the tracker's own ledger (fed by RecordTrade) is the
// system of record.
func NewRebateTracker(source RebateSource, store cache.Store[RebateStats], ttl time.Duration, retry resilience.RetryConfig, logger *observability.Logger, metrics *observability.Metrics) *RebateTracker {
	if ttl <= 0 {
		ttl = time.Minute
	}

	t := &RebateTracker{
		ttl:    ttl,
		ledger: make(map[string]RebateStats),
	}
	if source == nil {
		source = t.ledgerLookup
	}
	t.source = source
	t.coord = coordinator.New("user_rebates", store, coordinator.Options{
		Retry:   retry,
		Logger:  logger,
		Metrics: metrics,
	})
	return t
}

// Get returns a user's rebate stats, deduplicating concurrent loads.
func (t *RebateTracker) Get(ctx context.Context, userID string) (RebateStats, error) {
	return t.coord.GetOrFetch(ctx, coordinator.RebateKey(userID), t.ttl, func(ctx context.Context) (RebateStats, error) {
		return t.source(ctx, userID)
	})
}

// RecordTrade credits a completed trade to the user's totals and
// force-evicts the cached stats so the next read sees them.
func (t *RebateTracker) RecordTrade(ctx context.Context, userID string, volumeUSD, rebateUSD float64) {
	now := time.Now()

	t.mu.Lock()
	stats := t.ledger[userID]
	stats.UserID = userID
	stats.TradeCount++
	stats.VolumeUSD += volumeUSD
	stats.RebatesUSD += rebateUSD
	stats.LastTradeAt = now
	stats.UpdatedAt = now
	t.ledger[userID] = stats
	t.mu.Unlock()

	t.coord.Invalidate(ctx, coordinator.RebateKey(userID))
}

func (t *RebateTracker) ledgerLookup(ctx context.Context, userID string) (RebateStats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats, ok := t.ledger[userID]
	if !ok {
		stats = RebateStats{UserID: userID, UpdatedAt: time.Now()}
	}
	return stats, nil
}

// Invalidate force-evicts a user's cached stats.
func (t *RebateTracker) Invalidate(ctx context.Context, userID string) {
	t.coord.Invalidate(ctx, coordinator.RebateKey(userID))
}

// Stats exposes the rebate layer counters.
func (t *RebateTracker) Stats() cache.LayerStats {
	return t.coord.Stats()
}
