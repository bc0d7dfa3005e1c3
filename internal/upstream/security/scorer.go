package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dexploarer/banshie-sub001/internal/platform/cache"
	"github.com/Dexploarer/banshie-sub001/internal/platform/coordinator"
	"github.com/Dexploarer/banshie-sub001/internal/platform/observability"
	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
)

// Scorer fans a token check out to all providers and merges the
// results. A provider that fails is skipped; the check errors only
// when every provider fails.
type Scorer struct {
	providers []Provider
	coord     *coordinator.Coordinator[Report]
	limiter   *resilience.Limiter
	limits    resilience.Limits
	ttl       time.Duration
	logger    *observability.Logger
}

// ScorerConfig holds Scorer construction parameters.
type ScorerConfig struct {
	Providers []Provider
	Store     cache.Store[Report]
	TTL       time.Duration
	Limiter   *resilience.Limiter
	Limits    resilience.Limits
	Retry     resilience.RetryConfig
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

// NewScorer creates a scorer over the given providers and risk cache
// layer.
func NewScorer(cfg ScorerConfig) *Scorer {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Limits.RequestsPerMinute == 0 {
		cfg.Limits = resilience.MarketDataLimits()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	return &Scorer{
		providers: cfg.Providers,
		coord: coordinator.New("risk_reports", cfg.Store, coordinator.Options{
			Retry:   cfg.Retry,
			Logger:  cfg.Logger,
			Metrics: cfg.Metrics,
		}),
		limiter: cfg.Limiter,
		limits:  cfg.Limits,
		ttl:     cfg.TTL,
		logger:  cfg.Logger,
	}
}

// Analyze returns the merged risk report for a mint. Per-provider
// results go through the coordinator, so concurrent checks of the same
// token hit each provider at most once per TTL window.
func (s *Scorer) Analyze(ctx context.Context, mint string) (Report, error) {
	if len(s.providers) == 0 {
		return Report{}, fmt.Errorf("no risk providers configured")
	}

	if s.limiter != nil {
		if err := s.limiter.Check("security:"+mint, s.limits); err != nil {
			return Report{}, fmt.Errorf("risk check rate limit: %w", err)
		}
	}

	var (
		mu      sync.Mutex
		reports []Report
		lastErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, provider := range s.providers {
		provider := provider
		g.Go(func() error {
			report, err := s.checkProvider(gctx, provider, mint)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				if s.logger != nil {
					s.logger.LogWarn(gctx, "risk provider failed",
						"provider", provider.Name(), "mint", mint, "error", err)
				}
				// Provider failures are absorbed here; the group only
				// aborts on context cancellation.
				return nil
			}
			reports = append(reports, report)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	if len(reports) == 0 {
		return Report{}, fmt.Errorf("all risk providers failed for %s: %w", mint, lastErr)
	}

	merged := Merge(reports)
	if s.logger != nil {
		s.logger.LogInfo(ctx, "token risk analysis complete",
			"mint", mint,
			"score", merged.Score,
			"level", merged.Level.String(),
			"sources", len(merged.Sources),
			"warnings", len(merged.Warnings),
		)
	}
	return merged, nil
}

// checkProvider runs one provider through the shared risk layer.
func (s *Scorer) checkProvider(ctx context.Context, provider Provider, mint string) (Report, error) {
	key := coordinator.RiskKey(provider.Name(), mint)
	return s.coord.GetOrFetch(ctx, key, s.ttl, func(ctx context.Context) (Report, error) {
		return provider.Check(ctx, mint)
	})
}

// Merge combines provider reports conservatively: the lowest (least
// safe) score wins, warnings are unioned by message, and boolean
// trade-safety flags require every provider to agree.
func Merge(reports []Report) Report {
	merged := reports[0]

	seen := make(map[string]bool, len(merged.Warnings))
	for _, w := range merged.Warnings {
		seen[w.Message] = true
	}
	passed := make(map[string]bool, len(merged.PassedChecks))
	for _, c := range merged.PassedChecks {
		passed[c] = true
	}

	for _, r := range reports[1:] {
		if r.Score < merged.Score {
			merged.Score = r.Score
		}
		merged.Honeypot = merged.Honeypot || r.Honeypot
		merged.CanBuy = merged.CanBuy && r.CanBuy
		merged.CanSell = merged.CanSell && r.CanSell
		merged.LiquidityLocked = merged.LiquidityLocked || r.LiquidityLocked

		if merged.LiquidityUSD == 0 {
			merged.LiquidityUSD = r.LiquidityUSD
		}
		if merged.MintAuthority == "" {
			merged.MintAuthority = r.MintAuthority
		}
		if merged.FreezeAuthority == "" {
			merged.FreezeAuthority = r.FreezeAuthority
		}
		if merged.Symbol == "" {
			merged.Symbol = r.Symbol
		}
		if r.HolderCount > merged.HolderCount {
			merged.HolderCount = r.HolderCount
		}

		for _, w := range r.Warnings {
			if !seen[w.Message] {
				seen[w.Message] = true
				merged.Warnings = append(merged.Warnings, w)
			}
		}
		for _, c := range r.PassedChecks {
			if !passed[c] {
				passed[c] = true
				merged.PassedChecks = append(merged.PassedChecks, c)
			}
		}
		merged.Sources = append(merged.Sources, r.Sources...)
	}

	merged.Level = LevelForScore(merged.Score)
	merged.CheckedAt = time.Now()
	return merged
}

// Stats exposes the risk layer counters.
func (s *Scorer) Stats() cache.LayerStats {
	return s.coord.Stats()
}
