package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dexploarer/banshie-sub001/internal/platform/observability"
)

// WarmupProvider pre-populates a cache layer with the data it owns
// (e.g. prices for the configured token registry). Implementations
// must be idempotent.
type WarmupProvider interface {
	// Name identifies the provider in logs and results.
	Name() string

	// Warmup fetches and caches the provider's initial data.
	Warmup(ctx context.Context) error
}

// WarmupConfig configures the startup warming pass.
type WarmupConfig struct {
	// Timeout bounds the whole pass.
	Timeout time.Duration

	// MaxParallel caps concurrently warming providers; <=0 means
	// unbounded.
	MaxParallel int
}

// DefaultWarmupConfig returns sensible defaults for cache warming.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Timeout:     30 * time.Second,
		MaxParallel: 4,
	}
}

// WarmupResult is the outcome of warming a single provider.
type WarmupResult struct {
	Provider string
	Duration time.Duration
	Err      error
}

// WarmupResults aggregates a warming pass.
type WarmupResults struct {
	Results   []WarmupResult
	TotalTime time.Duration
	Errors    int
}

// HasErrors reports whether any provider failed.
func (wr *WarmupResults) HasErrors() bool {
	return wr.Errors > 0
}

// Warmer runs registered warmup providers at startup. A failing
// provider never fails the pass; the bot starts with cold layers for
// whatever could not be warmed.
type Warmer struct {
	providers []WarmupProvider
	logger    *observability.Logger
	config    WarmupConfig
}

// NewWarmer creates a cache warmer.
func NewWarmer(logger *observability.Logger, config WarmupConfig) *Warmer {
	return &Warmer{
		providers: make([]WarmupProvider, 0),
		logger:    logger,
		config:    config,
	}
}

// RegisterProvider adds a warmup provider.
func (w *Warmer) RegisterProvider(provider WarmupProvider) {
	w.providers = append(w.providers, provider)
}

// Warmup executes all registered providers, bounded by MaxParallel,
// and returns aggregate results.
func (w *Warmer) Warmup(ctx context.Context) *WarmupResults {
	start := time.Now()
	results := &WarmupResults{
		Results: make([]WarmupResult, 0, len(w.providers)),
	}

	if len(w.providers) == 0 {
		results.TotalTime = time.Since(start)
		return results
	}

	warmupCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(warmupCtx)
	if w.config.MaxParallel > 0 {
		g.SetLimit(w.config.MaxParallel)
	}

	for _, provider := range w.providers {
		provider := provider
		g.Go(func() error {
			r := w.warmupProvider(gctx, provider)
			mu.Lock()
			results.Results = append(results.Results, r)
			mu.Unlock()
			// Warming is best-effort; never cancel sibling providers.
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results.Results {
		if r.Err != nil {
			results.Errors++
		}
	}
	results.TotalTime = time.Since(start)

	if w.logger != nil {
		if results.Errors > 0 {
			w.logger.LogWarn(ctx, fmt.Sprintf("Cache warmup completed with %d/%d errors in %v",
				results.Errors, len(w.providers), results.TotalTime))
		} else {
			w.logger.LogInfo(ctx, fmt.Sprintf("Cache warmup completed successfully (%d providers) in %v",
				len(w.providers), results.TotalTime))
		}
	}

	return results
}

// warmupProvider warms a single provider and returns the result.
func (w *Warmer) warmupProvider(ctx context.Context, provider WarmupProvider) WarmupResult {
	start := time.Now()
	name := provider.Name()

	if w.logger != nil {
		w.logger.LogDebug(ctx, fmt.Sprintf("Warming cache: %s", name))
	}

	err := provider.Warmup(ctx)
	duration := time.Since(start)

	if w.logger != nil {
		if err != nil {
			w.logger.LogWarn(ctx, fmt.Sprintf("Cache warmup failed for %s: %v (took %v)", name, err, duration))
		} else {
			w.logger.LogDebug(ctx, fmt.Sprintf("Cache warmup completed for %s in %v", name, duration))
		}
	}

	return WarmupResult{Provider: name, Duration: duration, Err: err}
}
