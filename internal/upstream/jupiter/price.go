package jupiter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Dexploarer/banshie-sub001/internal/platform/cache"
	"github.com/Dexploarer/banshie-sub001/internal/platform/coordinator"
	"github.com/Dexploarer/banshie-sub001/internal/platform/observability"
	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
)

// Price is the USD price of a token mint as reported by the Jupiter
// Price API V3.
type Price struct {
	Mint           string    `json:"mint"`
	USDPrice       float64   `json:"usd_price"`
	BlockID        uint64    `json:"block_id"`
	Decimals       uint8     `json:"decimals"`
	PriceChange24h float64   `json:"price_change_24h"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// priceData mirrors one entry of the price/v3 response.
type priceData struct {
	USDPrice       float64 `json:"usdPrice"`
	BlockID        uint64  `json:"blockId"`
	Decimals       uint8   `json:"decimals"`
	PriceChange24h float64 `json:"priceChange24h"`
}

// PriceClient fetches token prices from Jupiter Price API V3.
type PriceClient struct {
	client  *http.Client
	baseURL string
	coord   *coordinator.Coordinator[Price]
	limiter *resilience.Limiter
	limits  resilience.Limits
	cb      *resilience.CircuitBreaker
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics

	// warmMints are pre-fetched at startup (registry tokens).
	warmMints []string
}

// PriceClientConfig holds PriceClient construction parameters.
type PriceClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	Store     cache.Store[Price]
	TTL       time.Duration
	Limiter   *resilience.Limiter
	Limits    resilience.Limits
	Retry     resilience.RetryConfig
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	WarmMints []string
}

// NewPriceClient creates a Jupiter price client over the given cache
// layer.
func NewPriceClient(cfg PriceClientConfig) *PriceClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://lite-api.jup.ag/price/v3"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Limits.RequestsPerMinute == 0 {
		cfg.Limits = resilience.MarketDataLimits()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "jupiter-price",
		OnStateChange: func(from, to resilience.State) {
			cfg.Metrics.SetCircuitState(context.Background(), "jupiter-price", int64(to))
		},
	})

	return &PriceClient{
		client:  newHTTPClient(cfg.Timeout),
		baseURL: cfg.BaseURL,
		coord: coordinator.New("token_prices", cfg.Store, coordinator.Options{
			Retry:   cfg.Retry,
			Logger:  cfg.Logger,
			Metrics: cfg.Metrics,
		}),
		limiter:   cfg.Limiter,
		limits:    cfg.Limits,
		cb:        cb,
		ttl:       cfg.TTL,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		warmMints: cfg.WarmMints,
	}
}

// GetPrice returns the USD price for a mint, deduplicating concurrent
// lookups and serving cached values inside the layer TTL.
func (p *PriceClient) GetPrice(ctx context.Context, mint string) (Price, error) {
	return p.coord.GetOrFetch(ctx, coordinator.PriceKey(mint), p.ttl, func(ctx context.Context) (Price, error) {
		return p.fetchPrice(ctx, mint)
	})
}

// GetPrices returns prices for several mints. Each mint shares the
// cache and dedup behavior of GetPrice; a mint that fails does not
// fail the rest.
func (p *PriceClient) GetPrices(ctx context.Context, mints []string) (map[string]Price, error) {
	prices := make(map[string]Price, len(mints))
	var lastErr error
	for _, mint := range mints {
		price, err := p.GetPrice(ctx, mint)
		if err != nil {
			lastErr = err
			continue
		}
		prices[mint] = price
	}
	if len(prices) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all price lookups failed: %w", lastErr)
	}
	return prices, nil
}

// Invalidate force-evicts a mint's cached price.
func (p *PriceClient) Invalidate(ctx context.Context, mint string) {
	p.coord.Invalidate(ctx, coordinator.PriceKey(mint))
}

func (p *PriceClient) fetchPrice(ctx context.Context, mint string) (Price, error) {
	if p.limiter != nil {
		if err := p.limiter.Check(providerName+":price", p.limits); err != nil {
			return Price{}, fmt.Errorf("price rate limit: %w", err)
		}
	}

	return resilience.ExecuteWithResult(p.cb, ctx, func(ctx context.Context) (Price, error) {
		start := time.Now()
		price, err := p.doFetch(ctx, mint)
		p.metrics.RecordUpstreamCall(ctx, providerName, "price", time.Since(start), err)
		return price, err
	})
}

func (p *PriceClient) doFetch(ctx context.Context, mint string) (Price, error) {
	url := fmt.Sprintf("%s?ids=%s", p.baseURL, mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Price{}, fmt.Errorf("failed to create request: %w", err)
	}

	var resp map[string]priceData
	if err := getJSON(p.client, req, "price", &resp); err != nil {
		return Price{}, err
	}

	data, ok := resp[mint]
	if !ok {
		return Price{}, &resilience.FetchError{
			Provider:   providerName,
			Op:         "price",
			StatusCode: http.StatusNotFound,
			Err:        fmt.Errorf("price not found for token %s", mint),
		}
	}

	if p.logger != nil {
		p.logger.LogDebug(ctx, "fetched token price",
			"mint", mint, "usd_price", data.USDPrice, "block_id", data.BlockID)
	}

	return Price{
		Mint:           mint,
		USDPrice:       data.USDPrice,
		BlockID:        data.BlockID,
		Decimals:       data.Decimals,
		PriceChange24h: data.PriceChange24h,
		FetchedAt:      time.Now(),
	}, nil
}

// Name identifies the provider in warmup logging.
func (p *PriceClient) Name() string {
	return "jupiter-price"
}

// Warmup pre-populates the price layer with the registry tokens. A
// single failed mint is logged and skipped.
func (p *PriceClient) Warmup(ctx context.Context) error {
	for _, mint := range p.warmMints {
		if _, err := p.GetPrice(ctx, mint); err != nil {
			if p.logger != nil {
				p.logger.LogWarn(ctx, "failed to warm price", "mint", mint, "error", err)
			}
		}
	}
	return nil
}

// Stats exposes the price layer counters.
func (p *PriceClient) Stats() cache.LayerStats {
	return p.coord.Stats()
}
