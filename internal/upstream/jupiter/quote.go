package jupiter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Dexploarer/banshie-sub001/internal/platform/cache"
	"github.com/Dexploarer/banshie-sub001/internal/platform/coordinator"
	"github.com/Dexploarer/banshie-sub001/internal/platform/observability"
	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
)

// QuoteRequest identifies a swap route lookup. Amount is in the input
// mint's raw units.
type QuoteRequest struct {
	InputMint        string
	OutputMint       string
	Amount           uint64
	SlippageBps      uint16
	OnlyDirectRoutes bool
}

// Validate rejects requests that cannot form a cache key or a valid
// upstream query.
func (r QuoteRequest) Validate() error {
	if r.InputMint == "" || r.OutputMint == "" {
		return fmt.Errorf("input and output mints are required")
	}
	if r.InputMint == r.OutputMint {
		return fmt.Errorf("input and output mints must differ")
	}
	if r.Amount == 0 {
		return fmt.Errorf("amount must be > 0")
	}
	return nil
}

// Quote is a parsed Jupiter v6 swap quote.
type Quote struct {
	InputMint            string    `json:"input_mint"`
	OutputMint           string    `json:"output_mint"`
	InAmount             uint64    `json:"in_amount"`
	OutAmount            uint64    `json:"out_amount"`
	OtherAmountThreshold uint64    `json:"other_amount_threshold"`
	SlippageBps          uint16    `json:"slippage_bps"`
	PriceImpactPct       float64   `json:"price_impact_pct"`
	RouteLabels          []string  `json:"route_labels"`
	ContextSlot          uint64    `json:"context_slot"`
	FetchedAt            time.Time `json:"fetched_at"`
}

// quoteResponse mirrors the v6 /quote wire format (amounts as strings).
type quoteResponse struct {
	InputMint            string      `json:"inputMint"`
	InAmount             string      `json:"inAmount"`
	OutputMint           string      `json:"outputMint"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
	SlippageBps          uint16      `json:"slippageBps"`
	PriceImpactPct       string      `json:"priceImpactPct"`
	RoutePlan            []routePlan `json:"routePlan"`
	ContextSlot          uint64      `json:"contextSlot"`
}

type routePlan struct {
	SwapInfo struct {
		Label string `json:"label"`
	} `json:"swapInfo"`
	Percent float64 `json:"percent"`
}

// QuoteClient fetches swap quotes from the Jupiter v6 API. Quotes are
// short-lived and cached in an LRU layer since route permutations are
// effectively unbounded.
type QuoteClient struct {
	client  *http.Client
	baseURL string
	coord   *coordinator.Coordinator[Quote]
	limiter *resilience.Limiter
	limits  resilience.Limits
	cb      *resilience.CircuitBreaker
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// QuoteClientConfig holds QuoteClient construction parameters.
type QuoteClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Store   cache.Store[Quote]
	TTL     time.Duration
	Limiter *resilience.Limiter
	Limits  resilience.Limits
	Retry   resilience.RetryConfig
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewQuoteClient creates a Jupiter quote client over the given cache
// layer.
func NewQuoteClient(cfg QuoteClientConfig) *QuoteClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://quote-api.jup.ag/v6"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}
	if cfg.Limits.RequestsPerMinute == 0 {
		cfg.Limits = resilience.MarketDataLimits()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "jupiter-quote",
		OnStateChange: func(from, to resilience.State) {
			cfg.Metrics.SetCircuitState(context.Background(), "jupiter-quote", int64(to))
		},
	})

	return &QuoteClient{
		client:  newHTTPClient(cfg.Timeout),
		baseURL: cfg.BaseURL,
		coord: coordinator.New("jupiter_quotes", cfg.Store, coordinator.Options{
			Retry:   cfg.Retry,
			Logger:  cfg.Logger,
			Metrics: cfg.Metrics,
		}),
		limiter: cfg.Limiter,
		limits:  cfg.Limits,
		cb:      cb,
		ttl:     cfg.TTL,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// GetQuote returns a swap quote, deduplicating concurrent lookups of
// the same (inputMint, outputMint, amount, slippageBps) fingerprint.
func (q *QuoteClient) GetQuote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if err := req.Validate(); err != nil {
		return Quote{}, fmt.Errorf("invalid quote request: %w", err)
	}

	key := coordinator.QuoteKey(req.InputMint, req.OutputMint, req.Amount, req.SlippageBps)
	return q.coord.GetOrFetch(ctx, key, q.ttl, func(ctx context.Context) (Quote, error) {
		return q.fetchQuote(ctx, req)
	})
}

func (q *QuoteClient) fetchQuote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if q.limiter != nil {
		if err := q.limiter.Check(providerName+":quote", q.limits); err != nil {
			return Quote{}, fmt.Errorf("quote rate limit: %w", err)
		}
	}

	return resilience.ExecuteWithResult(q.cb, ctx, func(ctx context.Context) (Quote, error) {
		start := time.Now()
		quote, err := q.doFetch(ctx, req)
		q.metrics.RecordUpstreamCall(ctx, providerName, "quote", time.Since(start), err)
		return quote, err
	})
}

func (q *QuoteClient) doFetch(ctx context.Context, req QuoteRequest) (Quote, error) {
	params := url.Values{}
	params.Set("inputMint", req.InputMint)
	params.Set("outputMint", req.OutputMint)
	params.Set("amount", strconv.FormatUint(req.Amount, 10))
	params.Set("slippageBps", strconv.FormatUint(uint64(req.SlippageBps), 10))
	if req.OnlyDirectRoutes {
		params.Set("onlyDirectRoutes", "true")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/quote?%s", q.baseURL, params.Encode()), nil)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to create request: %w", err)
	}

	var resp quoteResponse
	if err := getJSON(q.client, httpReq, "quote", &resp); err != nil {
		return Quote{}, err
	}

	quote, err := parseQuote(&resp)
	if err != nil {
		return Quote{}, &resilience.FetchError{
			Provider: providerName,
			Op:       "quote",
			// Malformed body from a 200 response, treat as upstream bug
			// rather than a transient condition.
			StatusCode: http.StatusUnprocessableEntity,
			Err:        err,
		}
	}

	if q.logger != nil {
		q.logger.LogDebug(ctx, "fetched swap quote",
			"input_mint", quote.InputMint,
			"output_mint", quote.OutputMint,
			"in_amount", quote.InAmount,
			"out_amount", quote.OutAmount,
			"price_impact_pct", quote.PriceImpactPct,
		)
	}

	return quote, nil
}

func parseQuote(resp *quoteResponse) (Quote, error) {
	inAmount, err := strconv.ParseUint(resp.InAmount, 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("invalid inAmount %q: %w", resp.InAmount, err)
	}
	outAmount, err := strconv.ParseUint(resp.OutAmount, 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("invalid outAmount %q: %w", resp.OutAmount, err)
	}
	threshold, err := strconv.ParseUint(resp.OtherAmountThreshold, 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("invalid otherAmountThreshold %q: %w", resp.OtherAmountThreshold, err)
	}

	var impact float64
	if resp.PriceImpactPct != "" {
		impact, err = strconv.ParseFloat(resp.PriceImpactPct, 64)
		if err != nil {
			return Quote{}, fmt.Errorf("invalid priceImpactPct %q: %w", resp.PriceImpactPct, err)
		}
	}

	labels := make([]string, 0, len(resp.RoutePlan))
	for _, step := range resp.RoutePlan {
		labels = append(labels, step.SwapInfo.Label)
	}

	return Quote{
		InputMint:            resp.InputMint,
		OutputMint:           resp.OutputMint,
		InAmount:             inAmount,
		OutAmount:            outAmount,
		OtherAmountThreshold: threshold,
		SlippageBps:          resp.SlippageBps,
		PriceImpactPct:       impact,
		RouteLabels:          labels,
		ContextSlot:          resp.ContextSlot,
		FetchedAt:            time.Now(),
	}, nil
}

// Stats exposes the quote layer counters.
func (q *QuoteClient) Stats() cache.LayerStats {
	return q.coord.Stats()
}
