package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Dexploarer/banshie-sub001/internal/monitor"
	"github.com/Dexploarer/banshie-sub001/internal/platform/cache"
	"github.com/Dexploarer/banshie-sub001/internal/platform/config"
	"github.com/Dexploarer/banshie-sub001/internal/platform/coordinator"
	"github.com/Dexploarer/banshie-sub001/internal/platform/observability"
	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
	"github.com/Dexploarer/banshie-sub001/internal/portfolio"
	"github.com/Dexploarer/banshie-sub001/internal/upstream/jupiter"
	"github.com/Dexploarer/banshie-sub001/internal/upstream/security"
	"github.com/Dexploarer/banshie-sub001/internal/upstream/solana"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	log.Println("Loading configuration...")
	cfg := config.MustLoad("config.yaml")

	// Setup observability (foundational - must be first)
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics("trading-bot", cfg.Observability.Metrics.Enabled)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	tracer, err := observability.NewTracerProvider(ctx, "trading-bot", cfg.Observability.Tracing.Endpoint, cfg.Observability.Tracing.Enabled)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer tracer.Shutdown(ctx)

	logger.Info("observability setup complete")

	// Optional shared Redis pool for the L2 price tier
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.LogError(ctx, "failed to connect to Redis", err)
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
	}

	// Cache layers. Prices get a Redis L2 when available so restarts
	// and replicas share the freshest quotes; everything else is
	// wallet-scoped or too short-lived to benefit.
	priceStore := newPriceStore(cfg, redisClient)
	quoteStore := cache.NewLRUStore[jupiter.Quote](cfg.Cache.JupiterQuotes.MaxCapacity, cfg.Cache.JupiterQuotes.TTL)
	balanceStore := cache.NewTTLStore[solana.Balance](cfg.Cache.Balances.MaxCapacity, cfg.Cache.Balances.TTL, cfg.Cache.Balances.CleanupInterval)
	positionStore := cache.NewTTLStore[portfolio.Positions](cfg.Cache.Positions.MaxCapacity, cfg.Cache.Positions.TTL, cfg.Cache.Positions.CleanupInterval)
	rebateStore := cache.NewTTLStore[portfolio.RebateStats](cfg.Cache.UserRebates.MaxCapacity, cfg.Cache.UserRebates.TTL, cfg.Cache.UserRebates.CleanupInterval)
	riskStore := cache.NewTTLStore[security.Report](cfg.Cache.RiskReports.MaxCapacity, cfg.Cache.RiskReports.TTL, cfg.Cache.RiskReports.CleanupInterval)

	manager := cache.NewManager(logger)
	manager.Register("token_prices", priceStore)
	manager.Register("jupiter_quotes", quoteStore)
	manager.Register("user_rebates", rebateStore)
	manager.Register("risk_reports", riskStore)
	manager.RegisterUserScoped("balances", balanceStore, coordinator.BalanceKey)
	manager.RegisterUserScoped("positions", positionStore, coordinator.PositionsKey)
	defer manager.Close()

	// Shared rate limiter; operation classes come from config
	limiter := resilience.NewLimiter()
	retryCfg := toRetry(cfg.Retry)

	// Upstream clients
	logger.Info("creating upstream clients...")

	priceClient := jupiter.NewPriceClient(jupiter.PriceClientConfig{
		BaseURL:   cfg.Jupiter.PriceBaseURL,
		Timeout:   cfg.Jupiter.Timeout,
		Store:     priceStore,
		TTL:       cfg.Cache.TokenPrices.TTL,
		Limiter:   limiter,
		Limits:    toLimits(cfg.RateLimits.MarketData),
		Retry:     retryCfg,
		Logger:    logger,
		Metrics:   metrics,
		WarmMints: config.RegisteredMints(),
	})

	quoteClient := jupiter.NewQuoteClient(jupiter.QuoteClientConfig{
		BaseURL: cfg.Jupiter.QuoteBaseURL,
		Timeout: cfg.Jupiter.Timeout,
		Store:   quoteStore,
		TTL:     cfg.Cache.JupiterQuotes.TTL,
		Limiter: limiter,
		Limits:  toLimits(cfg.RateLimits.MarketData),
		Retry:   retryCfg,
		Logger:  logger,
		Metrics: metrics,
	})

	scorer := security.NewScorer(security.ScorerConfig{
		Providers: []security.Provider{
			security.NewGoPlusProvider(security.GoPlusConfig{
				BaseURL: cfg.Security.GoPlusBaseURL,
				APIKey:  os.Getenv("GOPLUS_API_KEY"),
				Timeout: cfg.Security.Timeout,
				Logger:  logger,
				Metrics: metrics,
			}),
			security.NewRugCheckProvider(security.RugCheckConfig{
				BaseURL: cfg.Security.RugCheckBaseURL,
				Timeout: cfg.Security.Timeout,
				Logger:  logger,
				Metrics: metrics,
			}),
		},
		Store:   riskStore,
		TTL:     cfg.Cache.RiskReports.TTL,
		Limiter: limiter,
		Limits:  toLimits(cfg.RateLimits.MarketData),
		Retry:   retryCfg,
		Logger:  logger,
		Metrics: metrics,
	})

	chainClient := solana.NewClient(solana.ClientConfig{
		Endpoint:      cfg.Solana.RPCEndpoint,
		MaxConcurrent: cfg.Solana.MaxConcurrent,
		BalanceStore:  balanceStore,
		BalanceTTL:    cfg.Cache.Balances.TTL,
		Retry:         retryCfg,
		Logger:        logger,
		Metrics:       metrics,
	})

	fetcher := portfolio.NewFetcher(portfolio.FetcherConfig{
		Chain:   chainClient,
		Prices:  priceClient,
		Store:   positionStore,
		TTL:     cfg.Cache.Positions.TTL,
		Manager: manager,
		Limiter: limiter,
		Limits:  toLimits(cfg.RateLimits.Portfolio),
		Retry:   retryCfg,
		Logger:  logger,
		Metrics: metrics,
	})

	rebates := portfolio.NewRebateTracker(nil, rebateStore, cfg.Cache.UserRebates.TTL, retryCfg, logger, metrics)

	// Warm the price layer with the registry tokens
	warmer := cache.NewWarmer(logger, cache.DefaultWarmupConfig())
	warmer.RegisterProvider(priceClient)
	if results := warmer.Warmup(ctx); results.HasErrors() {
		logger.Warn("cache warming completed with errors")
	}

	// Health monitoring
	mon := monitor.New(manager, limiter, monitor.Thresholds{
		HitRateWarn:     cfg.Monitor.HitRateThreshold,
		MinSamples:      cfg.Monitor.MinSamples,
		UtilizationHigh: cfg.Monitor.UtilizationHigh,
		BlockRateWarn:   cfg.Monitor.BlockRateWarn,
	}, logger, metrics)
	if err := mon.Start(cfg.Monitor.SampleInterval); err != nil {
		logger.LogError(ctx, "failed to start health monitor", err)
		log.Fatalf("Failed to start health monitor: %v", err)
	}
	defer mon.Stop()

	// HTTP server: metrics, health, and the data API the chat layer
	// talks to
	server := newServer(cfg.HTTP.Port, serverDeps{
		metrics:   metrics,
		monitor:   mon,
		prices:    priceClient,
		quotes:    quoteClient,
		scorer:    scorer,
		portfolio: fetcher,
		rebates:   rebates,
		logger:    logger,
	})

	go func() {
		logger.Info("HTTP server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError(ctx, "HTTP server error", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutdown signal received, gracefully stopping...")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.LogError(shutdownCtx, "HTTP server shutdown failed", err)
	}

	logger.Info("application stopped")
}

// newPriceStore builds the token price layer: memory-only, or layered
// over Redis when configured.
func newPriceStore(cfg *config.Config, redisClient *redis.Client) cache.Store[jupiter.Price] {
	l1 := cache.NewTTLStore[jupiter.Price](cfg.Cache.TokenPrices.MaxCapacity, cfg.Cache.TokenPrices.TTL, cfg.Cache.TokenPrices.CleanupInterval)
	if redisClient == nil {
		return l1
	}
	l2 := cache.NewRedisStoreFromClient[jupiter.Price](redisClient, "price", cfg.Cache.TokenPrices.TTL)
	return cache.NewLayered[jupiter.Price](l1, l2)
}

func toLimits(c config.RateLimitClassConfig) resilience.Limits {
	return resilience.Limits{
		RequestsPerMinute: c.RequestsPerMinute,
		RequestsPerHour:   c.RequestsPerHour,
		RequestsPerDay:    c.RequestsPerDay,
		BurstCapacity:     c.BurstCapacity,
		Cooldown:          c.Cooldown,
	}
}

func toRetry(c config.RetryConfig) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
		Multiplier:  c.Multiplier,
		Jitter:      c.Jitter,
	}
}

// serverDeps bundles what the HTTP handlers need.
type serverDeps struct {
	metrics   *observability.Metrics
	monitor   *monitor.Monitor
	prices    *jupiter.PriceClient
	quotes    *jupiter.QuoteClient
	scorer    *security.Scorer
	portfolio *portfolio.Fetcher
	rebates   *portfolio.RebateTracker
	logger    *observability.Logger
}

func newServer(port int, deps serverDeps) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", deps.metrics.Handler())
	mux.Handle("/healthz", deps.monitor.Handler())

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ready"}`))
	})

	mux.HandleFunc("/v1/price", func(w http.ResponseWriter, r *http.Request) {
		mint := r.URL.Query().Get("mint")
		if mint == "" {
			httpError(w, http.StatusBadRequest, "mint is required")
			return
		}
		price, err := deps.prices.GetPrice(r.Context(), mint)
		writeResult(w, deps.logger, price, err)
	})

	mux.HandleFunc("/v1/quote", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		amount, err := strconv.ParseUint(q.Get("amount"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid amount")
			return
		}
		slippage, err := strconv.ParseUint(q.Get("slippageBps"), 10, 16)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid slippageBps")
			return
		}
		quote, err := deps.quotes.GetQuote(r.Context(), jupiter.QuoteRequest{
			InputMint:   q.Get("inputMint"),
			OutputMint:  q.Get("outputMint"),
			Amount:      amount,
			SlippageBps: uint16(slippage),
		})
		writeResult(w, deps.logger, quote, err)
	})

	mux.HandleFunc("/v1/risk", func(w http.ResponseWriter, r *http.Request) {
		mint := r.URL.Query().Get("mint")
		if mint == "" {
			httpError(w, http.StatusBadRequest, "mint is required")
			return
		}
		report, err := deps.scorer.Analyze(r.Context(), mint)
		writeResult(w, deps.logger, report, err)
	})

	mux.HandleFunc("/v1/portfolio", func(w http.ResponseWriter, r *http.Request) {
		wallet := r.URL.Query().Get("wallet")
		if wallet == "" {
			httpError(w, http.StatusBadRequest, "wallet is required")
			return
		}
		positions, err := deps.portfolio.GetPositions(r.Context(), wallet)
		writeResult(w, deps.logger, positions, err)
	})

	mux.HandleFunc("/v1/rebates", func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("user")
		if user == "" {
			httpError(w, http.StatusBadRequest, "user is required")
			return
		}
		stats, err := deps.rebates.Get(r.Context(), user)
		writeResult(w, deps.logger, stats, err)
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

func writeResult(w http.ResponseWriter, logger *observability.Logger, result any, err error) {
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, resilience.ErrRateLimitExceeded) {
			status = http.StatusTooManyRequests
		}
		httpError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.LogError(context.Background(), "failed to encode response", err)
	}
}

func httpError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
