// Package portfolio assembles wallet holdings from chain reads and
// price lookups, served through the balance and position cache layers.
package portfolio

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Dexploarer/banshie-sub001/internal/platform/cache"
	"github.com/Dexploarer/banshie-sub001/internal/platform/config"
	"github.com/Dexploarer/banshie-sub001/internal/platform/coordinator"
	"github.com/Dexploarer/banshie-sub001/internal/platform/observability"
	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
	"github.com/Dexploarer/banshie-sub001/internal/upstream/jupiter"
	"github.com/Dexploarer/banshie-sub001/internal/upstream/solana"
)

const solMint = "So11111111111111111111111111111111111111112"

// Position is one priced holding in a wallet.
type Position struct {
	Mint      string  `json:"mint"`
	Symbol    string  `json:"symbol"`
	RawAmount uint64  `json:"raw_amount"`
	Decimals  uint8   `json:"decimals"`
	Balance   float64 `json:"balance"`
	PriceUSD  float64 `json:"price_usd"`
	ValueUSD  float64 `json:"value_usd"`
}

// Positions is a wallet's full holding snapshot.
type Positions struct {
	Wallet        string     `json:"wallet"`
	Holdings      []Position `json:"holdings"`
	TotalValueUSD float64    `json:"total_value_usd"`
	FetchedAt     time.Time  `json:"fetched_at"`
}

// Fetcher reads wallet holdings through the cache layers. Positions
// for the same wallet dedup into one chain read per TTL window.
type Fetcher struct {
	chain   *solana.Client
	prices  *jupiter.PriceClient
	coord   *coordinator.Coordinator[Positions]
	manager *cache.Manager
	limiter *resilience.Limiter
	limits  resilience.Limits
	ttl     time.Duration
	logger  *observability.Logger

	// mintInfo resolves registry metadata by mint address.
	mintInfo map[string]config.TokenInfo
}

// FetcherConfig holds Fetcher construction parameters.
type FetcherConfig struct {
	Chain   *solana.Client
	Prices  *jupiter.PriceClient
	Store   cache.Store[Positions]
	TTL     time.Duration
	Manager *cache.Manager
	Limiter *resilience.Limiter
	Limits  resilience.Limits
	Retry   resilience.RetryConfig
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewFetcher creates a portfolio fetcher over the position layer.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Second
	}
	if cfg.Limits.RequestsPerMinute == 0 {
		cfg.Limits = resilience.PortfolioLimits()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	mintInfo := make(map[string]config.TokenInfo, len(config.TokenRegistry))
	for _, info := range config.TokenRegistry {
		mintInfo[info.Mint] = info
	}

	return &Fetcher{
		chain:  cfg.Chain,
		prices: cfg.Prices,
		coord: coordinator.New("positions", cfg.Store, coordinator.Options{
			Retry:   cfg.Retry,
			Logger:  cfg.Logger,
			Metrics: cfg.Metrics,
		}),
		manager:  cfg.Manager,
		limiter:  cfg.Limiter,
		limits:   cfg.Limits,
		ttl:      cfg.TTL,
		logger:   cfg.Logger,
		mintInfo: mintInfo,
	}
}

// GetBalance returns the wallet's SOL balance. The principal for rate
// limiting is the wallet itself, mirroring per-user command limits.
func (f *Fetcher) GetBalance(ctx context.Context, wallet string) (solana.Balance, error) {
	if f.limiter != nil {
		if err := f.limiter.Check(wallet, f.limits); err != nil {
			return solana.Balance{}, fmt.Errorf("portfolio rate limit: %w", err)
		}
	}
	return f.chain.GetBalance(ctx, wallet)
}

// GetPositions returns the wallet's priced holdings through the
// position layer.
func (f *Fetcher) GetPositions(ctx context.Context, wallet string) (Positions, error) {
	if f.limiter != nil {
		if err := f.limiter.Check(wallet, f.limits); err != nil {
			return Positions{}, fmt.Errorf("portfolio rate limit: %w", err)
		}
	}

	return f.coord.GetOrFetch(ctx, coordinator.PositionsKey(wallet), f.ttl, func(ctx context.Context) (Positions, error) {
		return f.fetchPositions(ctx, wallet)
	})
}

func (f *Fetcher) fetchPositions(ctx context.Context, wallet string) (Positions, error) {
	snapshot := Positions{Wallet: wallet}

	balance, err := f.chain.GetBalance(ctx, wallet)
	if err != nil {
		return Positions{}, fmt.Errorf("failed to read SOL balance: %w", err)
	}

	holdings, err := f.chain.GetTokenHoldings(ctx, wallet)
	if err != nil {
		return Positions{}, fmt.Errorf("failed to read token holdings: %w", err)
	}

	if balance.Lamports > 0 {
		pos := Position{
			Mint:      solMint,
			Symbol:    "SOL",
			RawAmount: balance.Lamports,
			Decimals:  9,
			Balance:   balance.SOL,
		}
		if price, err := f.prices.GetPrice(ctx, solMint); err == nil {
			pos.PriceUSD = price.USDPrice
			pos.ValueUSD = pos.Balance * price.USDPrice
		}
		snapshot.Holdings = append(snapshot.Holdings, pos)
		snapshot.TotalValueUSD += pos.ValueUSD
	}

	for _, h := range holdings {
		if h.Amount == 0 {
			continue
		}

		pos := Position{
			Mint:      h.Mint,
			RawAmount: h.Amount,
		}
		if info, ok := f.mintInfo[h.Mint]; ok {
			pos.Symbol = info.Symbol
			pos.Decimals = uint8(info.Decimals)
		}

		// A failed price lookup keeps the holding with zero value
		// rather than failing the whole snapshot.
		price, err := f.prices.GetPrice(ctx, h.Mint)
		if err == nil {
			if pos.Decimals == 0 {
				pos.Decimals = price.Decimals
			}
			pos.PriceUSD = price.USDPrice
		} else if f.logger != nil {
			f.logger.LogDebug(ctx, "price unavailable for holding",
				"mint", h.Mint, "error", err)
		}

		if pos.Decimals > 0 {
			pos.Balance = float64(h.Amount) / math.Pow10(int(pos.Decimals))
			pos.ValueUSD = pos.Balance * pos.PriceUSD
		}

		snapshot.Holdings = append(snapshot.Holdings, pos)
		snapshot.TotalValueUSD += pos.ValueUSD
	}

	snapshot.FetchedAt = time.Now()
	return snapshot, nil
}

// OnTradeCompleted force-evicts the wallet's balance and position
// entries so the next read reflects the settled trade. Price and
// quote layers are untouched.
func (f *Fetcher) OnTradeCompleted(ctx context.Context, wallet string) {
	f.manager.InvalidateUser(ctx, wallet)
	if f.logger != nil {
		f.logger.LogInfo(ctx, "invalidated user caches after trade", "wallet", wallet)
	}
}

// Stats exposes the position layer counters.
func (f *Fetcher) Stats() cache.LayerStats {
	return f.coord.Stats()
}
