// Package solana wraps the Solana RPC node behind the caching and
// resilience layers. Balance reads dedup through the coordinator;
// transaction submission is never cached.
package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/types"

	"github.com/Dexploarer/banshie-sub001/internal/platform/cache"
	"github.com/Dexploarer/banshie-sub001/internal/platform/coordinator"
	"github.com/Dexploarer/banshie-sub001/internal/platform/observability"
	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
)

// Balance is a wallet's native SOL balance snapshot.
type Balance struct {
	Wallet    string    `json:"wallet"`
	Lamports  uint64    `json:"lamports"`
	SOL       float64   `json:"sol"`
	FetchedAt time.Time `json:"fetched_at"`
}

const lamportsPerSOL = 1_000_000_000

// TokenHolding is one SPL token account owned by a wallet.
type TokenHolding struct {
	Mint    string `json:"mint"`
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

// Client is the RPC client used by the portfolio and trading flows.
type Client struct {
	rpc      *client.Client
	coord    *coordinator.Coordinator[Balance]
	sem      *resilience.ConcurrencyLimiter
	retry    resilience.RetryConfig
	ttl      time.Duration
	logger   *observability.Logger
	metrics  *observability.Metrics
	endpoint string
}

// ClientConfig holds Client construction parameters.
type ClientConfig struct {
	Endpoint      string
	MaxConcurrent int64
	BalanceStore  cache.Store[Balance]
	BalanceTTL    time.Duration
	Retry         resilience.RetryConfig
	Logger        *observability.Logger
	Metrics       *observability.Metrics
}

// NewClient creates an RPC client over the given endpoint.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.mainnet-beta.solana.com"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.BalanceTTL <= 0 {
		cfg.BalanceTTL = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	return &Client{
		rpc: client.NewClient(cfg.Endpoint),
		coord: coordinator.New("balances", cfg.BalanceStore, coordinator.Options{
			Retry:   cfg.Retry,
			Logger:  cfg.Logger,
			Metrics: cfg.Metrics,
		}),
		sem:      resilience.NewConcurrencyLimiter(cfg.MaxConcurrent),
		retry:    cfg.Retry,
		ttl:      cfg.BalanceTTL,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		endpoint: cfg.Endpoint,
	}
}

// GetBalance returns a wallet's SOL balance through the balance layer,
// deduplicating concurrent reads of the same wallet.
func (c *Client) GetBalance(ctx context.Context, wallet string) (Balance, error) {
	return c.coord.GetOrFetch(ctx, coordinator.BalanceKey(wallet), c.ttl, func(ctx context.Context) (Balance, error) {
		return c.fetchBalance(ctx, wallet)
	})
}

func (c *Client) fetchBalance(ctx context.Context, wallet string) (Balance, error) {
	var lamports uint64
	err := c.sem.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		var err error
		lamports, err = c.rpc.GetBalance(ctx, wallet)
		c.metrics.RecordUpstreamCall(ctx, "solana", "getBalance", time.Since(start), err)
		if err != nil {
			return &resilience.FetchError{Provider: "solana", Op: "getBalance", Err: err}
		}
		return nil
	})
	if err != nil {
		return Balance{}, err
	}

	return Balance{
		Wallet:    wallet,
		Lamports:  lamports,
		SOL:       float64(lamports) / lamportsPerSOL,
		FetchedAt: time.Now(),
	}, nil
}

// GetTokenHoldings returns all SPL token accounts for a wallet. The
// caller (portfolio fetcher) handles caching; RPC pressure is bounded
// by the shared semaphore.
func (c *Client) GetTokenHoldings(ctx context.Context, wallet string) ([]TokenHolding, error) {
	var holdings []TokenHolding
	err := c.sem.Do(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, c.retry, nil, func(ctx context.Context) error {
			start := time.Now()
			accounts, err := c.rpc.GetTokenAccountsByOwnerByProgram(ctx, wallet, common.TokenProgramID.ToBase58())
			c.metrics.RecordUpstreamCall(ctx, "solana", "getTokenAccountsByOwner", time.Since(start), err)
			if err != nil {
				return &resilience.FetchError{Provider: "solana", Op: "getTokenAccountsByOwner", Err: err}
			}

			holdings = holdings[:0]
			for _, acct := range accounts {
				holdings = append(holdings, TokenHolding{
					Mint:    acct.Mint.ToBase58(),
					Account: acct.PublicKey.ToBase58(),
					Amount:  acct.Amount,
				})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return holdings, nil
}

// SendTransaction submits a signed transaction. Submission bypasses
// every cache: it is a state-changing operation whose result must
// never be replayed to another caller.
func (c *Client) SendTransaction(ctx context.Context, tx types.Transaction) (string, error) {
	var signature string
	err := c.sem.Do(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, c.retry, nil, func(ctx context.Context) error {
			start := time.Now()
			sig, err := c.rpc.SendTransaction(ctx, tx)
			c.metrics.RecordUpstreamCall(ctx, "solana", "sendTransaction", time.Since(start), err)
			if err != nil {
				return &resilience.FetchError{Provider: "solana", Op: "sendTransaction", Err: err}
			}
			signature = sig
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("transaction submission failed: %w", err)
	}

	if c.logger != nil {
		c.logger.LogInfo(ctx, "transaction submitted", "signature", signature)
	}
	return signature, nil
}

// InvalidateBalance force-evicts a wallet's cached balance, used after
// a trade settles.
func (c *Client) InvalidateBalance(ctx context.Context, wallet string) {
	c.coord.Invalidate(ctx, coordinator.BalanceKey(wallet))
}

// Slot returns the current slot, used as a liveness probe.
func (c *Client) Slot(ctx context.Context) (uint64, error) {
	slot, err := c.rpc.GetSlot(ctx)
	if err != nil {
		return 0, &resilience.FetchError{Provider: "solana", Op: "getSlot", Err: err}
	}
	return slot, nil
}

// Stats exposes the balance layer counters.
func (c *Client) Stats() cache.LayerStats {
	return c.coord.Stats()
}
