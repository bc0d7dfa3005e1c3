package jupiter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dexploarer/banshie-sub001/internal/platform/cache"
	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
)

const usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func quoteBody(inAmount, outAmount uint64) string {
	return fmt.Sprintf(`{
		"inputMint": "%s",
		"inAmount": "%d",
		"outputMint": "%s",
		"outAmount": "%d",
		"otherAmountThreshold": "%d",
		"slippageBps": 50,
		"priceImpactPct": "0.0012",
		"routePlan": [
			{"swapInfo": {"label": "Orca"}, "percent": 60},
			{"swapInfo": {"label": "Raydium"}, "percent": 40}
		],
		"contextSlot": 246812345
	}`, solMint, inAmount, usdcMint, outAmount, outAmount-outAmount/100)
}

func newTestQuoteClient(t *testing.T, baseURL string) *QuoteClient {
	t.Helper()
	store := cache.NewLRUStore[Quote](100, 5*time.Second)

	return NewQuoteClient(QuoteClientConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		Store:   store,
		TTL:     5 * time.Second,
		Retry: resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Multiplier:  2.0,
		},
	})
}

// TestGetQuoteEndToEnd verifies two identical requests inside the TTL
// make one upstream call and return equal quotes
func TestGetQuoteEndToEnd(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		q := r.URL.Query()
		if q.Get("inputMint") != solMint || q.Get("outputMint") != usdcMint {
			t.Errorf("unexpected mints: %s -> %s", q.Get("inputMint"), q.Get("outputMint"))
		}
		if q.Get("amount") != "1000000000" || q.Get("slippageBps") != "50" {
			t.Errorf("unexpected amount/slippage: %s / %s", q.Get("amount"), q.Get("slippageBps"))
		}
		fmt.Fprint(w, quoteBody(1_000_000_000, 150_250_000))
	}))
	defer server.Close()

	client := newTestQuoteClient(t, server.URL)
	req := QuoteRequest{
		InputMint:   solMint,
		OutputMint:  usdcMint,
		Amount:      1_000_000_000,
		SlippageBps: 50,
	}

	first, err := client.GetQuote(context.Background(), req)
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	if first.InAmount != 1_000_000_000 || first.OutAmount != 150_250_000 {
		t.Errorf("unexpected amounts: %+v", first)
	}
	if first.PriceImpactPct != 0.0012 {
		t.Errorf("expected impact 0.0012, got %f", first.PriceImpactPct)
	}
	if len(first.RouteLabels) != 2 || first.RouteLabels[0] != "Orca" || first.RouteLabels[1] != "Raydium" {
		t.Errorf("unexpected route labels: %v", first.RouteLabels)
	}

	second, err := client.GetQuote(context.Background(), req)
	if err != nil {
		t.Fatalf("cached GetQuote failed: %v", err)
	}
	if second.OutAmount != first.OutAmount {
		t.Error("expected identical cached quote")
	}

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 upstream call, got %d", n)
	}

	t.Log("✓ Identical quote requests inside the TTL share one upstream call")
}

// TestGetQuoteDistinctParamsSeparateKeys verifies differing parameters
// do not share cache entries
func TestGetQuoteDistinctParamsSeparateKeys(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, quoteBody(1_000_000_000, 150_000_000))
	}))
	defer server.Close()

	client := newTestQuoteClient(t, server.URL)
	ctx := context.Background()

	base := QuoteRequest{InputMint: solMint, OutputMint: usdcMint, Amount: 1_000_000_000, SlippageBps: 50}
	differentAmount := base
	differentAmount.Amount = 2_000_000_000
	differentSlippage := base
	differentSlippage.SlippageBps = 100

	for _, req := range []QuoteRequest{base, differentAmount, differentSlippage} {
		if _, err := client.GetQuote(ctx, req); err != nil {
			t.Fatalf("GetQuote failed: %v", err)
		}
	}

	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 upstream calls for 3 distinct requests, got %d", n)
	}
}

// TestGetQuoteValidation verifies bad requests never reach upstream
func TestGetQuoteValidation(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := newTestQuoteClient(t, server.URL)
	ctx := context.Background()

	tests := []struct {
		name string
		req  QuoteRequest
	}{
		{"missing input", QuoteRequest{OutputMint: usdcMint, Amount: 1}},
		{"missing output", QuoteRequest{InputMint: solMint, Amount: 1}},
		{"same mints", QuoteRequest{InputMint: solMint, OutputMint: solMint, Amount: 1}},
		{"zero amount", QuoteRequest{InputMint: solMint, OutputMint: usdcMint}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := client.GetQuote(ctx, tt.req); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if atomic.LoadInt32(&calls) != 0 {
		t.Error("validation failures must not reach upstream")
	}
}

// TestGetQuoteMalformedBodyIsTerminal verifies unparseable amounts fail fast
func TestGetQuoteMalformedBodyIsTerminal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"inputMint":"a","inAmount":"not-a-number","outputMint":"b","outAmount":"1","otherAmountThreshold":"1"}`)
	}))
	defer server.Close()

	client := newTestQuoteClient(t, server.URL)

	_, err := client.GetQuote(context.Background(), QuoteRequest{
		InputMint: solMint, OutputMint: usdcMint, Amount: 1, SlippageBps: 1,
	})
	if err == nil {
		t.Fatal("expected error for malformed body")
	}

	var fe *resilience.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if fe.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", fe.StatusCode)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected no retries on malformed body, got %d calls", n)
	}

	t.Log("✓ Malformed 200 bodies are terminal")
}

// TestGetQuoteRateLimited verifies a denied principal fails before
// upstream and the denial surfaces without being retried
func TestGetQuoteRateLimited(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, quoteBody(100, 100))
	}))
	defer server.Close()

	store := cache.NewLRUStore[Quote](100, time.Second)
	limiter := resilience.NewLimiter()

	// Multiple attempts with a tiny delay: a denial that leaked into
	// the retry loop would burn extra limiter checks here.
	client := NewQuoteClient(QuoteClientConfig{
		BaseURL: server.URL,
		Store:   store,
		TTL:     time.Second,
		Limiter: limiter,
		Limits: resilience.Limits{
			RequestsPerMinute: 1,
			BurstCapacity:     1,
		},
		Retry: resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Multiplier:  2.0,
		},
	})
	ctx := context.Background()

	req := QuoteRequest{InputMint: solMint, OutputMint: usdcMint, Amount: 1, SlippageBps: 1}
	if _, err := client.GetQuote(ctx, req); err != nil {
		t.Fatalf("first quote failed: %v", err)
	}

	// Different key so the cache cannot serve it; the bucket is empty
	req.Amount = 2
	_, err := client.GetQuote(ctx, req)
	if !errors.Is(err, resilience.ErrRateLimitExceeded) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected denied request to skip upstream, got %d calls", n)
	}

	// Exactly one allowed check and one denied check; a retried denial
	// would show extra blocked requests.
	stats, ok := limiter.PrincipalStats(providerName + ":quote")
	if !ok {
		t.Fatal("expected limiter stats for the quote principal")
	}
	if stats.TotalRequests != 2 {
		t.Errorf("expected 2 limiter checks, got %d", stats.TotalRequests)
	}
	if stats.BlockedRequests != 1 {
		t.Errorf("expected a single denial, got %d", stats.BlockedRequests)
	}

	t.Log("✓ Rate-limited quote requests surface once, without retries or upstream calls")
}
