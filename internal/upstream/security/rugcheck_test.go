package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
)

func rugCheckServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(server.Close)
	return server
}

func TestRugCheckCleanToken(t *testing.T) {
	const mint = "So11111111111111111111111111111111111111112"

	server := rugCheckServer(t, func(w http.ResponseWriter, r *http.Request) {
		wantPath := fmt.Sprintf("/tokens/%s/report", mint)
		if r.URL.Path != wantPath {
			t.Errorf("expected path %s, got %s", wantPath, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"token_address": mint,
				"token_symbol":  "SOL",
				"score":         92.0,
				"checks": []map[string]any{
					{"name": "mint_authority", "status": "pass"},
					{"name": "liquidity_locked", "status": "pass"},
				},
				"liquidity": map[string]any{
					"total_liquidity_usd": 5_000_000.0,
					"is_locked":           true,
				},
				"trading": map[string]any{
					"can_buy":  true,
					"can_sell": true,
					"honeypot": false,
				},
			},
		})
	})

	provider := NewRugCheckProvider(RugCheckConfig{BaseURL: server.URL})
	report, err := provider.Check(context.Background(), mint)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if report.Score != 92 {
		t.Errorf("expected score 92, got %d", report.Score)
	}
	if report.Level != RiskVeryLow {
		t.Errorf("expected RiskVeryLow, got %v", report.Level)
	}
	if report.Symbol != "SOL" {
		t.Errorf("expected symbol SOL, got %q", report.Symbol)
	}
	if report.LiquidityUSD != 5_000_000 || !report.LiquidityLocked {
		t.Errorf("liquidity not mapped: %f locked=%v", report.LiquidityUSD, report.LiquidityLocked)
	}
	if len(report.PassedChecks) != 2 {
		t.Errorf("expected 2 passed checks, got %v", report.PassedChecks)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", report.Warnings)
	}

	t.Log("✓ Clean token report mapped with passed checks")
}

func TestRugCheckFlaggedToken(t *testing.T) {
	server := rugCheckServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"token_symbol": "SCAM",
				"score":        -15.0, // clamped to 0
				"checks": []map[string]any{
					{"name": "honeypot", "status": "fail", "severity": "critical", "description": "sell simulation failed"},
					{"name": "top_holders", "status": "warning", "severity": "medium", "description": "top holder owns 40%"},
					{"name": "metadata", "status": "pass"},
				},
				"trading": map[string]any{
					"can_buy":  true,
					"can_sell": false,
					"honeypot": true,
				},
			},
		})
	})

	provider := NewRugCheckProvider(RugCheckConfig{BaseURL: server.URL})
	report, err := provider.Check(context.Background(), "mintX")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if report.Score != 0 {
		t.Errorf("expected score clamped to 0, got %d", report.Score)
	}
	if report.Level != RiskVeryHigh {
		t.Errorf("expected RiskVeryHigh, got %v", report.Level)
	}
	if !report.Honeypot || report.CanSell {
		t.Errorf("trading flags not mapped: honeypot=%v canSell=%v", report.Honeypot, report.CanSell)
	}
	if len(report.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", report.Warnings)
	}
	if report.Warnings[0].Severity != SeverityCritical {
		t.Errorf("expected critical severity, got %v", report.Warnings[0].Severity)
	}
	if report.Warnings[1].Severity != SeverityMedium {
		t.Errorf("expected medium severity, got %v", report.Warnings[1].Severity)
	}
	if len(report.PassedChecks) != 1 {
		t.Errorf("expected 1 passed check, got %v", report.PassedChecks)
	}
}

func TestRugCheckHTTPErrorIsRetryable(t *testing.T) {
	server := rugCheckServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	provider := NewRugCheckProvider(RugCheckConfig{BaseURL: server.URL})
	_, err := provider.Check(context.Background(), "mintX")
	if err == nil {
		t.Fatal("expected error")
	}

	var fe *resilience.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if fe.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", fe.StatusCode)
	}
	if !fe.Retryable() {
		t.Error("expected 429 to be retryable")
	}
}

func TestRugCheckEmptyData(t *testing.T) {
	server := rugCheckServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "token not indexed",
		})
	})

	provider := NewRugCheckProvider(RugCheckConfig{BaseURL: server.URL})
	_, err := provider.Check(context.Background(), "mintX")
	if err == nil {
		t.Fatal("expected error for empty data")
	}
	if !strings.Contains(err.Error(), "token not indexed") {
		t.Errorf("expected upstream error in message, got %v", err)
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		input string
		want  Severity
	}{
		{"critical", SeverityCritical},
		{"high", SeverityHigh},
		{"medium", SeverityMedium},
		{"low", SeverityLow},
		{"unknown", SeverityLow},
	}
	for _, tt := range tests {
		if got := parseSeverity(tt.input); got != tt.want {
			t.Errorf("parseSeverity(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
