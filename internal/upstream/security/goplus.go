package security

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Dexploarer/banshie-sub001/internal/platform/observability"
	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
)

// goPlusResponse mirrors the GoPlus token_security envelope. Flags are
// "0"/"1" strings on the wire.
type goPlusResponse struct {
	Code    int                        `json:"code"`
	Message string                     `json:"message"`
	Result  map[string]goPlusTokenData `json:"result"`
}

type goPlusTokenData struct {
	Honeypot        string `json:"honeypot"`
	CannotBuy       string `json:"cannot_buy"`
	CannotSellAll   string `json:"cannot_sell_all"`
	IsAirdropScam   string `json:"is_airdrop_scam"`
	FreezeAuthority string `json:"freeze_authority"`
	MintAuthority   string `json:"mint_authority"`
	Liquidity       string `json:"liquidity"`
	HolderCount     string `json:"holder_count"`
	TokenSymbol     string `json:"token_symbol"`
}

// GoPlusProvider checks tokens against the GoPlus Security API.
type GoPlusProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *observability.Logger
	metrics *observability.Metrics
}

// GoPlusConfig holds GoPlusProvider construction parameters.
type GoPlusConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewGoPlusProvider creates a GoPlus provider.
func NewGoPlusProvider(cfg GoPlusConfig) *GoPlusProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.gopluslabs.io/api/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &GoPlusProvider{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Name implements Provider.
func (g *GoPlusProvider) Name() string { return "goplus" }

// Check implements Provider.
func (g *GoPlusProvider) Check(ctx context.Context, mint string) (Report, error) {
	url := fmt.Sprintf("%s/token_security/solana?contract_addresses=%s", g.baseURL, mint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Report{}, fmt.Errorf("failed to create request: %w", err)
	}
	if g.apiKey != "" {
		req.Header.Set("X-API-KEY", g.apiKey)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	g.metrics.RecordUpstreamCall(ctx, "goplus", "token_security", time.Since(start), err)
	if err != nil {
		return Report{}, &resilience.FetchError{Provider: "goplus", Op: "token_security", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Report{}, &resilience.FetchError{
			Provider:   "goplus",
			Op:         "token_security",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var envelope goPlusResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Report{}, &resilience.FetchError{Provider: "goplus", Op: "token_security",
			Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	data, ok := envelope.Result[mint]
	if !ok {
		return Report{}, fmt.Errorf("goplus returned no data for %s (code %d: %s)",
			mint, envelope.Code, envelope.Message)
	}

	return g.toReport(mint, data), nil
}

// toReport converts raw GoPlus flags into a scored report. The score
// starts at 100 and each finding subtracts a fixed penalty.
func (g *GoPlusProvider) toReport(mint string, data goPlusTokenData) Report {
	report := Report{
		Mint:            mint,
		Symbol:          data.TokenSymbol,
		Score:           100,
		CanBuy:          true,
		CanSell:         true,
		MintAuthority:   data.MintAuthority,
		FreezeAuthority: data.FreezeAuthority,
		Sources:         []string{"GoPlus Security"},
		CheckedAt:       time.Now(),
	}

	if count, err := strconv.ParseUint(data.HolderCount, 10, 32); err == nil {
		report.HolderCount = uint32(count)
	}
	if liq, err := strconv.ParseFloat(data.Liquidity, 64); err == nil {
		report.LiquidityUSD = liq
	}

	deduct := func(n uint8) {
		if report.Score < n {
			report.Score = 0
			return
		}
		report.Score -= n
	}

	if data.Honeypot == "1" {
		report.Honeypot = true
		report.CanSell = false
		report.Warnings = append(report.Warnings, Warning{
			Severity: SeverityCritical,
			Category: "honeypot",
			Message:  "Token is a honeypot - you cannot sell",
		})
		deduct(50)
	} else {
		report.PassedChecks = append(report.PassedChecks, "Not a honeypot")
	}

	if data.CannotBuy == "1" {
		report.CanBuy = false
		report.Warnings = append(report.Warnings, Warning{
			Severity: SeverityCritical,
			Category: "trading",
			Message:  "Token cannot be purchased",
		})
		deduct(40)
	} else {
		report.PassedChecks = append(report.PassedChecks, "Can buy token")
	}

	if data.CannotSellAll == "1" {
		report.CanSell = false
		report.Warnings = append(report.Warnings, Warning{
			Severity: SeverityHigh,
			Category: "trading",
			Message:  "Cannot sell entire position",
		})
		deduct(30)
	} else {
		report.PassedChecks = append(report.PassedChecks, "Can sell tokens")
	}

	if data.IsAirdropScam == "1" {
		report.Warnings = append(report.Warnings, Warning{
			Severity: SeverityCritical,
			Category: "contract",
			Message:  "Token identified as airdrop scam",
		})
		deduct(40)
	}

	if data.FreezeAuthority != "" {
		report.Warnings = append(report.Warnings, Warning{
			Severity: SeverityMedium,
			Category: "ownership",
			Message:  "Freeze authority enabled",
		})
		deduct(10)
	} else {
		report.PassedChecks = append(report.PassedChecks, "No freeze authority")
	}

	if data.MintAuthority != "" {
		report.Warnings = append(report.Warnings, Warning{
			Severity: SeverityMedium,
			Category: "ownership",
			Message:  "Mint authority enabled",
		})
		deduct(10)
	} else {
		report.PassedChecks = append(report.PassedChecks, "No mint authority")
	}

	if report.LiquidityUSD < 1000.0 {
		report.Warnings = append(report.Warnings, Warning{
			Severity: SeverityHigh,
			Category: "liquidity",
			Message:  "Very low liquidity",
		})
		deduct(15)
	}

	report.Level = LevelForScore(report.Score)
	return report
}
