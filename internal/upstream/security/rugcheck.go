package security

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Dexploarer/banshie-sub001/internal/platform/observability"
	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
)

// rugCheckResponse mirrors the RugCheck token report envelope.
type rugCheckResponse struct {
	Success bool          `json:"success"`
	Data    *rugCheckData `json:"data"`
	Error   string        `json:"error"`
}

type rugCheckData struct {
	TokenAddress string         `json:"token_address"`
	TokenSymbol  string         `json:"token_symbol"`
	Score        float64        `json:"score"`
	Checks       []rugCheckItem `json:"checks"`
	Liquidity    struct {
		TotalLiquidityUSD float64 `json:"total_liquidity_usd"`
		IsLocked          bool    `json:"is_locked"`
	} `json:"liquidity"`
	Ownership struct {
		MintAuthority   string `json:"mint_authority"`
		FreezeAuthority string `json:"freeze_authority"`
	} `json:"ownership"`
	Trading struct {
		CanBuy   bool `json:"can_buy"`
		CanSell  bool `json:"can_sell"`
		Honeypot bool `json:"honeypot"`
	} `json:"trading"`
}

type rugCheckItem struct {
	Name        string `json:"name"`
	Status      string `json:"status"`   // pass, fail, warning
	Severity    string `json:"severity"` // critical, high, medium, low
	Description string `json:"description"`
}

// RugCheckProvider checks tokens against the RugCheck API.
type RugCheckProvider struct {
	client  *http.Client
	baseURL string
	logger  *observability.Logger
	metrics *observability.Metrics
}

// RugCheckConfig holds RugCheckProvider construction parameters.
type RugCheckConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewRugCheckProvider creates a RugCheck provider.
func NewRugCheckProvider(cfg RugCheckConfig) *RugCheckProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.rugcheck.xyz/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &RugCheckProvider{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Name implements Provider.
func (r *RugCheckProvider) Name() string { return "rugcheck" }

// Check implements Provider.
func (r *RugCheckProvider) Check(ctx context.Context, mint string) (Report, error) {
	url := fmt.Sprintf("%s/tokens/%s/report", r.baseURL, mint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Report{}, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	r.metrics.RecordUpstreamCall(ctx, "rugcheck", "report", time.Since(start), err)
	if err != nil {
		return Report{}, &resilience.FetchError{Provider: "rugcheck", Op: "report", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Report{}, &resilience.FetchError{
			Provider:   "rugcheck",
			Op:         "report",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var envelope rugCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Report{}, &resilience.FetchError{Provider: "rugcheck", Op: "report",
			Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if !envelope.Success || envelope.Data == nil {
		return Report{}, fmt.Errorf("rugcheck returned no data for %s: %s", mint, envelope.Error)
	}

	return r.toReport(mint, envelope.Data), nil
}

func (r *RugCheckProvider) toReport(mint string, data *rugCheckData) Report {
	score := data.Score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	report := Report{
		Mint:            mint,
		Symbol:          data.TokenSymbol,
		Score:           uint8(score),
		Honeypot:        data.Trading.Honeypot,
		CanBuy:          data.Trading.CanBuy,
		CanSell:         data.Trading.CanSell,
		LiquidityUSD:    data.Liquidity.TotalLiquidityUSD,
		LiquidityLocked: data.Liquidity.IsLocked,
		MintAuthority:   data.Ownership.MintAuthority,
		FreezeAuthority: data.Ownership.FreezeAuthority,
		Sources:         []string{"RugCheck"},
		CheckedAt:       time.Now(),
	}

	for _, check := range data.Checks {
		switch check.Status {
		case "pass":
			report.PassedChecks = append(report.PassedChecks, check.Name)
		case "fail", "warning":
			report.Warnings = append(report.Warnings, Warning{
				Severity: parseSeverity(check.Severity),
				Category: check.Name,
				Message:  check.Description,
			})
		}
	}

	report.Level = LevelForScore(report.Score)
	return report
}

func parseSeverity(s string) Severity {
	switch s {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	default:
		return SeverityLow
	}
}
