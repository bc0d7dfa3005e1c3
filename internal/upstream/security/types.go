// Package security scores token risk by combining independent
// providers (GoPlus, RugCheck). Scores run 0-100 where higher is
// safer; the merged report always keeps the more conservative view.
package security

import (
	"context"
	"time"
)

// RiskLevel buckets a 0-100 risk score.
type RiskLevel int

const (
	RiskVeryHigh RiskLevel = iota // 0-19
	RiskHigh                      // 20-39
	RiskMedium                    // 40-59
	RiskLow                       // 60-79
	RiskVeryLow                   // 80-100
)

func (l RiskLevel) String() string {
	switch l {
	case RiskVeryLow:
		return "very_low"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "very_high"
	}
}

// LevelForScore maps a score to its risk bucket.
func LevelForScore(score uint8) RiskLevel {
	switch {
	case score >= 80:
		return RiskVeryLow
	case score >= 60:
		return RiskLow
	case score >= 40:
		return RiskMedium
	case score >= 20:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// Severity ranks a warning.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

// Warning is a single risk finding.
type Warning struct {
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Message  string   `json:"message"`
}

// Report is one provider's (or the merged) view of a token's risk.
type Report struct {
	Mint            string    `json:"mint"`
	Symbol          string    `json:"symbol,omitempty"`
	Score           uint8     `json:"score"` // 0-100, higher is safer
	Level           RiskLevel `json:"level"`
	Honeypot        bool      `json:"honeypot"`
	CanBuy          bool      `json:"can_buy"`
	CanSell         bool      `json:"can_sell"`
	LiquidityUSD    float64   `json:"liquidity_usd"`
	LiquidityLocked bool      `json:"liquidity_locked"`
	MintAuthority   string    `json:"mint_authority,omitempty"`
	FreezeAuthority string    `json:"freeze_authority,omitempty"`
	HolderCount     uint32    `json:"holder_count"`
	Warnings        []Warning `json:"warnings,omitempty"`
	PassedChecks    []string  `json:"passed_checks,omitempty"`
	Sources         []string  `json:"sources"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Provider is a single token risk source.
type Provider interface {
	// Name identifies the provider in reports and cache keys.
	Name() string

	// Check analyzes one token mint.
	Check(ctx context.Context, mint string) (Report, error)
}
