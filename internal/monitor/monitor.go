// Package monitor periodically samples the cache layers and the rate
// limiter and turns the counters into an operator-facing health
// report.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Dexploarer/banshie-sub001/internal/platform/cache"
	"github.com/Dexploarer/banshie-sub001/internal/platform/observability"
	"github.com/Dexploarer/banshie-sub001/internal/platform/resilience"
)

// Status is the aggregated health level.
type Status int

const (
	StatusHealthy Status = iota
	StatusWarning
	StatusCritical
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the status as its string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Issue is a single health finding tied to a component.
type Issue struct {
	Severity  Status `json:"severity"`
	Component string `json:"component"`
	Message   string `json:"message"`
}

// HealthReport is one sampling pass over all monitored components.
type HealthReport struct {
	Status    Status                     `json:"status"`
	Issues    []Issue                    `json:"issues,omitempty"`
	Cache     cache.GlobalStats          `json:"cache"`
	RateLimit resilience.GlobalRateStats `json:"rate_limit"`
	SampledAt time.Time                  `json:"sampled_at"`
	Uptime    time.Duration              `json:"uptime"`
}

// Thresholds control when counters become issues. Hit rate and
// utilization are percentages.
type Thresholds struct {
	// HitRateWarn flags a layer whose hit rate falls below this value,
	// but only once it has seen at least MinSamples accesses.
	HitRateWarn float64
	MinSamples  int64

	// UtilizationHigh flags a layer whose entry count approaches its
	// capacity. High utilization means eviction pressure, which is
	// treated as critical for a cache whose job is absorbing load.
	UtilizationHigh float64

	// BlockRateWarn flags the limiter when too large a share of
	// requests is being rejected.
	BlockRateWarn float64
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HitRateWarn:     50.0,
		MinSamples:      100,
		UtilizationHigh: 80.0,
		BlockRateWarn:   25.0,
	}
}

// Monitor samples cache and limiter stats on a schedule and keeps the
// latest HealthReport for /healthz.
type Monitor struct {
	manager    *cache.Manager
	limiter    *resilience.Limiter
	thresholds Thresholds
	logger     *observability.Logger
	metrics    *observability.Metrics

	startedAt time.Time
	cron      *cron.Cron

	mu   sync.RWMutex
	last HealthReport
}

// New creates a monitor over the given manager and limiter.
func New(manager *cache.Manager, limiter *resilience.Limiter, thresholds Thresholds, logger *observability.Logger, metrics *observability.Metrics) *Monitor {
	return &Monitor{
		manager:    manager,
		limiter:    limiter,
		thresholds: thresholds,
		logger:     logger,
		metrics:    metrics,
		startedAt:  time.Now(),
	}
}

// Start schedules sampling every interval until Stop is called. An
// immediate first sample runs so /healthz never serves a zero report.
func (m *Monitor) Start(interval time.Duration) error {
	if m.cron != nil {
		return fmt.Errorf("monitor already started")
	}

	m.Sample(context.Background())

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		m.Sample(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule health sampling: %w", err)
	}

	c.Start()
	m.cron = c
	return nil
}

// Stop halts scheduled sampling.
func (m *Monitor) Stop() {
	if m.cron != nil {
		m.cron.Stop()
		m.cron = nil
	}
}

// Sample takes one sampling pass and stores the resulting report.
func (m *Monitor) Sample(ctx context.Context) HealthReport {
	report := HealthReport{
		Cache:     m.manager.GlobalStats(),
		RateLimit: m.limiter.GlobalStats(),
		SampledAt: time.Now(),
		Uptime:    time.Since(m.startedAt),
	}

	report.Issues = m.evaluate(report)
	report.Status = StatusHealthy
	for _, issue := range report.Issues {
		if issue.Severity > report.Status {
			report.Status = issue.Severity
		}
	}

	m.metrics.SetHealthStatus(ctx, int64(report.Status))

	if report.Status != StatusHealthy && m.logger != nil {
		m.logger.LogWarn(ctx, "health degraded",
			"status", report.Status.String(),
			"issues", len(report.Issues),
			"global_hit_rate", report.Cache.HitRate,
		)
	}

	m.mu.Lock()
	m.last = report
	m.mu.Unlock()

	return report
}

// Report returns the most recent health report.
func (m *Monitor) Report() HealthReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *Monitor) evaluate(report HealthReport) []Issue {
	var issues []Issue
	t := m.thresholds

	for name, layer := range report.Cache.Layers {
		samples := layer.Hits + layer.Misses
		if samples >= uint64(t.MinSamples) && layer.HitRate() < t.HitRateWarn {
			issues = append(issues, Issue{
				Severity:  StatusWarning,
				Component: "cache/" + name,
				Message: fmt.Sprintf("hit rate %.1f%% below %.1f%% over %d accesses",
					layer.HitRate(), t.HitRateWarn, samples),
			})
		}

		if layer.Utilization() > t.UtilizationHigh {
			issues = append(issues, Issue{
				Severity:  StatusCritical,
				Component: "cache/" + name,
				Message: fmt.Sprintf("utilization %.1f%% above %.1f%% (%d/%d entries)",
					layer.Utilization(), t.UtilizationHigh, layer.Entries, layer.Capacity),
			})
		}
	}

	if report.RateLimit.TotalRequests >= uint64(t.MinSamples) &&
		report.RateLimit.BlockRate > t.BlockRateWarn {
		issues = append(issues, Issue{
			Severity:  StatusWarning,
			Component: "ratelimit",
			Message: fmt.Sprintf("block rate %.1f%% above %.1f%% (%d of %d requests)",
				report.RateLimit.BlockRate, t.BlockRateWarn,
				report.RateLimit.TotalBlocked, report.RateLimit.TotalRequests),
		})
	}

	return issues
}

// Handler serves the latest health report as JSON. Critical status
// returns 503 so load balancers can act on it; warnings stay 200.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := m.Report()

		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusCritical {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := json.NewEncoder(w).Encode(report); err != nil && m.logger != nil {
			m.logger.LogError(r.Context(), "failed to encode health report", err)
		}
	})
}
