package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics holds the bot's metric instruments, exported in Prometheus
// format via Handler().
type Metrics struct {
	meter metric.Meter

	// Cache metrics (attribute: layer)
	CacheHits      metric.Int64Counter
	CacheMisses    metric.Int64Counter
	CacheEvictions metric.Int64Counter

	// Rate limiter metrics (attribute: class)
	RateLimitAllowed metric.Int64Counter
	RateLimitBlocked metric.Int64Counter

	// Coordinator metrics (attribute: layer)
	FetchesStarted  metric.Int64Counter
	FetchDuration   metric.Float64Histogram
	DedupWaits      metric.Int64Counter
	AbandonedWaits  metric.Int64Counter

	// Retry metrics (attribute: op)
	RetryAttempts metric.Int64Counter

	// Upstream metrics (attributes: provider, op)
	UpstreamCalls    metric.Int64Counter
	UpstreamDuration metric.Float64Histogram

	// Circuit breaker state by name (0 closed, 1 open, 2 half-open)
	CircuitBreakerState metric.Int64Gauge

	// Health status (0 healthy, 1 warning, 2 critical)
	HealthStatus metric.Int64Gauge

	exporter *prometheus.Exporter
}

// NewMetrics creates a Metrics instance backed by a Prometheus
// exporter. When disabled, all instruments are nil and record calls
// must go through the nil-safe helpers below.
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	m := &Metrics{
		meter:    provider.Meter(serviceName),
		exporter: exporter,
	}

	if err := m.initInstruments(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initInstruments() error {
	var err error

	if m.CacheHits, err = m.meter.Int64Counter(
		"bot.cache.hits",
		metric.WithDescription("Cache hits by layer"),
	); err != nil {
		return err
	}

	if m.CacheMisses, err = m.meter.Int64Counter(
		"bot.cache.misses",
		metric.WithDescription("Cache misses by layer"),
	); err != nil {
		return err
	}

	if m.CacheEvictions, err = m.meter.Int64Counter(
		"bot.cache.evictions",
		metric.WithDescription("Cache evictions by layer"),
	); err != nil {
		return err
	}

	if m.RateLimitAllowed, err = m.meter.Int64Counter(
		"bot.ratelimit.allowed",
		metric.WithDescription("Requests allowed by the rate limiter"),
	); err != nil {
		return err
	}

	if m.RateLimitBlocked, err = m.meter.Int64Counter(
		"bot.ratelimit.blocked",
		metric.WithDescription("Requests blocked by the rate limiter"),
	); err != nil {
		return err
	}

	if m.FetchesStarted, err = m.meter.Int64Counter(
		"bot.coordinator.fetches",
		metric.WithDescription("Upstream fetches started by the coordinator"),
	); err != nil {
		return err
	}

	if m.FetchDuration, err = m.meter.Float64Histogram(
		"bot.coordinator.fetch.duration",
		metric.WithDescription("Coordinator fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return err
	}

	if m.DedupWaits, err = m.meter.Int64Counter(
		"bot.coordinator.dedup.waits",
		metric.WithDescription("Callers coalesced onto an in-flight fetch"),
	); err != nil {
		return err
	}

	if m.AbandonedWaits, err = m.meter.Int64Counter(
		"bot.coordinator.dedup.abandoned",
		metric.WithDescription("Waiters that abandoned an in-flight fetch"),
	); err != nil {
		return err
	}

	if m.RetryAttempts, err = m.meter.Int64Counter(
		"bot.retry.attempts",
		metric.WithDescription("Retry attempts beyond the first try"),
	); err != nil {
		return err
	}

	if m.UpstreamCalls, err = m.meter.Int64Counter(
		"bot.upstream.calls",
		metric.WithDescription("Upstream API calls by provider and operation"),
	); err != nil {
		return err
	}

	if m.UpstreamDuration, err = m.meter.Float64Histogram(
		"bot.upstream.duration",
		metric.WithDescription("Upstream call duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return err
	}

	if m.CircuitBreakerState, err = m.meter.Int64Gauge(
		"bot.circuit.state",
		metric.WithDescription("Circuit breaker state (0 closed, 1 open, 2 half-open)"),
	); err != nil {
		return err
	}

	if m.HealthStatus, err = m.meter.Int64Gauge(
		"bot.health.status",
		metric.WithDescription("Aggregated health status (0 healthy, 1 warning, 2 critical)"),
	); err != nil {
		return err
	}

	return nil
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Enabled reports whether instruments were created.
func (m *Metrics) Enabled() bool {
	return m.meter != nil
}

// Nil-safe recording helpers. All hot paths go through these so a nil
// or disabled Metrics value costs one branch.

// RecordCacheAccess records a cache hit or miss for a layer.
func (m *Metrics) RecordCacheAccess(ctx context.Context, layer string, hit bool) {
	if m == nil || m.meter == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("layer", layer))
	if hit {
		m.CacheHits.Add(ctx, 1, attrs)
	} else {
		m.CacheMisses.Add(ctx, 1, attrs)
	}
}

// RecordEvictions adds to a layer's eviction counter.
func (m *Metrics) RecordEvictions(ctx context.Context, layer string, n int64) {
	if m == nil || m.meter == nil || n <= 0 {
		return
	}
	m.CacheEvictions.Add(ctx, n, metric.WithAttributes(attribute.String("layer", layer)))
}

// RecordRateLimit records a rate-limiter decision for an operation class.
func (m *Metrics) RecordRateLimit(ctx context.Context, class string, allowed bool) {
	if m == nil || m.meter == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("class", class))
	if allowed {
		m.RateLimitAllowed.Add(ctx, 1, attrs)
	} else {
		m.RateLimitBlocked.Add(ctx, 1, attrs)
	}
}

// RecordFetchStarted counts an upstream fetch owned by the coordinator.
func (m *Metrics) RecordFetchStarted(ctx context.Context, layer string) {
	if m == nil || m.meter == nil {
		return
	}
	m.FetchesStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// RecordFetchDuration records a coordinator fetch duration.
func (m *Metrics) RecordFetchDuration(ctx context.Context, layer string, d time.Duration) {
	if m == nil || m.meter == nil {
		return
	}
	m.FetchDuration.Record(ctx, float64(d.Microseconds())/1000.0,
		metric.WithAttributes(attribute.String("layer", layer)))
}

// RecordDedupWait counts a caller coalesced onto an in-flight fetch.
func (m *Metrics) RecordDedupWait(ctx context.Context, layer string) {
	if m == nil || m.meter == nil {
		return
	}
	m.DedupWaits.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// RecordAbandonedWait counts a waiter that gave up on an in-flight fetch.
func (m *Metrics) RecordAbandonedWait(ctx context.Context, layer string) {
	if m == nil || m.meter == nil {
		return
	}
	m.AbandonedWaits.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// RecordRetry counts a retry beyond the first attempt.
func (m *Metrics) RecordRetry(ctx context.Context, op string) {
	if m == nil || m.meter == nil {
		return
	}
	m.RetryAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordUpstreamCall records an upstream API call and its duration.
func (m *Metrics) RecordUpstreamCall(ctx context.Context, provider, op string, d time.Duration, err error) {
	if m == nil || m.meter == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("op", op),
		attribute.Bool("error", err != nil),
	)
	m.UpstreamCalls.Add(ctx, 1, attrs)
	m.UpstreamDuration.Record(ctx, float64(d.Microseconds())/1000.0, attrs)
}

// SetCircuitState records a breaker's state by name.
func (m *Metrics) SetCircuitState(ctx context.Context, name string, state int64) {
	if m == nil || m.meter == nil {
		return
	}
	m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(attribute.String("name", name)))
}

// SetHealthStatus records the aggregated health status.
func (m *Metrics) SetHealthStatus(ctx context.Context, status int64) {
	if m == nil || m.meter == nil {
		return
	}
	m.HealthStatus.Record(ctx, status)
}
