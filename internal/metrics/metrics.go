// Package metrics holds the Prometheus collectors for the gateway and the
// stage processors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "enricher"

// Metrics groups the collectors registered against one registry.
type Metrics struct {
	registry *prometheus.Registry

	// Gateway
	GatewayCalls       *prometheus.CounterVec
	GatewayDuration    *prometheus.HistogramVec
	GatewayRateLimited *prometheus.CounterVec
	GatewayRetries     *prometheus.CounterVec
	GatewayTokens      *prometheus.CounterVec
	GatewayQueueDepth  prometheus.Gauge
	GatewayInFlight    prometheus.Gauge
	CircuitState       *prometheus.GaugeVec

	// Stages
	StageRuns     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	StageRecords  *prometheus.CounterVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.GatewayCalls = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "gateway",
		Name:      "calls_total",
		Help:      "Outbound calls by service and outcome.",
	}, []string{"service", "outcome"})

	m.GatewayDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "gateway",
		Name:      "call_duration_seconds",
		Help:      "Duration of outbound calls including retries.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
	}, []string{"service"})

	m.GatewayRateLimited = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "gateway",
		Name:      "rate_limited_total",
		Help:      "Upstream HTTP 429 responses observed, including retried ones.",
	}, []string{"service"})

	m.GatewayRetries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "gateway",
		Name:      "retries_total",
		Help:      "Retry attempts after a transient failure.",
	}, []string{"service"})

	m.GatewayTokens = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "gateway",
		Name:      "tokens_total",
		Help:      "Tokens reported by upstream models.",
	}, []string{"service", "direction"})

	m.GatewayQueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "gateway",
		Name:      "queue_depth",
		Help:      "Calls waiting for the gateway worker.",
	})

	m.GatewayInFlight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "gateway",
		Name:      "in_flight",
		Help:      "Calls currently executing against an upstream.",
	})

	m.CircuitState = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "gateway",
		Name:      "circuit_state",
		Help:      "Circuit breaker state per service (0 closed, 1 open, 2 half-open).",
	}, []string{"service"})

	m.StageRuns = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "stage",
		Name:      "runs_total",
		Help:      "Stage invocations by stage and status.",
	}, []string{"stage", "status"})

	m.StageDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "stage",
		Name:      "duration_seconds",
		Help:      "Wall time of a stage invocation.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 11), // 1s to ~17min
	}, []string{"stage"})

	m.StageRecords = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "stage",
		Name:      "records_total",
		Help:      "Records processed by stage and result.",
	}, []string{"stage", "result"})

	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
