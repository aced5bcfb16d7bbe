// Package metrics provides Prometheus metrics for the ReliAPI client and the
// local mock server.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

// Outcome label values for ClientRequests.
const (
	OutcomeOK        = "ok"
	OutcomeStatus    = "status_error"
	OutcomeTransport = "transport_error"
	OutcomeDecode    = "decode_error"
)

// Metrics holds all Prometheus metric collectors.
type Metrics struct {
	Registry *prometheus.Registry

	// Outbound calls to ReliAPI.
	ClientRequests      *prometheus.CounterVec
	ClientDuration      *prometheus.HistogramVec
	ClientCacheHits     *prometheus.CounterVec
	ClientIdempotentHit *prometheus.CounterVec
	ClientCostUSD       *prometheus.CounterVec

	// Inbound requests served by the mock.
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		ClientRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reliapi_client_requests_total",
			Help: "Total calls to ReliAPI by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),

		ClientDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reliapi_client_request_duration_seconds",
			Help:    "Round-trip latency of calls to ReliAPI in seconds.",
			Buckets: defaultBuckets,
		}, []string{"endpoint"}),

		ClientCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reliapi_client_cache_hits_total",
			Help: "Responses ReliAPI reported as served from cache.",
		}, []string{"endpoint"}),

		ClientIdempotentHit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reliapi_client_idempotent_hits_total",
			Help: "Responses ReliAPI reported as idempotent replays.",
		}, []string{"endpoint"}),

		ClientCostUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reliapi_client_cost_usd_total",
			Help: "Sum of cost_usd reported by ReliAPI.",
		}, []string{"endpoint"}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reliapi_mock_http_requests_total",
			Help: "Total inbound HTTP requests served by the mock.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reliapi_mock_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency of the mock in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reliapi_mock_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed by the mock.",
		}),
	}

	reg.MustRegister(
		m.ClientRequests,
		m.ClientDuration,
		m.ClientCacheHits,
		m.ClientIdempotentHit,
		m.ClientCostUSD,
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
	)

	return m
}

// Summary aggregates the client counters across endpoints.
type Summary struct {
	Calls          int
	Failures       int
	CacheHits      int
	IdempotentHits int
	CostUSD        float64
}

// ClientSummary gathers the registry and totals the outbound-call counters.
func (m *Metrics) ClientSummary() (Summary, error) {
	families, err := m.Registry.Gather()
	if err != nil {
		return Summary{}, err
	}

	var s Summary
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			v := metric.GetCounter().GetValue()
			switch f.GetName() {
			case "reliapi_client_requests_total":
				s.Calls += int(v)
				for _, lp := range metric.GetLabel() {
					if lp.GetName() == "outcome" && lp.GetValue() != OutcomeOK {
						s.Failures += int(v)
					}
				}
			case "reliapi_client_cache_hits_total":
				s.CacheHits += int(v)
			case "reliapi_client_idempotent_hits_total":
				s.IdempotentHits += int(v)
			case "reliapi_client_cost_usd_total":
				s.CostUSD += v
			}
		}
	}
	return s, nil
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
var knownPrefixes = []string{"/proxy/http", "/proxy/llm", "/healthz", "/mock/status", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
