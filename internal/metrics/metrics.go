// Package metrics provides Prometheus metrics for the relay.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency. Event streams stay open
// for minutes, so the upper buckets reach further than a plain API proxy.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300}

// Relay label values.
const (
	RelayEvents = "events"
	RelayImages = "images"
)

// Stream outcome label values.
const (
	OutcomeCompleted     = "completed"
	OutcomeConnectError  = "connect_error"
	OutcomeUpstreamError = "upstream_error"
	OutcomeClientGone    = "client_gone"
	OutcomeIdleTimeout   = "idle_timeout"
)

// Metrics holds all Prometheus metric collectors for the relay.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	StreamsActive *prometheus.GaugeVec
	StreamBytes   *prometheus.CounterVec
	StreamsTotal  *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weather_relay_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weather_relay_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds, including streaming time.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "weather_relay_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weather_relay_upstream_request_duration_seconds",
			Help:    "Time until upstream response headers arrive, in seconds.",
			Buckets: defaultBuckets,
		}, []string{"relay"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weather_relay_upstream_responses_total",
			Help: "Total upstream responses by relay and status code.",
		}, []string{"relay", "status_code"}),

		StreamsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "weather_relay_streams_active",
			Help: "Relayed responses currently streaming.",
		}, []string{"relay"}),

		StreamBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weather_relay_stream_bytes_total",
			Help: "Bytes forwarded from upstream to clients.",
		}, []string{"relay"}),

		StreamsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weather_relay_streams_total",
			Help: "Finished relay requests by outcome.",
		}, []string{"relay", "outcome"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.StreamsActive,
		m.StreamBytes,
		m.StreamsTotal,
	)

	return m
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
var knownPrefixes = []string{"/events", "/images", "/api/proxy", "/api/image-proxy", "/healthz", "/relay/status", "/static", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	if path == "/" {
		return "/"
	}
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
