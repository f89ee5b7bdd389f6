// Package observability defines the prometheus metrics for the chat gateway.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "portfolio"
	chatSubsystem    = "chat"
)

// Request outcomes used as the "outcome" label.
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeInvalid     = "invalid"
	OutcomeUpstream    = "upstream_error"
	OutcomePartial     = "partial"
	OutcomeError       = "error"
)

// Metrics groups the gateway collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// RequestsTotal counts chat requests by transport (http, ws) and outcome.
	RequestsTotal *prometheus.CounterVec

	// ChunksTotal counts text chunks relayed to clients.
	ChunksTotal prometheus.Counter

	// TimeToFirstChunkSeconds measures latency until the first upstream chunk.
	TimeToFirstChunkSeconds prometheus.Histogram

	// StreamDurationSeconds measures full relay duration by outcome.
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks in-flight relays.
	ActiveStreams prometheus.Gauge

	// RateLimiterEntries tracks keys held by the limiter after each sweep.
	RateLimiterEntries prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "requests_total",
			Help:      "Chat requests by transport and outcome.",
		}, []string{"transport", "outcome"}),
		ChunksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "chunks_total",
			Help:      "Text chunks relayed to clients.",
		}),
		TimeToFirstChunkSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "time_to_first_chunk_seconds",
			Help:      "Latency from upstream call to first chunk.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		StreamDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "stream_duration_seconds",
			Help:      "Total relay duration.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"outcome"}),
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "active_streams",
			Help:      "Relays currently in flight.",
		}),
		RateLimiterEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ratelimit",
			Name:      "entries",
			Help:      "Client keys tracked by the rate limiter.",
		}),
		registry: reg,
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Request records a finished request.
func (m *Metrics) Request(transport, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(transport, outcome).Inc()
}

// StreamStarted marks a relay as in flight and returns a func that records
// its end.
func (m *Metrics) StreamStarted() func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.ActiveStreams.Inc()
	return func(outcome string) {
		m.ActiveStreams.Dec()
		m.StreamDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}

// FirstChunk records time to first chunk.
func (m *Metrics) FirstChunk(d time.Duration) {
	if m == nil {
		return
	}
	m.TimeToFirstChunkSeconds.Observe(d.Seconds())
}

// Chunk counts one relayed chunk.
func (m *Metrics) Chunk() {
	if m == nil {
		return
	}
	m.ChunksTotal.Inc()
}

// LimiterEntries sets the tracked-key gauge.
func (m *Metrics) LimiterEntries(n int) {
	if m == nil {
		return
	}
	m.RateLimiterEntries.Set(float64(n))
}
