// Package observability holds the Prometheus metrics for completions and the LLM proxy.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "viper"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// completions counts finished completions.
	// Labels: mode (normal, continue, retry), outcome (sent, error, aborted)
	completions *prometheus.CounterVec

	// completionDuration measures time from dispatch to finalization.
	// Labels: mode
	completionDuration *prometheus.HistogramVec

	deltas            prometheus.Counter
	malformedEvents   prometheus.Counter
	activeCompletions prometheus.Gauge

	// proxyRequests counts requests through POST /llm/chat/completions.
	// Labels: status (HTTP status code returned to the caller)
	proxyRequests *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Total completions by mode and outcome",
		}, []string{"mode", "outcome"}),
		completionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Completion duration from dispatch to finalization in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"mode"}),
		deltas: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deltas_total",
			Help:      "Total text deltas applied to assistant messages",
		}),
		malformedEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_events_total",
			Help:      "Total stream events skipped because their payload was not valid JSON",
		}),
		activeCompletions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_completions",
			Help:      "Completions currently in flight",
		}),
		proxyRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "Total LLM proxy requests by response status",
		}, []string{"status"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CompletionStarted marks a completion as in flight.
func (m *Metrics) CompletionStarted() {
	if m == nil {
		return
	}
	m.activeCompletions.Inc()
}

// CompletionFinished records the outcome of a completion started with CompletionStarted.
func (m *Metrics) CompletionFinished(mode, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.activeCompletions.Dec()
	m.completions.WithLabelValues(mode, outcome).Inc()
	m.completionDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObserveStream records decoder statistics for one completion.
func (m *Metrics) ObserveStream(deltas, malformed int) {
	if m == nil {
		return
	}
	m.deltas.Add(float64(deltas))
	m.malformedEvents.Add(float64(malformed))
}

// ProxyRequest counts one proxied request.
func (m *Metrics) ProxyRequest(status int) {
	if m == nil {
		return
	}
	m.proxyRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}
