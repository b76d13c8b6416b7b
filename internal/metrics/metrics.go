// Package metrics exposes Prometheus collectors for chat turns and registry
// searches on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trialchat"

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeInvalid = "invalid"
)

// Metrics holds the service collectors. All methods are safe on a nil
// receiver so callers can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	chatTurns      *prometheus.CounterVec
	extractions    *prometheus.CounterVec
	searches       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	fallbacks      prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns handled, by outcome.",
		}, []string{"outcome"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Extraction blocks seen in assistant output, by outcome.",
		}, []string{"outcome"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_searches_total",
			Help:      "Trial registry searches, by call site and outcome.",
		}, []string{"site", "outcome"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registry_search_duration_seconds",
			Help:      "Trial registry search latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"site"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_trials_served_total",
			Help:      "Chat searches answered with the fallback trial set.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.chatTurns,
		m.extractions,
		m.searches,
		m.searchDuration,
		m.fallbacks,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncChatTurn counts a finished chat turn.
func (m *Metrics) IncChatTurn(err error) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(outcome(err)).Inc()
}

// IncExtraction counts an extraction block. valid is false for blocks that
// failed to decode or validate.
func (m *Metrics) IncExtraction(valid bool) {
	if m == nil {
		return
	}
	if valid {
		m.extractions.WithLabelValues(OutcomeOK).Inc()
		return
	}
	m.extractions.WithLabelValues(OutcomeInvalid).Inc()
}

// ObserveSearch records one registry search.
func (m *Metrics) ObserveSearch(site string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(site, outcome(err)).Inc()
	m.searchDuration.WithLabelValues(site).Observe(d.Seconds())
}

// IncFallback counts a search answered from the fallback set.
func (m *Metrics) IncFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
