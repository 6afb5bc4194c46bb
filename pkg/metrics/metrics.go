// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service reports.
type Metrics struct {
	registry *prometheus.Registry

	SearchRequests  *prometheus.CounterVec
	SearchDuration  *prometheus.HistogramVec
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	EmbedCalls      prometheus.Counter
	EmbedFailures   prometheus.Counter
	AgentIterations prometheus.Histogram
	AgentDuration   prometheus.Histogram
}

// New builds and registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SearchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nest_search_requests_total",
			Help: "Search requests by collection and outcome.",
		}, []string{"collection", "status"}),
		SearchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nest_search_duration_seconds",
			Help:    "End-to-end search latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nest_cache_hits_total",
			Help: "Response cache hits by namespace.",
		}, []string{"namespace"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nest_cache_misses_total",
			Help: "Response cache misses by namespace.",
		}, []string{"namespace"}),
		EmbedCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nest_embedding_calls_total",
			Help: "Embedding requests sent to the provider.",
		}),
		EmbedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nest_embedding_failures_total",
			Help: "Embedding requests that returned an error.",
		}),
		AgentIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nest_agent_iterations",
			Help:    "Iterations per agent run.",
			Buckets: []float64{1, 2, 3},
		}),
		AgentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nest_agent_duration_seconds",
			Help:    "Wall time per agent run.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
	}
	m.registry.MustRegister(
		m.SearchRequests, m.SearchDuration,
		m.CacheHits, m.CacheMisses,
		m.EmbedCalls, m.EmbedFailures,
		m.AgentIterations, m.AgentDuration,
	)
	return m
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSearch records one search call.
func (m *Metrics) ObserveSearch(collection, status string, elapsed time.Duration) {
	m.SearchRequests.WithLabelValues(collection, status).Inc()
	m.SearchDuration.WithLabelValues(collection).Observe(elapsed.Seconds())
}

// ObserveAgent records one agent run.
func (m *Metrics) ObserveAgent(iterations int, elapsed time.Duration) {
	m.AgentIterations.Observe(float64(iterations))
	m.AgentDuration.Observe(elapsed.Seconds())
}
