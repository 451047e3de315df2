// Package metrics defines the Prometheus collectors used by the search
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	QueriesInFlight      prometheus.Gauge
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	IndexBuildsTotal     *prometheus.CounterVec
	IndexBuildDuration   prometheus.Histogram
	ActiveGeneration     prometheus.Gauge
	GenerationsRetired   prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
	RateLimited          prometheus.Counter
	IngestMessagesTotal  *prometheus.CounterVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by outcome (hit, zero_result, empty, malformed, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		QueriesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "search_queries_in_flight",
				Help: "Number of queries currently holding an index generation.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed across all generations.",
			},
		),
		IndexBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_builds_total",
				Help: "Total index builds by status.",
			},
			[]string{"status"},
		),
		IndexBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Time spent building an index generation.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
		),
		ActiveGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_active_generation",
				Help: "Identifier of the index generation serving queries.",
			},
		),
		GenerationsRetired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_generations_retired_total",
				Help: "Index generations released after their last query finished.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Requests rejected by the rate limiter.",
			},
		),
		IngestMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_messages_total",
				Help: "Kafka ingest messages by status (indexed, rejected, failed).",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.QueriesInFlight,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.IndexBuildsTotal,
		m.IndexBuildDuration,
		m.ActiveGeneration,
		m.GenerationsRetired,
		m.CircuitBreakerState,
		m.RateLimited,
		m.IngestMessagesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
