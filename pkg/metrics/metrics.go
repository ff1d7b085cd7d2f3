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
	CandidateSetSize     prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	ImagesIndexedTotal   prometheus.Counter
	ImagesRemovedTotal   prometheus.Counter
	IndexedImages        prometheus.Gauge
	ShardImageCount      *prometheus.GaugeVec
	IngestEventsTotal    *prometheus.CounterVec
	IngestConsumerLag    prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func New(reg prometheus.Registerer) *Metrics {
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
				Name: "similarity_queries_total",
				Help: "Total similarity queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "similarity_query_latency_seconds",
				Help:    "Similarity query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "similarity_results_count",
				Help:    "Number of results returned per similarity query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CandidateSetSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "candidate_set_size",
				Help:    "Number of candidates the index hands to the ranker per query.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		ImagesIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "images_indexed_total",
				Help: "Total images added to the index.",
			},
		),
		ImagesRemovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "images_removed_total",
				Help: "Total images removed from the index.",
			},
		),
		IndexedImages: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexed_images",
				Help: "Number of distinct images currently indexed.",
			},
		),
		ShardImageCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shard_image_count",
				Help: "Number of images stored per visual-word shard.",
			},
			[]string{"visual_word"},
		),
		IngestEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_events_total",
				Help: "Image events consumed from Kafka by operation and outcome.",
			},
			[]string{"op", "status"},
		),
		IngestConsumerLag: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_consumer_lag",
				Help: "Messages the image-ingest consumer is behind the partition head.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CandidateSetSize,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ImagesIndexedTotal,
		m.ImagesRemovedTotal,
		m.IndexedImages,
		m.ShardImageCount,
		m.IngestEventsTotal,
		m.IngestConsumerLag,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a scrape handler bound to a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
