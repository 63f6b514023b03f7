package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the query service.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         prometheus.Histogram
	QueryResults         prometheus.Histogram
	RateLimited          prometheus.Counter
	StorePostings        prometheus.Gauge
	StoreTags            prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry, so several
// servers can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
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
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagindex_queries_total",
				Help: "Total tag queries by outcome (ok, empty, bad_request, error).",
			},
			[]string{"outcome"},
		),
		QueryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tagindex_query_duration_seconds",
			Help:    "Tag query execution time in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		}),
		QueryResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tagindex_query_results",
			Help:    "Number of posts returned per tag query.",
			Buckets: prometheus.ExponentialBuckets(1, 10, 8),
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tagindex_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
		StorePostings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tagindex_store_postings",
			Help: "Postings held by the loaded store.",
		}),
		StoreTags: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tagindex_store_tags",
			Help: "Catalog tags indexed by the loaded store.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryResults,
		m.RateLimited,
		m.StorePostings,
		m.StoreTags,
	)
	return m
}

// RegisterCacheCounters exposes query cache hit and miss totals.
func (m *Metrics) RegisterCacheCounters(hits, misses func() uint64) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "tagindex_cache_hits_total",
			Help: "Query cache hits.",
		}, func() float64 { return float64(hits()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "tagindex_cache_misses_total",
			Help: "Query cache misses.",
		}, func() float64 { return float64(misses()) }),
	)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
