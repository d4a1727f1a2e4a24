package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream fetch rate per provider. Watch for: error vs success ratio.
	FetchCallsTotal *prometheus.CounterVec

	// Upstream fetch latency. Watch for: p95 > 2s (provider degradation), p99 > 5s (timeout risk).
	FetchDuration *prometheus.HistogramVec

	// Retry attempts against upstream providers. High retries = unstable provider.
	FetchRetriesTotal *prometheus.CounterVec

	// Fresh cache hits per provider. Hit rate = hits/(hits+fetchCalls).
	CacheHitsTotal *prometheus.CounterVec

	// Stale entries served after an upstream failure. Nonzero means we are degraded.
	CacheStaleServesTotal *prometheus.CounterVec

	// Age of stale entries at serve time.
	CacheStaleAgeSeconds prometheus.Histogram

	// LRU evictions in the in-memory backend. Sustained growth = cache bound too small.
	CacheEvictionsTotal prometheus.Counter

	// Cache backend failures by operation and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Records produced by the normalizer per provider.
	RecordsNormalizedTotal *prometheus.CounterVec

	// Malformed records skipped by the normalizer. Growth = upstream schema drift.
	RecordsSkippedTotal *prometheus.CounterVec

	// Alert events emitted by severity.
	AlertsEmittedTotal *prometheus.CounterVec

	// Background refresh outcomes per dataset.
	RefreshRunsTotal *prometheus.CounterVec

	// Archive write outcomes by kind (payload, records, alerts).
	ArchiveWritesTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	FetchCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchCallsTotal",
			Help: "Total number of upstream provider fetches",
		},
		[]string{"provider", "status"},
	)
	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetchDurationSeconds",
			Help:    "Upstream provider fetch latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "status"},
	)
	FetchRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchRetriesTotal",
			Help: "Total number of retry attempts against upstream providers",
		},
		[]string{"provider"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of fresh cache hits",
		},
		[]string{"provider"},
	)
	CacheStaleServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStaleServesTotal",
			Help: "Stale cache entries served after an upstream failure",
		},
		[]string{"provider"},
	)
	CacheStaleAgeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheStaleAgeSeconds",
			Help:    "Age of stale cache entries at serve time",
			Buckets: []float64{60, 300, 900, 3600, 14400, 86400},
		},
	)
	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheEvictionsTotal",
			Help: "Entries evicted from the bounded in-memory cache",
		},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend failures by operation and category",
		},
		[]string{"operation", "category"},
	)
	RecordsNormalizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsNormalizedTotal",
			Help: "WeatherRecords produced by the normalizer",
		},
		[]string{"provider"},
	)
	RecordsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordsSkippedTotal",
			Help: "Malformed records skipped by the normalizer",
		},
		[]string{"provider"},
	)
	AlertsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertsEmittedTotal",
			Help: "Alert events emitted by the rule engine",
		},
		[]string{"severity"},
	)
	RefreshRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshRunsTotal",
			Help: "Background dataset refresh outcomes",
		},
		[]string{"dataset", "status"},
	)
	ArchiveWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiveWritesTotal",
			Help: "Archive write outcomes by kind",
		},
		[]string{"kind", "status"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		FetchCallsTotal, FetchDuration, FetchRetriesTotal,
		CacheHitsTotal, CacheStaleServesTotal, CacheStaleAgeSeconds,
		CacheEvictionsTotal, CacheErrorsTotal,
		RecordsNormalizedTotal, RecordsSkippedTotal,
		AlertsEmittedTotal, RefreshRunsTotal, ArchiveWritesTotal,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns the HTTP handler for the /metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
