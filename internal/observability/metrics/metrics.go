package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/andrsadr/koravi/pkg/cache"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "koravi_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "koravi_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	backendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "koravi_backend_operation_duration_seconds",
		Help:    "Duration of client store operations including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "result"})

	retries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "koravi_backend_retries_total",
		Help: "Count of retried client store operations",
	}, []string{"operation"})

	cacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "koravi_cache_invalidations_total",
		Help: "Cache entries dropped by pattern invalidation",
	}, []string{"source"})

	statsFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "koravi_stats_fallback_total",
		Help: "Stats computed by tallying statuses after the aggregate query failed",
	})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "koravi_backend_breaker_state",
		Help: "Backend circuit breaker state (0 closed, 1 open, 2 half-open)",
	})

	cacheWarmRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "koravi_cache_warm_runs_total",
		Help: "Count of cache warming runs by result",
	}, []string{"result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveBackend records a store operation with its result label.
func ObserveBackend(operation, result string, duration time.Duration) {
	backendDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
}

// ObserveRetry counts a retry of the given operation.
func ObserveRetry(operation string) {
	retries.WithLabelValues(operation).Inc()
}

// ObserveInvalidation adds dropped cache entries for a source (local or remote).
func ObserveInvalidation(source string, count int) {
	if count <= 0 {
		return
	}
	cacheInvalidations.WithLabelValues(source).Add(float64(count))
}

// ObserveStatsFallback counts a client-side stats tally
func ObserveStatsFallback() {
	statsFallbacks.Inc()
}

// SetBreakerState publishes the breaker state
func SetBreakerState(state int) {
	breakerState.Set(float64(state))
}

// ObserveCacheWarm counts a warming run
func ObserveCacheWarm(result string) {
	cacheWarmRuns.WithLabelValues(result).Inc()
}

// RegisterCache exposes the counters of c under the given name
func RegisterCache(reg prometheus.Registerer, name string, c *cache.Cache) {
	labels := prometheus.Labels{"cache": name}
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "koravi_cache_hits_total",
			Help:        "Cache lookups served from memory",
			ConstLabels: labels,
		}, func() float64 { return float64(c.Stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "koravi_cache_misses_total",
			Help:        "Cache lookups that required a fetch",
			ConstLabels: labels,
		}, func() float64 { return float64(c.Stats().Misses) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "koravi_cache_evictions_total",
			Help:        "Entries evicted by the size bound",
			ConstLabels: labels,
		}, func() float64 { return float64(c.Stats().Evictions) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "koravi_cache_entries",
			Help:        "Entries currently stored",
			ConstLabels: labels,
		}, func() float64 { return float64(c.Len()) }),
	)
}
