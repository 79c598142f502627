package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the permission engine
type Metrics struct {
	// Permission check metrics
	CheckRequestsTotal *prometheus.CounterVec
	CheckDuration      *prometheus.HistogramVec
	CheckBatchSize     prometheus.Histogram

	// Cache metrics
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheEvictionsTotal *prometheus.CounterVec
	CacheErrorsTotal    *prometheus.CounterVec

	// Resolver metrics
	ResolverDuration    prometheus.Histogram
	ResolverErrorsTotal prometheus.Counter

	// Invalidation metrics
	InvalidationEventsTotal  *prometheus.CounterVec
	InvalidationDuration     *prometheus.HistogramVec
	HighPrivilegeSweepsTotal prometheus.Counter
	EventsDroppedTotal       *prometheus.CounterVec
	DegradedMode             prometheus.Gauge

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		CheckRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_check_requests_total",
				Help: "Total number of permission checks",
			},
			[]string{"kind", "result"},
		),
		CheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_check_duration_seconds",
				Help:    "Permission check duration in seconds",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .2, .5},
			},
			[]string{"kind"},
		),
		CheckBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warden_check_batch_size",
				Help:    "Number of items per batch permission check",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"key_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"key_type"},
		),
		CacheEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_cache_evictions_total",
				Help: "Total number of cache evictions",
			},
			[]string{"key_type", "reason"},
		),
		CacheErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_cache_errors_total",
				Help: "Total number of cache operation failures",
			},
			[]string{"operation"},
		),

		ResolverDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warden_resolver_duration_seconds",
				Help:    "Permission resolution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .15, .25, .5},
			},
		),
		ResolverErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_resolver_errors_total",
				Help: "Total number of resolution failures",
			},
		),

		InvalidationEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_invalidation_events_total",
				Help: "Total number of invalidation events processed, by breadth tier",
			},
			[]string{"event", "tier", "outcome"},
		),
		InvalidationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_invalidation_duration_seconds",
				Help:    "Invalidation handler duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .2, .5, 1},
			},
			[]string{"tier"},
		),
		HighPrivilegeSweepsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_high_privilege_sweeps_total",
				Help: "Total number of organization-wide cache sweeps triggered by high-privilege permission changes",
			},
		),
		EventsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_events_dropped_total",
				Help: "Total number of domain events dropped by the consumer",
			},
			[]string{"reason"},
		),
		DegradedMode: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_cache_degraded_mode",
				Help: "1 when cache invalidation is degraded and effective TTLs are tightened",
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	registry.MustRegister(
		m.CheckRequestsTotal,
		m.CheckDuration,
		m.CheckBatchSize,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheEvictionsTotal,
		m.CacheErrorsTotal,
		m.ResolverDuration,
		m.ResolverErrorsTotal,
		m.InvalidationEventsTotal,
		m.InvalidationDuration,
		m.HighPrivilegeSweepsTotal,
		m.EventsDroppedTotal,
		m.DegradedMode,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
