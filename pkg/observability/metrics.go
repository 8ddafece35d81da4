package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Auth metrics
	AuthOperationsTotal *prometheus.CounterVec
	TokensIssuedTotal   *prometheus.CounterVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
	StorageErrorsTotal       *prometheus.CounterVec
	BlobBytesTotal           prometheus.Gauge

	// Blob cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Embedded engine metrics
	DBStatementsTotal    *prometheus.CounterVec
	DBStatementDuration  *prometheus.HistogramVec
	DBTransactionsTotal  *prometheus.CounterVec
	RLSDenialsTotal      *prometheus.CounterVec

	// Business metrics
	UsersTotal    prometheus.Gauge
	SessionsTotal prometheus.Gauge
	BucketsTotal  prometheus.Gauge
	ObjectsTotal  prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "basestub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "basestub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "basestub_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "basestub_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Auth metrics
		AuthOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "basestub_auth_operations_total",
				Help: "Total number of auth operations",
			},
			[]string{"operation", "status"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "basestub_tokens_issued_total",
				Help: "Total number of access tokens issued",
			},
			[]string{"grant"},
		),

		// Storage metrics
		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "basestub_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "basestub_storage_operation_duration_seconds",
				Help:    "Storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),
		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "basestub_storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"operation", "backend", "error_type"},
		),
		BlobBytesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "basestub_blob_bytes_total",
				Help: "Total bytes held by the blob backend",
			},
		),

		// Blob cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "basestub_cache_hits_total",
				Help: "Total number of blob cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "basestub_cache_misses_total",
				Help: "Total number of blob cache misses",
			},
			[]string{"cache_type"},
		),

		// Embedded engine metrics
		DBStatementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "basestub_db_statements_total",
				Help: "Total number of SQL statements executed",
			},
			[]string{"command", "status"},
		),
		DBStatementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "basestub_db_statement_duration_seconds",
				Help:    "SQL statement duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"command"},
		),
		DBTransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "basestub_db_transactions_total",
				Help: "Total number of SQL transactions",
			},
			[]string{"status"},
		),
		RLSDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "basestub_rls_denials_total",
				Help: "Total number of writes rejected by row-level security",
			},
			[]string{"table"},
		),

		// Business metrics
		UsersTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "basestub_users_total",
				Help: "Total number of registered users",
			},
		),
		SessionsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "basestub_sessions_total",
				Help: "Number of live sessions",
			},
		),
		BucketsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "basestub_buckets_total",
				Help: "Total number of storage buckets",
			},
		),
		ObjectsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "basestub_objects_total",
				Help: "Total number of stored objects",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.AuthOperationsTotal,
		m.TokensIssuedTotal,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.StorageErrorsTotal,
		m.BlobBytesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBStatementsTotal,
		m.DBStatementDuration,
		m.DBTransactionsTotal,
		m.RLSDenialsTotal,
		m.UsersTotal,
		m.SessionsTotal,
		m.BucketsTotal,
		m.ObjectsTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Record request size
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			// Serve the request
			next.ServeHTTP(rw, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
