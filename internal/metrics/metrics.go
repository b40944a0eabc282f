// Package metrics provides Prometheus metrics for the fragments service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragments_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fragments_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Fragment payload metrics
	fragmentBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fragments_bytes_written_total",
			Help: "Total fragment payload bytes written",
		},
	)

	fragmentBytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fragments_bytes_read_total",
			Help: "Total fragment payload bytes served",
		},
	)

	fragmentWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragments_writes_total",
			Help: "Total fragment writes",
		},
		[]string{"status"},
	)

	// Conversion metrics
	conversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragments_conversions_total",
			Help: "Total conversions by source and target type",
		},
		[]string{"source", "target", "status"},
	)

	conversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fragments_conversion_duration_seconds",
			Help:    "Conversion duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "target"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragments_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fragments_rate_limited_total",
			Help: "Total requests rejected by the rate limiter",
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fragments_db_query_duration_seconds",
			Help:    "Metadata query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	// Storage backend metrics
	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fragments_storage_operation_duration_seconds",
			Help:    "Payload storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragments_storage_operations_total",
			Help: "Total payload storage operations",
		},
		[]string{"backend", "operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordFragmentWrite records a create or replace.
func RecordFragmentWrite(bytes int64, success bool) {
	if success {
		fragmentBytesWritten.Add(float64(bytes))
	}
	fragmentWritesTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordFragmentRead records payload bytes sent to a client.
func RecordFragmentRead(bytes int64) {
	fragmentBytesRead.Add(float64(bytes))
}

// RecordConversion records one non-identity conversion attempt.
func RecordConversion(source, target string, duration time.Duration, success bool) {
	conversionsTotal.WithLabelValues(source, target, statusLabel(success)).Inc()
	conversionDuration.WithLabelValues(source, target).Observe(duration.Seconds())
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordRateLimited counts a request refused by the limiter.
func RecordRateLimited() {
	rateLimitedTotal.Inc()
}

// RecordDBQuery records a metadata query duration.
func RecordDBQuery(query string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// RecordStorageOperation records a payload backend operation.
func RecordStorageOperation(backend, operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	storageOperationsTotal.WithLabelValues(backend, operation, statusLabel(success)).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics. Requests
// are labelled by their ServeMux pattern so fragment ids stay out of the
// label set.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
	})
}
