// Package metrics provides Prometheus metrics for the media subsystem.
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
	// HTTP request metrics (media server)
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemedia_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagemedia_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	uploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagemedia_upload_bytes_total",
			Help: "Total bytes accepted by the upload endpoint",
		},
	)

	// Storage backend metrics
	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagemedia_storage_operation_duration_seconds",
			Help:    "Storage backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemedia_storage_operations_total",
			Help: "Total storage backend operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// Client-side API calls
	apiCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemedia_api_calls_total",
			Help: "Media API calls issued by the client",
		},
		[]string{"operation", "status"},
	)

	// Media extraction
	extractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemedia_media_extractions_total",
			Help: "Media extractions by source scheme and outcome",
		},
		[]string{"scheme", "outcome"},
	)

	// Export / import
	exportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemedia_exports_total",
			Help: "Project exports",
		},
		[]string{"status"},
	)

	exportedMediaTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemedia_exported_media_total",
			Help: "Exported media files by variant",
		},
		[]string{"variant"},
	)

	importsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemedia_imports_total",
			Help: "Project imports",
		},
		[]string{"status"},
	)

	restoredMediaTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagemedia_restored_media_total",
			Help: "Restored media files by variant and outcome",
		},
		[]string{"variant", "outcome"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordUpload records accepted upload bytes.
func RecordUpload(bytes int64) {
	uploadBytes.Add(float64(bytes))
}

// RecordStorageOperation records a storage backend operation.
func RecordStorageOperation(backend, operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	storageOperationsTotal.WithLabelValues(backend, operation, status(success)).Inc()
}

// RecordAPICall records a client-side media API call.
func RecordAPICall(operation string, success bool) {
	apiCallsTotal.WithLabelValues(operation, status(success)).Inc()
}

// RecordExtraction records a media extraction outcome.
func RecordExtraction(scheme, outcome string) {
	extractionsTotal.WithLabelValues(scheme, outcome).Inc()
}

// RecordExport records a finished export.
func RecordExport(success bool) {
	exportsTotal.WithLabelValues(status(success)).Inc()
}

// RecordExportedMedia records one exported media file.
func RecordExportedMedia(variant string) {
	exportedMediaTotal.WithLabelValues(variant).Inc()
}

// RecordImport records a finished import.
func RecordImport(success bool) {
	importsTotal.WithLabelValues(status(success)).Inc()
}

// RecordRestoredMedia records one restored media file.
func RecordRestoredMedia(variant, outcome string) {
	restoredMediaTotal.WithLabelValues(variant, outcome).Inc()
}

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

// Middleware returns HTTP middleware that records request metrics.
// The route pattern is used as the path label to keep cardinality bounded.
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
