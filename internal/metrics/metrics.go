// Package metrics provides Prometheus metrics for flopview.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	identifyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flopview_identify_total",
			Help: "Total number of identify calls",
		},
		[]string{"result"},
	)

	identifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flopview_identify_duration_seconds",
			Help:    "Time spent scoring an image against every format",
			Buckets: prometheus.DefBuckets,
		},
	)

	mountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flopview_mount_total",
			Help: "Total number of mount attempts",
		},
		[]string{"filesystem", "status"},
	)

	mountDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flopview_mount_duration_seconds",
			Help:    "Time spent decoding, converting and mounting an image",
			Buckets: prometheus.DefBuckets,
		},
	)

	directoriesLoaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flopview_directories_loaded_total",
			Help: "Total number of directories listed into a browse tree",
		},
	)

	extractFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flopview_extract_items_total",
			Help: "Total number of extracted files and directories by outcome",
		},
		[]string{"outcome"},
	)

	extractBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flopview_extract_bytes_total",
			Help: "Total bytes written by extraction",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flopview_sessions_active",
			Help: "Number of open browse sessions",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flopview_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flopview_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordIdentify records one identify call and how many formats matched.
func RecordIdentify(matches int, duration time.Duration) {
	result := "matched"
	if matches == 0 {
		result = "unrecognized"
	}
	identifyTotal.WithLabelValues(result).Inc()
	identifyDuration.Observe(duration.Seconds())
}

// RecordMount records a mount attempt.
func RecordMount(filesystem, status string, duration time.Duration) {
	mountTotal.WithLabelValues(filesystem, status).Inc()
	mountDuration.Observe(duration.Seconds())
}

// RecordDirectoryLoad counts a directory listed into a tree.
func RecordDirectoryLoad() {
	directoriesLoaded.Inc()
}

// RecordExtract records one extracted item.
func RecordExtract(outcome string, bytes int64) {
	extractFilesTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		extractBytes.Add(float64(bytes))
	}
}

// SetActiveSessions sets the number of open browse sessions.
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request metrics. Requests are labelled by their route
// template so session ids do not explode the label space.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := "unmatched"
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
	})
}
