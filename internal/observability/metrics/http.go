package metrics

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics covers the submission API: request traffic plus what was
// uploaded, per batch and per file.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	uploadedFiles *prometheus.CounterVec
	uploadBytes   *prometheus.HistogramVec
	batchFiles    prometheus.Histogram
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	m := &HTTPServerMetrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "sumflow",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "HTTP requests by route and status.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "sumflow",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration by route.",
			Buckets:     []float64{.005, .025, .1, .5, 1, 2.5, 10, 30, 120},
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
		requestInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "sumflow",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		}),
		uploadedFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "sumflow",
			Subsystem:   "upload",
			Name:        "files_total",
			Help:        "Files accepted for processing by extension.",
			ConstLabels: constLabels,
		}, []string{"ext"}),
		uploadBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "sumflow",
			Subsystem:   "upload",
			Name:        "file_bytes",
			Help:        "Size of accepted files by extension.",
			Buckets:     prometheus.ExponentialBuckets(16<<10, 4, 8),
			ConstLabels: constLabels,
		}, []string{"ext"}),
		batchFiles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "sumflow",
			Subsystem:   "upload",
			Name:        "batch_files",
			Help:        "Files per accepted batch.",
			Buckets:     []float64{1, 2, 5, 10, 20, 50},
			ConstLabels: constLabels,
		}),
	}
	registry.MustRegister(
		m.requestTotal, m.requestDuration, m.requestInFlight,
		m.uploadedFiles, m.uploadBytes, m.batchFiles,
	)
	return m
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware labels requests by the matched route pattern, falling back to a
// collapsed path for requests the mux did not match.
func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		route := routeLabel(r)
		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// AcceptedFile describes one file of an accepted batch.
type AcceptedFile struct {
	Filename string
	Size     int64
}

func (m *HTTPServerMetrics) RecordBatch(files []AcceptedFile) {
	m.batchFiles.Observe(float64(len(files)))
	for _, f := range files {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Filename)), ".")
		if ext == "" {
			ext = "none"
		}
		m.uploadedFiles.WithLabelValues(ext).Inc()
		if f.Size > 0 {
			m.uploadBytes.WithLabelValues(ext).Observe(float64(f.Size))
		}
	}
}

func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		if _, path, ok := strings.Cut(r.Pattern, " "); ok {
			return path
		}
		return r.Pattern
	}
	return normalizePath(r.URL.Path)
}

// normalizePath collapses ids so label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/tasks/") && strings.HasSuffix(path, "/text"):
		return "/v1/tasks/{task_id}/text"
	case strings.HasPrefix(path, "/v1/tasks/"):
		return "/v1/tasks/{task_id}"
	case strings.HasPrefix(path, "/v1/batches/") && strings.HasSuffix(path, "/export.xlsx"):
		return "/v1/batches/{batch_id}/export.xlsx"
	case strings.HasPrefix(path, "/v1/batches/"):
		return "/v1/batches/{batch_id}"
	case path == "/v1/batches", path == "/healthz", path == "/metrics":
		return path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
