// metrics.go — Prometheus HTTP метрики Schema Module:
// sm_http_requests_total, sm_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sm_http_requests_total",
			Help: "Общее количество HTTP-запросов к Schema Module",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sm_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Schema Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

const schemasPrefix = "/api/v1/schemas/"

// normalizePath заменяет идентификатор схемы и вид реестра на шаблоны,
// чтобы не раздувать кардинальность лейбла path.
// /api/v1/schemas/a1b2.../fields/lineage → /api/v1/schemas/{id}/fields/{kind}
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/schemas",
		"/api/v1/schemas/default",
		"/api/v1/public-database-types",
		"/api/v1/metadata-visualization":
		return path
	}

	if !strings.HasPrefix(path, schemasPrefix) {
		return "other"
	}

	rest := strings.TrimPrefix(path, schemasPrefix)
	_, suffix, found := strings.Cut(rest, "/")
	if !found {
		return schemasPrefix + "{id}"
	}

	switch {
	case suffix == "file", suffix == "property-map", suffix == "form-fields",
		suffix == "validate", suffix == "default":
		return schemasPrefix + "{id}/" + suffix
	case strings.HasPrefix(suffix, "fields/"):
		return schemasPrefix + "{id}/fields/{kind}"
	}
	return "other"
}
