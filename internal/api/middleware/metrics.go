// metrics.go — Prometheus HTTP метрики mediadeck.
// Регистрирует метрики: md_http_requests_total, md_http_request_duration_seconds.
// Путь в лейблах — шаблон маршрута chi, чтобы идентификаторы
// пользователей и файлов не раздували кардинальность.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "md_http_requests_total",
			Help: "Общее количество HTTP-запросов к mediadeck",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "md_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к mediadeck в секундах",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 180},
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Должен подключаться к chi-роутеру: шаблон маршрута известен только
// после обработки запроса.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := newStatusRecorder(w)
			next.ServeHTTP(wrapped, r)

			path := normalizePath(r)
			status := strconv.Itoa(wrapped.status)

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath возвращает шаблон маршрута chi:
// /api/v1/users/u1/projects/p1/files → /api/v1/users/{userId}/projects/{projectId}/files.
// Неизвестные маршруты сводятся к одному лейблу.
func normalizePath(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unmatched"
}
