// limits.go — CORS и ограничение частоты пакетных операций.
package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	apierrors "github.com/bigkaa/mediadeck/internal/api/errors"
)

// CORS возвращает middleware go-chi/cors для заданных origins.
// Пустой список — CORS выключен, middleware ничего не делает.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
}

// BatchRateLimit ограничивает число пакетных запросов (рендер, упаковка,
// перенос) с одного IP за окно. requests <= 0 — без ограничения.
// Превышение лимита отвечает 429 в стандартном формате ошибок.
func BatchRateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			apierrors.RateLimited(w, "слишком много пакетных операций, повторите позже")
		}),
	)
}
