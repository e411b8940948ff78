// logging.go — журнал запросов к API mediadeck.
//
// Одна запись на запрос после ответа. Пакетные операции отвечают 207,
// когда часть элементов не выполнена, поэтому 207 журналируется как WARN
// вместе с 4xx; 5xx — ERROR. Путь пишется и как есть, и шаблоном chi,
// чтобы записи одного маршрута группировались без разбора идентификаторов.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// statusRecorder запоминает первый отправленный статус и объём тела ответа.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	bytes       int64
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rec *statusRecorder) WriteHeader(code int) {
	if !rec.wroteHeader {
		rec.status = code
		rec.wroteHeader = true
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	rec.wroteHeader = true
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController (Flush, дедлайны записи).
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// levelFor выбирает уровень записи по статусу ответа.
func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest, status == http.StatusMultiStatus:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// RequestLogger журналирует каждый запрос: маршрут, владельца (userId из пути),
// статус, длительность и размер ответа. request_id берётся из chi RequestID,
// если тот подключён раньше.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("route", normalizePath(r)),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.bytes),
			}
			if userID := chi.URLParam(r, "userId"); userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			logger.LogAttrs(r.Context(), levelFor(rec.status), "HTTP запрос", attrs...)
		})
	}
}
