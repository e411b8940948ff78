// Пакет errors — ответы с ошибками в едином формате mediadeck:
// {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	stderrors "errors"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/bigkaa/mediadeck/internal/service"
)

// Коды ошибок API.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeUpstreamError    = "UPSTREAM_ERROR"
	CodeDeleteRolledBack = "DELETE_ROLLED_BACK"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternalError    = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Conflict — 409 занятый слот или устаревшее состояние.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// UpstreamError — 502 хранилище объектов или ffmpeg недоступны.
func UpstreamError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeUpstreamError, message)
}

// RateLimited — 429 превышен лимит пакетных операций.
func RateLimited(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// FromService переводит ошибку сервисного слоя в HTTP-ответ.
// Текст внутренних ошибок и ошибок зависимостей клиенту не отдаётся,
// только логируется.
func FromService(w http.ResponseWriter, err error, logger *slog.Logger) {
	var rb *service.RollbackError
	switch {
	case stderrors.As(err, &rb):
		logger.Error("Удаление файла отменено",
			slog.String("file_id", rb.FileID),
			slog.Bool("restored", rb.Restored),
			slog.Any("error", rb.Err),
		)
		msg := "файл не удалён из хранилища, запись восстановлена"
		if !rb.Restored {
			msg = "файл не удалён из хранилища, запись восстановить не удалось"
		}
		WriteError(w, http.StatusInternalServerError, CodeDeleteRolledBack, msg)
	case stderrors.Is(err, service.ErrValidation):
		ValidationError(w, err.Error())
	case stderrors.Is(err, service.ErrNotFound):
		NotFound(w, err.Error())
	case stderrors.Is(err, service.ErrConflict):
		Conflict(w, err.Error())
	case stderrors.Is(err, service.ErrUpstream):
		logger.Error("Ошибка внешней зависимости", slog.String("error", err.Error()))
		UpstreamError(w, "хранилище объектов или обработка медиа недоступны")
	default:
		logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		InternalError(w, "внутренняя ошибка сервера")
	}
}
