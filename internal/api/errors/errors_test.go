package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/bigkaa/mediadeck/internal/service"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("ошибка декодирования ответа: %v", err)
	}
	return body
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusConflict, CodeConflict, "слот занят")

	if rec.Code != http.StatusConflict {
		t.Errorf("статус = %d, ожидается 409", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decodeBody(t, rec)
	if body.Error.Code != CodeConflict || body.Error.Message != "слот занят" {
		t.Errorf("тело = %+v", body)
	}
}

func TestFromService(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		hideDetail bool
	}{
		{"валидация", fmt.Errorf("%w: пустой список", service.ErrValidation), 400, CodeValidationError, false},
		{"не найдено", fmt.Errorf("проект p1: %w", service.ErrNotFound), 404, CodeNotFound, false},
		{"конфликт", fmt.Errorf("слот a: %w", service.ErrConflict), 409, CodeConflict, false},
		{"хранилище", fmt.Errorf("%w: dial tcp 10.0.0.1", service.ErrUpstream), 502, CodeUpstreamError, true},
		{"откат", &service.RollbackError{FileID: "f1", Restored: true, Err: stderrors.New("s3 down")}, 500, CodeDeleteRolledBack, true},
		{"внутренняя", stderrors.New("pq: secret table"), 500, CodeInternalError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromService(rec, tt.err, logger)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			body := decodeBody(t, rec)
			if body.Error.Code != tt.wantCode {
				t.Errorf("code = %q, ожидается %q", body.Error.Code, tt.wantCode)
			}
			if tt.hideDetail && strings.Contains(body.Error.Message, tt.err.Error()) {
				t.Errorf("сообщение раскрывает внутреннюю ошибку: %q", body.Error.Message)
			}
		})
	}
}

func TestFromService_RollbackNotRestored(t *testing.T) {
	rec := httptest.NewRecorder()
	err := fmt.Errorf("delete: %w", &service.RollbackError{FileID: "f1", Restored: false, Err: stderrors.New("timeout")})
	FromService(rec, err, slog.New(slog.NewTextHandler(io.Discard, nil)))

	body := decodeBody(t, rec)
	if !strings.Contains(body.Error.Message, "восстановить не удалось") {
		t.Errorf("сообщение = %q, ожидается признак невосстановленной записи", body.Error.Message)
	}
}
