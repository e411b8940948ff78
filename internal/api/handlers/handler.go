// handler.go — основной обработчик API mediadeck.
// Объединяет health и бизнес-обработчики, делегируя запросы в сервисный слой.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/service"
)

// Интерфейсы сервисного слоя. Реализуются типами из internal/service.

// Uploader — выдача URL загрузки и финализация.
type Uploader interface {
	IssueUploadURL(ctx context.Context, req service.UploadURLRequest) (*service.UploadURL, error)
	Finalize(ctx context.Context, req service.FinalizeRequest) ([]*model.FileRecord, error)
}

// FileManager — операции над записями одного списка.
type FileManager interface {
	List(ctx context.Context, userID string, c model.Container) ([]service.FileView, error)
	Delete(ctx context.Context, userID string, owner model.Container, fileID string) error
	Reorder(ctx context.Context, userID string, c model.Container, fileIDs []string) error
	SetSlot(ctx context.Context, userID string, owner model.Container, fileID, slot string) (*model.FileRecord, error)
	CheckSlot(ctx context.Context, userID string, c model.Container, slot string) (*service.SlotStatus, error)
	AddNote(ctx context.Context, userID, projectID, fileID, text string) (*model.Note, error)
	DeleteNote(ctx context.Context, userID, projectID, fileID, noteID string) error
}

// Extractor — извлечение метаданных.
type Extractor interface {
	Extract(ctx context.Context, userID string, c model.Container, fileIDs []string) (*service.ExtractResult, error)
}

// Transferer — перенос объектов в плейлисты.
type Transferer interface {
	Transfer(ctx context.Context, userID string, items []service.TransferItem) (*service.TransferResult, error)
}

// Renderer — рендер плейлистов.
type Renderer interface {
	Render(ctx context.Context, userID string, projectIDs []string) (*service.RenderResult, error)
}

// Packager — упаковка плейлистов в архив.
type Packager interface {
	Package(ctx context.Context, userID string, projectIDs []string) (*service.PackageResult, error)
}

// ProjectManager — проекты пользователя.
type ProjectManager interface {
	List(ctx context.Context, userID string) ([]*model.Project, error)
	Delete(ctx context.Context, userID, projectID string) (*service.DeleteOwnerResult, error)
}

// ProgramManager — программы пользователя.
type ProgramManager interface {
	Create(ctx context.Context, userID, programID, title string) (*model.Program, error)
	List(ctx context.Context, userID string) ([]*model.Program, error)
	Reorder(ctx context.Context, userID string, programIDs []string) error
	Delete(ctx context.Context, userID, programID string) (*service.DeleteOwnerResult, error)
	Apply(ctx context.Context, userID, programID string, projectIDs []string) (*service.ApplyResult, error)
}

// Services — зависимости APIHandler.
type Services struct {
	Uploads   Uploader
	Files     FileManager
	Extract   Extractor
	Transfers Transferer
	Renders   Renderer
	Packages  Packager
	Projects  ProjectManager
	Programs  ProgramManager
}

// APIHandler — основной обработчик API mediadeck.
type APIHandler struct {
	health    *HealthHandler
	uploads   Uploader
	files     FileManager
	extract   Extractor
	transfers Transferer
	renders   Renderer
	packages  Packager
	projects  ProjectManager
	programs  ProgramManager
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(health *HealthHandler, svc Services, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health:    health,
		uploads:   svc.Uploads,
		files:     svc.Files,
		extract:   svc.Extract,
		transfers: svc.Transfers,
		renders:   svc.Renders,
		packages:  svc.Packages,
		projects:  svc.Projects,
		programs:  svc.Programs,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// batchStatus — 200 если все элементы пакета обработаны, 207 при частичном сбое.
func batchStatus(failed int) int {
	if failed > 0 {
		return http.StatusMultiStatus
	}
	return http.StatusOK
}
