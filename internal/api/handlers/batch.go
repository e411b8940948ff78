// batch.go — пакетные операции над плейлистами.
// POST /api/v1/users/{userId}/transfers
// POST /api/v1/users/{userId}/renders
// POST /api/v1/users/{userId}/packages
//
// Пакет не прерывается из-за ошибки одного элемента: ответ 200 если все
// элементы обработаны, 207 если часть завершилась ошибкой.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/mediadeck/internal/api/errors"
	"github.com/bigkaa/mediadeck/internal/archive"
	"github.com/bigkaa/mediadeck/internal/service"
)

type transferItemRequest struct {
	ProjectID      string  `json:"projectId" validate:"required,max=128"`
	SourceKey      string  `json:"sourceKey" validate:"required,max=1024"`
	DestinationKey string  `json:"destinationKey" validate:"max=1024"`
	FileName       string  `json:"fileName" validate:"max=255"`
	SlotPosition   string  `json:"slotPosition" validate:"slot"`
	Duration       *string `json:"duration" validate:"omitempty,max=64"`
	FrameRate      *string `json:"frameRate" validate:"omitempty,max=64"`
	Resolution     *string `json:"resolution" validate:"omitempty,max=64"`
}

type transferRequest struct {
	Files []transferItemRequest `json:"files" validate:"required,min=1,max=500,dive"`
}

type transferResponse struct {
	Success bool                `json:"success"`
	Files   []fileResponse      `json:"files"`
	Errors  []itemErrorResponse `json:"errors"`
}

type projectIDsRequest struct {
	ProjectIDs []string `json:"projectIds" validate:"required,min=1,max=100,unique,dive,required,max=128"`
}

type renderResponse struct {
	Success       bool                `json:"success"`
	RenderedFiles []fileResponse      `json:"renderedFiles"`
	Skipped       []string            `json:"skipped"`
	Errors        []itemErrorResponse `json:"errors"`
}

type packageResponse struct {
	Success   bool                `json:"success"`
	Key       string              `json:"key"`
	URL       string              `json:"url"`
	ExpiresAt time.Time           `json:"expiresAt"`
	FileCount int                 `json:"fileCount"`
	SizeBytes int64               `json:"sizeBytes"`
	Manifest  *archive.Manifest   `json:"manifest"`
	Errors    []itemErrorResponse `json:"errors"`
}

// TransferFiles — копирование объектов в плейлисты проектов.
func (h *APIHandler) TransferFiles(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if msg := decodeAndValidate(w, r, &req); msg != "" {
		apierrors.ValidationError(w, msg)
		return
	}

	items := make([]service.TransferItem, 0, len(req.Files))
	for _, f := range req.Files {
		items = append(items, service.TransferItem{
			ProjectID:      f.ProjectID,
			SourceKey:      f.SourceKey,
			DestinationKey: f.DestinationKey,
			FileName:       f.FileName,
			SlotPosition:   f.SlotPosition,
			Duration:       f.Duration,
			FrameRate:      f.FrameRate,
			Resolution:     f.Resolution,
		})
	}

	res, err := h.transfers.Transfer(r.Context(), chi.URLParam(r, "userId"), items)
	if err != nil {
		apierrors.FromService(w, err, h.logger)
		return
	}

	writeJSON(w, batchStatus(len(res.Errors)), transferResponse{
		Success: len(res.Errors) == 0,
		Files:   toFileResponses(res.Files),
		Errors:  toItemErrors(res.Errors),
	})
}

// RenderPlaylists — склейка плейлистов в видео.
// Пустые плейлисты попадают в skipped и ошибкой не считаются.
func (h *APIHandler) RenderPlaylists(w http.ResponseWriter, r *http.Request) {
	var req projectIDsRequest
	if msg := decodeAndValidate(w, r, &req); msg != "" {
		apierrors.ValidationError(w, msg)
		return
	}

	res, err := h.renders.Render(r.Context(), chi.URLParam(r, "userId"), req.ProjectIDs)
	if err != nil {
		apierrors.FromService(w, err, h.logger)
		return
	}

	skipped := res.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	writeJSON(w, batchStatus(len(res.Errors)), renderResponse{
		Success:       len(res.Errors) == 0,
		RenderedFiles: toFileResponses(res.RenderedFiles),
		Skipped:       skipped,
		Errors:        toItemErrors(res.Errors),
	})
}

// PackagePlaylists — zip-архив плейлистов с манифестом.
func (h *APIHandler) PackagePlaylists(w http.ResponseWriter, r *http.Request) {
	var req projectIDsRequest
	if msg := decodeAndValidate(w, r, &req); msg != "" {
		apierrors.ValidationError(w, msg)
		return
	}

	res, err := h.packages.Package(r.Context(), chi.URLParam(r, "userId"), req.ProjectIDs)
	if err != nil {
		apierrors.FromService(w, err, h.logger)
		return
	}

	writeJSON(w, batchStatus(len(res.Errors)), packageResponse{
		Success:   len(res.Errors) == 0,
		Key:       res.Key,
		URL:       res.URL,
		ExpiresAt: res.ExpiresAt,
		FileCount: res.FileCount,
		SizeBytes: res.SizeBytes,
		Manifest:  res.Manifest,
		Errors:    toItemErrors(res.Errors),
	})
}
