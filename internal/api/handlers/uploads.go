// uploads.go — выдача URL загрузки и финализация загрузки.
// POST /api/v1/users/{userId}/uploads/url
// POST /api/v1/users/{userId}/uploads/finalize
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/mediadeck/internal/api/errors"
	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/service"
)

type uploadURLRequest struct {
	List       string `json:"list" validate:"required,oneof=files playlist program"`
	OwnerID    string `json:"ownerId" validate:"required,max=128"`
	FileName   string `json:"fileName" validate:"required,max=255"`
	FileType   string `json:"fileType" validate:"required,max=255"`
	AccessType string `json:"accessType" validate:"omitempty,access"`
}

type uploadURLResponse struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	FileName  string    `json:"fileName"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type finalizeEntry struct {
	Key          string `json:"key" validate:"required,max=1024"`
	FileName     string `json:"fileName" validate:"max=255"`
	SeqPos       int    `json:"seqPos" validate:"min=0"`
	SlotPosition string `json:"slotPosition" validate:"slot"`
}

type finalizeRequest struct {
	List       string          `json:"list" validate:"required,oneof=files playlist program"`
	OwnerID    string          `json:"ownerId" validate:"required,max=128"`
	OwnerTitle string          `json:"ownerTitle" validate:"max=200"`
	AccessType string          `json:"accessType" validate:"omitempty,access"`
	Files      []finalizeEntry `json:"files" validate:"required,min=1,max=500,dive"`
}

type finalizeResponse struct {
	Success bool           `json:"success"`
	Files   []fileResponse `json:"files"`
}

// uploadTarget переводит пару list/ownerId тела запроса в список.
func uploadTarget(list, ownerID string) model.Container {
	kind := model.ContainerKind(list)
	if kind.OwnedByProgram() {
		return model.ProgramContainer(ownerID)
	}
	return model.ProjectContainer(kind, ownerID)
}

func accessOrDefault(s string) model.AccessType {
	if s == "" {
		return model.AccessPrivate
	}
	return model.AccessType(s)
}

// IssueUploadURL — POST /uploads/url.
func (h *APIHandler) IssueUploadURL(w http.ResponseWriter, r *http.Request) {
	var req uploadURLRequest
	if msg := decodeAndValidate(w, r, &req); msg != "" {
		apierrors.ValidationError(w, msg)
		return
	}

	res, err := h.uploads.IssueUploadURL(r.Context(), service.UploadURLRequest{
		UserID:     chi.URLParam(r, "userId"),
		Container:  uploadTarget(req.List, req.OwnerID),
		FileName:   req.FileName,
		FileType:   req.FileType,
		AccessType: accessOrDefault(req.AccessType),
	})
	if err != nil {
		apierrors.FromService(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, uploadURLResponse{
		URL:       res.URL,
		Key:       res.Key,
		FileName:  res.FileName,
		ExpiresAt: res.ExpiresAt,
	})
}

// FinalizeUpload — POST /uploads/finalize.
func (h *APIHandler) FinalizeUpload(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if msg := decodeAndValidate(w, r, &req); msg != "" {
		apierrors.ValidationError(w, msg)
		return
	}

	entries := make([]service.FinalizeEntry, 0, len(req.Files))
	for _, f := range req.Files {
		entries = append(entries, service.FinalizeEntry{
			Key:          f.Key,
			FileName:     f.FileName,
			SeqPos:       f.SeqPos,
			SlotPosition: f.SlotPosition,
		})
	}

	recs, err := h.uploads.Finalize(r.Context(), service.FinalizeRequest{
		UserID:     chi.URLParam(r, "userId"),
		Container:  uploadTarget(req.List, req.OwnerID),
		OwnerTitle: req.OwnerTitle,
		AccessType: accessOrDefault(req.AccessType),
		Files:      entries,
	})
	if err != nil {
		apierrors.FromService(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, finalizeResponse{Success: true, Files: toFileResponses(recs)})
}
