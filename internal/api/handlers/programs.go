// programs.go — программы пользователя.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/mediadeck/internal/api/errors"
	"github.com/bigkaa/mediadeck/internal/domain/model"
)

type createProgramRequest struct {
	ProgramID    string `json:"programId" validate:"max=128"`
	ProgramTitle string `json:"programTitle" validate:"required,max=200"`
}

type listProgramsResponse struct {
	Programs []programResponse `json:"programs"`
}

type reorderProgramsRequest struct {
	ProgramIDs []string `json:"programIds" validate:"required,min=1,max=1000,unique,dive,required"`
}

type applyResponse struct {
	Success  bool                `json:"success"`
	Replaced []fileResponse      `json:"replaced"`
	Errors   []itemErrorResponse `json:"errors"`
}

func toProgramResponse(p *model.Program) programResponse {
	return programResponse{
		ProgramID:    p.ProgramID,
		ProgramTitle: p.ProgramTitle,
		Position:     p.Position,
		CreatedAt:    p.CreatedAt,
	}
}

// ListPrograms — программы пользователя в порядке position.
func (h *APIHandler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.programs.List(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		apierrors.FromService(w, err, h.logger)
		return
	}
	resp := listProgramsResponse{Programs: make([]programResponse, 0, len(programs))}
	for _, p := range programs {
		resp.Programs = append(resp.Programs, toProgramResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateProgram — создание программы. Без programId идентификатор генерируется.
func (h *APIHandler) CreateProgram(w http.ResponseWriter, r *http.Request) {
	var req createProgramRequest
	if msg := decodeAndValidate(w, r, &req); msg != "" {
		apierrors.ValidationError(w, msg)
		return
	}
	p, err := h.programs.Create(r.Context(), chi.URLParam(r, "userId"), req.ProgramID, req.ProgramTitle)
	if err != nil {
		apierrors.FromService(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toProgramResponse(p))
}

// ReorderPrograms — полная замена порядка программ.
func (h *APIHandler) ReorderPrograms(w http.ResponseWriter, r *http.Request) {
	var req reorderProgramsRequest
	if msg := decodeAndValidate(w, r, &req); msg != "" {
		apierrors.ValidationError(w, msg)
		return
	}
	if err := h.programs.Reorder(r.Context(), chi.URLParam(r, "userId"), req.ProgramIDs); err != nil {
		apierrors.FromService(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// DeleteProgram — удаление программы с файлами.
func (h *APIHandler) DeleteProgram(w http.ResponseWriter, r *http.Request) {
	res, err := h.programs.Delete(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "programId"))
	if err != nil {
		apierrors.FromService(w, err, h.logger)
		return
	}
	writeJSON(w, batchStatus(len(res.OrphanedKeys)), toDeleteOwnerResponse(res))
}

// ApplyProgram — замена файлов плейлистов по совпадающим слотам.
func (h *APIHandler) ApplyProgram(w http.ResponseWriter, r *http.Request) {
	var req projectIDsRequest
	if msg := decodeAndValidate(w, r, &req); msg != "" {
		apierrors.ValidationError(w, msg)
		return
	}
	res, err := h.programs.Apply(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "programId"), req.ProjectIDs)
	if err != nil {
		apierrors.FromService(w, err, h.logger)
		return
	}
	writeJSON(w, batchStatus(len(res.Errors)), applyResponse{
		Success:  len(res.Errors) == 0,
		Replaced: toFileResponses(res.Replaced),
		Errors:   toItemErrors(res.Errors),
	})
}
