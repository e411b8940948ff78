// files.go — операции над списками файлов проектов и программ:
// список, извлечение метаданных, удаление, порядок, слоты, заметки.
// Один и тот же обработчик обслуживает и проект, и программу,
// список определяется функцией containerFn по параметрам маршрута.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/mediadeck/internal/api/errors"
	"github.com/bigkaa/mediadeck/internal/domain/model"
)

// containerFn определяет список по параметрам маршрута.
type containerFn func(r *http.Request) model.Container

// projectList — список проекта указанного типа ({projectId}).
func projectList(kind model.ContainerKind) containerFn {
	return func(r *http.Request) model.Container {
		return model.ProjectContainer(kind, chi.URLParam(r, "projectId"))
	}
}

// programFiles — банк файлов программы ({programId}).
func programFiles(r *http.Request) model.Container {
	return model.ProgramContainer(chi.URLParam(r, "programId"))
}

type listFilesResponse struct {
	Files []fileResponse `json:"files"`
}

type extractRequest struct {
	FileIDs []string `json:"fileIds" validate:"max=1000,dive,required"`
}

type extractItemResponse struct {
	FileID     string `json:"fileId"`
	FileName   string `json:"fileName,omitempty"`
	Duration   string `json:"duration,omitempty"`
	FrameRate  string `json:"frameRate,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Error      string `json:"error,omitempty"`
}

type extractResponse struct {
	Success bool                  `json:"success"`
	Updated int                   `json:"updated"`
	Failed  int                   `json:"failed"`
	Files   []extractItemResponse `json:"files"`
}

type reorderRequest struct {
	FileIDs []string `json:"fileIds" validate:"required,min=1,max=5000,unique,dive,required"`
}

type slotRequest struct {
	SlotPosition string `json:"slotPosition" validate:"slot"`
}

type slotResponse struct {
	Success bool         `json:"success"`
	File    fileResponse `json:"file"`
}

type slotStatusResponse struct {
	Slot      string `json:"slot"`
	Available bool   `json:"available"`
	FileID    string `json:"fileId,omitempty"`
}

type noteRequest struct {
	Text string `json:"text" validate:"required,max=180"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// listFiles — GET список файлов с подписанными URL.
func (h *APIHandler) listFiles(container containerFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := h.files.List(r.Context(), chi.URLParam(r, "userId"), container(r))
		if err != nil {
			apierrors.FromService(w, err, h.logger)
			return
		}
		resp := listFilesResponse{Files: make([]fileResponse, 0, len(views))}
		for _, v := range views {
			resp.Files = append(resp.Files, toFileResponse(v.Record, v.URL))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// extractMetadata — POST извлечение метаданных. Пустое тело — все файлы списка.
func (h *APIHandler) extractMetadata(container containerFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if r.ContentLength != 0 {
			if msg := decodeAndValidate(w, r, &req); msg != "" {
				apierrors.ValidationError(w, msg)
				return
			}
		}

		res, err := h.extract.Extract(r.Context(), chi.URLParam(r, "userId"), container(r), req.FileIDs)
		if err != nil {
			apierrors.FromService(w, err, h.logger)
			return
		}

		resp := extractResponse{
			Success: res.Failed == 0,
			Updated: res.Updated,
			Failed:  res.Failed,
			Files:   make([]extractItemResponse, 0, len(res.Items)),
		}
		for _, it := range res.Items {
			item := extractItemResponse{FileID: it.FileID, FileName: it.FileName, Error: it.Error}
			if it.Metadata != nil {
				item.Duration = it.Metadata.Duration
				item.FrameRate = it.Metadata.FrameRate
				item.Resolution = it.Metadata.Resolution
			}
			resp.Files = append(resp.Files, item)
		}
		writeJSON(w, batchStatus(res.Failed), resp)
	}
}

// deleteFile — DELETE файла с откатом записи при сбое хранилища.
func (h *APIHandler) deleteFile(container containerFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h.files.Delete(r.Context(), chi.URLParam(r, "userId"), container(r), chi.URLParam(r, "fileId"))
		if err != nil {
			apierrors.FromService(w, err, h.logger)
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

// reorderFiles — PUT полная замена порядка списка.
func (h *APIHandler) reorderFiles(container containerFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reorderRequest
		if msg := decodeAndValidate(w, r, &req); msg != "" {
			apierrors.ValidationError(w, msg)
			return
		}
		if err := h.files.Reorder(r.Context(), chi.URLParam(r, "userId"), container(r), req.FileIDs); err != nil {
			apierrors.FromService(w, err, h.logger)
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

// setSlot — PUT назначение или снятие слота файла.
func (h *APIHandler) setSlot(container containerFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req slotRequest
		if msg := decodeAndValidate(w, r, &req); msg != "" {
			apierrors.ValidationError(w, msg)
			return
		}
		rec, err := h.files.SetSlot(r.Context(), chi.URLParam(r, "userId"), container(r), chi.URLParam(r, "fileId"), req.SlotPosition)
		if err != nil {
			apierrors.FromService(w, err, h.logger)
			return
		}
		writeJSON(w, http.StatusOK, slotResponse{Success: true, File: toFileResponse(rec, "")})
	}
}

// checkSlot — GET занятость слота.
func (h *APIHandler) checkSlot(container containerFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := h.files.CheckSlot(r.Context(), chi.URLParam(r, "userId"), container(r), chi.URLParam(r, "slot"))
		if err != nil {
			apierrors.FromService(w, err, h.logger)
			return
		}
		writeJSON(w, http.StatusOK, slotStatusResponse{Slot: st.Slot, Available: st.Available, FileID: st.FileID})
	}
}

// AddNote — POST заметка к файлу плейлиста.
func (h *APIHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if msg := decodeAndValidate(w, r, &req); msg != "" {
		apierrors.ValidationError(w, msg)
		return
	}
	note, err := h.files.AddNote(r.Context(),
		chi.URLParam(r, "userId"), chi.URLParam(r, "projectId"), chi.URLParam(r, "fileId"), req.Text)
	if err != nil {
		apierrors.FromService(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteResponse(*note))
}

// DeleteNote — DELETE заметки.
func (h *APIHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	err := h.files.DeleteNote(r.Context(),
		chi.URLParam(r, "userId"), chi.URLParam(r, "projectId"), chi.URLParam(r, "fileId"), chi.URLParam(r, "noteId"))
	if err != nil {
		apierrors.FromService(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
