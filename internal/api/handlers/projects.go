// projects.go — проекты пользователя.
// GET    /api/v1/users/{userId}/projects
// DELETE /api/v1/users/{userId}/projects/{projectId}
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/mediadeck/internal/api/errors"
)

type listProjectsResponse struct {
	Projects []projectResponse `json:"projects"`
}

// ListProjects — проекты пользователя с названиями.
func (h *APIHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		apierrors.FromService(w, err, h.logger)
		return
	}
	resp := listProjectsResponse{Projects: make([]projectResponse, 0, len(projects))}
	for _, p := range projects {
		resp.Projects = append(resp.Projects, projectResponse{
			ProjectID:    p.ProjectID,
			ProjectTitle: p.ProjectTitle,
			CreatedAt:    p.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteProject — удаление проекта со всеми списками и объектами.
// Неудалённые объекты возвращаются в orphanedKeys со статусом 207.
func (h *APIHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	res, err := h.projects.Delete(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "projectId"))
	if err != nil {
		apierrors.FromService(w, err, h.logger)
		return
	}
	writeJSON(w, batchStatus(len(res.OrphanedKeys)), toDeleteOwnerResponse(res))
}
