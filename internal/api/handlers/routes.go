// routes.go — регистрация маршрутов API в chi-роутере.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/mediadeck/internal/domain/model"
)

// projectLists — списки проекта, доступные через /projects/{projectId}/{list}.
var projectLists = []model.ContainerKind{model.KindFiles, model.KindPlaylist, model.KindRender}

// HandlerFromMux регистрирует все маршруты API в router.
// batchMiddlewares применяются только к тяжёлым пакетным операциям
// (перенос, рендер, упаковка, применение программы).
func HandlerFromMux(h *APIHandler, router chi.Router, batchMiddlewares ...func(http.Handler) http.Handler) {
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route("/api/v1/users/{userId}", func(r chi.Router) {
		r.Post("/uploads/url", h.IssueUploadURL)
		r.Post("/uploads/finalize", h.FinalizeUpload)

		r.Get("/projects", h.ListProjects)
		r.Route("/projects/{projectId}", func(r chi.Router) {
			r.Delete("/", h.DeleteProject)

			for _, kind := range projectLists {
				list := projectList(kind)
				r.Get("/"+string(kind), h.listFiles(list))
				r.Post("/"+string(kind)+"/extract", h.extractMetadata(list))
				r.Get("/"+string(kind)+"/slots/{slot}", h.checkSlot(list))
			}

			// Файл адресуется внутри проекта независимо от списка
			owner := projectList(model.KindFiles)
			r.Put("/playlist/order", h.reorderFiles(projectList(model.KindPlaylist)))
			r.Delete("/files/{fileId}", h.deleteFile(owner))
			r.Put("/files/{fileId}/slot", h.setSlot(owner))
			r.Post("/files/{fileId}/notes", h.AddNote)
			r.Delete("/files/{fileId}/notes/{noteId}", h.DeleteNote)
		})

		r.Get("/programs", h.ListPrograms)
		r.Post("/programs", h.CreateProgram)
		r.Put("/programs/order", h.ReorderPrograms)
		r.Route("/programs/{programId}", func(r chi.Router) {
			r.Delete("/", h.DeleteProgram)
			r.Get("/files", h.listFiles(programFiles))
			r.Post("/files/extract", h.extractMetadata(programFiles))
			r.Put("/files/order", h.reorderFiles(programFiles))
			r.Delete("/files/{fileId}", h.deleteFile(programFiles))
			r.Put("/files/{fileId}/slot", h.setSlot(programFiles))
			r.Get("/slots/{slot}", h.checkSlot(programFiles))
			r.With(batchMiddlewares...).Post("/apply", h.ApplyProgram)
		})

		r.Group(func(r chi.Router) {
			r.Use(batchMiddlewares...)
			r.Post("/transfers", h.TransferFiles)
			r.Post("/renders", h.RenderPlaylists)
			r.Post("/packages", h.PackagePlaylists)
		})
	})
}
