// projects.go — список и каскадное удаление проектов.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/mediadeck/internal/blobstore"
	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/repository"
)

// DeleteOwnerResult — итог удаления проекта или программы.
type DeleteOwnerResult struct {
	DeletedFiles int
	// OrphanedKeys — объекты, которые не удалось удалить из хранилища
	OrphanedKeys []string
}

// ProjectService — проекты пользователя.
type ProjectService struct {
	projects    repository.ProjectRepository
	store       blobstore.Store
	urls        *URLCache
	concurrency int
	logger      *slog.Logger
}

// NewProjectService создаёт сервис проектов.
func NewProjectService(
	projects repository.ProjectRepository,
	store blobstore.Store,
	urls *URLCache,
	concurrency int,
	logger *slog.Logger,
) *ProjectService {
	return &ProjectService{
		projects:    projects,
		store:       store,
		urls:        urls,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "projects")),
	}
}

// List возвращает проекты пользователя по времени создания.
func (s *ProjectService) List(ctx context.Context, userID string) ([]*model.Project, error) {
	if !validID(userID) {
		return nil, validationf("некорректный userId %q", userID)
	}
	projects, err := s.projects.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения проектов: %w", err)
	}
	return projects, nil
}

// Delete удаляет проект со всеми списками: сначала записи одной транзакцией,
// затем объекты по возвращённым ключам. Неудалённые объекты возвращаются
// в OrphanedKeys.
func (s *ProjectService) Delete(ctx context.Context, userID, projectID string) (*DeleteOwnerResult, error) {
	if err := checkContainer(userID, model.ProjectContainer(model.KindFiles, projectID)); err != nil {
		return nil, err
	}

	keys, err := s.projects.Delete(ctx, userID, projectID)
	fileOperationsTotal.WithLabelValues("delete_project", operationStatus(err)).Inc()
	if err != nil {
		return nil, mapRepoErr(err, "проект "+projectID)
	}

	res := purgeBlobs(ctx, s.store, s.urls, keys, s.concurrency, s.logger)
	s.logger.Info("Проект удалён",
		slog.String("user_id", userID),
		slog.String("project_id", projectID),
		slog.Int("files", res.DeletedFiles),
		slog.Int("orphaned", len(res.OrphanedKeys)),
	)
	return res, nil
}

// purgeBlobs удаляет объекты уже удалённых записей.
func purgeBlobs(ctx context.Context, store blobstore.Store, urls *URLCache, keys []string, concurrency int, logger *slog.Logger) *DeleteOwnerResult {
	for _, key := range keys {
		urls.Invalidate(key)
	}
	return &DeleteOwnerResult{
		DeletedFiles: len(keys),
		OrphanedKeys: deleteBlobs(ctx, store, keys, concurrency, logger),
	}
}
