// programs.go — программы пользователя: создание, порядок, удаление
// и применение программы к плейлистам проектов.
//
// Применение программы заменяет в плейлистах файлы с непустым слотом
// на файл программы с тем же слотом: объект копируется в плейлист,
// запись заменяется одной транзакцией, старый объект удаляется.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/mediadeck/internal/blobstore"
	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/repository"
)

// ApplyResult — итог применения программы.
type ApplyResult struct {
	Replaced []*model.FileRecord
	Errors   []ItemError
}

// ProgramService — программы пользователя.
type ProgramService struct {
	programs    repository.ProgramRepository
	projects    repository.ProjectRepository
	files       repository.FileRepository
	store       blobstore.Store
	urls        *URLCache
	concurrency int
	logger      *slog.Logger
}

// NewProgramService создаёт сервис программ.
func NewProgramService(
	programs repository.ProgramRepository,
	projects repository.ProjectRepository,
	files repository.FileRepository,
	store blobstore.Store,
	urls *URLCache,
	concurrency int,
	logger *slog.Logger,
) *ProgramService {
	return &ProgramService{
		programs:    programs,
		projects:    projects,
		files:       files,
		store:       store,
		urls:        urls,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "programs")),
	}
}

// Create создаёт программу или обновляет её название.
// Пустой programID — новый UUID.
func (s *ProgramService) Create(ctx context.Context, userID, programID, title string) (*model.Program, error) {
	if programID == "" {
		programID = uuid.New().String()
	}
	if err := checkContainer(userID, model.ProgramContainer(programID)); err != nil {
		return nil, err
	}

	p := &model.Program{UserID: userID, ProgramID: programID, ProgramTitle: title}
	if err := s.programs.Ensure(ctx, p); err != nil {
		return nil, mapRepoErr(err, "ошибка сохранения программы")
	}
	return p, nil
}

// List возвращает программы пользователя по position.
func (s *ProgramService) List(ctx context.Context, userID string) ([]*model.Program, error) {
	if !validID(userID) {
		return nil, validationf("некорректный userId %q", userID)
	}
	programs, err := s.programs.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения программ: %w", err)
	}
	return programs, nil
}

// Reorder заменяет порядок программ целиком.
func (s *ProgramService) Reorder(ctx context.Context, userID string, programIDs []string) error {
	if !validID(userID) {
		return validationf("некорректный userId %q", userID)
	}
	if len(programIDs) == 0 {
		return validationf("список программ пуст")
	}
	return mapRepoErr(s.programs.Reorder(ctx, userID, programIDs), "ошибка изменения порядка программ")
}

// Delete удаляет программу, её записи и объекты.
func (s *ProgramService) Delete(ctx context.Context, userID, programID string) (*DeleteOwnerResult, error) {
	c := model.ProgramContainer(programID)
	if err := checkContainer(userID, c); err != nil {
		return nil, err
	}

	keys, err := s.programs.Delete(ctx, userID, programID)
	fileOperationsTotal.WithLabelValues("delete_program", operationStatus(err)).Inc()
	if err != nil {
		return nil, mapRepoErr(err, "программа "+programID)
	}

	res := purgeBlobs(ctx, s.store, s.urls, keys, s.concurrency, s.logger)
	s.logger.Info("Программа удалена",
		slog.String("user_id", userID),
		slog.String("program_id", programID),
		slog.Int("files", res.DeletedFiles),
		slog.Int("orphaned", len(res.OrphanedKeys)),
	)
	return res, nil
}

// Apply применяет программу к плейлистам проектов.
func (s *ProgramService) Apply(ctx context.Context, userID, programID string, projectIDs []string) (*ApplyResult, error) {
	c := model.ProgramContainer(programID)
	if err := checkContainer(userID, c); err != nil {
		return nil, err
	}
	if err := checkProjectIDs(userID, projectIDs); err != nil {
		return nil, err
	}
	if _, err := s.programs.Get(ctx, userID, programID); err != nil {
		return nil, mapRepoErr(err, "программа "+programID)
	}

	programFiles, err := s.files.ListByContainer(ctx, userID, c)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файлов программы: %w", err)
	}
	bySlot := make(map[string]*model.FileRecord)
	for _, rec := range programFiles {
		if rec.SlotPosition != "" {
			bySlot[rec.SlotPosition] = rec
		}
	}

	replaced := make([][]*model.FileRecord, len(projectIDs))
	errs := make([][]ItemError, len(projectIDs))
	g := new(errgroup.Group)
	g.SetLimit(batchLimit(s.concurrency))
	for i, projectID := range projectIDs {
		g.Go(func() error {
			replaced[i], errs[i] = s.applyToPlaylist(ctx, userID, projectID, bySlot)
			return nil
		})
	}
	_ = g.Wait()

	res := &ApplyResult{Replaced: make([]*model.FileRecord, 0), Errors: make([]ItemError, 0)}
	for i := range projectIDs {
		res.Replaced = append(res.Replaced, replaced[i]...)
		res.Errors = append(res.Errors, errs[i]...)
	}

	s.logger.Info("Программа применена",
		slog.String("user_id", userID),
		slog.String("program_id", programID),
		slog.Int("playlists", len(projectIDs)),
		slog.Int("replaced", len(res.Replaced)),
		slog.Int("errors", len(res.Errors)),
	)
	return res, nil
}

// applyToPlaylist заменяет файлы одного плейлиста по совпадающим слотам.
func (s *ProgramService) applyToPlaylist(ctx context.Context, userID, projectID string, bySlot map[string]*model.FileRecord) ([]*model.FileRecord, []ItemError) {
	if _, err := s.projects.Get(ctx, userID, projectID); err != nil {
		return nil, []ItemError{{ID: projectID, Error: mapRepoErr(err, "проект "+projectID).Error()}}
	}

	recs, err := s.files.ListByContainer(ctx, userID, model.ProjectContainer(model.KindPlaylist, projectID))
	if err != nil {
		return nil, []ItemError{{ID: projectID, Error: err.Error()}}
	}

	var (
		replaced []*model.FileRecord
		errs     []ItemError
	)
	for _, old := range recs {
		src, ok := bySlot[old.SlotPosition]
		if old.SlotPosition == "" || !ok {
			continue
		}
		rec, err := s.replaceOne(ctx, userID, projectID, old, src)
		fileOperationsTotal.WithLabelValues("apply_program", operationStatus(err)).Inc()
		if err != nil {
			errs = append(errs, ItemError{ID: projectID, Error: fmt.Sprintf("слот %s: %v", old.SlotPosition, err)})
			continue
		}
		replaced = append(replaced, rec)
	}
	return replaced, errs
}

// replaceOne копирует объект программы в плейлист под новым ключом
// и заменяет запись. Копию удаляет только сам replaceOne и только свою.
func (s *ProgramService) replaceOne(ctx context.Context, userID, projectID string, old, src *model.FileRecord) (*model.FileRecord, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	newKey := model.PlaylistCopyKey(userID, projectID, id, src.Key, now)
	if err := s.store.Copy(ctx, src.Key, newKey, model.AccessPrivate); err != nil {
		return nil, upstream(fmt.Errorf("копирование %s: %w", src.Key, err))
	}

	rec := &model.FileRecord{
		FileID:     id,
		UserID:     userID,
		Container:  model.ProjectContainer(model.KindPlaylist, projectID),
		Key:        newKey,
		FileName:   src.FileName,
		AccessType: model.AccessPrivate,
		Duration:   src.Duration,
		FrameRate:  src.FrameRate,
		Resolution: src.Resolution,
		CreatedAt:  now,
	}
	if err := s.files.Replace(ctx, old.FileID, rec); err != nil {
		if delErr := s.store.Delete(ctx, newKey); delErr != nil {
			s.logger.Error("Копия не удалена после ошибки замены записи",
				slog.String("key", newKey),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, mapRepoErr(err, "замена записи "+old.FileID)
	}

	s.urls.Invalidate(old.Key)
	if err := s.store.Delete(ctx, old.Key); err != nil {
		s.logger.Warn("Заменённый объект не удалён из хранилища",
			slog.String("key", old.Key),
			slog.String("error", err.Error()),
		)
	}
	return rec, nil
}
