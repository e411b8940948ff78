// upload.go — выдача URL для загрузки и финализация загрузки.
//
// Клиент загружает объект напрямую в S3 по подписанному PUT URL,
// затем вызывает финализацию: сервис создаёт проект/программу (если нужно)
// и добавляет записи файлов одной транзакцией. Хранилище при финализации
// не затрагивается.
package service

import (
	"context"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/mediadeck/internal/blobstore"
	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/repository"
)

// UploadURLRequest — параметры выдачи URL для загрузки.
type UploadURLRequest struct {
	UserID     string
	Container  model.Container
	FileName   string
	FileType   string
	AccessType model.AccessType
}

// UploadURL — подписанный URL и ключ будущего объекта.
type UploadURL struct {
	URL       string
	Key       string
	FileName  string
	ExpiresAt time.Time
}

// FinalizeEntry — один загруженный объект.
type FinalizeEntry struct {
	Key          string
	FileName     string
	SeqPos       int
	SlotPosition string
}

// FinalizeRequest — параметры финализации загрузки.
type FinalizeRequest struct {
	UserID     string
	Container  model.Container
	OwnerTitle string
	AccessType model.AccessType
	Files      []FinalizeEntry
}

// UploadService — загрузка файлов в проекты и программы.
type UploadService struct {
	files     repository.FileRepository
	owners    owners
	store     blobstore.Store
	uploadTTL time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(
	files repository.FileRepository,
	projects repository.ProjectRepository,
	programs repository.ProgramRepository,
	store blobstore.Store,
	uploadTTL time.Duration,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		files:     files,
		owners:    owners{projects: projects, programs: programs},
		store:     store,
		uploadTTL: uploadTTL,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "upload")),
	}
}

// checkUploadTarget — загрузка возможна в банк, плейлист или программу.
func checkUploadTarget(userID string, c model.Container, access model.AccessType) error {
	if err := checkContainer(userID, c); err != nil {
		return err
	}
	if c.Kind == model.KindRender {
		return validationf("загрузка в список рендеров недоступна")
	}
	if !access.Valid() {
		return validationf("недопустимый accessType %q, допустимые: private, public-read", access)
	}
	return nil
}

// IssueUploadURL строит ключ по раскладке хранилища и подписывает PUT URL
// с типом содержимого и ACL.
func (s *UploadService) IssueUploadURL(ctx context.Context, req UploadURLRequest) (*UploadURL, error) {
	if err := checkUploadTarget(req.UserID, req.Container, req.AccessType); err != nil {
		return nil, err
	}
	name := model.SanitizeFileName(req.FileName)
	if name == "" {
		return nil, validationf("имя файла %q пусто после очистки", req.FileName)
	}
	if req.FileType == "" {
		return nil, validationf("не указан fileType")
	}

	now := s.now()
	key := model.UploadKey(req.UserID, req.Container, uuid.New().String(), name, now)

	u, err := s.store.PresignPut(ctx, key, req.FileType, req.AccessType, s.uploadTTL)
	fileOperationsTotal.WithLabelValues("upload_url", operationStatus(err)).Inc()
	if err != nil {
		return nil, upstream(err)
	}

	s.logger.Debug("Выдан URL для загрузки",
		slog.String("user_id", req.UserID),
		slog.String("container", req.Container.String()),
		slog.String("key", key),
	)

	return &UploadURL{URL: u, Key: key, FileName: name, ExpiresAt: now.Add(s.uploadTTL)}, nil
}

// Finalize регистрирует загруженные объекты. Конфликт слота
// отменяет всю пачку.
func (s *UploadService) Finalize(ctx context.Context, req FinalizeRequest) ([]*model.FileRecord, error) {
	if err := checkUploadTarget(req.UserID, req.Container, req.AccessType); err != nil {
		return nil, err
	}
	if len(req.Files) == 0 {
		return nil, validationf("список файлов пуст")
	}

	slots := make(map[string]string, len(req.Files))
	recs := make([]*model.FileRecord, 0, len(req.Files))
	for _, f := range req.Files {
		if !model.KeyBelongsTo(f.Key, req.UserID, req.Container) {
			return nil, validationf("ключ %q не принадлежит списку %s", f.Key, req.Container)
		}
		if f.SeqPos < 0 {
			return nil, validationf("seqPos не может быть отрицательным")
		}
		if !model.ValidSlot(f.SlotPosition) {
			return nil, validationf("слот %q: допустима одна буква a-z", f.SlotPosition)
		}
		if f.SlotPosition != "" {
			if prev, ok := slots[f.SlotPosition]; ok {
				return nil, mapRepoErr(repository.ErrConflict, "слот "+f.SlotPosition+" уже назначен файлу "+prev)
			}
			slots[f.SlotPosition] = f.Key
		}

		name := model.SanitizeFileName(f.FileName)
		if name == "" {
			name = path.Base(f.Key)
		}
		recs = append(recs, &model.FileRecord{
			Key:          f.Key,
			FileName:     name,
			AccessType:   req.AccessType,
			SeqPos:       f.SeqPos,
			SlotPosition: f.SlotPosition,
		})
	}

	if err := s.owners.ensure(ctx, req.UserID, req.Container, req.OwnerTitle); err != nil {
		return nil, err
	}

	err := s.files.Append(ctx, req.UserID, req.Container, recs)
	fileOperationsTotal.WithLabelValues("finalize", operationStatus(err)).Inc()
	if err != nil {
		return nil, mapRepoErr(err, "ошибка добавления файлов")
	}

	s.logger.Info("Загрузка финализирована",
		slog.String("user_id", req.UserID),
		slog.String("container", req.Container.String()),
		slog.Int("files", len(recs)),
	)
	return recs, nil
}
