// transfer.go — перенос (дублирование) объектов в плейлисты проектов.
//
// Объект копируется на стороне хранилища, затем атомарно вставляется
// новая запись. Ключ назначения по умолчанию содержит fileId новой записи;
// занятый ключ назначения — конфликт элемента, копирование не начинается.
// Если вставка не удалась, копия удаляется, но только пока её ключ
// не принадлежит ни одной записи.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/mediadeck/internal/blobstore"
	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/repository"
)

// TransferItem — один объект для переноса в плейлист проекта.
type TransferItem struct {
	ProjectID      string
	SourceKey      string
	DestinationKey string
	FileName       string
	SlotPosition   string
	Duration       *string
	FrameRate      *string
	Resolution     *string
}

// TransferResult — созданные записи и ошибки по элементам.
type TransferResult struct {
	Files  []*model.FileRecord
	Errors []ItemError
}

// TransferService — перенос объектов в плейлисты.
type TransferService struct {
	files    repository.FileRepository
	projects repository.ProjectRepository
	store    blobstore.Store
	opts     BatchOptions
	logger   *slog.Logger
	now      func() time.Time
}

// NewTransferService создаёт сервис переноса.
func NewTransferService(
	files repository.FileRepository,
	projects repository.ProjectRepository,
	store blobstore.Store,
	opts BatchOptions,
	logger *slog.Logger,
) *TransferService {
	return &TransferService{
		files:    files,
		projects: projects,
		store:    store,
		opts:     opts,
		logger:   logger.With(slog.String("component", "transfer")),
		now:      time.Now,
	}
}

// validateTransfer проверяет пачку целиком до любых побочных эффектов
// и заполняет ключ назначения по умолчанию; ids — fileId будущих записей.
func validateTransfer(userID string, items []TransferItem, ids []string, now time.Time) error {
	if !validID(userID) {
		return validationf("некорректный userId %q", userID)
	}
	if len(items) == 0 {
		return validationf("список файлов пуст")
	}
	userPrefix := "users/" + userID + "/"
	destinations := make(map[string]int, len(items))
	for i := range items {
		it := &items[i]
		if !validID(it.ProjectID) {
			return validationf("элемент %d: некорректный projectId %q", i, it.ProjectID)
		}
		if !strings.HasPrefix(it.SourceKey, userPrefix) || strings.Contains(it.SourceKey, "..") {
			return validationf("элемент %d: ключ %q не принадлежит пользователю", i, it.SourceKey)
		}
		if !model.ValidSlot(it.SlotPosition) {
			return validationf("элемент %d: слот %q: допустима одна буква a-z", i, it.SlotPosition)
		}
		playlist := model.ProjectContainer(model.KindPlaylist, it.ProjectID)
		if it.DestinationKey == "" {
			it.DestinationKey = model.PlaylistCopyKey(userID, it.ProjectID, ids[i], it.SourceKey, now)
		}
		if !model.KeyBelongsTo(it.DestinationKey, userID, playlist) {
			return validationf("элемент %d: ключ назначения %q вне плейлиста проекта", i, it.DestinationKey)
		}
		if it.DestinationKey == it.SourceKey {
			return validationf("элемент %d: ключ назначения совпадает с исходным", i)
		}
		if j, dup := destinations[it.DestinationKey]; dup {
			return validationf("элементы %d и %d: одинаковый ключ назначения %q", j, i, it.DestinationKey)
		}
		destinations[it.DestinationKey] = i
	}
	return nil
}

// Transfer копирует объекты и создаёт записи в плейлистах. seqPos
// назначается по порядку пачки до начала параллельной работы.
func (s *TransferService) Transfer(ctx context.Context, userID string, items []TransferItem) (*TransferResult, error) {
	items = append([]TransferItem(nil), items...)
	ids := make([]string, len(items))
	for i := range ids {
		ids[i] = uuid.New().String()
	}
	if err := validateTransfer(userID, items, ids, s.now()); err != nil {
		return nil, err
	}

	errs := make([]string, len(items))
	seqs := make([]int, len(items))
	next := make(map[string]int)
	failedProject := make(map[string]string)
	for i, it := range items {
		if msg, failed := failedProject[it.ProjectID]; failed {
			errs[i] = msg
			continue
		}
		n, ok := next[it.ProjectID]
		if !ok {
			var err error
			n, err = s.nextSeqPos(ctx, userID, it.ProjectID)
			if err != nil {
				failedProject[it.ProjectID] = err.Error()
				errs[i] = err.Error()
				continue
			}
		}
		seqs[i] = n
		next[it.ProjectID] = n + 1
	}

	created := make([]*model.FileRecord, len(items))
	g := new(errgroup.Group)
	g.SetLimit(batchLimit(s.opts.Concurrency))
	for i, it := range items {
		if errs[i] != "" {
			continue
		}
		g.Go(func() error {
			rec, err := s.transferOne(ctx, userID, ids[i], it, seqs[i])
			fileOperationsTotal.WithLabelValues("transfer", operationStatus(err)).Inc()
			if err != nil {
				errs[i] = err.Error()
				return nil
			}
			created[i] = rec
			return nil
		})
	}
	_ = g.Wait()

	res := &TransferResult{Files: make([]*model.FileRecord, 0, len(items)), Errors: make([]ItemError, 0)}
	for i := range items {
		if errs[i] != "" {
			res.Errors = append(res.Errors, ItemError{ID: items[i].SourceKey, Error: errs[i]})
			continue
		}
		res.Files = append(res.Files, created[i])
	}

	s.logger.Info("Перенос в плейлисты завершён",
		slog.String("user_id", userID),
		slog.Int("created", len(res.Files)),
		slog.Int("failed", len(res.Errors)),
	)
	return res, nil
}

// nextSeqPos проверяет проект и возвращает следующую позицию плейлиста.
func (s *TransferService) nextSeqPos(ctx context.Context, userID, projectID string) (int, error) {
	if _, err := s.projects.Get(ctx, userID, projectID); err != nil {
		return 0, mapRepoErr(err, "проект "+projectID)
	}
	n, err := s.files.NextSeqPos(ctx, userID, model.ProjectContainer(model.KindPlaylist, projectID))
	if err != nil {
		return 0, fmt.Errorf("проект %s: %w", projectID, err)
	}
	return n, nil
}

// transferOne копирует один объект и вставляет запись. Существующий объект
// назначения не перезаписывается; после ошибки вставки удаляется только
// созданная этим вызовом копия, если её ключ не занят записью.
func (s *TransferService) transferOne(ctx context.Context, userID, fileID string, it TransferItem, seqPos int) (*model.FileRecord, error) {
	ok, err := s.store.Exists(ctx, it.SourceKey)
	if err != nil {
		return nil, upstream(fmt.Errorf("проверка %s: %w", it.SourceKey, err))
	}
	if !ok {
		return nil, fmt.Errorf("%w: исходный объект %s", ErrNotFound, it.SourceKey)
	}

	taken, err := s.store.Exists(ctx, it.DestinationKey)
	if err != nil {
		return nil, upstream(fmt.Errorf("проверка %s: %w", it.DestinationKey, err))
	}
	if taken {
		return nil, fmt.Errorf("%w: объект %s уже существует", ErrConflict, it.DestinationKey)
	}

	if err := s.store.Copy(ctx, it.SourceKey, it.DestinationKey, model.AccessPrivate); err != nil {
		return nil, upstream(fmt.Errorf("копирование %s: %w", it.SourceKey, err))
	}

	name := model.SanitizeFileName(it.FileName)
	if name == "" {
		name = path.Base(it.DestinationKey)
	}
	rec := &model.FileRecord{
		FileID:       fileID,
		UserID:       userID,
		Container:    model.ProjectContainer(model.KindPlaylist, it.ProjectID),
		Key:          it.DestinationKey,
		FileName:     name,
		AccessType:   model.AccessPrivate,
		SeqPos:       seqPos,
		SlotPosition: it.SlotPosition,
		Duration:     it.Duration,
		FrameRate:    it.FrameRate,
		Resolution:   it.Resolution,
	}

	if err := s.files.Insert(ctx, rec); err != nil {
		s.discardCopy(ctx, it.DestinationKey)
		return nil, mapRepoErr(err, "запись "+it.DestinationKey)
	}
	return rec, nil
}

// discardCopy удаляет копию после неудачной вставки. Если ключ за это время
// занял параллельный перенос, объект принадлежит его записи и остаётся.
func (s *TransferService) discardCopy(ctx context.Context, key string) {
	owned, err := s.files.KeyExists(ctx, key)
	if err != nil {
		s.logger.Error("Копия оставлена: не удалось проверить владельца ключа",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if owned {
		s.logger.Warn("Копия не удалена: ключ принадлежит другой записи",
			slog.String("key", key),
		)
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Error("Копия не удалена после ошибки вставки записи",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
