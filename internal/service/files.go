// files.go — операции с отдельными списками: чтение с подписанными URL,
// удаление с компенсацией, порядок, слоты и заметки.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/mediadeck/internal/blobstore"
	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/repository"
)

// FileView — запись файла с подписанным URL на чтение.
type FileView struct {
	Record *model.FileRecord
	URL    string
}

// SlotStatus — занятость слота в списке.
type SlotStatus struct {
	Slot      string
	Available bool
	// FileID — файл, занимающий слот (если занят)
	FileID string
}

// FileService — операции над записями одного списка.
type FileService struct {
	files  repository.FileRepository
	notes  repository.NoteRepository
	owners owners
	store  blobstore.Store
	urls   *URLCache
	logger *slog.Logger
}

// NewFileService создаёт сервис файлов.
func NewFileService(
	files repository.FileRepository,
	notes repository.NoteRepository,
	projects repository.ProjectRepository,
	programs repository.ProgramRepository,
	store blobstore.Store,
	urls *URLCache,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		files:  files,
		notes:  notes,
		owners: owners{projects: projects, programs: programs},
		store:  store,
		urls:   urls,
		logger: logger.With(slog.String("component", "files")),
	}
}

// List возвращает записи списка по seqPos с подписанными URL.
func (s *FileService) List(ctx context.Context, userID string, c model.Container) ([]FileView, error) {
	if err := checkContainer(userID, c); err != nil {
		return nil, err
	}
	if err := s.owners.exists(ctx, userID, c); err != nil {
		return nil, err
	}

	recs, err := s.files.ListByContainer(ctx, userID, c)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения списка %s: %w", c, err)
	}

	views := make([]FileView, 0, len(recs))
	for _, rec := range recs {
		u, err := s.urls.Get(ctx, rec.Key)
		if err != nil {
			return nil, upstream(fmt.Errorf("подпись URL для %s: %w", rec.Key, err))
		}
		views = append(views, FileView{Record: rec, URL: u})
	}
	return views, nil
}

// Delete удаляет файл: сначала запись, затем объект. Если объект удалить
// не удалось, запись восстанавливается с теми же полями и заметками,
// и возвращается *RollbackError.
func (s *FileService) Delete(ctx context.Context, userID string, owner model.Container, fileID string) error {
	rec, err := ownedRecord(ctx, s.files, userID, owner, fileID)
	if err != nil {
		return err
	}

	if err := s.files.Remove(ctx, rec.FileID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: запись %s уже удалена", ErrConflict, rec.FileID)
		}
		return fmt.Errorf("ошибка удаления записи: %w", err)
	}

	if err := s.store.Delete(ctx, rec.Key); err != nil {
		fileOperationsTotal.WithLabelValues("delete", "error").Inc()
		rbErr := &RollbackError{FileID: rec.FileID, Err: upstream(err)}

		if restoreErr := s.files.Restore(ctx, rec.Clone()); restoreErr != nil {
			deleteRollbacksTotal.WithLabelValues("failed").Inc()
			s.logger.Error("Запись не восстановлена после ошибки удаления объекта",
				slog.String("file_id", rec.FileID),
				slog.String("key", rec.Key),
				slog.String("error", err.Error()),
				slog.String("restore_error", restoreErr.Error()),
			)
			return rbErr
		}

		rbErr.Restored = true
		deleteRollbacksTotal.WithLabelValues("restored").Inc()
		s.logger.Warn("Объект не удалён, запись восстановлена",
			slog.String("file_id", rec.FileID),
			slog.String("key", rec.Key),
			slog.String("error", err.Error()),
		)
		return rbErr
	}

	s.urls.Invalidate(rec.Key)
	fileOperationsTotal.WithLabelValues("delete", "success").Inc()
	s.logger.Info("Файл удалён",
		slog.String("file_id", rec.FileID),
		slog.String("container", rec.Container.String()),
		slog.String("key", rec.Key),
	)
	return nil
}

// Reorder задаёт порядок списка: fileIDs должен быть перестановкой
// текущих записей, seqPos = индекс + 1.
func (s *FileService) Reorder(ctx context.Context, userID string, c model.Container, fileIDs []string) error {
	if err := checkContainer(userID, c); err != nil {
		return err
	}
	if c.Kind != model.KindPlaylist && c.Kind != model.KindProgram {
		return validationf("порядок задаётся только для плейлиста и программы")
	}
	if len(fileIDs) == 0 {
		return validationf("список файлов пуст")
	}

	err := s.files.Reorder(ctx, userID, c, fileIDs)
	fileOperationsTotal.WithLabelValues("reorder", operationStatus(err)).Inc()
	if err != nil {
		return mapRepoErr(err, "ошибка изменения порядка "+c.String())
	}
	return nil
}

// SetSlot назначает слот файлу или очищает его (пустая строка).
// Занятый другим файлом слот — ErrConflict; одновременное назначение
// отсекает уникальный индекс.
func (s *FileService) SetSlot(ctx context.Context, userID string, owner model.Container, fileID, slot string) (*model.FileRecord, error) {
	if !model.ValidSlot(slot) {
		return nil, validationf("слот %q: допустима одна буква a-z", slot)
	}
	rec, err := ownedRecord(ctx, s.files, userID, owner, fileID)
	if err != nil {
		return nil, err
	}

	if slot != "" {
		holder, err := s.files.FindBySlot(ctx, userID, rec.Container, slot)
		switch {
		case err == nil && holder.FileID != rec.FileID:
			return nil, fmt.Errorf("%w: слот %q уже занят файлом %s", ErrConflict, slot, holder.FileID)
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("ошибка проверки слота: %w", err)
		}
	}

	err = s.files.SetSlot(ctx, rec.FileID, slot)
	fileOperationsTotal.WithLabelValues("set_slot", operationStatus(err)).Inc()
	if err != nil {
		return nil, mapRepoErr(err, "слот "+slot)
	}
	rec.SlotPosition = slot
	return rec, nil
}

// CheckSlot сообщает, свободен ли слот в списке.
func (s *FileService) CheckSlot(ctx context.Context, userID string, c model.Container, slot string) (*SlotStatus, error) {
	if err := checkContainer(userID, c); err != nil {
		return nil, err
	}
	if slot == "" || !model.ValidSlot(slot) {
		return nil, validationf("слот %q: допустима одна буква a-z", slot)
	}

	holder, err := s.files.FindBySlot(ctx, userID, c, slot)
	if errors.Is(err, repository.ErrNotFound) {
		return &SlotStatus{Slot: slot, Available: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки слота: %w", err)
	}
	return &SlotStatus{Slot: slot, FileID: holder.FileID}, nil
}

// AddNote добавляет заметку к файлу плейлиста проекта.
func (s *FileService) AddNote(ctx context.Context, userID, projectID, fileID, text string) (*model.Note, error) {
	if strings.TrimSpace(text) == "" {
		return nil, validationf("заметка пуста")
	}
	if n := utf8.RuneCountInString(text); n > model.MaxNoteLength {
		return nil, validationf("заметка длиннее %d символов (%d)", model.MaxNoteLength, n)
	}

	rec, err := ownedRecord(ctx, s.files, userID, model.ProjectContainer(model.KindPlaylist, projectID), fileID)
	if err != nil {
		return nil, err
	}
	if rec.Container.Kind != model.KindPlaylist {
		return nil, validationf("заметки доступны только для файлов плейлиста")
	}

	note := &model.Note{FileID: rec.FileID, Text: text}
	if err := s.notes.Add(ctx, note); err != nil {
		return nil, mapRepoErr(err, "ошибка добавления заметки")
	}
	return note, nil
}

// DeleteNote удаляет заметку файла плейлиста.
func (s *FileService) DeleteNote(ctx context.Context, userID, projectID, fileID, noteID string) error {
	rec, err := ownedRecord(ctx, s.files, userID, model.ProjectContainer(model.KindPlaylist, projectID), fileID)
	if err != nil {
		return err
	}
	return mapRepoErr(s.notes.Delete(ctx, rec.FileID, noteID), "заметка "+noteID)
}
