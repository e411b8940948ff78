// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/mediadeck/internal/repository"
)

var (
	// ErrNotFound — проект, программа, файл или заметка не найдены.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — занятый слот или изменение не затронуло ни одной записи.
	ErrConflict = errors.New("конфликт")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUpstream — ошибка хранилища объектов или ffmpeg/ffprobe.
	ErrUpstream = errors.New("ошибка внешней зависимости")
)

// RollbackError — удаление объекта из хранилища не удалось после удаления записи.
// Restored показывает, удалось ли вернуть запись в базу.
type RollbackError struct {
	FileID   string
	Restored bool
	Err      error
}

func (e *RollbackError) Error() string {
	if e.Restored {
		return fmt.Sprintf("удаление файла %s не выполнено, запись восстановлена: %v", e.FileID, e.Err)
	}
	return fmt.Sprintf("удаление файла %s не выполнено, запись восстановить не удалось: %v", e.FileID, e.Err)
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}

// ItemError — ошибка одного элемента пакетной операции.
type ItemError struct {
	ID    string
	Error string
}

// validationf формирует ошибку валидации с сообщением для клиента.
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// upstream помечает ошибку хранилища или ffmpeg/ffprobe.
func upstream(err error) error {
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}

// mapRepoErr переводит ошибки репозитория в ошибки сервиса.
func mapRepoErr(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%s: %w", msg, ErrConflict)
	case errors.Is(err, repository.ErrOrderMismatch):
		return fmt.Errorf("%s: %w: список должен содержать каждый файл ровно один раз", msg, ErrValidation)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
