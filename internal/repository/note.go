package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bigkaa/mediadeck/internal/domain/model"
)

// NoteRepository — заметки к файлам плейлиста (таблица file_notes).
type NoteRepository interface {
	// Add сохраняет заметку; пустой UniqueID заполняется новым UUID.
	Add(ctx context.Context, n *model.Note) error
	// Delete удаляет заметку файла.
	Delete(ctx context.Context, fileID, noteID string) error
}

type noteRepo struct {
	db DBTX
}

// NewNoteRepository создаёт репозиторий заметок.
func NewNoteRepository(db DBTX) NoteRepository {
	return &noteRepo{db: db}
}

func (r *noteRepo) Add(ctx context.Context, n *model.Note) error {
	return insertNote(ctx, r.db, n)
}

func insertNote(ctx context.Context, db DBTX, n *model.Note) error {
	if n.UniqueID == "" {
		n.UniqueID = uuid.New().String()
	}
	var createdAt any
	if !n.CreatedAt.IsZero() {
		createdAt = n.CreatedAt
	}

	err := db.QueryRow(ctx, `
		INSERT INTO file_notes (unique_id, file_id, note, created_at)
		VALUES ($1, $2, $3, COALESCE($4::timestamptz, NOW()))
		RETURNING created_at`,
		n.UniqueID, n.FileID, n.Text, createdAt,
	).Scan(&n.CreatedAt)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return fmt.Errorf("%w: файл %s", ErrNotFound, n.FileID)
		case isUniqueViolation(err):
			return fmt.Errorf("%w: заметка %s", ErrConflict, n.UniqueID)
		}
		return fmt.Errorf("ошибка сохранения заметки: %w", err)
	}
	return nil
}

func (r *noteRepo) Delete(ctx context.Context, fileID, noteID string) error {
	if _, err := uuid.Parse(noteID); err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM file_notes WHERE file_id = $1 AND unique_id = $2`, fileID, noteID)
	if err != nil {
		return fmt.Errorf("ошибка удаления заметки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// loadNotes возвращает заметки указанных файлов, сгруппированные по fileId.
func loadNotes(ctx context.Context, db DBTX, fileIDs []string) (map[string][]model.Note, error) {
	rows, err := db.Query(ctx, `
		SELECT unique_id, file_id, note, created_at
		FROM file_notes
		WHERE file_id = ANY($1::uuid[])
		ORDER BY created_at, unique_id`, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заметок: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]model.Note)
	for rows.Next() {
		var n model.Note
		if err := rows.Scan(&n.UniqueID, &n.FileID, &n.Text, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования заметки: %w", err)
		}
		result[n.FileID] = append(result[n.FileID], n)
	}
	return result, rows.Err()
}
