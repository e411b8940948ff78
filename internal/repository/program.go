package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/mediadeck/internal/domain/model"
)

// ProgramRepository — операции с таблицей programs.
type ProgramRepository interface {
	// Ensure создаёт программу в конце списка пользователя или обновляет
	// непустой заголовок существующей.
	Ensure(ctx context.Context, p *model.Program) error
	// Get возвращает программу пользователя.
	Get(ctx context.Context, userID, programID string) (*model.Program, error)
	// List возвращает программы пользователя по position.
	List(ctx context.Context, userID string) ([]*model.Program, error)
	// Reorder задаёт position = индекс+1 по переданному списку.
	// Список должен быть перестановкой всех программ пользователя.
	Reorder(ctx context.Context, userID string, programIDs []string) error
	// Delete удаляет программу и её записи одной транзакцией.
	// Возвращает ключи удалённых записей.
	Delete(ctx context.Context, userID, programID string) ([]string, error)
}

type programRepo struct {
	db DBTX
}

// NewProgramRepository создаёт репозиторий программ.
func NewProgramRepository(db DBTX) ProgramRepository {
	return &programRepo{db: db}
}

func (r *programRepo) Ensure(ctx context.Context, p *model.Program) error {
	query := `
		INSERT INTO programs (user_id, program_id, program_title, position)
		VALUES ($1, $2, $3,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM programs WHERE user_id = $1))
		ON CONFLICT (user_id, program_id) DO UPDATE SET
			program_title = CASE WHEN EXCLUDED.program_title <> ''
				THEN EXCLUDED.program_title ELSE programs.program_title END
		RETURNING program_title, position, created_at`

	err := r.db.QueryRow(ctx, query, p.UserID, p.ProgramID, p.ProgramTitle).
		Scan(&p.ProgramTitle, &p.Position, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения программы: %w", err)
	}
	return nil
}

func (r *programRepo) Get(ctx context.Context, userID, programID string) (*model.Program, error) {
	query := `
		SELECT user_id, program_id, program_title, position, created_at
		FROM programs
		WHERE user_id = $1 AND program_id = $2`

	p := &model.Program{}
	err := r.db.QueryRow(ctx, query, userID, programID).
		Scan(&p.UserID, &p.ProgramID, &p.ProgramTitle, &p.Position, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения программы: %w", err)
	}
	return p, nil
}

func (r *programRepo) List(ctx context.Context, userID string) ([]*model.Program, error) {
	query := `
		SELECT user_id, program_id, program_title, position, created_at
		FROM programs
		WHERE user_id = $1
		ORDER BY position, created_at`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка программ: %w", err)
	}
	defer rows.Close()

	var result []*model.Program
	for rows.Next() {
		p := &model.Program{}
		if err := rows.Scan(&p.UserID, &p.ProgramID, &p.ProgramTitle, &p.Position, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования программы: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *programRepo) Reorder(ctx context.Context, userID string, programIDs []string) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT program_id FROM programs WHERE user_id = $1 FOR UPDATE`, userID)
		if err != nil {
			return fmt.Errorf("ошибка блокировки программ: %w", err)
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("ошибка чтения программ: %w", err)
		}

		if err := checkPermutation(current, programIDs); err != nil {
			return err
		}

		for i, id := range programIDs {
			if _, err := tx.Exec(ctx,
				`UPDATE programs SET position = $3 WHERE user_id = $1 AND program_id = $2`,
				userID, id, i+1); err != nil {
				return fmt.Errorf("ошибка обновления позиции программы %s: %w", id, err)
			}
		}
		return nil
	})
}

func (r *programRepo) Delete(ctx context.Context, userID, programID string) ([]string, error) {
	return deleteOwner(ctx, r.db, userID, model.ProgramContainer(programID))
}

// checkPermutation проверяет, что next — перестановка current.
// Неизвестный идентификатор — ErrNotFound, пропуски и дубли — ErrOrderMismatch.
func checkPermutation(current, next []string) error {
	known := make(map[string]bool, len(current))
	for _, id := range current {
		known[id] = false
	}
	for _, id := range next {
		seen, ok := known[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if seen {
			return fmt.Errorf("%w: идентификатор %s повторяется", ErrOrderMismatch, id)
		}
		known[id] = true
	}
	if len(next) != len(current) {
		return fmt.Errorf("%w: передано %d из %d", ErrOrderMismatch, len(next), len(current))
	}
	return nil
}
