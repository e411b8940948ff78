package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/mediadeck/internal/domain/model"
)

// ProjectRepository — операции с таблицей projects.
type ProjectRepository interface {
	// Ensure создаёт проект или обновляет непустой заголовок существующего.
	// Заполняет ProjectTitle и CreatedAt фактическими значениями.
	Ensure(ctx context.Context, p *model.Project) error
	// Get возвращает проект пользователя.
	Get(ctx context.Context, userID, projectID string) (*model.Project, error)
	// List возвращает проекты пользователя в порядке создания.
	List(ctx context.Context, userID string) ([]*model.Project, error)
	// Delete удаляет проект и записи всех его списков одной транзакцией
	// (заметки удаляются каскадно). Возвращает ключи удалённых записей.
	Delete(ctx context.Context, userID, projectID string) ([]string, error)
}

type projectRepo struct {
	db DBTX
}

// NewProjectRepository создаёт репозиторий проектов.
func NewProjectRepository(db DBTX) ProjectRepository {
	return &projectRepo{db: db}
}

func (r *projectRepo) Ensure(ctx context.Context, p *model.Project) error {
	query := `
		INSERT INTO projects (user_id, project_id, project_title)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, project_id) DO UPDATE SET
			project_title = CASE WHEN EXCLUDED.project_title <> ''
				THEN EXCLUDED.project_title ELSE projects.project_title END
		RETURNING project_title, created_at`

	err := r.db.QueryRow(ctx, query, p.UserID, p.ProjectID, p.ProjectTitle).
		Scan(&p.ProjectTitle, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения проекта: %w", err)
	}
	return nil
}

func (r *projectRepo) Get(ctx context.Context, userID, projectID string) (*model.Project, error) {
	query := `
		SELECT user_id, project_id, project_title, created_at
		FROM projects
		WHERE user_id = $1 AND project_id = $2`

	p := &model.Project{}
	err := r.db.QueryRow(ctx, query, userID, projectID).
		Scan(&p.UserID, &p.ProjectID, &p.ProjectTitle, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения проекта: %w", err)
	}
	return p, nil
}

func (r *projectRepo) List(ctx context.Context, userID string) ([]*model.Project, error) {
	query := `
		SELECT user_id, project_id, project_title, created_at
		FROM projects
		WHERE user_id = $1
		ORDER BY created_at, project_id`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка проектов: %w", err)
	}
	defer rows.Close()

	var result []*model.Project
	for rows.Next() {
		p := &model.Project{}
		if err := rows.Scan(&p.UserID, &p.ProjectID, &p.ProjectTitle, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования проекта: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *projectRepo) Delete(ctx context.Context, userID, projectID string) ([]string, error) {
	return deleteOwner(ctx, r.db, userID, model.ProjectContainer(model.KindFiles, projectID))
}
