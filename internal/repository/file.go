package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/mediadeck/internal/domain/model"
)

// FileRepository — операции с таблицей file_records.
type FileRepository interface {
	// Get возвращает запись по fileId вместе с заметками.
	Get(ctx context.Context, fileID string) (*model.FileRecord, error)
	// ListByContainer возвращает записи списка, отсортированные по seqPos.
	ListByContainer(ctx context.Context, userID string, c model.Container) ([]*model.FileRecord, error)
	// KeyExists сообщает, принадлежит ли ключ какой-либо записи.
	KeyExists(ctx context.Context, key string) (bool, error)
	// NextSeqPos возвращает max(seqPos)+1 для списка (1 для пустого).
	NextSeqPos(ctx context.Context, userID string, c model.Container) (int, error)
	// Append добавляет записи в список одной транзакцией.
	// SeqPos > 0 сохраняется, иначе назначается max+1 по порядку входа.
	Append(ctx context.Context, userID string, c model.Container, recs []*model.FileRecord) error
	// Insert вставляет одну запись с уже назначенным seqPos.
	Insert(ctx context.Context, rec *model.FileRecord) error
	// Remove удаляет запись; ErrNotFound, если удалено 0 строк.
	Remove(ctx context.Context, fileID string) error
	// Restore вставляет ранее удалённую запись с теми же полями и заметками.
	Restore(ctx context.Context, rec *model.FileRecord) error
	// UpdateMetadata применяет результаты извлечения одной транзакцией.
	// Возвращает число обновлённых записей.
	UpdateMetadata(ctx context.Context, updates []model.MetadataUpdate) (int, error)
	// Reorder задаёт seqPos = индекс+1; fileIDs — перестановка списка.
	Reorder(ctx context.Context, userID string, c model.Container, fileIDs []string) error
	// SetSlot задаёт или очищает слот; занятый слот — ErrConflict.
	SetSlot(ctx context.Context, fileID, slot string) error
	// FindBySlot возвращает запись списка с указанным слотом.
	FindBySlot(ctx context.Context, userID string, c model.Container, slot string) (*model.FileRecord, error)
	// Replace атомарно заменяет запись oldFileID на rec,
	// сохраняя seqPos и слот заменяемой записи.
	Replace(ctx context.Context, oldFileID string, rec *model.FileRecord) error
}

const fileColumns = `file_id, user_id, kind, project_id, program_id, key, file_name,
	access_type, seq_pos, slot_position, duration, frame_rate, resolution,
	metadata_error, created_at`

const containerWhere = `user_id = $1 AND kind = $2 AND COALESCE(project_id, program_id) = $3`

type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий записей файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// scanFile читает одну строку в формате fileColumns.
func scanFile(row pgx.Row) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	var kind, access string
	var projectID, programID *string
	err := row.Scan(
		&f.FileID, &f.UserID, &kind, &projectID, &programID, &f.Key, &f.FileName,
		&access, &f.SeqPos, &f.SlotPosition, &f.Duration, &f.FrameRate, &f.Resolution,
		&f.MetadataError, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.AccessType = model.AccessType(access)
	f.Container.Kind = model.ContainerKind(kind)
	switch {
	case projectID != nil:
		f.Container.ID = *projectID
	case programID != nil:
		f.Container.ID = *programID
	}
	return f, nil
}

// ownerColumns раскладывает контейнер в пару project_id / program_id.
func ownerColumns(c model.Container) (projectID, programID *string) {
	id := c.ID
	if c.Kind.OwnedByProgram() {
		return nil, &id
	}
	return &id, nil
}

func (r *fileRepo) Get(ctx context.Context, fileID string) (*model.FileRecord, error) {
	if _, err := uuid.Parse(fileID); err != nil {
		return nil, ErrNotFound
	}

	f, err := scanFile(r.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM file_records WHERE file_id = $1`, fileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи файла: %w", err)
	}

	notes, err := loadNotes(ctx, r.db, []string{f.FileID})
	if err != nil {
		return nil, err
	}
	f.Notes = notes[f.FileID]
	return f, nil
}

func (r *fileRepo) ListByContainer(ctx context.Context, userID string, c model.Container) ([]*model.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM file_records
		WHERE ` + containerWhere + `
		ORDER BY seq_pos, created_at, file_id`
	return r.list(ctx, query, userID, string(c.Kind), c.ID)
}

func (r *fileRepo) KeyExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM file_records WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки ключа: %w", err)
	}
	return exists, nil
}

func (r *fileRepo) list(ctx context.Context, query string, args ...any) ([]*model.FileRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	var ids []string
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи файла: %w", err)
		}
		result = append(result, f)
		ids = append(ids, f.FileID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения списка файлов: %w", err)
	}
	if len(ids) == 0 {
		return result, nil
	}

	notes, err := loadNotes(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for _, f := range result {
		f.Notes = notes[f.FileID]
	}
	return result, nil
}

func (r *fileRepo) NextSeqPos(ctx context.Context, userID string, c model.Container) (int, error) {
	return nextSeqPos(ctx, r.db, userID, c)
}

func nextSeqPos(ctx context.Context, db DBTX, userID string, c model.Container) (int, error) {
	var next int
	err := db.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq_pos), 0) + 1 FROM file_records WHERE `+containerWhere,
		userID, string(c.Kind), c.ID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("ошибка вычисления seqPos: %w", err)
	}
	return next, nil
}

// lockOwner блокирует строку владельца списка до конца транзакции,
// сериализуя назначение seqPos параллельными вставками.
func lockOwner(ctx context.Context, tx pgx.Tx, userID string, c model.Container) error {
	query := `SELECT 1 FROM projects WHERE user_id = $1 AND project_id = $2 FOR UPDATE`
	if c.Kind.OwnedByProgram() {
		query = `SELECT 1 FROM programs WHERE user_id = $1 AND program_id = $2 FOR UPDATE`
	}
	var one int
	if err := tx.QueryRow(ctx, query, userID, c.ID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: владелец списка %s", ErrNotFound, c)
		}
		return fmt.Errorf("ошибка блокировки владельца списка: %w", err)
	}
	return nil
}

// deleteOwner удаляет проект или программу вместе с записями всех их списков
// и возвращает ключи удалённых записей. Строка владельца блокируется первой:
// вставка, начатая позже, ждёт конца транзакции и получает ошибку внешнего
// ключа, поэтому ни один объект не остаётся без учёта.
func deleteOwner(ctx context.Context, db DBTX, userID string, c model.Container) ([]string, error) {
	table, column := "projects", "project_id"
	if c.Kind.OwnedByProgram() {
		table, column = "programs", "program_id"
	}

	var keys []string
	err := inTx(ctx, db, func(tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, userID, c); err != nil {
			return err
		}
		rows, err := tx.Query(ctx,
			`DELETE FROM file_records WHERE user_id = $1 AND `+column+` = $2 RETURNING key`,
			userID, c.ID)
		if err != nil {
			return fmt.Errorf("ошибка удаления записей файлов: %w", err)
		}
		if keys, err = pgx.CollectRows(rows, pgx.RowTo[string]); err != nil {
			return fmt.Errorf("ошибка чтения ключей удалённых записей: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM `+table+` WHERE user_id = $1 AND `+column+` = $2`,
			userID, c.ID); err != nil {
			return fmt.Errorf("ошибка удаления владельца %s: %w", c, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *fileRepo) Append(ctx context.Context, userID string, c model.Container, recs []*model.FileRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, userID, c); err != nil {
			return err
		}
		next, err := nextSeqPos(ctx, tx, userID, c)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			rec.UserID = userID
			rec.Container = c
			if rec.SeqPos <= 0 {
				rec.SeqPos = next
				next++
			}
			if err := insertFile(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *fileRepo) Insert(ctx context.Context, rec *model.FileRecord) error {
	return insertFile(ctx, r.db, rec)
}

// insertFile вставляет запись; пустой FileID заполняется новым UUID,
// нулевой CreatedAt — временем БД.
func insertFile(ctx context.Context, db DBTX, rec *model.FileRecord) error {
	if rec.FileID == "" {
		rec.FileID = uuid.New().String()
	}
	projectID, programID := ownerColumns(rec.Container)

	query := `
		INSERT INTO file_records (file_id, user_id, kind, project_id, program_id, key,
			file_name, access_type, seq_pos, slot_position, duration, frame_rate,
			resolution, metadata_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			COALESCE($15::timestamptz, NOW()))
		RETURNING created_at`

	var createdAt *time.Time
	if !rec.CreatedAt.IsZero() {
		createdAt = &rec.CreatedAt
	}

	err := db.QueryRow(ctx, query,
		rec.FileID, rec.UserID, string(rec.Container.Kind), projectID, programID, rec.Key,
		rec.FileName, string(rec.AccessType), rec.SeqPos, rec.SlotPosition, rec.Duration,
		rec.FrameRate, rec.Resolution, rec.MetadataError, createdAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("%w: ключ %s или слот %q уже занят", ErrConflict, rec.Key, rec.SlotPosition)
		case isForeignKeyViolation(err):
			return fmt.Errorf("%w: владелец списка %s", ErrNotFound, rec.Container)
		}
		return fmt.Errorf("ошибка вставки записи файла: %w", err)
	}
	return nil
}

func (r *fileRepo) Remove(ctx context.Context, fileID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM file_records WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRepo) Restore(ctx context.Context, rec *model.FileRecord) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := insertFile(ctx, tx, rec); err != nil {
			return err
		}
		for i := range rec.Notes {
			n := rec.Notes[i]
			n.FileID = rec.FileID
			if err := insertNote(ctx, tx, &n); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *fileRepo) UpdateMetadata(ctx context.Context, updates []model.MetadataUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	updated := 0
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		updated = 0
		for _, u := range updates {
			var (
				query string
				args  []any
			)
			if u.Metadata != nil {
				query = `
					UPDATE file_records
					SET duration = $2, frame_rate = $3, resolution = $4, metadata_error = NULL
					WHERE file_id = $1`
				args = []any{u.FileID, nullIfEmpty(u.Metadata.Duration), nullIfEmpty(u.Metadata.FrameRate), nullIfEmpty(u.Metadata.Resolution)}
			} else {
				query = `UPDATE file_records SET metadata_error = $2 WHERE file_id = $1`
				args = []any{u.FileID, u.Err}
			}
			tag, err := tx.Exec(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("ошибка обновления метаданных %s: %w", u.FileID, err)
			}
			// Запись могла быть удалена во время извлечения
			updated += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func (r *fileRepo) Reorder(ctx context.Context, userID string, c model.Container, fileIDs []string) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT file_id::text FROM file_records WHERE `+containerWhere+` FOR UPDATE`,
			userID, string(c.Kind), c.ID)
		if err != nil {
			return fmt.Errorf("ошибка блокировки списка: %w", err)
		}
		current, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("ошибка чтения списка: %w", err)
		}

		if err := checkPermutation(current, fileIDs); err != nil {
			return err
		}

		for i, id := range fileIDs {
			if _, err := tx.Exec(ctx,
				`UPDATE file_records SET seq_pos = $2 WHERE file_id = $1`, id, i+1); err != nil {
				return fmt.Errorf("ошибка обновления seqPos %s: %w", id, err)
			}
		}
		return nil
	})
}

func (r *fileRepo) SetSlot(ctx context.Context, fileID, slot string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE file_records SET slot_position = $2 WHERE file_id = $1`, fileID, slot)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: слот %q уже занят", ErrConflict, slot)
		}
		return fmt.Errorf("ошибка обновления слота: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRepo) FindBySlot(ctx context.Context, userID string, c model.Container, slot string) (*model.FileRecord, error) {
	f, err := scanFile(r.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM file_records
		WHERE `+containerWhere+` AND slot_position = $4
		LIMIT 1`, userID, string(c.Kind), c.ID, slot))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска слота: %w", err)
	}
	return f, nil
}

func (r *fileRepo) Replace(ctx context.Context, oldFileID string, rec *model.FileRecord) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT seq_pos, slot_position FROM file_records WHERE file_id = $1 FOR UPDATE`,
			oldFileID).Scan(&rec.SeqPos, &rec.SlotPosition)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("ошибка блокировки заменяемой записи: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM file_records WHERE file_id = $1`, oldFileID); err != nil {
			return fmt.Errorf("ошибка удаления заменяемой записи: %w", err)
		}
		return insertFile(ctx, tx, rec)
	})
}

// nullIfEmpty — пустое значение метаданных хранится как NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
