// extract.go — извлечение метаданных (длительность, частота кадров,
// разрешение) для файлов списка.
//
// Каждый файл скачивается во временный файл по подписанному URL,
// передаётся ffprobe и сразу удаляется. Ошибка одного файла
// записывается в его metadataError и не прерывает пачку. Результаты
// сохраняются одной транзакцией после завершения всех файлов.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/mediadeck/internal/blobstore"
	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/media"
	"github.com/bigkaa/mediadeck/internal/repository"
)

// ExtractItem — результат извлечения для одного файла.
type ExtractItem struct {
	FileID   string
	FileName string
	Metadata *model.MediaMetadata
	Error    string
}

// ExtractResult — итог пакетного извлечения.
type ExtractResult struct {
	Items []ExtractItem
	// Updated — число записей, обновлённых в базе
	Updated int
	// Failed — число файлов с ошибкой
	Failed int
}

// ExtractService — извлечение метаданных через ffprobe.
type ExtractService struct {
	files  repository.FileRepository
	owners owners
	store  blobstore.Store
	prober media.Prober
	opts   BatchOptions
	logger *slog.Logger
}

// NewExtractService создаёт сервис извлечения метаданных.
func NewExtractService(
	files repository.FileRepository,
	projects repository.ProjectRepository,
	programs repository.ProgramRepository,
	store blobstore.Store,
	prober media.Prober,
	opts BatchOptions,
	logger *slog.Logger,
) *ExtractService {
	return &ExtractService{
		files:  files,
		owners: owners{projects: projects, programs: programs},
		store:  store,
		prober: prober,
		opts:   opts,
		logger: logger.With(slog.String("component", "extract")),
	}
}

// Extract обрабатывает файлы списка; пустой fileIDs — все файлы.
// Идентификаторы, которых нет в списке, попадают в результат с ошибкой.
func (s *ExtractService) Extract(ctx context.Context, userID string, c model.Container, fileIDs []string) (*ExtractResult, error) {
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

	items, targets := selectTargets(recs, fileIDs)
	if len(targets) == 0 {
		return &ExtractResult{Items: items, Failed: len(items)}, nil
	}

	dir, err := newJobDir(s.opts.WorkDir, jobExtract)
	if err != nil {
		return nil, err
	}
	defer removeJobDir(dir, s.logger)

	results := make([]ExtractItem, len(targets))
	g := new(errgroup.Group)
	g.SetLimit(batchLimit(s.opts.Concurrency))
	for i, rec := range targets {
		g.Go(func() error {
			results[i] = s.extractOne(ctx, dir, rec)
			return nil
		})
	}
	_ = g.Wait()

	updates := make([]model.MetadataUpdate, 0, len(results))
	for _, r := range results {
		if r.Metadata != nil {
			updates = append(updates, model.MetadataUpdate{FileID: r.FileID, Metadata: r.Metadata})
		} else {
			updates = append(updates, model.MetadataUpdate{FileID: r.FileID, Err: r.Error})
		}
	}

	updated, err := s.files.UpdateMetadata(ctx, updates)
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения метаданных: %w", err)
	}

	res := &ExtractResult{Items: append(items, results...), Updated: updated}
	for _, it := range res.Items {
		if it.Error != "" {
			res.Failed++
		}
	}

	s.logger.Info("Извлечение метаданных завершено",
		slog.String("user_id", userID),
		slog.String("container", c.String()),
		slog.Int("files", len(targets)),
		slog.Int("updated", updated),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

// selectTargets отбирает записи по fileIDs. Неизвестные id возвращаются
// как элементы с ошибкой.
func selectTargets(recs []*model.FileRecord, fileIDs []string) ([]ExtractItem, []*model.FileRecord) {
	if len(fileIDs) == 0 {
		return []ExtractItem{}, recs
	}

	byID := make(map[string]*model.FileRecord, len(recs))
	for _, rec := range recs {
		byID[rec.FileID] = rec
	}

	missing := make([]ExtractItem, 0)
	targets := make([]*model.FileRecord, 0, len(fileIDs))
	seen := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		rec, ok := byID[id]
		if !ok {
			missing = append(missing, ExtractItem{FileID: id, Error: "файл не найден в списке"})
			continue
		}
		targets = append(targets, rec)
	}
	return missing, targets
}

// extractOne скачивает и анализирует один файл. Временный файл
// удаляется в любом случае.
func (s *ExtractService) extractOne(ctx context.Context, dir string, rec *model.FileRecord) ExtractItem {
	item := ExtractItem{FileID: rec.FileID, FileName: rec.FileName}
	local := filepath.Join(dir, localName(rec.FileID, rec.Key))
	defer os.Remove(local)

	if _, err := s.store.Fetch(ctx, rec.Key, s.opts.FetchTTL, local); err != nil {
		extractTotal.WithLabelValues("fetch_error").Inc()
		item.Error = fmt.Sprintf("ошибка скачивания: %v", err)
		s.logger.Warn("Файл не скачан для извлечения",
			slog.String("file_id", rec.FileID),
			slog.String("key", rec.Key),
			slog.String("error", err.Error()),
		)
		return item
	}

	meta, err := s.prober.Probe(ctx, local)
	if err != nil {
		extractTotal.WithLabelValues("probe_error").Inc()
		item.Error = fmt.Sprintf("ошибка ffprobe: %v", err)
		s.logger.Warn("ffprobe завершился ошибкой",
			slog.String("file_id", rec.FileID),
			slog.String("error", err.Error()),
		)
		return item
	}

	extractTotal.WithLabelValues("success").Inc()
	item.Metadata = meta
	return item
}
