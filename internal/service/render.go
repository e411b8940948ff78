// render.go — рендер плейлистов: склейка файлов плейлиста в одно видео.
//
// Каждый плейлист обрабатывается в собственном каталоге задания:
// скачивание исходников по seqPos, ffmpeg concat, ffprobe результата,
// загрузка в users/{u}/rendered/{projectId}/ и запись в список рендеров.
// Ошибка одного плейлиста не влияет на остальные.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/mediadeck/internal/blobstore"
	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/media"
	"github.com/bigkaa/mediadeck/internal/repository"
)

// renderTitleLayout — формат времени в названии рендера.
const renderTitleLayout = "2006-01-02 15:04:05"

// RenderResult — итог рендера пачки плейлистов.
type RenderResult struct {
	RenderedFiles []*model.FileRecord
	// Skipped — плейлисты без скачанных исходников
	Skipped []string
	Errors  []ItemError
}

// RenderService — рендер плейлистов через ffmpeg.
type RenderService struct {
	files    repository.FileRepository
	projects repository.ProjectRepository
	store    blobstore.Store
	prober   media.Prober
	merger   media.Merger
	opts     BatchOptions
	now      func() time.Time
	logger   *slog.Logger
}

// NewRenderService создаёт сервис рендера.
func NewRenderService(
	files repository.FileRepository,
	projects repository.ProjectRepository,
	store blobstore.Store,
	prober media.Prober,
	merger media.Merger,
	opts BatchOptions,
	logger *slog.Logger,
) *RenderService {
	return &RenderService{
		files:    files,
		projects: projects,
		store:    store,
		prober:   prober,
		merger:   merger,
		opts:     opts,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "render")),
	}
}

// renderOutcome — результат одного плейлиста.
type renderOutcome struct {
	rec     *model.FileRecord
	skipped bool
	err     error
}

// Render рендерит плейлисты проектов параллельно.
func (s *RenderService) Render(ctx context.Context, userID string, projectIDs []string) (*RenderResult, error) {
	if err := checkProjectIDs(userID, projectIDs); err != nil {
		return nil, err
	}

	outcomes := make([]renderOutcome, len(projectIDs))
	g := new(errgroup.Group)
	g.SetLimit(batchLimit(s.opts.Concurrency))
	for i, projectID := range projectIDs {
		g.Go(func() error {
			outcomes[i] = s.renderOne(ctx, userID, projectID)
			return nil
		})
	}
	_ = g.Wait()

	res := &RenderResult{
		RenderedFiles: make([]*model.FileRecord, 0, len(projectIDs)),
		Skipped:       make([]string, 0),
		Errors:        make([]ItemError, 0),
	}
	for i, o := range outcomes {
		switch {
		case o.err != nil:
			res.Errors = append(res.Errors, ItemError{ID: projectIDs[i], Error: o.err.Error()})
		case o.skipped:
			res.Skipped = append(res.Skipped, projectIDs[i])
		default:
			res.RenderedFiles = append(res.RenderedFiles, o.rec)
		}
	}

	s.logger.Info("Рендер завершён",
		slog.String("user_id", userID),
		slog.Int("rendered", len(res.RenderedFiles)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("failed", len(res.Errors)),
	)
	return res, nil
}

// checkProjectIDs — общая проверка списка проектов пакетных операций.
func checkProjectIDs(userID string, projectIDs []string) error {
	if !validID(userID) {
		return validationf("некорректный userId %q", userID)
	}
	if len(projectIDs) == 0 {
		return validationf("список проектов пуст")
	}
	for _, id := range projectIDs {
		if !validID(id) {
			return validationf("некорректный projectId %q", id)
		}
	}
	return nil
}

func (s *RenderService) renderOne(ctx context.Context, userID, projectID string) renderOutcome {
	start := time.Now()
	defer func() {
		renderDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	project, err := s.projects.Get(ctx, userID, projectID)
	if err != nil {
		return renderOutcome{err: mapRepoErr(err, "проект "+projectID)}
	}

	playlist := model.ProjectContainer(model.KindPlaylist, projectID)
	recs, err := s.files.ListByContainer(ctx, userID, playlist)
	if err != nil {
		return renderOutcome{err: fmt.Errorf("ошибка чтения плейлиста: %w", err)}
	}
	if len(recs) == 0 {
		return renderOutcome{skipped: true}
	}

	dir, err := newJobDir(s.opts.WorkDir, jobRender)
	if err != nil {
		return renderOutcome{err: err}
	}
	defer removeJobDir(dir, s.logger)

	inputs := make([]string, 0, len(recs))
	for _, rec := range recs {
		local := filepath.Join(dir, fmt.Sprintf("%04d_%s", rec.SeqPos, localName(rec.FileID, rec.Key)))
		if _, err := s.store.Fetch(ctx, rec.Key, s.opts.FetchTTL, local); err != nil {
			s.logger.Warn("Исходник не скачан, пропущен",
				slog.String("project_id", projectID),
				slog.String("file_id", rec.FileID),
				slog.String("error", err.Error()),
			)
			continue
		}
		inputs = append(inputs, local)
	}
	if len(inputs) == 0 {
		return renderOutcome{skipped: true}
	}

	output := filepath.Join(dir, "output.mp4")
	if err := s.merger.Merge(ctx, inputs, output); err != nil {
		fileOperationsTotal.WithLabelValues("render", "error").Inc()
		return renderOutcome{err: upstream(err)}
	}

	now := s.now()
	title := project.ProjectTitle
	if title == "" {
		title = projectID
	}
	id := uuid.New().String()
	rec := &model.FileRecord{
		FileID:     id,
		Key:        model.RenderKey(userID, projectID, id, now),
		FileName:   fmt.Sprintf("%s %s", title, now.Format(renderTitleLayout)),
		AccessType: model.AccessPrivate,
	}

	if meta, err := s.prober.Probe(ctx, output); err != nil {
		msg := err.Error()
		rec.MetadataError = &msg
		s.logger.Warn("ffprobe результата рендера завершился ошибкой",
			slog.String("project_id", projectID),
			slog.String("error", msg),
		)
	} else {
		rec.Duration = optional(meta.Duration)
		rec.FrameRate = optional(meta.FrameRate)
		rec.Resolution = optional(meta.Resolution)
	}

	if err := s.upload(ctx, output, rec.Key); err != nil {
		fileOperationsTotal.WithLabelValues("render", "error").Inc()
		return renderOutcome{err: err}
	}

	if err := s.files.Append(ctx, userID, model.ProjectContainer(model.KindRender, projectID), []*model.FileRecord{rec}); err != nil {
		fileOperationsTotal.WithLabelValues("render", "error").Inc()
		// ключ содержит fileId этого рендера: удаляется только своя загрузка
		if delErr := s.store.Delete(ctx, rec.Key); delErr != nil {
			s.logger.Error("Результат рендера не удалён после ошибки записи",
				slog.String("key", rec.Key),
				slog.String("error", delErr.Error()),
			)
		}
		return renderOutcome{err: mapRepoErr(err, "запись рендера")}
	}

	fileOperationsTotal.WithLabelValues("render", "success").Inc()
	s.logger.Info("Плейлист отрендерен",
		slog.String("project_id", projectID),
		slog.Int("sources", len(inputs)),
		slog.String("key", rec.Key),
	)
	return renderOutcome{rec: rec}
}

// upload загружает локальный файл результата в хранилище.
func (s *RenderService) upload(ctx context.Context, local, key string) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("ошибка открытия результата: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("ошибка чтения размера результата: %w", err)
	}
	if err := s.store.Put(ctx, key, f, info.Size(), "video/mp4"); err != nil {
		return upstream(fmt.Errorf("загрузка %s: %w", key, err))
	}
	return nil
}

// optional — пустое значение метаданных не сохраняется.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
