// package.go — упаковка плейлистов в zip-архив для скачивания.
//
// Файлы всех плейлистов скачиваются параллельно, затем в исходном
// порядке (проекты по входу, файлы по seqPos) записываются в архив
// вместе с манифестом metadata.json. Готовый архив загружается
// в users/{u}/packages/, клиент получает подписанный URL.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/mediadeck/internal/archive"
	"github.com/bigkaa/mediadeck/internal/blobstore"
	"github.com/bigkaa/mediadeck/internal/domain/model"
	"github.com/bigkaa/mediadeck/internal/repository"
)

// PackageResult — дескриптор загруженного архива.
type PackageResult struct {
	Key       string
	URL       string
	ExpiresAt time.Time
	FileCount int
	SizeBytes int64
	Manifest  *archive.Manifest
	Errors    []ItemError
}

// PackageService — упаковка плейлистов.
type PackageService struct {
	files    repository.FileRepository
	projects repository.ProjectRepository
	store    blobstore.Store
	opts     BatchOptions
	urlTTL   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewPackageService создаёт сервис упаковки; urlTTL — срок ссылки на архив.
func NewPackageService(
	files repository.FileRepository,
	projects repository.ProjectRepository,
	store blobstore.Store,
	opts BatchOptions,
	urlTTL time.Duration,
	logger *slog.Logger,
) *PackageService {
	return &PackageService{
		files:    files,
		projects: projects,
		store:    store,
		opts:     opts,
		urlTTL:   urlTTL,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "package")),
	}
}

// packagePlaylist — плейлист проекта с файлами для архива.
type packagePlaylist struct {
	project *model.Project
	recs    []*model.FileRecord
	local   []string
	fetched []bool
}

// Package собирает архив плейлистов указанных проектов.
func (s *PackageService) Package(ctx context.Context, userID string, projectIDs []string) (*PackageResult, error) {
	if err := checkProjectIDs(userID, projectIDs); err != nil {
		return nil, err
	}

	itemErrs := make([]ItemError, 0)
	playlists := make([]*packagePlaylist, 0, len(projectIDs))
	for _, projectID := range projectIDs {
		project, err := s.projects.Get(ctx, userID, projectID)
		if err != nil {
			itemErrs = append(itemErrs, ItemError{ID: projectID, Error: mapRepoErr(err, "проект "+projectID).Error()})
			continue
		}
		recs, err := s.files.ListByContainer(ctx, userID, model.ProjectContainer(model.KindPlaylist, projectID))
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения плейлиста %s: %w", projectID, err)
		}
		playlists = append(playlists, &packagePlaylist{
			project: project,
			recs:    recs,
			local:   make([]string, len(recs)),
			fetched: make([]bool, len(recs)),
		})
	}
	if len(playlists) == 0 {
		return nil, fmt.Errorf("%w: ни один проект не найден", ErrNotFound)
	}

	dir, err := newJobDir(s.opts.WorkDir, jobPackage)
	if err != nil {
		return nil, err
	}
	defer removeJobDir(dir, s.logger)

	fetchErrs := s.fetchAll(ctx, dir, playlists)
	itemErrs = append(itemErrs, fetchErrs...)

	now := s.now()
	archivePath := filepath.Join(dir, "playlists.zip")
	manifest, entries, err := s.writeArchive(archivePath, userID, now, playlists)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения архива: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("архив пуст")
	}

	key := model.PackageKey(userID, now)
	if err := s.upload(ctx, archivePath, key, info.Size()); err != nil {
		return nil, err
	}
	u, err := s.store.PresignGet(ctx, key, s.urlTTL)
	if err != nil {
		return nil, upstream(err)
	}

	packageFilesTotal.Add(float64(entries))
	fileOperationsTotal.WithLabelValues("package", "success").Inc()
	s.logger.Info("Архив плейлистов собран",
		slog.String("user_id", userID),
		slog.String("key", key),
		slog.Int("files", entries),
		slog.Int64("size_bytes", info.Size()),
		slog.Int("errors", len(itemErrs)),
	)

	return &PackageResult{
		Key:       key,
		URL:       u,
		ExpiresAt: now.Add(s.urlTTL),
		FileCount: entries,
		SizeBytes: info.Size(),
		Manifest:  manifest,
		Errors:    itemErrs,
	}, nil
}

// fetchAll скачивает файлы всех плейлистов параллельно.
func (s *PackageService) fetchAll(ctx context.Context, dir string, playlists []*packagePlaylist) []ItemError {
	errs := make([][]string, len(playlists))
	for pi, pl := range playlists {
		errs[pi] = make([]string, len(pl.recs))
	}

	g := new(errgroup.Group)
	g.SetLimit(batchLimit(s.opts.Concurrency))
	for pi, pl := range playlists {
		for fi, rec := range pl.recs {
			local := filepath.Join(dir, fmt.Sprintf("%d_%s", pi, localName(rec.FileID, rec.Key)))
			g.Go(func() error {
				if _, err := s.store.Fetch(ctx, rec.Key, s.opts.FetchTTL, local); err != nil {
					errs[pi][fi] = err.Error()
					return nil
				}
				pl.local[fi] = local
				pl.fetched[fi] = true
				return nil
			})
		}
	}
	_ = g.Wait()

	out := make([]ItemError, 0)
	for pi, pl := range playlists {
		for fi, msg := range errs[pi] {
			if msg == "" {
				continue
			}
			s.logger.Warn("Файл не скачан, пропущен в архиве",
				slog.String("file_id", pl.recs[fi].FileID),
				slog.String("error", msg),
			)
			out = append(out, ItemError{ID: pl.recs[fi].FileID, Error: msg})
		}
	}
	return out
}

// writeArchive пишет скачанные файлы в архив по порядку и проверяет,
// что манифест совпадает с содержимым.
func (s *PackageService) writeArchive(dst, userID string, now time.Time, playlists []*packagePlaylist) (*archive.Manifest, int, error) {
	f, err := os.Create(dst)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка создания архива: %w", err)
	}
	defer f.Close()

	w := archive.NewWriter(f, userID, now)
	for _, pl := range playlists {
		w.StartPlaylist(pl.project.ProjectID, pl.project.ProjectTitle)
		for i, rec := range pl.recs {
			if !pl.fetched[i] {
				continue
			}
			entry := archive.FileManifest{
				FileName:   rec.FileName,
				SeqPos:     rec.SeqPos,
				Key:        rec.Key,
				Duration:   rec.Duration,
				FrameRate:  rec.FrameRate,
				Resolution: rec.Resolution,
				FileID:     rec.FileID,
				ProjectID:  pl.project.ProjectID,
				CreatedAt:  rec.CreatedAt,
			}
			if err := w.AddFile(entry, pl.local[i]); err != nil {
				return nil, 0, err
			}
		}
	}

	manifest, err := w.Close()
	if err != nil {
		return nil, 0, err
	}
	if manifest.FileCount() != w.Entries() {
		return nil, 0, fmt.Errorf("манифест (%d) не совпадает с архивом (%d)", manifest.FileCount(), w.Entries())
	}
	if err := f.Sync(); err != nil {
		return nil, 0, fmt.Errorf("ошибка записи архива: %w", err)
	}
	return manifest, w.Entries(), nil
}

func (s *PackageService) upload(ctx context.Context, local, key string, size int64) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("ошибка открытия архива: %w", err)
	}
	defer f.Close()

	if err := s.store.Put(ctx, key, f, size, "application/zip"); err != nil {
		fileOperationsTotal.WithLabelValues("package", "error").Inc()
		return upstream(fmt.Errorf("загрузка %s: %w", key, err))
	}
	return nil
}
