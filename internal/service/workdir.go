package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/mediadeck/internal/blobstore"
)

// Префиксы рабочих каталогов заданий в MD_WORK_DIR.
const (
	jobExtract = "extract"
	jobRender  = "render"
	jobPackage = "package"
)

// BatchOptions — общие параметры пакетных операций.
type BatchOptions struct {
	// WorkDir — каталог для временных файлов заданий
	WorkDir string
	// FetchTTL — TTL подписанных URL для внутреннего скачивания
	FetchTTL time.Duration
	// Concurrency — максимум одновременно обрабатываемых элементов
	Concurrency int
}

// newJobDir создаёт рабочий каталог задания {workDir}/{kind}-XXXX.
func newJobDir(workDir, kind string) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("ошибка создания рабочего каталога: %w", err)
	}
	dir, err := os.MkdirTemp(workDir, kind+"-*")
	if err != nil {
		return "", fmt.Errorf("ошибка создания каталога задания: %w", err)
	}
	return dir, nil
}

// isJobDir — каталог создан newJobDir.
func isJobDir(name string) bool {
	for _, kind := range []string{jobExtract, jobRender, jobPackage} {
		if strings.HasPrefix(name, kind+"-") {
			return true
		}
	}
	return false
}

// removeJobDir удаляет каталог задания, ошибку только логирует.
func removeJobDir(dir string, logger *slog.Logger) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("Не удалось удалить каталог задания",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	}
}

// localName — имя временного файла для записи: fileId + расширение ключа.
func localName(fileID, key string) string {
	return fileID + filepath.Ext(key)
}

// deleteBlobs удаляет объекты параллельно и возвращает ключи,
// которые удалить не удалось.
func deleteBlobs(ctx context.Context, store blobstore.Store, keys []string, concurrency int, logger *slog.Logger) []string {
	failed := make([]bool, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchLimit(concurrency))
	for i, key := range keys {
		g.Go(func() error {
			if err := store.Delete(gctx, key); err != nil {
				logger.Warn("Объект не удалён из хранилища",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				failed[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	orphaned := make([]string, 0)
	for i, f := range failed {
		if f {
			orphaned = append(orphaned, keys[i])
		}
	}
	return orphaned
}

// batchLimit — лимит errgroup; ноль заблокировал бы пакет навсегда.
func batchLimit(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
