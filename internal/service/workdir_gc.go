// workdir_gc.go — фоновая очистка рабочего каталога.
//
// Каталоги заданий (extract-*, render-*, package-*) удаляются самими
// заданиями. После аварийного завершения процесса они остаются в
// MD_WORK_DIR; GC удаляет такие каталоги старше MD_WORKDIR_MAX_AGE.
package service

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики GC
var (
	workdirGCRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "md_workdir_gc_runs_total",
		Help: "Общее количество запусков очистки рабочего каталога",
	})

	workdirGCRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "md_workdir_gc_removed_total",
		Help: "Общее количество удалённых каталогов заданий",
	})

	workdirGCDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "md_workdir_gc_duration_seconds",
		Help:    "Длительность очистки рабочего каталога в секундах",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// WorkdirGCResult — результат одного запуска GC.
type WorkdirGCResult struct {
	// Removed — количество удалённых каталогов
	Removed int
	// Errors — количество ошибок удаления
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// WorkdirGC — фоновая очистка брошенных каталогов заданий.
type WorkdirGC struct {
	workDir  string
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorkdirGC создаёт сервис очистки.
func NewWorkdirGC(workDir string, interval, maxAge time.Duration, logger *slog.Logger) *WorkdirGC {
	return &WorkdirGC{
		workDir:  workDir,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "workdir-gc")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
func (gc *WorkdirGC) Start(ctx context.Context) {
	gcCtx, cancel := context.WithCancel(ctx)
	gc.cancel = cancel
	gc.done = make(chan struct{})

	go gc.run(gcCtx)

	gc.logger.Info("Очистка рабочего каталога запущена",
		slog.String("work_dir", gc.workDir),
		slog.String("interval", gc.interval.String()),
		slog.String("max_age", gc.maxAge.String()),
	)
}

// Stop останавливает фоновую горутину и дожидается её завершения.
func (gc *WorkdirGC) Stop() {
	if gc.cancel == nil {
		return
	}
	gc.cancel()
	<-gc.done
	gc.logger.Info("Очистка рабочего каталога остановлена")
}

func (gc *WorkdirGC) run(ctx context.Context) {
	defer close(gc.done)

	gc.RunOnce()

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gc.RunOnce()
		}
	}
}

// RunOnce удаляет каталоги заданий старше maxAge.
// Другие файлы рабочего каталога не трогает.
func (gc *WorkdirGC) RunOnce() *WorkdirGCResult {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	start := time.Now()
	result := &WorkdirGCResult{}

	entries, err := os.ReadDir(gc.workDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		gc.logger.Error("Ошибка чтения рабочего каталога",
			slog.String("work_dir", gc.workDir),
			slog.String("error", err.Error()),
		)
		result.Errors++
	}

	cutoff := gc.now().Add(-gc.maxAge)
	for _, e := range entries {
		if !e.IsDir() || !isJobDir(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(gc.workDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			gc.logger.Error("Ошибка удаления каталога задания",
				slog.String("dir", path),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		gc.logger.Debug("Каталог задания удалён", slog.String("dir", path))
		result.Removed++
	}

	result.Duration = time.Since(start)
	workdirGCRunsTotal.Inc()
	workdirGCRemovedTotal.Add(float64(result.Removed))
	workdirGCDurationSeconds.Observe(result.Duration.Seconds())

	if result.Removed > 0 || result.Errors > 0 {
		gc.logger.Info("Очистка рабочего каталога завершена",
			slog.Int("removed", result.Removed),
			slog.Int("errors", result.Errors),
			slog.Duration("duration", result.Duration),
		)
	}
	return result
}
