// Точка входа mediadeck — backend медиапроектов.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL и S3,
// создаёт сервисный слой и API handlers, запускает фоновые задачи
// (очистка рабочего каталога, topologymetrics), HTTP-сервер и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/mediadeck/internal/api/handlers"
	"github.com/bigkaa/mediadeck/internal/api/middleware"
	"github.com/bigkaa/mediadeck/internal/blobstore"
	"github.com/bigkaa/mediadeck/internal/config"
	"github.com/bigkaa/mediadeck/internal/database"
	"github.com/bigkaa/mediadeck/internal/media"
	"github.com/bigkaa/mediadeck/internal/repository"
	"github.com/bigkaa/mediadeck/internal/server"
	"github.com/bigkaa/mediadeck/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("mediadeck запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("MD_DEPHEALTH_GROUP") == "" {
		logger.Warn("MD_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Контекст процесса отменяется по SIGINT/SIGTERM: останавливает
	// HTTP-сервер, GC рабочего каталога и topologymetrics
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Подключение к PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. S3 клиент и хранилище объектов
	s3Client, err := blobstore.NewClient(ctx, cfg)
	if err != nil {
		logger.Error("Ошибка создания S3 клиента", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store := blobstore.NewS3Store(s3Client, blobstore.Options{
		Bucket:          cfg.S3Bucket,
		BreakerFailures: uint32(cfg.S3BreakerFailures),
		BreakerTimeout:  cfg.S3BreakerTimeout,
	}, logger)
	logger.Info("S3 хранилище настроено",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("endpoint", cfg.S3Endpoint),
	)

	// 6. ffprobe / ffmpeg и рабочий каталог
	if err := os.MkdirAll(cfg.WorkDir, 0o750); err != nil {
		logger.Error("Ошибка создания рабочего каталога",
			slog.String("path", cfg.WorkDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	prober := media.NewFFProbe(cfg.FFprobePath)
	merger := media.NewFFmpeg(cfg.FFmpegPath)

	// 7. Кэш подписанных URL чтения
	urls := service.NewURLCache(store, cfg.URLCacheSize, cfg.URLCacheTTL, cfg.ReadURLTTL)

	// 8. Repositories
	projectRepo := repository.NewProjectRepository(pool)
	programRepo := repository.NewProgramRepository(pool)
	fileRepo := repository.NewFileRepository(pool)
	noteRepo := repository.NewNoteRepository(pool)

	// 9. Services
	batch := service.BatchOptions{
		WorkDir:     cfg.WorkDir,
		FetchTTL:    cfg.InternalURLTTL,
		Concurrency: cfg.BatchConcurrency,
	}

	svc := handlers.Services{
		Uploads:   service.NewUploadService(fileRepo, projectRepo, programRepo, store, cfg.UploadURLTTL, logger),
		Files:     service.NewFileService(fileRepo, noteRepo, projectRepo, programRepo, store, urls, logger),
		Extract:   service.NewExtractService(fileRepo, projectRepo, programRepo, store, prober, batch, logger),
		Transfers: service.NewTransferService(fileRepo, projectRepo, store, batch, logger),
		Renders:   service.NewRenderService(fileRepo, projectRepo, store, prober, merger, batch, logger),
		Packages:  service.NewPackageService(fileRepo, projectRepo, store, batch, cfg.PackageURLTTL, logger),
		Projects:  service.NewProjectService(projectRepo, store, urls, cfg.BatchConcurrency, logger),
		Programs:  service.NewProgramService(programRepo, projectRepo, fileRepo, store, urls, cfg.BatchConcurrency, logger),
	}

	// 10. Фоновая очистка рабочего каталога
	workdirGC := service.NewWorkdirGC(cfg.WorkDir, cfg.WorkdirGCInterval, cfg.WorkdirMaxAge, logger)
	workdirGC.Start(ctx)
	defer workdirGC.Stop()

	// 10.1 topologymetrics — мониторинг зависимостей (PostgreSQL + S3)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "mediadeck",
		Group:         cfg.DephealthGroup,
		PgConnURL:     cfg.DatabaseURL(),
		S3Endpoint:    cfg.S3Endpoint,
		S3HealthPath:  cfg.S3HealthPath,
		CheckInterval: cfg.DephealthCheckInterval,
		IsEntry:       cfg.DephealthIsEntry,
	}, pgDB, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
			defer dephealthSvc.Stop()
		}
	}

	// 11. Readiness checkers (PostgreSQL + S3) и API handler
	healthHandler := handlers.NewHealthHandler(
		handlers.ReadinessCheck{Name: "postgresql", Checker: handlers.ReadinessFunc(pool.Ping)},
		handlers.ReadinessCheck{Name: "objectStorage", Checker: store},
	)
	apiHandler := handlers.NewAPIHandler(healthHandler, svc, logger)

	// 12. HTTP-сервер с метриками и логированием запросов
	srv := server.New(cfg, logger, apiHandler,
		chimw.RequestID,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	// 13. Запуск сервера до сигнала завершения
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("mediadeck остановлен")
}
