// dephealth.go — мониторинг зависимостей через topologymetrics SDK.
//
// mediadeck мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (critical)
//   - S3-совместимое хранилище — HTTP checker к health endpoint,
//     только если задан MD_S3_ENDPOINT (для AWS S3 проверка не нужна)
//
// Метрики app_dependency_* доступны на /metrics.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа приложения
	ServiceID string
	// Group — имя группы в метриках (MD_DEPHEALTH_GROUP)
	Group string
	// PgConnURL — URL PostgreSQL для лейблов метрик
	PgConnURL string
	// S3Endpoint — URL хранилища; пустой — зависимость не регистрируется
	S3Endpoint string
	// S3HealthPath — путь health endpoint хранилища
	S3HealthPath  string
	CheckInterval time.Duration
	// IsEntry — лейбл isentry=yes у всех зависимостей
	IsEntry bool
}

// DephealthService — сервис мониторинга зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	hasS3  bool
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга.
// db — *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool().
func NewDephealthService(cfg DephealthConfig, db *sql.DB, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, db, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным
// Prometheus registerer. Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(cfg DephealthConfig, db *sql.DB, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(cfg, db, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(cfg DephealthConfig, db *sql.DB, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	pgDepOpts := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.PgConnURL),
		dephealth.CheckInterval(cfg.CheckInterval),
		dephealth.Critical(true),
	}
	if cfg.IsEntry {
		pgDepOpts = append(pgDepOpts, dephealth.WithLabel("isentry", "yes"))
	}

	opts := make([]dephealth.Option, 0, 3+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(db)), pgDepOpts...),
	)

	hasS3 := cfg.S3Endpoint != ""
	if hasS3 {
		s3DepOpts := []dephealth.DependencyOption{
			dephealth.FromURL(cfg.S3Endpoint),
			dephealth.WithHTTPHealthPath(cfg.S3HealthPath),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		}
		if parsed, err := url.Parse(cfg.S3Endpoint); err == nil && parsed.Scheme == "https" {
			s3DepOpts = append(s3DepOpts, dephealth.WithHTTPTLSSkipVerify(false))
		}
		if cfg.IsEntry {
			s3DepOpts = append(s3DepOpts, dephealth.WithLabel("isentry", "yes"))
		}
		opts = append(opts, dephealth.HTTP("object-storage", s3DepOpts...))
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		hasS3:  hasS3,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен", slog.Bool("object_storage", ds.hasS3))
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает состояние зависимостей: имя → ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
