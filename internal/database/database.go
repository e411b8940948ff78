// Пакет database — пул pgxpool и встроенные миграции схемы mediadeck.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/mediadeck/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// connectTimeout ограничивает первый ping при старте.
const connectTimeout = 10 * time.Second

// Connect открывает пул размером cfg.DBMaxConns и ждёт ответа PostgreSQL.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("разбор DSN: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.DBMaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL %s:%d не отвечает: %w", cfg.DBHost, cfg.DBPort, err)
	}

	logger.Info("PostgreSQL подключён",
		slog.String("host", cfg.DBHost),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// Migrate поднимает схему до последней версии из migrations/.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("чтение встроенных миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("подготовка миграций: %w", err)
	}
	defer m.Close()

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug("Схема БД актуальна")
	case err != nil:
		return fmt.Errorf("миграция схемы: %w", err)
	}

	if version, dirty, verr := m.Version(); verr == nil {
		logger.Info("Схема БД",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	}
	return nil
}
