// Пакет config — загрузка и валидация конфигурации mediadeck
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации mediadeck.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// DBMaxConns — размер пула pgxpool
	DBMaxConns int

	// --- S3 ---

	// Имя bucket для всех объектов
	S3Bucket string
	// Регион
	S3Region string
	// Endpoint S3-совместимого хранилища (пусто — AWS)
	S3Endpoint string
	// Статические ключи доступа (пусто — цепочка по умолчанию AWS SDK)
	S3AccessKeyID     string
	S3SecretAccessKey string
	// Path-style адресация (MinIO)
	S3UsePathStyle bool
	// Health path для мониторинга endpoint (только при заданном S3Endpoint)
	S3HealthPath string
	// Circuit breaker скачиваний: подряд идущих ошибок до размыкания и время в open
	S3BreakerFailures int
	S3BreakerTimeout  time.Duration

	// --- Подписанные URL ---

	// TTL URL загрузки клиентом
	UploadURLTTL time.Duration
	// TTL URL чтения в списках файлов
	ReadURLTTL time.Duration
	// TTL URL для внутренних скачиваний (извлечение, рендер)
	InternalURLTTL time.Duration
	// TTL URL для скачивания файлов при упаковке
	PackageURLTTL time.Duration
	// Размер и TTL кэша подписанных URL чтения
	URLCacheSize int
	URLCacheTTL  time.Duration

	// --- Обработка медиа ---

	// Каталог временных файлов (извлечение, рендер, упаковка)
	WorkDir string
	// Пути к бинарникам ffmpeg / ffprobe
	FFmpegPath  string
	FFprobePath string
	// Лимит параллельных операций внутри одного пакета
	BatchConcurrency int
	// Интервал очистки рабочего каталога и максимальный возраст задач
	WorkdirGCInterval time.Duration
	WorkdirMaxAge     time.Duration

	// --- HTTP API ---

	// Разрешённые CORS origins (пусто — CORS выключен)
	CORSAllowedOrigins []string
	// Лимит запросов к пакетным операциям (рендер, упаковка) с одного IP за окно
	BatchRateLimit       int
	BatchRateLimitWindow time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
	DephealthIsEntry       bool

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// MD_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("MD_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("MD_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("MD_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MD_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("MD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("MD_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MD_HTTP_READ_TIMEOUT: %w", err)
	}

	// Рендер и упаковка выполняются синхронно — запись по умолчанию длиннее
	cfg.HTTPWriteTimeout, err = getEnvDuration("MD_HTTP_WRITE_TIMEOUT", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MD_HTTP_WRITE_TIMEOUT: %w", err)
	}

	cfg.HTTPIdleTimeout, err = getEnvDuration("MD_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MD_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("MD_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("MD_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("MD_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("MD_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("MD_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("MD_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("MD_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("MD_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("MD_DB_MAX_CONNS", 16)
	if err != nil {
		return nil, fmt.Errorf("MD_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 1000 {
		return nil, fmt.Errorf("MD_DB_MAX_CONNS: значение %d вне допустимого диапазона 1-1000", cfg.DBMaxConns)
	}

	// --- S3 ---

	cfg.S3Bucket, err = getEnvRequired("MD_S3_BUCKET")
	if err != nil {
		return nil, err
	}

	cfg.S3Region = getEnvDefault("MD_S3_REGION", "us-east-1")

	cfg.S3Endpoint = strings.TrimRight(getEnvDefault("MD_S3_ENDPOINT", ""), "/")
	if cfg.S3Endpoint != "" {
		if u, parseErr := url.Parse(cfg.S3Endpoint); parseErr != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("MD_S3_ENDPOINT: некорректный URL %q", cfg.S3Endpoint)
		}
	}

	cfg.S3AccessKeyID = getEnvDefault("MD_S3_ACCESS_KEY_ID", "")
	cfg.S3SecretAccessKey = getEnvDefault("MD_S3_SECRET_ACCESS_KEY", "")
	if (cfg.S3AccessKeyID == "") != (cfg.S3SecretAccessKey == "") {
		return nil, fmt.Errorf("MD_S3_ACCESS_KEY_ID и MD_S3_SECRET_ACCESS_KEY задаются только вместе")
	}

	// MD_S3_USE_PATH_STYLE — по умолчанию true, если задан собственный endpoint
	cfg.S3UsePathStyle, err = getEnvBool("MD_S3_USE_PATH_STYLE", cfg.S3Endpoint != "")
	if err != nil {
		return nil, fmt.Errorf("MD_S3_USE_PATH_STYLE: %w", err)
	}

	cfg.S3HealthPath = getEnvDefault("MD_S3_HEALTH_PATH", "/minio/health/live")

	cfg.S3BreakerFailures, err = getEnvInt("MD_S3_BREAKER_FAILURES", 5)
	if err != nil {
		return nil, fmt.Errorf("MD_S3_BREAKER_FAILURES: %w", err)
	}
	if cfg.S3BreakerFailures < 1 {
		return nil, fmt.Errorf("MD_S3_BREAKER_FAILURES: значение должно быть > 0")
	}

	cfg.S3BreakerTimeout, err = getEnvPositiveDuration("MD_S3_BREAKER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MD_S3_BREAKER_TIMEOUT: %w", err)
	}

	// --- Подписанные URL ---

	cfg.UploadURLTTL, err = getEnvPositiveDuration("MD_UPLOAD_URL_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MD_UPLOAD_URL_TTL: %w", err)
	}

	cfg.ReadURLTTL, err = getEnvPositiveDuration("MD_READ_URL_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MD_READ_URL_TTL: %w", err)
	}

	cfg.InternalURLTTL, err = getEnvPositiveDuration("MD_INTERNAL_URL_TTL", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MD_INTERNAL_URL_TTL: %w", err)
	}

	cfg.PackageURLTTL, err = getEnvPositiveDuration("MD_PACKAGE_URL_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MD_PACKAGE_URL_TTL: %w", err)
	}

	cfg.URLCacheSize, err = getEnvInt("MD_URL_CACHE_SIZE", 10000)
	if err != nil {
		return nil, fmt.Errorf("MD_URL_CACHE_SIZE: %w", err)
	}
	if cfg.URLCacheSize < 1 {
		return nil, fmt.Errorf("MD_URL_CACHE_SIZE: значение должно быть > 0")
	}

	// Кэшированный URL должен оставаться действительным ещё какое-то время после выдачи
	cfg.URLCacheTTL, err = getEnvPositiveDuration("MD_URL_CACHE_TTL", cfg.ReadURLTTL*3/4)
	if err != nil {
		return nil, fmt.Errorf("MD_URL_CACHE_TTL: %w", err)
	}
	if cfg.URLCacheTTL >= cfg.ReadURLTTL {
		return nil, fmt.Errorf("MD_URL_CACHE_TTL: %s должен быть меньше MD_READ_URL_TTL (%s)", cfg.URLCacheTTL, cfg.ReadURLTTL)
	}

	// --- Обработка медиа ---

	cfg.WorkDir = getEnvDefault("MD_WORK_DIR", filepath.Join(os.TempDir(), "mediadeck"))
	cfg.FFmpegPath = getEnvDefault("MD_FFMPEG_PATH", "ffmpeg")
	cfg.FFprobePath = getEnvDefault("MD_FFPROBE_PATH", "ffprobe")

	cfg.BatchConcurrency, err = getEnvInt("MD_BATCH_CONCURRENCY", 8)
	if err != nil {
		return nil, fmt.Errorf("MD_BATCH_CONCURRENCY: %w", err)
	}
	if cfg.BatchConcurrency < 1 || cfg.BatchConcurrency > 256 {
		return nil, fmt.Errorf("MD_BATCH_CONCURRENCY: значение %d вне допустимого диапазона 1-256", cfg.BatchConcurrency)
	}

	cfg.WorkdirGCInterval, err = getEnvPositiveDuration("MD_WORKDIR_GC_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MD_WORKDIR_GC_INTERVAL: %w", err)
	}

	cfg.WorkdirMaxAge, err = getEnvPositiveDuration("MD_WORKDIR_MAX_AGE", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MD_WORKDIR_MAX_AGE: %w", err)
	}

	// --- HTTP API ---

	cfg.CORSAllowedOrigins = splitList(getEnvDefault("MD_CORS_ALLOWED_ORIGINS", ""))

	// 0 отключает ограничение
	cfg.BatchRateLimit, err = getEnvInt("MD_BATCH_RATE_LIMIT", 30)
	if err != nil {
		return nil, fmt.Errorf("MD_BATCH_RATE_LIMIT: %w", err)
	}
	if cfg.BatchRateLimit < 0 {
		return nil, fmt.Errorf("MD_BATCH_RATE_LIMIT: значение должно быть >= 0")
	}

	cfg.BatchRateLimitWindow, err = getEnvPositiveDuration("MD_BATCH_RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MD_BATCH_RATE_LIMIT_WINDOW: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("MD_DEPHEALTH_GROUP", "mediadeck")

	cfg.DephealthCheckInterval, err = getEnvDuration("MD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	cfg.DephealthIsEntry, err = getEnvBool("MD_DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("MD_DEPHEALTH_ISENTRY: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("MD_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MD_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL возвращает URL для golang-migrate (схема pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — как getEnvDuration, но значение должно быть > 0.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// splitList разбирает список через запятую, пропуская пустые элементы.
func splitList(val string) []string {
	var result []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
