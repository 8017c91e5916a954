// Пакет config — загрузка и валидация конфигурации Report Module
// из переменных окружения (префикс RM_) и опционального .env файла.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Report Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (по умолчанию 8040)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Таймаут graceful shutdown (по умолчанию 10s)
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// DBMaxConns — максимальный размер пула подключений
	DBMaxConns int32
	// DBConnectTimeout — общее время ожидания PostgreSQL при старте
	DBConnectTimeout time.Duration

	// --- Хранилище фотографий ---

	// UploadDir — управляемая директория с фотографиями отчётов
	UploadDir string
	// PublicPrefix — префикс публичного URL (без ведущего и завершающего /)
	PublicPrefix string
	// MaxFiles — максимальное количество фотографий в одном отчёте
	MaxFiles int
	// MaxFileSize — максимальный размер одного загружаемого файла (байт)
	MaxFileSize int64

	// --- Retention ---

	// Retention — минимальный возраст закрытого отчёта перед удалением
	Retention time.Duration
	// SweepEnabled — запускать ли фоновую очистку в режиме serve
	SweepEnabled bool
	// SweepInterval — период фоновой очистки
	SweepInterval time.Duration
	// SweepInitialDelay — задержка первого запуска очистки после старта
	SweepInitialDelay time.Duration

	// --- Отложенная очистка вариантов ---

	// CleanupDelays — задержки повторных попыток удаления вариантов после commit
	CleanupDelays []time.Duration
	// CleanupWorkers — количество воркеров пула очистки
	CleanupWorkers int
	// CleanupQueueSize — ёмкость очереди задач очистки
	CleanupQueueSize int

	// --- Системный актор ---

	// SystemActorID — id актора, от имени которого выполняются автоматические операции (0 — не задан)
	SystemActorID int64
	// SystemActorSubject — subject системного актора для логов
	SystemActorSubject string

	// --- Кэш ---

	CacheMaxSize int
	CacheTTL     time.Duration

	// --- JWT / JWKS ---

	// JWKSURL — URL JWKS endpoint (пустое значение отключает аутентификацию)
	JWKSURL string
	// JWKSCACert — опциональный путь к CA-сертификату для TLS к JWKS
	JWKSCACert string

	JWTIssuer           string
	JWTLeeway           time.Duration
	JWKSClientTimeout   time.Duration
	JWKSRefreshInterval time.Duration
	CORSAllowedOrigins  []string

	// --- Topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Перед чтением переменных подгружает .env (если файл существует);
// уже заданные переменные окружения имеют приоритет.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("ошибка чтения .env: %w", err)
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("RM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("RM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("RM_PORT: порт %d вне диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("RM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("RM_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("RM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RM_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("RM_HTTP_READ_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("RM_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("RM_HTTP_WRITE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("RM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("RM_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("RM_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("RM_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("RM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("RM_DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.DBPort, err = getEnvInt("RM_DB_PORT", 5432); err != nil {
		return nil, fmt.Errorf("RM_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("RM_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("RM_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("RM_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("RM_DB_SSL_MODE", "disable")

	maxConns, err := getEnvInt("RM_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("RM_DB_MAX_CONNS: %w", err)
	}
	if maxConns < 1 {
		return nil, fmt.Errorf("RM_DB_MAX_CONNS: значение должно быть >= 1")
	}
	cfg.DBMaxConns = int32(maxConns)
	if cfg.DBConnectTimeout, err = getEnvDuration("RM_DB_CONNECT_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("RM_DB_CONNECT_TIMEOUT: %w", err)
	}

	// --- Хранилище фотографий ---

	cfg.UploadDir = getEnvDefault("RM_UPLOAD_DIR", "/data/uploads/reports")
	cfg.PublicPrefix = strings.Trim(getEnvDefault("RM_PUBLIC_PREFIX", "uploads/reports"), "/")
	if cfg.PublicPrefix == "" {
		return nil, fmt.Errorf("RM_PUBLIC_PREFIX: префикс не может быть пустым")
	}

	if cfg.MaxFiles, err = getEnvInt("RM_MAX_FILES", 6); err != nil {
		return nil, fmt.Errorf("RM_MAX_FILES: %w", err)
	}
	if cfg.MaxFiles < 0 {
		return nil, fmt.Errorf("RM_MAX_FILES: значение должно быть >= 0")
	}
	if cfg.MaxFileSize, err = getEnvInt64("RM_MAX_FILE_SIZE", 20*1024*1024); err != nil {
		return nil, fmt.Errorf("RM_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("RM_MAX_FILE_SIZE: значение должно быть > 0")
	}

	// --- Retention ---

	if cfg.Retention, err = getEnvDurationPositive("RM_RETENTION", 7*24*time.Hour); err != nil {
		return nil, fmt.Errorf("RM_RETENTION: %w", err)
	}
	if cfg.SweepEnabled, err = getEnvBool("RM_SWEEP_ENABLED", true); err != nil {
		return nil, fmt.Errorf("RM_SWEEP_ENABLED: %w", err)
	}
	if cfg.SweepInterval, err = getEnvDurationPositive("RM_SWEEP_INTERVAL", 24*time.Hour); err != nil {
		return nil, fmt.Errorf("RM_SWEEP_INTERVAL: %w", err)
	}
	if cfg.SweepInitialDelay, err = getEnvDuration("RM_SWEEP_INITIAL_DELAY", time.Minute); err != nil {
		return nil, fmt.Errorf("RM_SWEEP_INITIAL_DELAY: %w", err)
	}

	// --- Отложенная очистка ---

	if cfg.CleanupDelays, err = getEnvDurationList("RM_CLEANUP_DELAYS",
		[]time.Duration{600 * time.Millisecond, 2500 * time.Millisecond}); err != nil {
		return nil, fmt.Errorf("RM_CLEANUP_DELAYS: %w", err)
	}
	if cfg.CleanupWorkers, err = getEnvInt("RM_CLEANUP_WORKERS", 2); err != nil {
		return nil, fmt.Errorf("RM_CLEANUP_WORKERS: %w", err)
	}
	if cfg.CleanupWorkers < 1 {
		return nil, fmt.Errorf("RM_CLEANUP_WORKERS: значение должно быть >= 1")
	}
	if cfg.CleanupQueueSize, err = getEnvInt("RM_CLEANUP_QUEUE_SIZE", 256); err != nil {
		return nil, fmt.Errorf("RM_CLEANUP_QUEUE_SIZE: %w", err)
	}
	if cfg.CleanupQueueSize < 1 {
		return nil, fmt.Errorf("RM_CLEANUP_QUEUE_SIZE: значение должно быть >= 1")
	}

	// --- Системный актор ---

	if cfg.SystemActorID, err = getEnvInt64("RM_SYSTEM_ACTOR_ID", 0); err != nil {
		return nil, fmt.Errorf("RM_SYSTEM_ACTOR_ID: %w", err)
	}
	if cfg.SystemActorID < 0 {
		return nil, fmt.Errorf("RM_SYSTEM_ACTOR_ID: значение должно быть >= 0")
	}
	cfg.SystemActorSubject = getEnvDefault("RM_SYSTEM_ACTOR_SUBJECT", "system")

	// --- Кэш ---

	if cfg.CacheMaxSize, err = getEnvInt("RM_CACHE_MAX_SIZE", 1000); err != nil {
		return nil, fmt.Errorf("RM_CACHE_MAX_SIZE: %w", err)
	}
	if cfg.CacheMaxSize < 1 {
		return nil, fmt.Errorf("RM_CACHE_MAX_SIZE: значение должно быть >= 1")
	}
	if cfg.CacheTTL, err = getEnvDurationPositive("RM_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("RM_CACHE_TTL: %w", err)
	}

	// --- JWT / JWKS ---

	cfg.JWKSURL = getEnvDefault("RM_JWKS_URL", "")
	if cfg.JWKSURL != "" {
		if _, err := url.ParseRequestURI(cfg.JWKSURL); err != nil {
			return nil, fmt.Errorf("RM_JWKS_URL: некорректный URL %q", cfg.JWKSURL)
		}
	}
	cfg.JWKSCACert = getEnvDefault("RM_JWKS_CA_CERT", "")
	cfg.JWTIssuer = getEnvDefault("RM_JWT_ISSUER", "")
	if cfg.JWTLeeway, err = getEnvDuration("RM_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("RM_JWT_LEEWAY: %w", err)
	}
	if cfg.JWKSClientTimeout, err = getEnvDurationPositive("RM_JWKS_CLIENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("RM_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	if cfg.JWKSRefreshInterval, err = getEnvDurationPositive("RM_JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("RM_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.CORSAllowedOrigins = getEnvList("RM_CORS_ALLOWED_ORIGINS", []string{"*"})

	// --- Topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("RM_DEPHEALTH_GROUP", "foodsalvage")
	if cfg.DephealthCheckInterval, err = getEnvDurationPositive("RM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("RM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN формирует DSN для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL формирует URL подключения (для golang-migrate и лейблов dephealth).
func (c *Config) DatabaseURL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// AuthEnabled сообщает, включена ли JWT-аутентификация.
func (c *Config) AuthEnabled() bool {
	return c.JWKSURL != ""
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

// getEnvInt64 возвращает int64 из переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
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

// getEnvDurationPositive — как getEnvDuration, но значение должно быть > 0.
func getEnvDurationPositive(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvDurationList разбирает список длительностей через запятую.
func getEnvDurationList(key string, defaultVal []time.Duration) ([]time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	var result []time.Duration
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("некорректная длительность: %q", part)
		}
		if d < 0 {
			return nil, fmt.Errorf("длительность не может быть отрицательной: %q", part)
		}
		result = append(result, d)
	}
	return result, nil
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

// getEnvList разбирает список строк через запятую.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var result []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return defaultVal
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
