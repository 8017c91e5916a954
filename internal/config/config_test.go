package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// allKeys — все переменные RM_*, которые читает Load.
var allKeys = []string{
	"RM_PORT", "RM_LOG_LEVEL", "RM_LOG_FORMAT",
	"RM_HTTP_READ_TIMEOUT", "RM_HTTP_WRITE_TIMEOUT", "RM_HTTP_IDLE_TIMEOUT", "RM_SHUTDOWN_TIMEOUT",
	"RM_DB_HOST", "RM_DB_PORT", "RM_DB_NAME", "RM_DB_USER", "RM_DB_PASSWORD", "RM_DB_SSL_MODE",
	"RM_DB_MAX_CONNS", "RM_DB_CONNECT_TIMEOUT",
	"RM_UPLOAD_DIR", "RM_PUBLIC_PREFIX", "RM_MAX_FILES", "RM_MAX_FILE_SIZE",
	"RM_RETENTION", "RM_SWEEP_ENABLED", "RM_SWEEP_INTERVAL", "RM_SWEEP_INITIAL_DELAY",
	"RM_CLEANUP_DELAYS", "RM_CLEANUP_WORKERS", "RM_CLEANUP_QUEUE_SIZE",
	"RM_SYSTEM_ACTOR_ID", "RM_SYSTEM_ACTOR_SUBJECT",
	"RM_CACHE_MAX_SIZE", "RM_CACHE_TTL",
	"RM_JWKS_URL", "RM_JWKS_CA_CERT", "RM_JWT_ISSUER", "RM_JWT_LEEWAY", "RM_JWKS_CLIENT_TIMEOUT", "RM_JWKS_REFRESH_INTERVAL",
	"RM_CORS_ALLOWED_ORIGINS", "RM_DEPHEALTH_GROUP", "RM_DEPHEALTH_CHECK_INTERVAL",
}

// setupEnv очищает все RM_* и выставляет обязательные переменные
// плюс переданные переопределения.
func setupEnv(t *testing.T, overrides map[string]string) {
	t.Helper()

	for _, k := range allKeys {
		t.Setenv(k, "")
	}
	required := map[string]string{
		"RM_DB_HOST":     "localhost",
		"RM_DB_NAME":     "reports",
		"RM_DB_USER":     "reports",
		"RM_DB_PASSWORD": "secret",
	}
	for k, v := range required {
		t.Setenv(k, v)
	}
	for k, v := range overrides {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setupEnv(t, nil)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8040 {
		t.Errorf("Port = %d, ожидался 8040", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидался info", cfg.LogLevel)
	}
	if cfg.MaxFiles != 6 {
		t.Errorf("MaxFiles = %d, ожидался 6", cfg.MaxFiles)
	}
	if cfg.MaxFileSize != 20*1024*1024 {
		t.Errorf("MaxFileSize = %d, ожидался 20 MiB", cfg.MaxFileSize)
	}
	if cfg.Retention != 7*24*time.Hour {
		t.Errorf("Retention = %v, ожидалось 168h", cfg.Retention)
	}
	if cfg.PublicPrefix != "uploads/reports" {
		t.Errorf("PublicPrefix = %q, ожидался uploads/reports", cfg.PublicPrefix)
	}
	if len(cfg.CleanupDelays) != 2 || cfg.CleanupDelays[0] != 600*time.Millisecond || cfg.CleanupDelays[1] != 2500*time.Millisecond {
		t.Errorf("CleanupDelays = %v, ожидалось [600ms 2.5s]", cfg.CleanupDelays)
	}
	if cfg.SystemActorSubject != "system" {
		t.Errorf("SystemActorSubject = %q, ожидался system", cfg.SystemActorSubject)
	}
	if cfg.AuthEnabled() {
		t.Error("AuthEnabled() = true при пустом RM_JWKS_URL")
	}
	if !cfg.SweepEnabled {
		t.Error("SweepEnabled = false, ожидалось true по умолчанию")
	}
	if cfg.DBMaxConns != 10 || cfg.DBConnectTimeout != 30*time.Second {
		t.Errorf("DBMaxConns = %d, DBConnectTimeout = %v; ожидались 10 и 30s", cfg.DBMaxConns, cfg.DBConnectTimeout)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, key := range []string{"RM_DB_HOST", "RM_DB_NAME", "RM_DB_USER", "RM_DB_PASSWORD"} {
		t.Run(key, func(t *testing.T) {
			setupEnv(t, map[string]string{key: ""})

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() без %s должен вернуть ошибку", key)
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("ошибка %q не содержит имя переменной %s", err.Error(), key)
			}
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	setupEnv(t, map[string]string{
		"RM_PORT":                 "9000",
		"RM_LOG_LEVEL":            "debug",
		"RM_LOG_FORMAT":           "text",
		"RM_PUBLIC_PREFIX":        "/static/photos/",
		"RM_RETENTION":            "48h",
		"RM_CLEANUP_DELAYS":       "100ms, 1s",
		"RM_SYSTEM_ACTOR_ID":      "42",
		"RM_JWKS_URL":             "https://idp.example.com/certs",
		"RM_CORS_ALLOWED_ORIGINS": "https://a.example.com, https://b.example.com",
		"RM_SWEEP_ENABLED":        "false",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, ожидался 9000", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидался debug", cfg.LogLevel)
	}
	if cfg.PublicPrefix != "static/photos" {
		t.Errorf("PublicPrefix = %q, ожидался static/photos", cfg.PublicPrefix)
	}
	if cfg.Retention != 48*time.Hour {
		t.Errorf("Retention = %v, ожидалось 48h", cfg.Retention)
	}
	if len(cfg.CleanupDelays) != 2 || cfg.CleanupDelays[1] != time.Second {
		t.Errorf("CleanupDelays = %v, ожидалось [100ms 1s]", cfg.CleanupDelays)
	}
	if cfg.SystemActorID != 42 {
		t.Errorf("SystemActorID = %d, ожидался 42", cfg.SystemActorID)
	}
	if !cfg.AuthEnabled() {
		t.Error("AuthEnabled() = false при заданном RM_JWKS_URL")
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("CORSAllowedOrigins = %v, ожидалось 2 значения", cfg.CORSAllowedOrigins)
	}
	if cfg.SweepEnabled {
		t.Error("SweepEnabled = true, ожидалось false")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"порт не число", "RM_PORT", "abc"},
		{"порт вне диапазона", "RM_PORT", "70000"},
		{"уровень логов", "RM_LOG_LEVEL", "verbose"},
		{"формат логов", "RM_LOG_FORMAT", "xml"},
		{"нулевой retention", "RM_RETENTION", "0s"},
		{"отрицательная задержка", "RM_CLEANUP_DELAYS", "-1s"},
		{"воркеры", "RM_CLEANUP_WORKERS", "0"},
		{"размер файла", "RM_MAX_FILE_SIZE", "0"},
		{"булево", "RM_SWEEP_ENABLED", "maybe"},
		{"системный актор", "RM_SYSTEM_ACTOR_ID", "-5"},
		{"размер пула", "RM_DB_MAX_CONNS", "0"},
		{"jwks url", "RM_JWKS_URL", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t, map[string]string{tt.key: tt.val})

			if _, err := Load(); err == nil {
				t.Errorf("Load() с %s=%q должен вернуть ошибку", tt.key, tt.val)
			}
		})
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{
		DBHost: "db", DBPort: 5432, DBName: "reports",
		DBUser: "user", DBPassword: "p@ss", DBSSLMode: "disable",
	}

	got := cfg.DatabaseURL("pgx5")
	want := "pgx5://user:p%40ss@db:5432/reports?sslmode=disable"
	if got != want {
		t.Errorf("DatabaseURL() = %q, ожидался %q", got, want)
	}
}
