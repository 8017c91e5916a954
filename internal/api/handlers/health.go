// health.go — обработчики health endpoints Report Module.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (PostgreSQL, директория загрузок, JWKS)
// /metrics — Prometheus метрики
package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/foodsalvage/report-module/internal/config"
)

const serviceName = "report-module"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady(ctx context.Context) (status, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	pgChecker   ReadinessChecker
	dirChecker  ReadinessChecker
	jwksChecker ReadinessChecker
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// pgChecker — проверка PostgreSQL (nil — readiness вернёт "fail").
// jwksChecker — проверка IdP (nil — не проверяется).
func NewHealthHandler(pgChecker, dirChecker, jwksChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		pgChecker:   pgChecker,
		dirChecker:  dirChecker,
		jwksChecker: jwksChecker,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		PostgreSQL healthCheckResult  `json:"postgresql"`
		UploadDir  healthCheckResult  `json:"upload_dir"`
		JWKS       *healthCheckResult `json:"jwks,omitempty"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe. Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	resp.Checks.PostgreSQL = runCheck(ctx, h.pgChecker)
	resp.Checks.UploadDir = runCheck(ctx, h.dirChecker)
	statuses := []string{resp.Checks.PostgreSQL.Status, resp.Checks.UploadDir.Status}

	if h.jwksChecker != nil {
		res := runCheck(ctx, h.jwksChecker)
		// IdP недоступен — сервис деградирован, но не выключен из балансировки
		if res.Status == statusFail {
			res.Status = "degraded"
		}
		resp.Checks.JWKS = &res
		statuses = append(statuses, res.Status)
	}

	resp.Status = overallStatus(statuses...)

	status := http.StatusOK
	if resp.Status == statusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

func runCheck(ctx context.Context, c ReadinessChecker) healthCheckResult {
	if c == nil {
		return healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}
	status, msg := c.CheckReady(ctx)
	return healthCheckResult{Status: status, Message: msg}
}

// DirChecker — проверка доступности управляемой директории загрузок.
type DirChecker struct {
	Dir string
}

// CheckReady проверяет, что директория существует и доступна для записи.
func (c DirChecker) CheckReady(_ context.Context) (status, message string) {
	info, err := os.Stat(c.Dir)
	if err != nil {
		return statusFail, "директория недоступна: " + err.Error()
	}
	if !info.IsDir() {
		return statusFail, "путь не является директорией"
	}
	f, err := os.CreateTemp(c.Dir, ".ready-*")
	if err != nil {
		return statusFail, "директория недоступна для записи: " + err.Error()
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return "ok", ""
}

const statusFail = "fail"

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail, если degraded — degraded.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
