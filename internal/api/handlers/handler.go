// handler.go — основной обработчик API Report Module.
// Объединяет health и бизнес-обработчики отчётов, делегируя запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/foodsalvage/report-module/internal/api/errors"
	"github.com/bigkaa/foodsalvage/report-module/internal/api/middleware"
	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
	"github.com/bigkaa/foodsalvage/report-module/internal/service"
	"github.com/bigkaa/foodsalvage/report-module/internal/storage/filestore"
)

// ReportService — операции жизненного цикла отчётов.
type ReportService interface {
	Create(ctx context.Context, in service.CreateInput, files []service.StagedFile) (*model.Report, error)
	GetByID(ctx context.Context, id int64) (*model.Report, error)
	List(ctx context.Context, f service.ListFilter) ([]*model.Report, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Summary(ctx context.Context) (*service.StatusSummary, error)
	StartReview(ctx context.Context, id int64) (*model.Report, error)
	Approve(ctx context.Context, id int64, patch model.ReportPatch, ifUnmodifiedAt *time.Time) (*model.Report, error)
	Reject(ctx context.Context, id int64, message string, ifUnmodifiedAt *time.Time) (*model.Report, error)
}

// ActorEnsurer — синхронизация актора запроса с таблицей actors.
type ActorEnsurer interface {
	Ensure(ctx context.Context, a model.Actor) (model.Actor, error)
}

// FileStager — запись загружаемых файлов в управляемую директорию.
type FileStager interface {
	Stage(reader io.Reader, originalFilename string, maxSize int64) (*filestore.StageResult, error)
	SafeDelete(ctx context.Context, name string) error
}

// APIHandler — основной обработчик API Report Module.
type APIHandler struct {
	health      *HealthHandler
	reports     ReportService
	actors      ActorEnsurer
	stager      FileStager
	maxFiles    int
	maxFileSize int64
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	reports ReportService,
	actors ActorEnsurer,
	stager FileStager,
	maxFiles int,
	maxFileSize int64,
	logger *slog.Logger,
) *APIHandler {
	if maxFiles <= 0 {
		maxFiles = service.DefaultMaxFiles
	}
	return &APIHandler{
		health:      health,
		reports:     reports,
		actors:      actors,
		stager:      stager,
		maxFiles:    maxFiles,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// reportID извлекает положительный id отчёта из URL.
func reportID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryInt разбирает необязательный целочисленный параметр запроса.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// requestContext возвращает context запроса с актором из claims (для логов сервиса).
func requestContext(r *http.Request) context.Context {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		return r.Context()
	}
	return service.WithActor(r.Context(), claims.Actor())
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPayload):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrUnsupportedMediaType):
		apierrors.UnsupportedMediaType(w, err.Error())
	case errors.Is(err, service.ErrInvalidImage):
		apierrors.InvalidImage(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
