// review.go — обработчики переходов жизненного цикла:
// POST /api/v1/reports/{id}/review/{start|approve|reject}.
//
// Для approve и reject клиент передаёт if_unmodified_at (updated_at,
// который он видел). Администратор закрывает отчёт без проверки guard.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/foodsalvage/report-module/internal/api/errors"
	"github.com/bigkaa/foodsalvage/report-module/internal/api/middleware"
	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
)

// maxReviewBody — максимальный размер JSON-тела перехода.
const maxReviewBody = 64 << 10

// approveRequest — тело approve: поля патча и guard.
type approveRequest struct {
	model.ReportPatch
	IfUnmodifiedAt *time.Time `json:"if_unmodified_at"`
}

// rejectRequest — тело reject.
type rejectRequest struct {
	OutcomeMessage string     `json:"outcome_message"`
	IfUnmodifiedAt *time.Time `json:"if_unmodified_at"`
}

// StartReview обрабатывает POST /api/v1/reports/{id}/review/start.
func (h *APIHandler) StartReview(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(r)
	if !ok {
		apierrors.ValidationError(w, "Некорректный id отчёта")
		return
	}

	report, err := h.reports.StartReview(requestContext(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if report == nil {
		apierrors.NotFound(w, fmt.Sprintf("Отчёт %d не найден", id))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ApproveReport обрабатывает POST /api/v1/reports/{id}/review/approve.
func (h *APIHandler) ApproveReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(r)
	if !ok {
		apierrors.ValidationError(w, "Некорректный id отчёта")
		return
	}

	var req approveRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	report, err := h.reports.Approve(requestContext(r), id, req.ReportPatch, guardFor(r, req.IfUnmodifiedAt))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if report == nil {
		apierrors.NotFound(w, fmt.Sprintf("Отчёт %d не найден", id))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RejectReport обрабатывает POST /api/v1/reports/{id}/review/reject.
func (h *APIHandler) RejectReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(r)
	if !ok {
		apierrors.ValidationError(w, "Некорректный id отчёта")
		return
	}

	var req rejectRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	report, err := h.reports.Reject(requestContext(r), id, req.OutcomeMessage, guardFor(r, req.IfUnmodifiedAt))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if report == nil {
		apierrors.NotFound(w, fmt.Sprintf("Отчёт %d не найден", id))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// guardFor возвращает guard оптимистичной блокировки; для администратора — nil.
func guardFor(r *http.Request, guard *time.Time) *time.Time {
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil && claims.IsAdmin() {
		return nil
	}
	return guard
}

// decodeOptionalJSON декодирует JSON-тело; пустое тело допустимо.
func decodeOptionalJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxReviewBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("некорректное JSON-тело: %w", err)
	}
	return nil
}
