// reports.go — обработчики /api/v1/reports: создание (multipart),
// список, сводка, получение и удаление отчёта.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	apierrors "github.com/bigkaa/foodsalvage/report-module/internal/api/errors"
	"github.com/bigkaa/foodsalvage/report-module/internal/api/middleware"
	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
	"github.com/bigkaa/foodsalvage/report-module/internal/service"
	"github.com/bigkaa/foodsalvage/report-module/internal/storage/filestore"
)

// imagesField — имя поля multipart с фотографиями.
const imagesField = "images"

// multipartMemory — объём multipart-данных, удерживаемых в памяти.
const multipartMemory = 32 << 20

// listResponse — ответ списка отчётов.
type listResponse struct {
	Items []*model.Report `json:"items"`
	Count int             `json:"count"`
}

// CreateReport обрабатывает POST /api/v1/reports.
// Multipart form: name, description, quantity, unit, price, pickup_address,
// shelf_life и до maxFiles файлов в поле images.
func (h *APIHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxFiles)*h.maxFileSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.PayloadTooLarge(w, "Превышен допустимый размер запроса")
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in, err := parseCreateForm(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	if err := service.CheckCreateInput(in); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	headers := r.MultipartForm.File[imagesField]
	if len(headers) > h.maxFiles {
		apierrors.ValidationError(w, fmt.Sprintf("Не более %d фотографий", h.maxFiles))
		return
	}

	actor, err := h.actors.Ensure(r.Context(), claims.Actor())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	in.CreatorID = actor.ID
	ctx := service.WithActor(r.Context(), actor)

	files, err := h.stageFiles(r, headers)
	if err != nil {
		if errors.Is(err, filestore.ErrTooLarge) {
			apierrors.PayloadTooLarge(w, fmt.Sprintf("Файл превышает %d байт", h.maxFileSize))
			return
		}
		h.logger.Error("Ошибка записи загруженного файла", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка записи загруженного файла")
		return
	}

	report, err := h.reports.Create(ctx, in, files)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// stageFiles записывает файлы запроса на диск. При ошибке удаляет уже записанные.
func (h *APIHandler) stageFiles(r *http.Request, headers []*multipart.FileHeader) ([]service.StagedFile, error) {
	files := make([]service.StagedFile, 0, len(headers))
	for _, fh := range headers {
		staged, err := h.stageOne(fh)
		if err != nil {
			for _, f := range files {
				if delErr := h.stager.SafeDelete(r.Context(), f.Name); delErr != nil {
					h.logger.Warn("Не удалось удалить загруженный файл",
						slog.String("file", f.Name),
						slog.String("error", delErr.Error()),
					)
				}
			}
			return nil, err
		}
		files = append(files, *staged)
	}
	return files, nil
}

func (h *APIHandler) stageOne(fh *multipart.FileHeader) (*service.StagedFile, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("открытие части multipart: %w", err)
	}
	defer src.Close()

	res, err := h.stager.Stage(src, fh.Filename, h.maxFileSize)
	if err != nil {
		return nil, err
	}
	return &service.StagedFile{
		Name:         res.Name,
		OriginalName: fh.Filename,
		MediaType:    detectContentType(fh.Header.Get("Content-Type")),
		Size:         res.Size,
	}, nil
}

// parseCreateForm извлекает поля отчёта из формы; здесь только разбор чисел.
func parseCreateForm(r *http.Request) (service.CreateInput, error) {
	in := service.CreateInput{
		Name:          r.FormValue("name"),
		Unit:          model.Unit(strings.TrimSpace(r.FormValue("unit"))),
		PickupAddress: r.FormValue("pickup_address"),
		ShelfLife:     r.FormValue("shelf_life"),
	}

	if _, ok := r.MultipartForm.Value["description"]; ok {
		d := r.FormValue("description")
		in.Description = &d
	}

	var err error
	if in.Quantity, err = parseDecimalField(r.FormValue("quantity")); err != nil {
		return in, fmt.Errorf("quantity: %w", err)
	}
	if in.Price, err = parseDecimalField(r.FormValue("price")); err != nil {
		return in, fmt.Errorf("price: %w", err)
	}
	return in, nil
}

// parseDecimalField разбирает необязательное десятичное число (пусто — NULL).
// Допускается запятая в качестве десятичного разделителя.
func parseDecimalField(raw string) (decimal.NullDecimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(strings.Replace(raw, ",", ".", 1))
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("некорректное число %q", raw)
	}
	return decimal.NewNullDecimal(d), nil
}

// detectContentType определяет тип из заголовка multipart part.
// Если не указан — application/octet-stream.
func detectContentType(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// ListReports обрабатывает GET /api/v1/reports.
// Параметры: status, q, limit, offset.
func (h *APIHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil || limit < 0 {
		apierrors.ValidationError(w, "Параметр limit должен быть положительным целым числом")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil || offset < 0 {
		apierrors.ValidationError(w, "Параметр offset не может быть отрицательным")
		return
	}

	q := r.URL.Query()
	items, err := h.reports.List(r.Context(), service.ListFilter{
		Status: q.Get("status"),
		Query:  q.Get("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []*model.Report{}
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Count: len(items)})
}

// GetSummary обрабатывает GET /api/v1/reports/summary.
func (h *APIHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.reports.Summary(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// GetReport обрабатывает GET /api/v1/reports/{id}.
func (h *APIHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(r)
	if !ok {
		apierrors.ValidationError(w, "Некорректный id отчёта")
		return
	}

	report, err := h.reports.GetByID(r.Context(), id)
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

// DeleteReport обрабатывает DELETE /api/v1/reports/{id}.
func (h *APIHandler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(r)
	if !ok {
		apierrors.ValidationError(w, "Некорректный id отчёта")
		return
	}

	deleted, err := h.reports.Delete(requestContext(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !deleted {
		apierrors.NotFound(w, fmt.Sprintf("Отчёт %d не найден", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
