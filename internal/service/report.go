// report.go — сервис жизненного цикла отчётов: создание, чтение,
// список, удаление и сводка по статусам.
//
// Отчёт и его фотографии записываются в одной транзакции; файлы на
// диске не входят в транзакцию, поэтому при любой ошибке до коммита
// все файлы текущего вызова удаляются, а после коммита очистка
// выполняется по принципу best-effort (только логирование).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/foodsalvage/report-module/internal/domain/lifecycle"
	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
	"github.com/bigkaa/foodsalvage/report-module/internal/normalizer"
	"github.com/bigkaa/foodsalvage/report-module/internal/repository"
	"github.com/bigkaa/foodsalvage/report-module/internal/storage/filestore"
)

// Параметры списка отчётов.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
	// DefaultMaxFiles — максимум фотографий в отчёте по умолчанию.
	DefaultMaxFiles = 6
)

// allowedMediaTypes — типы загрузок, принимаемые при создании отчёта.
var allowedMediaTypes = map[string]bool{
	"image/jpeg":  true,
	"image/jpg":   true,
	"image/pjpeg": true,
	"image/png":   true,
	"image/x-png": true,
	"image/webp":  true,
}

// IsAllowedMediaType проверяет, принимается ли тип загрузки.
func IsAllowedMediaType(mediaType string) bool {
	return allowedMediaTypes[strings.ToLower(strings.TrimSpace(mediaType))]
}

// StagedFile — загруженный файл, записанный в управляемую директорию.
type StagedFile = normalizer.File

// CreateInput — данные нового отчёта.
type CreateInput struct {
	Name          string
	Description   *string
	Quantity      decimal.NullDecimal
	Unit          model.Unit
	Price         decimal.NullDecimal
	PickupAddress string
	ShelfLife     string
	CreatorID     int64
}

// ListFilter — фильтр списка отчётов.
type ListFilter struct {
	// Status — точное значение статуса (пусто — без фильтра)
	Status string
	// Query — подстрока без учёта регистра
	Query  string
	Limit  int
	Offset int
}

// StatusSummary — количество отчётов по статусам.
type StatusSummary struct {
	Submitted int64 `json:"submitted"`
	InReview  int64 `json:"in_review"`
	Closed    int64 `json:"closed"`
	Total     int64 `json:"total"`
}

// ImageNormalizer — нормализация одной загруженной фотографии.
type ImageNormalizer interface {
	Normalize(ctx context.Context, f normalizer.File) (*normalizer.File, error)
}

// ReportTxRunner — выполнение функции с репозиторием внутри транзакции.
type ReportTxRunner interface {
	RunReportTx(ctx context.Context, fn func(repo repository.ReportRepository) error) error
}

// ReportService — оркестрация жизненного цикла отчётов.
type ReportService struct {
	repo       repository.ReportRepository
	tx         ReportTxRunner
	store      *filestore.FileStore
	normalizer ImageNormalizer
	cleanup    *CleanupScheduler
	cache      *ReportCache
	maxFiles   int
	logger     *slog.Logger
}

// NewReportService создаёт сервис отчётов.
// cleanup и cache могут быть nil.
func NewReportService(
	repo repository.ReportRepository,
	tx ReportTxRunner,
	store *filestore.FileStore,
	norm ImageNormalizer,
	cleanup *CleanupScheduler,
	cache *ReportCache,
	maxFiles int,
	logger *slog.Logger,
) *ReportService {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	return &ReportService{
		repo:       repo,
		tx:         tx,
		store:      store,
		normalizer: norm,
		cleanup:    cleanup,
		cache:      cache,
		maxFiles:   maxFiles,
		logger:     logger.With(slog.String("component", "reports")),
	}
}

// Create проверяет данные, нормализует фотографии и сохраняет отчёт
// с фотографиями в одной транзакции.
func (s *ReportService) Create(ctx context.Context, in CreateInput, files []StagedFile) (*model.Report, error) {
	fields, err := validateCreate(in)
	if err != nil {
		s.discardStaged(ctx, files)
		return nil, err
	}
	if len(files) > s.maxFiles {
		s.discardStaged(ctx, files)
		return nil, fmt.Errorf("%w: не более %d фотографий", ErrInvalidPayload, s.maxFiles)
	}

	processed, err := s.processFiles(ctx, files)
	if err != nil {
		return nil, err
	}

	gen := s.cacheGeneration()
	var created *model.Report
	err = s.tx.RunReportTx(ctx, func(repo repository.ReportRepository) error {
		id, err := repo.Insert(ctx, fields, in.CreatorID)
		if err != nil {
			return err
		}

		for _, f := range processed {
			size, statErr := s.store.FileSize(f.Name)
			if statErr != nil {
				s.logger.Debug("Размер файла взят из памяти",
					slog.String("file", f.Name),
					slog.String("error", statErr.Error()),
				)
				size = f.Size
			}
			if err := repo.InsertPhoto(ctx, id, model.NewPhoto{
				StoredFilename:   f.Name,
				OriginalFilename: f.OriginalName,
				MediaType:        f.MediaType,
				ByteSize:         size,
			}); err != nil {
				return err
			}
		}

		created, err = s.compose(ctx, repo, id)
		if err != nil {
			return err
		}
		if created == nil {
			return fmt.Errorf("отчёт %d не найден после вставки", id)
		}
		return nil
	})
	if err != nil {
		s.discardStaged(ctx, processed)
		if errors.Is(err, repository.ErrConstraint) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		s.logger.Error("Ошибка сохранения отчёта",
			actorAttr(ctx),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.scheduleVariantSweeps(processed)
	if s.cache != nil {
		s.cache.Set(created, gen)
	}

	s.logger.Info("Отчёт создан",
		slog.Int64("report_id", created.ID),
		slog.Int64("creator_id", in.CreatorID),
		slog.Int("photos", len(created.Photos)),
		actorAttr(ctx),
	)
	return created, nil
}

// processFiles проверяет типы и нормализует файлы по порядку.
// При отказе удаляет все файлы вызова (обработанные и ещё не обработанные).
func (s *ReportService) processFiles(ctx context.Context, files []StagedFile) ([]StagedFile, error) {
	processed := make([]StagedFile, 0, len(files))

	for i, f := range files {
		if !IsAllowedMediaType(f.MediaType) {
			s.discardStaged(ctx, processed)
			s.discardStaged(ctx, files[i:])
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, f.MediaType)
		}

		out, err := s.normalizer.Normalize(ctx, f)
		if err != nil {
			s.discardStaged(ctx, processed)
			s.discardStaged(ctx, files[i:])

			var invalid *normalizer.InvalidImageError
			switch {
			case errors.As(err, &invalid):
				for _, p := range invalid.Paths {
					if delErr := filestore.SafeDeletePath(ctx, p); delErr != nil {
						s.logFilesystem("Не удалось удалить файл некорректного изображения", p, delErr)
					}
				}
				return nil, fmt.Errorf("%w: %s", ErrInvalidImage, f.OriginalName)
			case errors.Is(err, normalizer.ErrUnsupportedFormat):
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, f.MediaType)
			default:
				return nil, fmt.Errorf("%w: обработка фотографии: %w", ErrStorage, err)
			}
		}
		processed = append(processed, *out)
	}
	return processed, nil
}

// GetByID возвращает составной отчёт или nil, если он не найден.
func (s *ReportService) GetByID(ctx context.Context, id int64) (*model.Report, error) {
	if s.cache != nil {
		if r, ok := s.cache.Get(id); ok {
			return r, nil
		}
	}
	gen := s.cacheGeneration()

	var (
		header *model.Report
		photos []model.Photo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		header, err = s.repo.GetByID(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		photos, err = s.repo.ListPhotos(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	header.Photos = s.withURLs(photos)
	if s.cache != nil {
		s.cache.Set(header, gen)
	}
	return header, nil
}

// compose читает заголовок и фотографии последовательно (внутри транзакции).
func (s *ReportService) compose(ctx context.Context, repo repository.ReportRepository, id int64) (*model.Report, error) {
	header, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	photos, err := repo.ListPhotos(ctx, id)
	if err != nil {
		return nil, err
	}
	header.Photos = s.withURLs(photos)
	return header, nil
}

// withURLs заполняет публичные URL фотографий.
func (s *ReportService) withURLs(photos []model.Photo) []model.Photo {
	result := make([]model.Photo, len(photos))
	for i, p := range photos {
		p.URL = s.store.PublicURL(p.StoredFilename)
		result[i] = p
	}
	return result
}

// List возвращает заголовки отчётов без фотографий.
func (s *ReportService) List(ctx context.Context, f ListFilter) ([]*model.Report, error) {
	params := repository.ListParams{
		Limit:  clampLimit(f.Limit),
		Offset: max(f.Offset, 0),
	}

	if st := strings.TrimSpace(f.Status); st != "" {
		status, err := lifecycle.ParseStatus(st)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		params.Status = &status
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		params.Query = &q
	}

	reports, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return reports, nil
}

// Delete удаляет отчёт и после коммита — его файлы.
// Возвращает false, если отчёт не найден.
func (s *ReportService) Delete(ctx context.Context, id int64) (bool, error) {
	var (
		names []string
		rows  int64
	)
	err := s.tx.RunReportTx(ctx, func(repo repository.ReportRepository) error {
		var err error
		if names, err = repo.PhotoFilenames(ctx, id); err != nil {
			return err
		}
		rows, err = repo.Delete(ctx, id)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if s.cache != nil {
		s.cache.Invalidate(id)
	}
	if rows == 0 {
		return false, nil
	}

	s.removeFiles(ctx, names)

	s.logger.Info("Отчёт удалён",
		slog.Int64("report_id", id),
		slog.Int("photos", len(names)),
		actorAttr(ctx),
	)
	return true, nil
}

// ClosedBefore возвращает id закрытых отчётов, не изменявшихся с cutoff.
func (s *ReportService) ClosedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	ids, err := s.repo.ListClosedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return ids, nil
}

// Summary возвращает количество отчётов по статусам. Счётчики читаются параллельно.
func (s *ReportService) Summary(ctx context.Context) (*StatusSummary, error) {
	sum := &StatusSummary{}
	g, gctx := errgroup.WithContext(ctx)

	count := func(status model.Status, dst *int64) {
		g.Go(func() error {
			n, err := s.repo.CountByStatus(gctx, status)
			*dst = n
			return err
		})
	}
	count(model.StatusSubmitted, &sum.Submitted)
	count(model.StatusInReview, &sum.InReview)
	count(model.StatusClosed, &sum.Closed)

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	sum.Total = sum.Submitted + sum.InReview + sum.Closed
	return sum, nil
}

// removeFiles удаляет файлы отчёта и их исходные варианты. Ошибки только логируются.
func (s *ReportService) removeFiles(ctx context.Context, names []string) {
	for _, name := range names {
		if err := s.store.SafeDelete(ctx, name); err != nil {
			s.logFilesystem("Не удалось удалить файл фотографии", name, err)
		}
		if base, ok := filestore.VariantBase(name); ok {
			if err := s.store.DeleteVariants(ctx, base); err != nil {
				s.logFilesystem("Не удалось удалить варианты фотографии", name, err)
			}
		}
	}
}

// discardStaged удаляет файлы текущего вызова. Ошибки только логируются.
func (s *ReportService) discardStaged(ctx context.Context, files []StagedFile) {
	for _, f := range files {
		if err := s.store.SafeDelete(ctx, f.Name); err != nil {
			s.logFilesystem("Не удалось удалить загруженный файл", f.Name, err)
		}
	}
}

// scheduleVariantSweeps ставит отложенную очистку вариантов для нормализованных файлов.
func (s *ReportService) scheduleVariantSweeps(files []StagedFile) {
	if s.cleanup == nil {
		return
	}
	for _, f := range files {
		if base, ok := filestore.VariantBase(f.Name); ok {
			s.cleanup.ScheduleVariantSweep(base)
		}
	}
}

func (s *ReportService) logFilesystem(msg, name string, err error) {
	s.logger.Warn(msg,
		slog.String("file", name),
		slog.String("error", fmt.Errorf("%w: %w", ErrFilesystem, err).Error()),
	)
}

func (s *ReportService) cacheGeneration() uint64 {
	if s.cache == nil {
		return 0
	}
	return s.cache.Generation()
}

// invalidate удаляет отчёт из кэша.
func (s *ReportService) invalidate(id int64) {
	if s.cache != nil {
		s.cache.Invalidate(id)
	}
}

func clampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultListLimit
	case limit < 1:
		return 1
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
