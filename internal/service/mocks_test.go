package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
	"github.com/bigkaa/foodsalvage/report-module/internal/normalizer"
	"github.com/bigkaa/foodsalvage/report-module/internal/repository"
)

// --- Mock repository ---

// mockReportRepo — мок ReportRepository для unit-тестов.
type mockReportRepo struct {
	insertFn           func(ctx context.Context, f model.ReportFields, creatorID int64) (int64, error)
	insertPhotoFn      func(ctx context.Context, reportID int64, p model.NewPhoto) error
	getByIDFn          func(ctx context.Context, id int64) (*model.Report, error)
	listPhotosFn       func(ctx context.Context, reportID int64) ([]model.Photo, error)
	listFn             func(ctx context.Context, params repository.ListParams) ([]*model.Report, error)
	photoFilenamesFn   func(ctx context.Context, reportID int64) ([]string, error)
	deleteFn           func(ctx context.Context, id int64) (int64, error)
	markInReviewFn     func(ctx context.Context, id int64) (int64, error)
	approveFn          func(ctx context.Context, id int64, f model.ReportFields, guard *time.Time) (int64, error)
	rejectFn           func(ctx context.Context, id int64, message string, guard *time.Time) (int64, error)
	listClosedBeforeFn func(ctx context.Context, cutoff time.Time) ([]int64, error)
	countByStatusFn    func(ctx context.Context, status model.Status) (int64, error)
}

func (m *mockReportRepo) Insert(ctx context.Context, f model.ReportFields, creatorID int64) (int64, error) {
	if m.insertFn != nil {
		return m.insertFn(ctx, f, creatorID)
	}
	return 1, nil
}

func (m *mockReportRepo) InsertPhoto(ctx context.Context, reportID int64, p model.NewPhoto) error {
	if m.insertPhotoFn != nil {
		return m.insertPhotoFn(ctx, reportID, p)
	}
	return nil
}

func (m *mockReportRepo) GetByID(ctx context.Context, id int64) (*model.Report, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockReportRepo) ListPhotos(ctx context.Context, reportID int64) ([]model.Photo, error) {
	if m.listPhotosFn != nil {
		return m.listPhotosFn(ctx, reportID)
	}
	return []model.Photo{}, nil
}

func (m *mockReportRepo) List(ctx context.Context, params repository.ListParams) ([]*model.Report, error) {
	if m.listFn != nil {
		return m.listFn(ctx, params)
	}
	return nil, nil
}

func (m *mockReportRepo) PhotoFilenames(ctx context.Context, reportID int64) ([]string, error) {
	if m.photoFilenamesFn != nil {
		return m.photoFilenamesFn(ctx, reportID)
	}
	return nil, nil
}

func (m *mockReportRepo) Delete(ctx context.Context, id int64) (int64, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return 0, nil
}

func (m *mockReportRepo) MarkInReview(ctx context.Context, id int64) (int64, error) {
	if m.markInReviewFn != nil {
		return m.markInReviewFn(ctx, id)
	}
	return 0, nil
}

func (m *mockReportRepo) Approve(ctx context.Context, id int64, f model.ReportFields, guard *time.Time) (int64, error) {
	if m.approveFn != nil {
		return m.approveFn(ctx, id, f, guard)
	}
	return 0, nil
}

func (m *mockReportRepo) Reject(ctx context.Context, id int64, message string, guard *time.Time) (int64, error) {
	if m.rejectFn != nil {
		return m.rejectFn(ctx, id, message, guard)
	}
	return 0, nil
}

func (m *mockReportRepo) ListClosedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	if m.listClosedBeforeFn != nil {
		return m.listClosedBeforeFn(ctx, cutoff)
	}
	return nil, nil
}

func (m *mockReportRepo) CountByStatus(ctx context.Context, status model.Status) (int64, error) {
	if m.countByStatusFn != nil {
		return m.countByStatusFn(ctx, status)
	}
	return 0, nil
}

// mockTxRunner выполняет функцию с тем же мок-репозиторием.
// Ошибка функции считается откатом: rolledBack = true.
type mockTxRunner struct {
	repo       repository.ReportRepository
	rolledBack bool
}

func (m *mockTxRunner) RunReportTx(_ context.Context, fn func(repo repository.ReportRepository) error) error {
	if err := fn(m.repo); err != nil {
		m.rolledBack = true
		return err
	}
	return nil
}

// --- Mock normalizer ---

type mockNormalizer struct {
	normalizeFn func(ctx context.Context, f normalizer.File) (*normalizer.File, error)
}

func (m *mockNormalizer) Normalize(ctx context.Context, f normalizer.File) (*normalizer.File, error) {
	if m.normalizeFn != nil {
		return m.normalizeFn(ctx, f)
	}
	return &f, nil
}

// --- Mock variant remover ---

type mockRemover struct {
	mu    sync.Mutex
	bases []string
	err   error
	block chan struct{}
}

func (m *mockRemover) DeleteVariants(_ context.Context, base string) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bases = append(m.bases, base)
	return m.err
}

func (m *mockRemover) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.bases...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
