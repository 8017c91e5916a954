// review.go — переходы жизненного цикла: start-review, approve, reject.
//
// Approve и Reject — условный UPDATE с оптимистичной блокировкой по
// updated_at (guard). Администратор передаёт guard = nil.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/foodsalvage/report-module/internal/domain/lifecycle"
	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
	"github.com/bigkaa/foodsalvage/report-module/internal/repository"
)

// DefaultRejectMessage — сообщение отклонения, если причина не указана.
const DefaultRejectMessage = "rejected"

// StartReview переводит отчёт submitted → in_review.
// Повторный вызов не меняет отчёт. nil — отчёт не найден.
func (s *ReportService) StartReview(ctx context.Context, id int64) (*model.Report, error) {
	n, err := s.repo.MarkInReview(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.invalidate(id)

	if n > 0 {
		s.logger.Info("Отчёт взят в работу",
			slog.Int64("report_id", id),
			actorAttr(ctx),
		)
	}
	return s.GetByID(ctx, id)
}

// Approve применяет патч полей и закрывает отчёт с outcome=approved.
func (s *ReportService) Approve(
	ctx context.Context,
	id int64,
	patch model.ReportPatch,
	ifUnmodifiedAt *time.Time,
) (*model.Report, error) {
	cur, err := s.readForTransition(ctx, id, lifecycle.OpApprove)
	if err != nil || cur == nil {
		return nil, err
	}

	merged, err := mergePatch(cur.Fields(), patch)
	if err != nil {
		return nil, err
	}

	n, err := s.repo.Approve(ctx, id, merged, ifUnmodifiedAt)
	if err != nil {
		if errors.Is(err, repository.ErrConstraint) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return s.finishTransition(ctx, id, n, ifUnmodifiedAt, model.OutcomeApproved)
}

// Reject закрывает отчёт с outcome=rejected. Пустое сообщение
// заменяется на DefaultRejectMessage.
func (s *ReportService) Reject(
	ctx context.Context,
	id int64,
	message string,
	ifUnmodifiedAt *time.Time,
) (*model.Report, error) {
	cur, err := s.readForTransition(ctx, id, lifecycle.OpReject)
	if err != nil || cur == nil {
		return nil, err
	}

	message = strings.TrimSpace(message)
	if message == "" {
		message = DefaultRejectMessage
	}

	n, err := s.repo.Reject(ctx, id, message, ifUnmodifiedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return s.finishTransition(ctx, id, n, ifUnmodifiedAt, model.OutcomeRejected)
}

// readForTransition читает заголовок отчёта в обход кэша и проверяет
// допустимость операции. nil, nil — отчёт не найден.
func (s *ReportService) readForTransition(ctx context.Context, id int64, op lifecycle.Operation) (*model.Report, error) {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if err := lifecycle.Check(cur.Status, op); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return cur, nil
}

// finishTransition обрабатывает результат условного UPDATE.
//
// 0 строк при guard — отчёт изменён другим пользователем (ErrConflict).
// 0 строк без guard — отчёт закрыт или удалён между чтением и записью:
// перечитываем; закрыт с тем же итогом — возвращаем его, иначе ErrConflict.
func (s *ReportService) finishTransition(
	ctx context.Context,
	id int64,
	rows int64,
	guard *time.Time,
	outcome model.Outcome,
) (*model.Report, error) {
	s.invalidate(id)

	if rows == 0 {
		if guard != nil {
			return nil, fmt.Errorf("%w: отчёт изменён, обновите данные", ErrConflict)
		}

		cur, err := s.GetByID(ctx, id)
		if err != nil || cur == nil {
			return nil, err
		}
		if cur.IsClosed() && cur.Outcome != nil && *cur.Outcome == outcome {
			return cur, nil
		}
		return nil, fmt.Errorf("%w: отчёт закрыт другим пользователем", ErrConflict)
	}

	s.logger.Info("Отчёт закрыт",
		slog.Int64("report_id", id),
		slog.String("outcome", string(outcome)),
		slog.Bool("guarded", guard != nil),
		actorAttr(ctx),
	)
	return s.GetByID(ctx, id)
}
