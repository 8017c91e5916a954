// actor.go — актор запроса в context и синхронизация акторов из JWT.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
	"github.com/bigkaa/foodsalvage/report-module/internal/repository"
)

type actorKey struct{}

// WithActor сохраняет актора в context.
func WithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext извлекает актора из context.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(model.Actor)
	return a, ok
}

// actorAttr — атрибут лога с subject актора запроса.
func actorAttr(ctx context.Context) slog.Attr {
	if a, ok := ActorFromContext(ctx); ok {
		return slog.String("actor", a.Subject)
	}
	return slog.String("actor", "")
}

// ActorService — синхронизация акторов (авторов отчётов) из claims JWT.
type ActorService struct {
	repo   repository.ActorRepository
	logger *slog.Logger
}

// NewActorService создаёт сервис акторов.
func NewActorService(repo repository.ActorRepository, logger *slog.Logger) *ActorService {
	return &ActorService{
		repo:   repo,
		logger: logger.With(slog.String("component", "actors")),
	}
}

// Ensure создаёт или обновляет актора по subject и возвращает его с заполненным ID.
func (s *ActorService) Ensure(ctx context.Context, a model.Actor) (model.Actor, error) {
	a.Subject = strings.TrimSpace(a.Subject)
	if a.Subject == "" {
		return a, fmt.Errorf("%w: пустой subject актора", ErrInvalidPayload)
	}

	id, err := s.repo.Upsert(ctx, &a)
	if err != nil {
		return a, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	a.ID = id

	s.logger.Debug("Актор синхронизирован",
		slog.String("subject", a.Subject),
		slog.Int64("actor_id", id),
	)
	return a, nil
}
