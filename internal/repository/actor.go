package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
)

// ActorRepository — интерфейс доступа к таблице actors.
type ActorRepository interface {
	// Upsert создаёт или обновляет актора по subject и возвращает его id.
	Upsert(ctx context.Context, a *model.Actor) (int64, error)
	// GetBySubject возвращает актора по subject или ErrNotFound.
	GetBySubject(ctx context.Context, subject string) (*model.Actor, error)
}

type actorRepo struct {
	db DBTX
}

// NewActorRepository создаёт репозиторий акторов.
func NewActorRepository(db DBTX) ActorRepository {
	return &actorRepo{db: db}
}

// Upsert синхронизирует данные актора из JWT claims.
func (r *actorRepo) Upsert(ctx context.Context, a *model.Actor) (int64, error) {
	query := `
		INSERT INTO actors (subject, first_name, last_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject) DO UPDATE
		SET first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			role = EXCLUDED.role,
			updated_at = now()
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		a.Subject, nullString(a.FirstName), nullString(a.LastName), nullString(a.Role),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ошибка сохранения актора: %w", err)
	}
	a.ID = id
	return id, nil
}

func (r *actorRepo) GetBySubject(ctx context.Context, subject string) (*model.Actor, error) {
	query := `
		SELECT id, subject, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(role, '')
		FROM actors
		WHERE subject = $1`

	a := &model.Actor{}
	err := r.db.QueryRow(ctx, query, subject).Scan(&a.ID, &a.Subject, &a.FirstName, &a.LastName, &a.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения актора: %w", err)
	}
	return a, nil
}
