package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/foodsalvage/report-module/internal/config"
	"github.com/bigkaa/foodsalvage/report-module/internal/database"
	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("reports_test"),
		postgres.WithUsername("reports"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("RM_DB_HOST", host)
	t.Setenv("RM_DB_PORT", port.Port())
	t.Setenv("RM_DB_NAME", "reports_test")
	t.Setenv("RM_DB_USER", "reports")
	t.Setenv("RM_DB_PASSWORD", "test-password")
	t.Setenv("RM_DB_SSL_MODE", "disable")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func testFields() model.ReportFields {
	return model.ReportFields{
		Name:          "Bread",
		Quantity:      decimal.NewFromInt(5),
		Unit:          model.UnitKilogram,
		PickupAddress: "Via Roma 1",
		ShelfLife:     "2025-01-10",
	}
}

func createActor(t *testing.T, pool *pgxpool.Pool, subject string) int64 {
	t.Helper()
	id, err := NewActorRepository(pool).Upsert(context.Background(), &model.Actor{
		Subject: subject, FirstName: "Anna", LastName: "Rossi", Role: "operator",
	})
	if err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}
	return id
}

// TestReportLifecycle проверяет создание, чтение, переходы и удаление.
func TestReportLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	creatorID := createActor(t, pool, "operator-1")
	tx := NewTxRunner(pool)

	var id int64
	err := tx.RunReportTx(ctx, func(repo ReportRepository) error {
		var err error
		if id, err = repo.Insert(ctx, testFields(), creatorID); err != nil {
			return err
		}
		return repo.InsertPhoto(ctx, id, model.NewPhoto{
			StoredFilename:   "report-1-abcd1234-opt.jpg",
			OriginalFilename: "bread.jpg",
			MediaType:        "image/jpeg",
			ByteSize:         1234,
		})
	})
	if err != nil {
		t.Fatalf("RunReportTx() ошибка: %v", err)
	}

	repo := NewReportRepository(pool)
	got, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Status != model.StatusSubmitted || got.Outcome != nil {
		t.Errorf("Status=%q Outcome=%v, ожидался submitted без outcome", got.Status, got.Outcome)
	}
	if got.ShelfLife != "2025-01-10" {
		t.Errorf("ShelfLife = %q, ожидалось 2025-01-10", got.ShelfLife)
	}
	if !got.Quantity.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Quantity = %s, ожидалось 5", got.Quantity)
	}
	if got.Price.Valid {
		t.Error("Price должен быть NULL")
	}
	if got.Creator == nil || got.Creator.FirstName == nil || *got.Creator.FirstName != "Anna" {
		t.Errorf("Creator = %+v, ожидалась сводка об авторе", got.Creator)
	}

	photos, err := repo.ListPhotos(ctx, id)
	if err != nil || len(photos) != 1 {
		t.Fatalf("ListPhotos() = %d, %v; ожидалась 1 фотография", len(photos), err)
	}

	// Повторный start-review не меняет строку
	if n, _ := repo.MarkInReview(ctx, id); n != 1 {
		t.Errorf("MarkInReview() = %d, ожидалось 1", n)
	}
	if n, _ := repo.MarkInReview(ctx, id); n != 0 {
		t.Errorf("повторный MarkInReview() = %d, ожидалось 0", n)
	}

	// Устаревший guard — 0 строк
	stale := got.UpdatedAt
	if n, err := repo.Reject(ctx, id, "плохое качество", &stale); err != nil || n != 0 {
		t.Errorf("Reject(stale guard) = %d, %v; ожидалось 0 строк", n, err)
	}

	current, _ := repo.GetByID(ctx, id)
	guard := current.UpdatedAt
	if n, err := repo.Reject(ctx, id, "плохое качество", &guard); err != nil || n != 1 {
		t.Fatalf("Reject(actual guard) = %d, %v; ожидалась 1 строка", n, err)
	}

	// Закрытый отчёт не изменяется даже без guard
	if n, _ := repo.Approve(ctx, id, testFields(), nil); n != 0 {
		t.Errorf("Approve(closed) = %d, ожидалось 0", n)
	}

	closed, _ := repo.GetByID(ctx, id)
	if closed.Outcome == nil || *closed.Outcome != model.OutcomeRejected {
		t.Errorf("Outcome = %v, ожидалось rejected", closed.Outcome)
	}

	names, err := repo.PhotoFilenames(ctx, id)
	if err != nil || len(names) != 1 {
		t.Errorf("PhotoFilenames() = %v, %v", names, err)
	}

	if n, err := repo.Delete(ctx, id); err != nil || n != 1 {
		t.Fatalf("Delete() = %d, %v", n, err)
	}
	if _, err := repo.GetByID(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("После Delete ожидали ErrNotFound, получили: %v", err)
	}
	if photos, _ := repo.ListPhotos(ctx, id); len(photos) != 0 {
		t.Errorf("фотографии должны удаляться каскадно, осталось %d", len(photos))
	}
}

// TestApproveWritesFields проверяет запись слитых полей при одобрении.
func TestApproveWritesFields(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	creatorID := createActor(t, pool, "operator-2")
	repo := NewReportRepository(pool)

	id, err := repo.Insert(ctx, testFields(), creatorID)
	if err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	f := testFields()
	f.Name = "Rye bread"
	f.Price = decimal.NewNullDecimal(decimal.RequireFromString("3.20"))
	if n, err := repo.Approve(ctx, id, f, nil); err != nil || n != 1 {
		t.Fatalf("Approve() = %d, %v", n, err)
	}

	got, _ := repo.GetByID(ctx, id)
	if got.Name != "Rye bread" {
		t.Errorf("Name = %q, ожидалось Rye bread", got.Name)
	}
	if !got.Price.Valid || !got.Price.Decimal.Equal(decimal.RequireFromString("3.2")) {
		t.Errorf("Price = %v, ожидалось 3.20", got.Price)
	}
	if got.OutcomeMessage != nil {
		t.Errorf("OutcomeMessage = %q, ожидался NULL", *got.OutcomeMessage)
	}
}

// TestInsertConstraints проверяет классификацию нарушений ограничений.
func TestInsertConstraints(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewReportRepository(pool)

	// Несуществующий автор — FK
	if _, err := repo.Insert(ctx, testFields(), 999999); !errors.Is(err, ErrConstraint) {
		t.Errorf("Insert(unknown creator) = %v, ожидался ErrConstraint", err)
	}

	creatorID := createActor(t, pool, "operator-3")
	f := testFields()
	f.Quantity = decimal.Zero
	if _, err := repo.Insert(ctx, f, creatorID); !errors.Is(err, ErrConstraint) {
		t.Errorf("Insert(quantity=0) = %v, ожидался ErrConstraint", err)
	}
}

// TestListAndRetention проверяет фильтры списка, выборку для очистки и счётчики.
func TestListAndRetention(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	creatorID := createActor(t, pool, "operator-4")
	repo := NewReportRepository(pool)

	oldID, _ := repo.Insert(ctx, testFields(), creatorID)
	freshID, _ := repo.Insert(ctx, testFields(), creatorID)
	other := testFields()
	other.Name = "Milk"
	other.Unit = model.UnitLitre
	_, _ = repo.Insert(ctx, other, creatorID)

	for _, id := range []int64{oldID, freshID} {
		if _, err := repo.Reject(ctx, id, "rejected", nil); err != nil {
			t.Fatalf("Reject() ошибка: %v", err)
		}
	}
	if _, err := pool.Exec(ctx,
		`UPDATE reports SET updated_at = now() - interval '8 days' WHERE id = $1`, oldID); err != nil {
		t.Fatalf("Ошибка сдвига updated_at: %v", err)
	}
	if _, err := pool.Exec(ctx,
		`UPDATE reports SET updated_at = now() - interval '6 days' WHERE id = $1`, freshID); err != nil {
		t.Fatalf("Ошибка сдвига updated_at: %v", err)
	}

	ids, err := repo.ListClosedBefore(ctx, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("ListClosedBefore() ошибка: %v", err)
	}
	if len(ids) != 1 || ids[0] != oldID {
		t.Errorf("ListClosedBefore() = %v, ожидалось [%d]", ids, oldID)
	}

	q := "milk"
	list, err := repo.List(ctx, ListParams{Query: &q, Limit: 50})
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Milk" {
		t.Errorf("List(q=milk) вернул %d записей", len(list))
	}

	closed := model.StatusClosed
	list, _ = repo.List(ctx, ListParams{Status: &closed, Limit: 1})
	if len(list) != 1 {
		t.Errorf("List(status=closed, limit=1) вернул %d записей", len(list))
	}

	if n, _ := repo.CountByStatus(ctx, model.StatusClosed); n != 2 {
		t.Errorf("CountByStatus(closed) = %d, ожидалось 2", n)
	}
	if n, _ := repo.CountByStatus(ctx, model.StatusSubmitted); n != 1 {
		t.Errorf("CountByStatus(submitted) = %d, ожидалось 1", n)
	}
}
