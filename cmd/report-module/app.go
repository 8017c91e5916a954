package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/foodsalvage/report-module/internal/config"
	"github.com/bigkaa/foodsalvage/report-module/internal/database"
	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
	"github.com/bigkaa/foodsalvage/report-module/internal/normalizer"
	"github.com/bigkaa/foodsalvage/report-module/internal/repository"
	"github.com/bigkaa/foodsalvage/report-module/internal/service"
	"github.com/bigkaa/foodsalvage/report-module/internal/storage/filestore"
)

// systemRole — роль системного актора в таблице actors.
const systemRole = "system"

// app — общие компоненты команд serve и sweep.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	pool    *pgxpool.Pool
	store   *filestore.FileStore
	cleanup *service.CleanupScheduler
	reports *service.ReportService
	actors  *service.ActorService
}

// loadConfig загружает конфигурацию и настраивает логгер.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	return cfg, config.SetupLogger(cfg), nil
}

// newApp подключается к PostgreSQL и собирает сервисный слой.
// Планировщик очистки вариантов создаётся, но не запускается.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := filestore.New(cfg.UploadDir, cfg.PublicPrefix)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка инициализации директории загрузок: %w", err)
	}
	logger.Info("Директория загрузок готова",
		slog.String("dir", store.Dir()),
		slog.String("public_prefix", store.PublicPrefix()),
	)

	cleanup := service.NewCleanupScheduler(store, cfg.CleanupDelays, cfg.CleanupWorkers, cfg.CleanupQueueSize, logger)
	cache := service.NewReportCache(cfg.CacheMaxSize, cfg.CacheTTL)

	reports := service.NewReportService(
		repository.NewReportRepository(pool),
		repository.NewTxRunner(pool),
		store,
		normalizer.New(store, logger),
		cleanup,
		cache,
		cfg.MaxFiles,
		logger,
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		store:   store,
		cleanup: cleanup,
		reports: reports,
		actors:  service.NewActorService(repository.NewActorRepository(pool), logger),
	}, nil
}

// Close освобождает ресурсы приложения.
func (a *app) Close() {
	a.cleanup.Stop()
	a.pool.Close()
}

// systemActor возвращает актора для автоматических операций.
// Если RM_SYSTEM_ACTOR_ID не задан, актор синхронизируется по RM_SYSTEM_ACTOR_SUBJECT.
func (a *app) systemActor(ctx context.Context) (model.Actor, error) {
	if a.cfg.SystemActorID > 0 {
		return model.Actor{
			ID:      a.cfg.SystemActorID,
			Subject: a.cfg.SystemActorSubject,
			Role:    systemRole,
		}, nil
	}
	return a.actors.Ensure(ctx, model.Actor{Subject: a.cfg.SystemActorSubject, Role: systemRole})
}
