package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/foodsalvage/report-module/internal/api/handlers"
	"github.com/bigkaa/foodsalvage/report-module/internal/api/middleware"
	"github.com/bigkaa/foodsalvage/report-module/internal/config"
	"github.com/bigkaa/foodsalvage/report-module/internal/database"
	"github.com/bigkaa/foodsalvage/report-module/internal/server"
	"github.com/bigkaa/foodsalvage/report-module/internal/service"
)

// devSubject — субъект запросов при отключённой аутентификации.
const devSubject = "dev-admin"

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API, фоновую очистку и мониторинг зависимостей",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Конфигурация и логирование
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("Report Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("RM_DEPHEALTH_GROUP") == "" {
		logger.Warn("RM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 2. PostgreSQL (с ожиданием доступности), файловое хранилище, сервисный слой
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации", slog.String("error", err.Error()))
		return err
	}
	defer a.Close()

	// 3. Миграции БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		return err
	}

	// 3.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(a.pool)
	defer pgDB.Close()

	a.cleanup.Start()

	// 4. Аутентификация
	var auth func(http.Handler) http.Handler
	var jwksChecker handlers.ReadinessChecker
	if cfg.AuthEnabled() {
		jwtAuth, err := middleware.NewJWTAuth(
			cfg.JWKSURL,
			cfg.JWKSCACert,
			cfg.JWTIssuer,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			return err
		}
		auth = jwtAuth.Middleware()

		checker, err := middleware.NewJWKSReadinessChecker(cfg.JWKSURL, cfg.JWKSCACert, cfg.JWKSClientTimeout)
		if err != nil {
			logger.Error("Ошибка создания JWKS readiness checker", slog.String("error", err.Error()))
			return err
		}
		jwksChecker = checker

		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		auth = middleware.DevAuth(devSubject)
		logger.Warn("RM_JWKS_URL не задан: аутентификация отключена, все запросы выполняются с ролью admin",
			slog.String("subject", devSubject),
		)
	}

	// 5. Фоновая очистка по сроку хранения
	var sweeper *service.Sweeper
	if cfg.SweepEnabled {
		actor, err := a.systemActor(ctx)
		if err != nil {
			logger.Error("Ошибка синхронизации системного актора", slog.String("error", err.Error()))
			return err
		}
		sweeper = service.NewSweeper(a.reports, cfg.Retention, cfg.SweepInterval, cfg.SweepInitialDelay, actor, logger)
		sweeper.Start(ctx)
	} else {
		logger.Info("Фоновая очистка отключена (RM_SWEEP_ENABLED=false)")
	}

	// 6. topologymetrics — мониторинг PostgreSQL и IdP
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "report-module",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL("postgres"),
		JWKSURL:       cfg.JWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	}

	// 7. Обработчики и HTTP-сервер
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(a.pool),
		handlers.DirChecker{Dir: a.store.Dir()},
		jwksChecker,
	)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		a.reports,
		a.actors,
		a.store,
		cfg.MaxFiles,
		cfg.MaxFileSize,
		logger,
	)

	srv := server.New(cfg, logger, apiHandler, auth)
	runErr := srv.Run(ctx)
	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
	}

	// 8. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if sweeper != nil {
		sweeper.Stop()
	}

	logger.Info("Report Module остановлен")
	return runErr
}
