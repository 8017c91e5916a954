// Пакет server — HTTP-сервер Report Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bigkaa/foodsalvage/report-module/internal/api/handlers"
	"github.com/bigkaa/foodsalvage/report-module/internal/api/middleware"
	"github.com/bigkaa/foodsalvage/report-module/internal/config"
)

// Server — HTTP-сервер Report Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// auth — middleware аутентификации (JWTAuth.Middleware или DevAuth).
func New(cfg *config.Config, logger *slog.Logger, h *handlers.APIHandler, auth func(http.Handler) http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(cfg, logger, h, auth),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter строит chi-маршрутизатор со всеми маршрутами сервиса.
func NewRouter(cfg *config.Config, logger *slog.Logger, h *handlers.APIHandler, auth func(http.Handler) http.Handler) http.Handler {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware(cfg.PublicPrefix))
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Публичные маршруты
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	staticPrefix := "/" + cfg.PublicPrefix + "/"
	router.Handle(staticPrefix+"*", staticFiles(staticPrefix, cfg.UploadDir))

	router.Route("/api/v1/reports", func(r chi.Router) {
		r.Use(auth)

		r.With(middleware.RequireRole(middleware.RoleOperator, middleware.RoleReviewer, middleware.RoleAdmin)).Group(func(r chi.Router) {
			r.Post("/", h.CreateReport)
			r.Get("/", h.ListReports)
			r.Get("/{id}", h.GetReport)
		})

		r.With(middleware.RequireRole(middleware.RoleReviewer, middleware.RoleAdmin)).Group(func(r chi.Router) {
			r.Get("/summary", h.GetSummary)
			r.Post("/{id}/review/start", h.StartReview)
			r.Post("/{id}/review/approve", h.ApproveReport)
			r.Post("/{id}/review/reject", h.RejectReport)
		})

		r.With(middleware.RequireRole(middleware.RoleAdmin)).Delete("/{id}", h.DeleteReport)
	})

	return router
}

// staticFiles раздаёт фотографии из управляемой директории.
// Листинг директории отключён; файлы неизменяемы, поэтому кэшируются долго.
func staticFiles(prefix, dir string) http.Handler {
	fs := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, prefix)
		if name == "" || strings.HasSuffix(name, "/") || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		fs.ServeHTTP(w, r)
	})
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. После этого выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
