// cleanup.go — планировщик отложенной очистки исходных вариантов фотографий.
//
// После коммита создания отчёта для каждого нормализованного файла
// <base>-opt.jpg ставятся таймеры (по умолчанию 600ms и 2500ms), по
// срабатыванию которых задача удаления <base>.webp|.png|.jpg|.jpeg
// попадает в ограниченную очередь и выполняется пулом воркеров.
// При переполнении очереди задача отбрасывается и учитывается в метриках.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/foodsalvage/report-module/internal/storage/filestore"
)

// Prometheus-метрики очистки.
var (
	cleanupScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_cleanup_tasks_scheduled_total",
		Help: "Количество поставленных задач очистки вариантов.",
	})
	cleanupDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_cleanup_tasks_dropped_total",
		Help: "Количество отброшенных задач очистки (очередь переполнена или планировщик остановлен).",
	})
	cleanupFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_cleanup_tasks_failed_total",
		Help: "Количество задач очистки, завершившихся ошибкой.",
	})
)

// variantRemover — удаление исходных вариантов по базовому имени.
type variantRemover interface {
	DeleteVariants(ctx context.Context, base string) error
}

// CleanupScheduler — таймеры + ограниченная очередь + пул воркеров.
type CleanupScheduler struct {
	remover variantRemover
	delays  []time.Duration
	workers int
	queue   chan string
	logger  *slog.Logger

	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCleanupScheduler создаёт планировщик. Воркеры запускаются в Start.
func NewCleanupScheduler(
	store *filestore.FileStore,
	delays []time.Duration,
	workers, queueSize int,
	logger *slog.Logger,
) *CleanupScheduler {
	return newCleanupScheduler(store, delays, workers, queueSize, logger)
}

func newCleanupScheduler(
	remover variantRemover,
	delays []time.Duration,
	workers, queueSize int,
	logger *slog.Logger,
) *CleanupScheduler {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CleanupScheduler{
		remover: remover,
		delays:  delays,
		workers: workers,
		queue:   make(chan string, queueSize),
		logger:  logger.With(slog.String("component", "cleanup")),
		timers:  make(map[*time.Timer]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start запускает воркеры.
func (s *CleanupScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.logger.Info("Планировщик очистки запущен",
		slog.Int("workers", s.workers),
		slog.Int("queue_size", cap(s.queue)),
	)
}

// Stop отменяет ожидающие таймеры и дожидается завершения воркеров.
// Задачи, оставшиеся в очереди, отбрасываются.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for t := range s.timers {
		t.Stop()
	}
	pending := len(s.timers)
	s.timers = nil
	s.cancel()
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Планировщик очистки остановлен", slog.Int("cancelled_timers", pending))
}

// ScheduleVariantSweep ставит отложенное удаление вариантов base
// на каждую из настроенных задержек.
func (s *CleanupScheduler) ScheduleVariantSweep(base string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		cleanupDroppedTotal.Inc()
		return
	}

	for _, d := range s.delays {
		var t *time.Timer
		t = time.AfterFunc(d, func() {
			s.mu.Lock()
			delete(s.timers, t)
			s.mu.Unlock()
			s.enqueue(base)
		})
		s.timers[t] = struct{}{}
		cleanupScheduledTotal.Inc()
	}
}

// pending возвращает количество ожидающих таймеров.
func (s *CleanupScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// enqueue неблокирующе помещает задачу в очередь.
func (s *CleanupScheduler) enqueue(base string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		cleanupDroppedTotal.Inc()
		return
	}

	select {
	case s.queue <- base:
	default:
		cleanupDroppedTotal.Inc()
		s.logger.Warn("Очередь очистки переполнена, задача отброшена",
			slog.String("base", base),
		)
	}
}

func (s *CleanupScheduler) worker() {
	defer s.wg.Done()
	for base := range s.queue {
		if s.ctx.Err() != nil {
			cleanupDroppedTotal.Inc()
			continue
		}
		if err := s.remover.DeleteVariants(s.ctx, base); err != nil {
			cleanupFailedTotal.Inc()
			s.logger.Warn("Не удалось удалить варианты фотографии",
				slog.String("base", base),
				slog.String("error", ErrFilesystem.Error()+": "+err.Error()),
			)
		}
	}
}
