// sweeper.go — очистка закрытых отчётов по сроку хранения.
//
// Находит отчёты в статусе closed, не изменявшиеся дольше окна хранения,
// и удаляет каждый через ReportService.Delete (строки + файлы).
// Ошибка удаления одного отчёта не прерывает очистку остальных.
//
// В режиме serve запускается как горутина с периодическим тикером
// (RM_SWEEP_INTERVAL), первый запуск — через RM_SWEEP_INITIAL_DELAY.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
)

// Prometheus метрики очистки по сроку хранения
var (
	sweeperRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_sweeper_runs_total",
		Help: "Общее количество запусков очистки закрытых отчётов",
	})

	sweeperDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_sweeper_reports_deleted_total",
		Help: "Общее количество отчётов, удалённых по сроку хранения",
	})

	sweeperErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_sweeper_errors_total",
		Help: "Общее количество ошибок при удалении отчётов по сроку хранения",
	})

	sweeperDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rm_sweeper_duration_seconds",
		Help:    "Длительность очистки закрытых отчётов в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// SweepResult — результат одного запуска очистки.
type SweepResult struct {
	// Candidates — количество найденных закрытых отчётов старше окна
	Candidates int
	// Deleted — количество удалённых отчётов
	Deleted int
	// Failed — количество ошибок удаления
	Failed int
	// Duration — длительность выполнения
	Duration time.Duration
}

// sweepTarget — операции над отчётами, необходимые очистке.
type sweepTarget interface {
	ClosedBefore(ctx context.Context, cutoff time.Time) ([]int64, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// Sweeper — очистка закрытых отчётов по сроку хранения.
type Sweeper struct {
	target       sweepTarget
	retention    time.Duration
	interval     time.Duration
	initialDelay time.Duration
	actor        model.Actor
	logger       *slog.Logger

	mu         sync.Mutex // защита флагов и cancel
	inProgress bool       // выполняется RunOnce
	running    bool       // работает фоновый процесс
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewSweeper создаёт сервис очистки. actor — системный актор,
// от имени которого выполняются удаления.
func NewSweeper(
	reports *ReportService,
	retention, interval, initialDelay time.Duration,
	actor model.Actor,
	logger *slog.Logger,
) *Sweeper {
	return newSweeper(reports, retention, interval, initialDelay, actor, logger)
}

func newSweeper(
	target sweepTarget,
	retention, interval, initialDelay time.Duration,
	actor model.Actor,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		target:       target,
		retention:    retention,
		interval:     interval,
		initialDelay: initialDelay,
		actor:        actor,
		logger:       logger.With(slog.String("component", "sweeper")),
	}
}

// Sweep удаляет закрытые отчёты с updated_at <= now - window.
// Возвращает ошибку только если не удалось получить список кандидатов.
func (s *Sweeper) Sweep(ctx context.Context, window time.Duration) (*SweepResult, error) {
	start := time.Now()
	result := &SweepResult{}
	ctx = WithActor(ctx, s.actor)

	ids, err := s.target.ClosedBefore(ctx, start.Add(-window))
	if err != nil {
		sweeperErrorsTotal.Inc()
		return nil, err
	}
	result.Candidates = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.target.Delete(ctx, id)
		if err != nil {
			s.logger.Error("Ошибка удаления отчёта по сроку хранения",
				slog.Int64("report_id", id),
				slog.String("error", err.Error()),
			)
			result.Failed++
			continue
		}
		if ok {
			result.Deleted++
		}
	}

	result.Duration = time.Since(start)

	sweeperRunsTotal.Inc()
	sweeperDeletedTotal.Add(float64(result.Deleted))
	sweeperErrorsTotal.Add(float64(result.Failed))
	sweeperDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Очистка закрытых отчётов завершена",
		slog.String("window", window.String()),
		slog.Int("candidates", result.Candidates),
		slog.Int("deleted", result.Deleted),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// RunOnce выполняет одну очистку с настроенным окном хранения.
// Если предыдущий запуск ещё выполняется, запуск пропускается (nil).
func (s *Sweeper) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	if s.inProgress {
		s.mu.Unlock()
		s.logger.Warn("Очистка уже выполняется, запуск пропущен")
		return nil
	}
	s.inProgress = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProgress = false
		s.mu.Unlock()
	}()

	result, err := s.Sweep(ctx, s.retention)
	if err != nil {
		s.logger.Error("Ошибка очистки закрытых отчётов", slog.String("error", err.Error()))
		return &SweepResult{}
	}
	return result
}

// Start запускает фоновую горутину очистки.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.done = make(chan struct{})

	go s.run(runCtx, s.done)

	s.logger.Info("Очистка по сроку хранения запущена",
		slog.String("retention", s.retention.String()),
		slog.String("interval", s.interval.String()),
		slog.String("initial_delay", s.initialDelay.String()),
	)
}

// Stop останавливает фоновый процесс и дожидается текущего запуска.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("Очистка по сроку хранения остановлена")
}

// run — основной цикл фоновой горутины.
func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(s.initialDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
