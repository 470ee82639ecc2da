// janitor.go: фоновая очистка хранилища сессий в PostgreSQL.
//
// Сессии, вытесненные из реестра, оставляют строки в console_storage,
// чтобы пережить рестарт. Janitor периодически удаляет сессии,
// не обновлявшиеся дольше retention.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики очистки.
var (
	janitorRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_storage_janitor_runs_total",
		Help: "Количество запусков очистки хранилища сессий.",
	})
	janitorPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_storage_janitor_purged_total",
		Help: "Количество строк хранилища, удалённых очисткой.",
	})
)

// StaleStorage: хранилище, умеющее удалять устаревшие сессии.
type StaleStorage interface {
	PurgeStale(ctx context.Context, before time.Time) (int64, error)
}

// JanitorService: периодическая очистка хранилища сессий.
type JanitorService struct {
	storage   StaleStorage
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex // защита от параллельного RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewJanitorService создаёт сервис очистки.
func NewJanitorService(storage StaleStorage, interval, retention time.Duration, logger *slog.Logger) *JanitorService {
	return &JanitorService{
		storage:   storage,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "janitor")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
func (j *JanitorService) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})

	go j.run(runCtx)

	j.logger.Info("Очистка хранилища сессий запущена",
		slog.String("interval", j.interval.String()),
		slog.String("retention", j.retention.String()),
	)
}

// Stop останавливает фоновую горутину и дожидается её завершения.
func (j *JanitorService) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
	j.logger.Info("Очистка хранилища сессий остановлена")
}

func (j *JanitorService) run(ctx context.Context) {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход очистки и возвращает число удалённых строк.
func (j *JanitorService) RunOnce(ctx context.Context) int64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	janitorRunsTotal.Inc()
	before := j.now().Add(-j.retention)
	n, err := j.storage.PurgeStale(ctx, before)
	if err != nil {
		j.logger.Error("Ошибка очистки хранилища сессий",
			slog.String("error", err.Error()),
		)
		return 0
	}
	janitorPurgedTotal.Add(float64(n))
	if n > 0 {
		j.logger.Info("Устаревшие сессии удалены из хранилища",
			slog.Int64("rows", n),
			slog.Time("before", before),
		)
	}
	return n
}
