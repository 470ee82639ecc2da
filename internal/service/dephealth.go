// dephealth.go: интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Консоль мониторит:
//   - REST-бэкенд Portline (HTTP GET, critical)
//   - PostgreSQL хранилища сессий через существующий pgxpool (если включён)
//
// Метрики app_dependency_* доступны на /metrics вместе с остальными.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для бэкенда
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthConfig: параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID: имя вершины графа текущего приложения.
	ServiceID string
	// Group: группа в метриках (CONSOLE_DEPHEALTH_GROUP).
	Group string
	// BackendURL: базовый URL REST-бэкенда.
	BackendURL string
	// BackendHealthPath: путь проверки доступности бэкенда.
	BackendHealthPath string
	// DB: пул PostgreSQL как *sql.DB (stdlib.OpenDBFromPool); nil без PostgreSQL.
	DB *sql.DB
	// DBURL: URL PostgreSQL для лейблов метрик.
	DBURL string
	// CheckInterval: интервал проверки (CONSOLE_DEPHEALTH_CHECK_INTERVAL).
	CheckInterval time.Duration
}

// DephealthService: мониторинг зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис. Метрики регистрируются в глобальном registry.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(cfg DephealthConfig, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(cfg, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(cfg DephealthConfig, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.HTTP("portline-api",
			dephealth.FromURL(cfg.BackendURL),
			dephealth.WithHTTPHealthPath(cfg.BackendHealthPath),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
	}
	if cfg.DB != nil {
		// Connection pool mode: проверка идёт через пул самой консоли.
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.DBURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(false),
		))
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает состояние зависимостей: имя -> true, если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// CheckReady: готовность по последним проверкам topologymetrics.
// Недоступная зависимость даёт degraded: консоль продолжает отдавать
// страницу входа и сообщать об ошибке бэкенда.
func (ds *DephealthService) CheckReady() (status, message string) {
	return readiness(ds.dh.Health())
}

func readiness(health map[string]bool) (status, message string) {
	if len(health) == 0 {
		return "degraded", "проверки зависимостей ещё не выполнялись"
	}
	var failed []string
	for name, ok := range health {
		if !ok {
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return "degraded", "недоступны: " + strings.Join(failed, ", ")
	}
	return "ok", "все зависимости доступны"
}
