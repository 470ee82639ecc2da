// Точка входа консоли Portline: веб-консоль администрирования порта.
// Загружает конфигурацию, при заданном CONSOLE_DB_HOST подключается
// к PostgreSQL (хранилище сессий), создаёт клиент REST-бэкенда, реестр
// сессий и сервисный слой, запускает фоновые задачи (topologymetrics,
// очистка хранилища) и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/portline/console/internal/api/handlers"
	"github.com/bigkaa/portline/console/internal/api/middleware"
	"github.com/bigkaa/portline/console/internal/apiclient"
	"github.com/bigkaa/portline/console/internal/config"
	"github.com/bigkaa/portline/console/internal/database"
	"github.com/bigkaa/portline/console/internal/domain/model"
	"github.com/bigkaa/portline/console/internal/repository"
	"github.com/bigkaa/portline/console/internal/resource"
	"github.com/bigkaa/portline/console/internal/server"
	"github.com/bigkaa/portline/console/internal/service"
	"github.com/bigkaa/portline/console/internal/session"
	"github.com/bigkaa/portline/console/internal/validation"
)

const serviceID = "portline-console"

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Консоль Portline запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("backend_url", cfg.BackendURL),
	)

	if os.Getenv("CONSOLE_DEPHEALTH_GROUP") == "" {
		logger.Warn("CONSOLE_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Локальное хранилище сессий: PostgreSQL или память
	stores := func(string) session.Store { return session.NewMemoryStore() }
	var (
		pgDB      *sql.DB
		pgChecker handlers.ReadinessChecker
		janitor   *service.JanitorService
		restore   session.PersistedLookup
	)
	if cfg.UseDatabase() {
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		if err := database.Migrate(pool, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}

		// Адаптер pgxpool -> *sql.DB для topologymetrics: проверка идёт
		// через существующий пул и видит его исчерпание.
		pgDB = stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		storage := repository.NewStorageRepository(pool)
		stores = func(id string) session.Store { return storage.ForSession(id) }
		restore = storage.Exists
		pgChecker = database.NewReadinessChecker(pool)

		janitor = service.NewJanitorService(storage, cfg.StorageJanitorInterval, cfg.StorageRetention, logger)
		janitor.Start(ctx)
		defer janitor.Stop()
		logger.Info("Сессии хранятся в PostgreSQL",
			slog.String("retention", cfg.StorageRetention.String()),
		)
	} else {
		logger.Info("CONSOLE_DB_HOST не задан, сессии хранятся в памяти и не переживают рестарт")
	}

	// 4. Клиент REST-бэкенда
	backend, err := apiclient.New(cfg.BackendURL, cfg.BackendTimeout, cfg.BackendCACertPath, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента бэкенда", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Сервисы
	v := validation.New()
	carts := service.NewCartService(backend, v, logger)
	collections := service.NewCollectionService(
		backend, carts.ProductIDs,
		cfg.DefaultPageSize, cfg.MaxPageSize,
		cfg.MaxSessions*len(resource.Names()), cfg.SessionIdleTTL,
		logger,
	)
	auth := service.NewAuthService(backend, v, logger)
	profiles := service.NewProfileService(backend, v, logger)

	// Состояние, производное от роли, сбрасывается при входе и выходе.
	auth.OnLogout(collections.DropSession)
	// Созданный заказ сразу виден в кэшированном списке заказов.
	carts.OnCheckout(func(sessionID string, order model.Record) {
		collections.Absorb(sessionID, "orders", order)
	})
	profiles.OnUpdate(func(sessionID string, rec model.Record) {
		collections.Refresh(sessionID, "clients", rec)
	})

	// 6. Реестр сессий
	registry := session.NewRegistry(
		cfg.MaxSessions, cfg.SessionIdleTTL, stores, backend, logger,
		session.WithOnExpire(collections.DropSession),
	)
	if restore != nil {
		// После рестарта сессия восстанавливается по cookie, если её ключи есть в БД.
		registry.AllowRestore(restore)
	}
	registry.OnRemoved(collections.DropSession)
	registry.OnRemoved(carts.DropSession)
	defer registry.Close()

	// 7. topologymetrics: REST-бэкенд и PostgreSQL
	checkers := map[string]handlers.ReadinessChecker{"postgresql": pgChecker}
	dephealthCfg := service.DephealthConfig{
		ServiceID:         serviceID,
		Group:             cfg.DephealthGroup,
		BackendURL:        cfg.BackendURL,
		BackendHealthPath: cfg.BackendHealthPath,
		CheckInterval:     cfg.DephealthCheckInterval,
	}
	if pgDB != nil {
		dephealthCfg.DB = pgDB
		dephealthCfg.DBURL = cfg.DatabaseURL()
	}
	dephealthSvc, err := service.NewDephealthService(dephealthCfg, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
	} else {
		defer dephealthSvc.Stop()
		checkers["backend"] = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 8. HTTP-сервер
	sessions := middleware.NewSessions(registry, cfg.SessionCookieSecure, cfg.SessionIdleTTL, logger)
	srv := server.New(cfg, logger, server.Handlers{
		Health:  handlers.NewHealthHandler(checkers),
		Auth:    handlers.NewAuthHandler(auth, sessions, logger),
		Views:   handlers.NewViewsHandler(collections, logger),
		Profile: handlers.NewProfileHandler(profiles, logger),
		Cart:    handlers.NewCartHandler(carts, logger),
	}, sessions)

	// 9. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Консоль Portline остановлена")
}
