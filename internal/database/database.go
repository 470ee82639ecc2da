// Пакет database: пул PostgreSQL для хранилища сессий консоли.
// PostgreSQL опционален; без него сессии живут только в памяти процесса.
// Схема (таблица console_storage) накатывается golang-migrate через тот же пул.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/portline/console/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	// applicationName виден в pg_stat_activity.
	applicationName = "portline-console"
	// migrationsTable: таблица версий схемы, не пересекается с бэкендом в общей БД.
	migrationsTable = "console_schema_migrations"

	// Сессии читаются и пишутся короткими запросами; пула из 8 соединений хватает.
	maxConns          = 8
	minConns          = 1
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = 30 * time.Second

	readyTimeout = 3 * time.Second
)

// poolConfig разбирает DSN и задаёт параметры пула хранилища сессий.
func poolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	pc.MaxConns = maxConns
	pc.MinConns = minConns
	pc.MaxConnIdleTime = maxConnIdleTime
	pc.HealthCheckPeriod = healthCheckPeriod
	pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	return pc, nil
}

// Connect открывает пул и проверяет его ping-ом.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	logger.Info("Хранилище сессий подключено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(pc.MaxConns)),
	)
	return pool, nil
}

// Migrate накатывает схему хранилища через уже открытый пул.
// Повторный запуск без новых миграций не считается ошибкой.
func Migrate(pool *pgxpool.Pool, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	// Закрытие драйвера закрывает и *sql.DB; сам пул остаётся открытым.
	driver, err := migratepgx.WithInstance(stdlib.OpenDBFromPool(pool), &migratepgx.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		return fmt.Errorf("ошибка инициализации драйвера миграций: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Схема хранилища сессий актуальна",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
		slog.String("table", migrationsTable),
	)
	return nil
}

// ReadinessChecker: готовность хранилища сессий для /health/ready.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// CheckReady пингует пул. При успехе в сообщении занятость пула:
// исчерпанный пул означает, что запросы сессий ждут соединения.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("хранилище сессий недоступно: %v", err)
	}
	st := c.pool.Stat()
	return "ok", fmt.Sprintf("соединений занято %d из %d", st.AcquiredConns(), st.MaxConns())
}
