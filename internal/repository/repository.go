// Пакет repository: слой доступа к данным PostgreSQL.
// Запросы пишутся чистым SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound: запись не найдена.
var ErrNotFound = errors.New("запись не найдена")

// DBTX: интерфейс для выполнения SQL-запросов.
// Реализуется *pgxpool.Pool, pgx.Tx и pgxmock в тестах.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
