package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// StorageEntry: строка таблицы console_storage.
type StorageEntry struct {
	SessionID string
	Key       string
	Value     string
	UpdatedAt time.Time
}

// StorageRepository: локальное хранилище сессий в PostgreSQL.
// Ключи изолированы по session_id.
type StorageRepository struct {
	db DBTX
}

// NewStorageRepository создаёт репозиторий хранилища сессий.
func NewStorageRepository(db DBTX) *StorageRepository {
	return &StorageRepository{db: db}
}

// Get возвращает значение ключа сессии. Если ключа нет, ErrNotFound.
func (r *StorageRepository) Get(ctx context.Context, sessionID, key string) (*StorageEntry, error) {
	query := `
		SELECT session_id, key, value, updated_at
		FROM console_storage
		WHERE session_id = $1 AND key = $2`

	e := &StorageEntry{}
	err := r.db.QueryRow(ctx, query, sessionID, key).Scan(
		&e.SessionID, &e.Key, &e.Value, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения console_storage[%s/%s]: %w", sessionID, key, err)
	}
	return e, nil
}

// Set создаёт или обновляет значение (INSERT ... ON CONFLICT DO UPDATE).
func (r *StorageRepository) Set(ctx context.Context, sessionID, key, value string) error {
	query := `
		INSERT INTO console_storage (session_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, key) DO UPDATE
		SET value = EXCLUDED.value,
			updated_at = NOW()`

	if _, err := r.db.Exec(ctx, query, sessionID, key, value); err != nil {
		return fmt.Errorf("ошибка сохранения console_storage[%s/%s]: %w", sessionID, key, err)
	}
	return nil
}

// Delete удаляет перечисленные ключи сессии. Отсутствующие ключи не считаются ошибкой.
func (r *StorageRepository) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	query := `DELETE FROM console_storage WHERE session_id = $1 AND key = ANY($2)`

	if _, err := r.db.Exec(ctx, query, sessionID, keys); err != nil {
		return fmt.Errorf("ошибка удаления ключей сессии %s: %w", sessionID, err)
	}
	return nil
}

// Exists сообщает, есть ли у сессии хотя бы один ключ.
func (r *StorageRepository) Exists(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM console_storage WHERE session_id = $1)`, sessionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки сессии %s: %w", sessionID, err)
	}
	return exists, nil
}

// DeleteSession удаляет все ключи сессии.
func (r *StorageRepository) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM console_storage WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления сессии %s: %w", sessionID, err)
	}
	return tag.RowsAffected(), nil
}

// PurgeStale удаляет сессии, в которых ни один ключ не обновлялся после before.
// Возвращает число удалённых строк.
func (r *StorageRepository) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM console_storage
		WHERE session_id IN (
			SELECT session_id FROM console_storage
			GROUP BY session_id
			HAVING MAX(updated_at) < $1
		)`

	tag, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки устаревших сессий: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SessionStore: хранилище одной сессии поверх StorageRepository.
// Реализует session.Store.
type SessionStore struct {
	repo      *StorageRepository
	sessionID string
}

// ForSession возвращает хранилище, привязанное к sessionID.
func (r *StorageRepository) ForSession(sessionID string) *SessionStore {
	return &SessionStore{repo: r, sessionID: sessionID}
}

// Get возвращает значение ключа; второй результат false, если ключа нет.
func (s *SessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	e, err := s.repo.Get(ctx, s.sessionID, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return e.Value, true, nil
}

// Set сохраняет значение ключа.
func (s *SessionStore) Set(ctx context.Context, key, value string) error {
	return s.repo.Set(ctx, s.sessionID, key, value)
}

// Delete удаляет ключи.
func (s *SessionStore) Delete(ctx context.Context, keys ...string) error {
	return s.repo.Delete(ctx, s.sessionID, keys...)
}
