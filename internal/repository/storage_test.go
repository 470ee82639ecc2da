package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/portline/console/internal/session"
)

const testSessionID = "5f0c3b7e-2a51-4c47-9a5e-0d6f3f1c2b10"

var _ session.Store = (*SessionStore)(nil)

func TestStorageRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("Должен вернуть значение ключа", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		now := time.Now()
		mockPool.ExpectQuery("SELECT session_id, key, value, updated_at").
			WithArgs(testSessionID, session.KeyToken).
			WillReturnRows(pgxmock.NewRows([]string{"session_id", "key", "value", "updated_at"}).
				AddRow(testSessionID, session.KeyToken, "jwt-token", now))

		repo := NewStorageRepository(mockPool)
		e, err := repo.Get(ctx, testSessionID, session.KeyToken)
		require.NoError(t, err)
		assert.Equal(t, "jwt-token", e.Value)
		assert.Equal(t, now, e.UpdatedAt)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Должен вернуть ErrNotFound для отсутствующего ключа", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectQuery("SELECT session_id, key, value, updated_at").
			WithArgs(testSessionID, session.KeyRole).
			WillReturnError(pgx.ErrNoRows)

		repo := NewStorageRepository(mockPool)
		_, err = repo.Get(ctx, testSessionID, session.KeyRole)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestStorageRepository_SetAndDelete(t *testing.T) {
	ctx := context.Background()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectExec("INSERT INTO console_storage").
		WithArgs(testSessionID, session.KeyCart, `[]`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec("DELETE FROM console_storage WHERE session_id = \\$1 AND key = ANY").
		WithArgs(testSessionID, []string{session.KeyToken, session.KeyRole}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	repo := NewStorageRepository(mockPool)
	require.NoError(t, repo.Set(ctx, testSessionID, session.KeyCart, `[]`))
	require.NoError(t, repo.Delete(ctx, testSessionID, session.KeyToken, session.KeyRole))
	// Пустой список ключей не обращается к базе.
	require.NoError(t, repo.Delete(ctx, testSessionID))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStorageRepository_PurgeStale(t *testing.T) {
	ctx := context.Background()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	before := time.Now().Add(-time.Hour)
	mockPool.ExpectExec("DELETE FROM console_storage").
		WithArgs(before).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	repo := NewStorageRepository(mockPool)
	n, err := repo.PurgeStale(ctx, before)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectQuery("SELECT session_id, key, value, updated_at").
		WithArgs(testSessionID, session.KeyToken).
		WillReturnError(pgx.ErrNoRows)
	mockPool.ExpectQuery("SELECT session_id, key, value, updated_at").
		WithArgs(testSessionID, session.KeyRole).
		WillReturnError(errors.New("connection reset"))
	mockPool.ExpectExec("DELETE FROM console_storage WHERE session_id = \\$1 AND key = ANY").
		WithArgs(testSessionID, []string{session.KeyCart}).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	store := NewStorageRepository(mockPool).ForSession(testSessionID)

	v, ok, err := store.Get(ctx, session.KeyToken)
	require.NoError(t, err, "отсутствующий ключ не является ошибкой")
	assert.False(t, ok)
	assert.Empty(t, v)

	_, _, err = store.Get(ctx, session.KeyRole)
	assert.Error(t, err)

	require.NoError(t, store.Delete(ctx, session.KeyCart))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStorageRepository_Exists(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		exists bool
	}{
		{"Должен найти сессию с ключами", true},
		{"Должен не найти сессию без ключей", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPool, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mockPool.Close()

			mockPool.ExpectQuery("SELECT EXISTS").
				WithArgs(testSessionID).
				WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(tt.exists))

			got, err := NewStorageRepository(mockPool).Exists(ctx, testSessionID)
			require.NoError(t, err)
			assert.Equal(t, tt.exists, got)
			assert.NoError(t, mockPool.ExpectationsWereMet())
		})
	}

	t.Run("Должен вернуть ошибку БД", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectQuery("SELECT EXISTS").
			WithArgs(testSessionID).
			WillReturnError(errors.New("connection reset"))

		_, err = NewStorageRepository(mockPool).Exists(ctx, testSessionID)
		assert.Error(t, err)
	})
}
