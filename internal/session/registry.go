package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики реестра сессий.
var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "console_sessions_active",
		Help: "Количество сессий в реестре.",
	})
	sessionsEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_sessions_evicted_total",
		Help: "Количество сессий, вытесненных из реестра (TTL, размер, выход).",
	})
)

// ErrUnknownSession: идентификатор не найден ни в реестре, ни в хранилище.
var ErrUnknownSession = errors.New("неизвестная сессия")

// PersistedLookup сообщает, есть ли в постоянном хранилище данные сессии.
type PersistedLookup func(ctx context.Context, id string) (bool, error)

// carriedKeys: ключи, переносимые в новую сессию при смене идентификатора.
var carriedKeys = []string{KeyCart}

// StoreFactory создаёт локальное хранилище для новой сессии.
type StoreFactory func(sessionID string) Store

// Registry: реестр сессий консоли поверх expirable LRU.
// Неактивная сессия вытесняется по TTL, при вытеснении её таймер
// останавливается и вызываются подписчики (сброс кэшей коллекций).
type Registry struct {
	cache    *expirable.LRU[string, *Session]
	stores   StoreFactory
	backend  Backend
	logger   *slog.Logger
	sessOpts []Option

	mu        sync.RWMutex
	onRemoved []func(id string)
	persisted PersistedLookup

	// openMu сериализует восстановление сессий по идентификатору из cookie.
	openMu sync.Mutex
}

// NewRegistry создаёт реестр.
// maxSessions: максимальное число сессий; idleTTL: время жизни без обращений.
func NewRegistry(maxSessions int, idleTTL time.Duration, stores StoreFactory, backend Backend, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		stores:   stores,
		backend:  backend,
		logger:   logger.With(slog.String("component", "session_registry")),
		sessOpts: opts,
	}
	r.cache = expirable.NewLRU[string, *Session](maxSessions, r.evicted, idleTTL)
	return r
}

// OnRemoved подписывает fn на удаление сессии из реестра.
// fn вызывается под внутренней блокировкой LRU и не должен обращаться к реестру.
func (r *Registry) OnRemoved(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemoved = append(r.onRemoved, fn)
}

// AllowRestore разрешает Open восстанавливать сессии, данные которых
// есть в постоянном хранилище. Без него Open знает только сессии реестра.
func (r *Registry) AllowRestore(lookup PersistedLookup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persisted = lookup
}

// evicted: колбэк LRU на вытеснение.
func (r *Registry) evicted(id string, s *Session) {
	s.Close()
	sessionsEvictedTotal.Inc()
	sessionsActive.Dec()

	r.mu.RLock()
	hooks := r.onRemoved
	r.mu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}
	r.logger.Debug("Сессия удалена из реестра", slog.String("session_id", id))
}

// Create создаёт сессию с новым идентификатором и загружает её состояние.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	s := New(id, r.stores(id), r.backend, r.logger, r.sessOpts...)
	if err := r.admit(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Open возвращает сессию по идентификатору из cookie. Сессия, которой нет
// в реестре, восстанавливается только если постоянное хранилище знает её
// идентификатор (рестарт с хранилищем в PostgreSQL). Иначе ErrUnknownSession:
// клиент не может назначить идентификатор сам.
func (r *Registry) Open(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("некорректный идентификатор сессии: %w", err)
	}
	if s, ok := r.Get(id); ok {
		return s, nil
	}

	r.openMu.Lock()
	defer r.openMu.Unlock()
	// Параллельный запрос с той же cookie мог восстановить сессию раньше.
	if s, ok := r.Get(id); ok {
		return s, nil
	}

	r.mu.RLock()
	lookup := r.persisted
	r.mu.RUnlock()
	if lookup == nil {
		return nil, ErrUnknownSession
	}
	known, err := lookup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("поиск сессии в хранилище: %w", err)
	}
	if !known {
		return nil, ErrUnknownSession
	}

	s := New(id, r.stores(id), r.backend, r.logger, r.sessOpts...)
	if err := r.admit(ctx, s); err != nil {
		return nil, err
	}
	r.logger.Debug("Сессия восстановлена из хранилища", slog.String("session_id", id))
	return s, nil
}

// Rotate выдаёт сессии новый идентификатор перед входом. Корзина переносится,
// данные старого идентификатора удаляются, старая сессия уходит из реестра.
func (r *Registry) Rotate(ctx context.Context, old *Session) (*Session, error) {
	id := uuid.NewString()
	fresh := New(id, r.stores(id), r.backend, r.logger, r.sessOpts...)
	for _, key := range carriedKeys {
		v, ok, err := old.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("чтение %s старой сессии: %w", key, err)
		}
		if !ok {
			continue
		}
		if err := fresh.store.Set(ctx, key, v); err != nil {
			return nil, fmt.Errorf("перенос %s в новую сессию: %w", key, err)
		}
	}
	if err := r.admit(ctx, fresh); err != nil {
		return nil, err
	}

	if err := old.store.Delete(ctx, append([]string{KeyToken, KeyRole}, carriedKeys...)...); err != nil {
		r.logger.Warn("Не удалось очистить данные старой сессии",
			slog.String("session_id", old.id),
			slog.String("error", err.Error()),
		)
	}
	r.Remove(old.id)
	r.logger.Debug("Идентификатор сессии обновлён",
		slog.String("old_session_id", old.id),
		slog.String("session_id", fresh.id),
	)
	return fresh, nil
}

// admit инициализирует сессию и кладёт её в реестр.
func (r *Registry) admit(ctx context.Context, s *Session) error {
	if err := s.Init(ctx); err != nil {
		s.Close()
		return fmt.Errorf("инициализация сессии: %w", err)
	}
	r.cache.Add(s.id, s)
	sessionsActive.Inc()
	return nil
}

// Get возвращает сессию и продлевает её TTL.
func (r *Registry) Get(id string) (*Session, bool) {
	s, ok := r.cache.Get(id)
	if !ok {
		return nil, false
	}
	// Повторный Add обновляет срок жизни записи без вызова колбэка вытеснения.
	r.cache.Add(id, s)
	return s, true
}

// Remove удаляет сессию из реестра.
func (r *Registry) Remove(id string) {
	r.cache.Remove(id)
}

// Len возвращает число сессий в реестре.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close удаляет все сессии (graceful shutdown).
func (r *Registry) Close() {
	r.cache.Purge()
}
