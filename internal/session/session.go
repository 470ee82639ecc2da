// Пакет session: Access Guard консоли.
// Session хранит токен в локальном хранилище, следит за сроком его действия
// и при каждой защищённой операции заново определяет роль через бэкенд.
// Грубая проверка маршрута (HasToken) синхронная и не ходит в сеть,
// точная проверка (RequireRole) выполняется при каждом вызове без кэширования.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/portline/console/internal/domain/apperr"
	"github.com/bigkaa/portline/console/internal/domain/model"
	"github.com/bigkaa/portline/console/internal/domain/rbac"
)

// State: состояние жизненного цикла сессии.
type State string

// Состояния сессии: init -> resolved -> expired | logged_out.
const (
	StateInit      State = "init"
	StateResolved  State = "resolved"
	StateExpired   State = "expired"
	StateLoggedOut State = "logged_out"
)

// Уведомления пользователю.
const (
	NoticeExpired  = "Сессия истекла, войдите снова"
	NoticeBadToken = "Сохранённый токен недействителен, войдите снова"
)

// storeTimeout: таймаут операций с хранилищем вне запроса (таймер истечения).
const storeTimeout = 5 * time.Second

// Backend: операции бэкенда, нужные Access Guard.
type Backend interface {
	Me(ctx context.Context, token string) (*model.Identity, error)
	Login(ctx context.Context, creds model.Credentials) (*model.LoginResult, error)
}

// Info: снимок состояния сессии для отображения.
type Info struct {
	ID        string     `json:"id"`
	State     State      `json:"state"`
	Role      rbac.Role  `json:"role,omitempty"`
	HasToken  bool       `json:"has_token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Notice    string     `json:"notice,omitempty"`
}

// Session: сессия одного пользователя. Безопасна для конкурентного использования.
type Session struct {
	id      string
	store   Store
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	// onExpire вызывается после очистки сессии по таймеру.
	onExpire func(id string)

	mu        sync.Mutex
	state     State
	hasToken  bool
	role      rbac.Role
	expiresAt time.Time
	timer     *time.Timer
	// timerGen отличает актуальный таймер от уже перевзведённого.
	timerGen uint64
	notice   string
}

// Option настраивает Session.
type Option func(*Session)

// WithClock подменяет источник текущего времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithOnExpire задаёт обработчик истечения сессии.
func WithOnExpire(fn func(id string)) Option {
	return func(s *Session) { s.onExpire = fn }
}

// New создаёт сессию в состоянии init. Токен загружается в Init.
func New(id string, store Store, backend Backend, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		id:      id,
		store:   store,
		backend: backend,
		logger:  logger.With(slog.String("component", "session"), slog.String("session_id", id)),
		now:     time.Now,
		state:   StateInit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() string {
	return s.id
}

// Store возвращает локальное хранилище сессии.
func (s *Session) Store() Store {
	return s.store
}

// Init загружает токен из хранилища и взводит таймер истечения.
// Истёкший или нечитаемый токен удаляется сразу, таймер не взводится.
func (s *Session) Init(ctx context.Context) error {
	token, ok, err := s.store.Get(ctx, KeyToken)
	if err != nil {
		return fmt.Errorf("чтение токена: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateInit
	if !ok || token == "" {
		s.hasToken = false
		return nil
	}
	if role, ok, err := s.store.Get(ctx, KeyRole); err == nil && ok {
		s.role, _ = rbac.ParseRole(role)
	}
	return s.armLocked(ctx, token)
}

// armLocked взводит таймер по exp токена. Вызывается под s.mu.
func (s *Session) armLocked(ctx context.Context, token string) error {
	s.stopTimerLocked()

	exp, hasExp, err := TokenExpiry(token)
	if err != nil {
		s.logger.Warn("Токен не разобран, сессия очищена",
			slog.String("error", err.Error()),
		)
		return s.clearLocked(ctx, StateExpired, NoticeBadToken)
	}

	s.hasToken = true
	if !hasExp {
		// Без exp срок действия контролирует только бэкенд.
		s.expiresAt = time.Time{}
		return nil
	}

	remaining := exp.Sub(s.now())
	if remaining <= 0 {
		s.logger.Info("Токен уже истёк, сессия очищена",
			slog.Time("expires_at", exp),
		)
		return s.clearLocked(ctx, StateExpired, NoticeExpired)
	}

	s.expiresAt = exp
	s.timerGen++
	gen := s.timerGen
	s.timer = time.AfterFunc(remaining, func() { s.expire(gen) })
	s.logger.Debug("Таймер истечения сессии взведён",
		slog.Duration("remaining", remaining),
	)
	return nil
}

// expire срабатывает по таймеру: очищает сессию и уведомляет.
func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.timerGen || !s.hasToken {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	err := s.clearLocked(ctx, StateExpired, NoticeExpired)
	cancel()
	onExpire := s.onExpire
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Ошибка очистки истёкшей сессии",
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("Сессия истекла")
	}
	if onExpire != nil {
		onExpire(s.id)
	}
}

// clearLocked удаляет токен и роль. Вызывается под s.mu.
func (s *Session) clearLocked(ctx context.Context, state State, notice string) error {
	s.stopTimerLocked()
	s.hasToken = false
	s.role = ""
	s.expiresAt = time.Time{}
	s.state = state
	s.notice = notice
	if err := s.store.Delete(ctx, KeyToken, KeyRole); err != nil {
		return fmt.Errorf("очистка хранилища: %w", err)
	}
	return nil
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

// HasToken: синхронная проверка для маршрутов, без обращения к сети.
func (s *Session) HasToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasToken
}

// Token возвращает токен из хранилища или ErrUnauthenticated.
func (s *Session) Token(ctx context.Context) (string, error) {
	token, ok, err := s.store.Get(ctx, KeyToken)
	if err != nil {
		return "", fmt.Errorf("чтение токена: %w", err)
	}
	if !ok || token == "" {
		return "", apperr.ErrUnauthenticated
	}
	return token, nil
}

// RequireRole определяет роль владельца токена через бэкенд и проверяет,
// что она входит в allowed. Результат не кэшируется: смена роли
// администратором видна на следующем же вызове.
func (s *Session) RequireRole(ctx context.Context, allowed rbac.Set) (rbac.Role, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return "", err
	}

	identity, err := s.backend.Me(ctx, token)
	if err != nil {
		return "", err
	}

	role, ok := rbac.ParseRole(identity.Role)
	if !ok {
		return "", fmt.Errorf("%w: роль %q не допускается", apperr.ErrAccessDenied, identity.Role)
	}

	s.mu.Lock()
	s.role = role
	if s.hasToken {
		s.state = StateResolved
	}
	s.mu.Unlock()

	if err := s.store.Set(ctx, KeyRole, string(role)); err != nil {
		s.logger.Warn("Не удалось сохранить роль",
			slog.String("error", err.Error()),
		)
	}

	if !allowed.Allows(role) {
		return role, fmt.Errorf("%w: роль %s, требуется %s", apperr.ErrAccessDenied, role, allowed)
	}
	return role, nil
}

// Identity возвращает профиль владельца токена.
func (s *Session) Identity(ctx context.Context) (*model.Identity, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	return s.backend.Me(ctx, token)
}

// Login выполняет вход, сохраняет токен и роль, перевзводит таймер.
func (s *Session) Login(ctx context.Context, creds model.Credentials) (rbac.Role, error) {
	res, err := s.backend.Login(ctx, creds)
	if err != nil {
		return "", err
	}

	if err := s.store.Set(ctx, KeyToken, res.AccessToken); err != nil {
		return "", fmt.Errorf("сохранение токена: %w", err)
	}
	role, _ := rbac.ParseRole(res.Role)
	if err := s.store.Set(ctx, KeyRole, string(role)); err != nil {
		return "", fmt.Errorf("сохранение роли: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = ""
	if err := s.armLocked(ctx, res.AccessToken); err != nil {
		return "", err
	}
	if !s.hasToken {
		// Бэкенд выдал уже истёкший токен.
		return "", apperr.ErrUnauthenticated
	}
	s.role = role
	s.state = StateResolved
	s.logger.Info("Вход выполнен", slog.String("role", string(role)))
	return role, nil
}

// Logout удаляет токен и роль. Вызывающий обязан сбросить всё состояние,
// производное от роли (HTTP-слой отвечает полной перезагрузкой).
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.clearLocked(ctx, StateLoggedOut, ""); err != nil {
		return err
	}
	s.logger.Info("Выход выполнен")
	return nil
}

// Info возвращает снимок состояния сессии.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:       s.id,
		State:    s.state,
		Role:     s.role,
		HasToken: s.hasToken,
		Notice:   s.notice,
	}
	if !s.expiresAt.IsZero() {
		exp := s.expiresAt
		info.ExpiresAt = &exp
	}
	return info
}

// TakeNotice возвращает и сбрасывает ожидающее уведомление.
func (s *Session) TakeNotice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.notice
	s.notice = ""
	return n
}

// Close останавливает таймер. Хранилище не очищается.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}
