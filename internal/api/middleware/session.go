// session.go: привязка HTTP-запроса к сессии консоли по cookie
// и синхронный шлюз маршрутов (без обращения к бэкенду).
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/portline/console/internal/api/errors"
	"github.com/bigkaa/portline/console/internal/session"
)

// SessionCookieName: имя cookie с идентификатором сессии.
const SessionCookieName = "portline_console_session"

// LoginPath: страница входа, на которую шлюз отправляет запросы без токена.
const LoginPath = "/console/login"

type contextKey string

// ContextKeySession: сессия консоли в контексте запроса.
const ContextKeySession contextKey = "console_session"

// SessionRegistry: реестр сессий.
type SessionRegistry interface {
	Create(ctx context.Context) (*session.Session, error)
	Open(ctx context.Context, id string) (*session.Session, error)
	Rotate(ctx context.Context, old *session.Session) (*session.Session, error)
}

// Sessions: middleware привязки запроса к сессии.
type Sessions struct {
	registry SessionRegistry
	secure   bool
	maxAge   time.Duration
	logger   *slog.Logger
}

// NewSessions создаёт middleware сессий.
// secure: Secure flag cookie; maxAge: срок жизни cookie.
func NewSessions(registry SessionRegistry, secure bool, maxAge time.Duration, logger *slog.Logger) *Sessions {
	return &Sessions{
		registry: registry,
		secure:   secure,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "session_middleware")),
	}
}

// Attach находит сессию по cookie или создаёт новую и кладёт её в контекст.
// Идентификатор, неизвестный реестру и хранилищу, заменяется новым.
func (m *Sessions) Attach() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := m.resolve(r)
			if sess == nil {
				created, err := m.registry.Create(r.Context())
				if err != nil {
					m.logger.Error("Не удалось создать сессию",
						slog.String("error", err.Error()),
					)
					apierrors.InternalError(w, "не удалось создать сессию")
					return
				}
				sess = created
			}
			m.setCookie(w, sess.ID())
			noteSession(r.Context(), sess.ID())

			ctx := context.WithValue(r.Context(), ContextKeySession, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Renew выдаёт сессии запроса новый идентификатор и ставит cookie с ним.
// Вызывается перед входом, чтобы токен не попал в сессию с заранее
// известным идентификатором.
func (m *Sessions) Renew(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	old := SessionFromContext(r.Context())
	if old == nil {
		return nil, fmt.Errorf("сессия не привязана к запросу")
	}
	fresh, err := m.registry.Rotate(r.Context(), old)
	if err != nil {
		return nil, fmt.Errorf("смена идентификатора сессии: %w", err)
	}
	m.setCookie(w, fresh.ID())
	noteSession(r.Context(), fresh.ID())
	return fresh, nil
}

func (m *Sessions) resolve(r *http.Request) *session.Session {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	sess, err := m.registry.Open(r.Context(), cookie.Value)
	if err != nil {
		m.logger.Debug("Сессия из cookie не открыта, создаётся новая",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		return nil
	}
	return sess
}

func (m *Sessions) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireToken: шлюз маршрутов. Без сохранённого токена запрос
// перенаправляется на страницу входа. Роль здесь не проверяется.
func RequireToken() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromContext(r.Context())
			if sess == nil || !sess.HasToken() {
				http.Redirect(w, r, LoginPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext возвращает сессию запроса или nil.
func SessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(ContextKeySession).(*session.Session)
	return sess
}
