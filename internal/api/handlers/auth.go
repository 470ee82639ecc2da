// auth.go: вход, регистрация, выход и состояние сессии.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/portline/console/internal/api/errors"
	"github.com/bigkaa/portline/console/internal/service"
	"github.com/bigkaa/portline/console/internal/session"
	"github.com/bigkaa/portline/console/internal/validation"
)

// SessionRenewer выдаёт сессии запроса новый идентификатор.
type SessionRenewer interface {
	Renew(w http.ResponseWriter, r *http.Request) (*session.Session, error)
}

// AuthHandler: обработчики аутентификации.
type AuthHandler struct {
	auth     *service.AuthService
	sessions SessionRenewer
	logger   *slog.Logger
}

// NewAuthHandler создаёт обработчик аутентификации.
func NewAuthHandler(auth *service.AuthService, sessions SessionRenewer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "auth_handler")),
	}
}

// formField: поле формы в описании представления.
type formField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// loginViewResponse: описание представления входа.
type loginViewResponse struct {
	Fields       []formField `json:"fields"`
	LoginPath    string      `json:"login_path"`
	RegisterPath string      `json:"register_path"`
	Register     []formField `json:"register_fields"`
	Notice       string      `json:"notice,omitempty"`
	LoggedIn     bool        `json:"logged_in"`
}

type loginResponse struct {
	Role     string `json:"role"`
	Redirect string `json:"redirect"`
}

// LoginView: GET /console/login. Отдаёт описание форм входа и регистрации
// и ожидающее уведомление (например, об истечении сессии).
func (h *AuthHandler) LoginView(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, loginViewResponse{
		Fields: []formField{
			{Name: "logon_name", Type: "text", Required: true},
			{Name: "password", Type: "password", Required: true},
		},
		LoginPath:    "/console/login",
		RegisterPath: "/console/register",
		Register: []formField{
			{Name: "logon_name", Type: "text", Required: true},
			{Name: "password", Type: "password", Required: true},
			{Name: "name", Type: "text", Required: true},
			{Name: "email", Type: "email", Required: true},
			{Name: "address", Type: "text", Required: true},
			{Name: "telephone_number", Type: "tel", Required: true},
		},
		Notice:   sess.TakeNotice(),
		LoggedIn: sess.HasToken(),
	})
}

// Login: POST /console/login. Вход выполняется в сессии с новым
// идентификатором, cookie обновляется.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentSession(w, r); !ok {
		return
	}
	var form validation.LoginForm
	if err := decodeJSON(r, &form); err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	if err := h.auth.CheckLogin(form); err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	sess, err := h.sessions.Renew(w, r)
	if err != nil {
		h.logger.Error("Не удалось обновить сессию перед входом",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "не удалось обновить сессию")
		return
	}
	role, err := h.auth.Login(r.Context(), sess, form)
	if err != nil {
		h.logger.Info("Вход отклонён",
			slog.String("logon_name", form.LogonName),
			slog.String("error", err.Error()),
		)
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Role: string(role), Redirect: "/console"})
}

// Register: POST /console/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var form validation.RegisterForm
	if err := decodeJSON(r, &form); err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	rec, err := h.auth.Register(r.Context(), form)
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// Logout: POST /console/logout. Отвечает перенаправлением на "/":
// клиент выполняет полную перезагрузку.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	if err := h.auth.Logout(r.Context(), sess); err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SessionInfo: GET /console/session. Состояние сессии без обращения к бэкенду.
func (h *AuthHandler) SessionInfo(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	info := sess.Info()
	if info.Notice != "" {
		sess.TakeNotice()
	}
	writeJSON(w, http.StatusOK, info)
}
