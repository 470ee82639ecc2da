// auth.go: вход, регистрация и выход пользователей консоли.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/portline/console/internal/domain/model"
	"github.com/bigkaa/portline/console/internal/domain/rbac"
	"github.com/bigkaa/portline/console/internal/session"
	"github.com/bigkaa/portline/console/internal/validation"
)

// Registrar: регистрация клиента на бэкенде.
type Registrar interface {
	Register(ctx context.Context, reg model.Registration) (model.Record, error)
}

// AuthService: вход, регистрация и выход.
type AuthService struct {
	registrar Registrar
	validator *validation.Validator
	logger    *slog.Logger

	onLogout []func(sessionID string)
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(registrar Registrar, v *validation.Validator, logger *slog.Logger) *AuthService {
	return &AuthService{
		registrar: registrar,
		validator: v,
		logger:    logger.With(slog.String("component", "auth")),
	}
}

// OnLogout подписывает fn на выход пользователя (сброс кэшей сессии).
func (s *AuthService) OnLogout(fn func(sessionID string)) {
	s.onLogout = append(s.onLogout, fn)
}

// CheckLogin проверяет форму входа без обращения к бэкенду.
func (s *AuthService) CheckLogin(form validation.LoginForm) error {
	return s.validator.Struct(form)
}

// Login проверяет форму и выполняет вход в сессии.
func (s *AuthService) Login(ctx context.Context, sess *session.Session, form validation.LoginForm) (rbac.Role, error) {
	if err := s.validator.Struct(form); err != nil {
		return "", err
	}
	// Кэши предыдущего пользователя этой сессии недействительны.
	s.dropCaches(sess.ID())
	role, err := sess.Login(ctx, model.Credentials{LogonName: form.LogonName, Password: form.Password})
	if err != nil {
		return "", err
	}
	return role, nil
}

// Register проверяет форму и регистрирует клиента.
func (s *AuthService) Register(ctx context.Context, form validation.RegisterForm) (model.Record, error) {
	if err := s.validator.Struct(form); err != nil {
		return nil, err
	}
	rec, err := s.registrar.Register(ctx, model.Registration{
		LogonName:       form.LogonName,
		Password:        form.Password,
		Name:            form.Name,
		Email:           form.Email,
		Address:         form.Address,
		TelephoneNumber: form.TelephoneNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("регистрация: %w", err)
	}
	s.logger.Info("Клиент зарегистрирован", slog.String("logon_name", form.LogonName))
	delete(rec, "password")
	return rec, nil
}

// Logout удаляет токен сессии и сбрасывает все её кэши.
func (s *AuthService) Logout(ctx context.Context, sess *session.Session) error {
	if err := sess.Logout(ctx); err != nil {
		return err
	}
	s.dropCaches(sess.ID())
	return nil
}

func (s *AuthService) dropCaches(sessionID string) {
	for _, fn := range s.onLogout {
		fn(sessionID)
	}
}
