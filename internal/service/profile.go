// profile.go: собственные данные пользователя консоли.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/bigkaa/portline/console/internal/domain/apperr"
	"github.com/bigkaa/portline/console/internal/domain/model"
	"github.com/bigkaa/portline/console/internal/session"
	"github.com/bigkaa/portline/console/internal/validation"
)

// profileResource: сущность бэкенда с записями пользователей.
const profileResource = "clients"

// ProfileBackend: операции бэкенда, нужные профилю.
type ProfileBackend interface {
	Update(ctx context.Context, token, resource, id string, body model.Record) (model.Record, error)
}

// ProfileService: просмотр и изменение собственной записи пользователя.
// Запись определяется по токену (GET /api/clients/me), идентификатор
// из запроса не принимается.
type ProfileService struct {
	backend   ProfileBackend
	validator *validation.Validator
	logger    *slog.Logger

	onUpdate func(sessionID string, rec model.Record)
}

// NewProfileService создаёт сервис профиля.
func NewProfileService(backend ProfileBackend, v *validation.Validator, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		backend:   backend,
		validator: v,
		logger:    logger.With(slog.String("component", "profile")),
	}
}

// OnUpdate подписывает fn на успешное изменение профиля.
func (s *ProfileService) OnUpdate(fn func(sessionID string, rec model.Record)) {
	s.onUpdate = fn
}

// Profile возвращает профиль владельца токена.
func (s *ProfileService) Profile(ctx context.Context, sess *session.Session) (*model.Identity, error) {
	return sess.Identity(ctx)
}

// Update проверяет форму и сохраняет собственную запись пользователя.
// Некорректная форма отклоняется до обращения к бэкенду.
func (s *ProfileService) Update(ctx context.Context, sess *session.Session, form validation.ProfileForm) (model.Record, error) {
	if err := s.validator.Struct(form); err != nil {
		return nil, err
	}
	identity, err := sess.Identity(ctx)
	if err != nil {
		return nil, err
	}
	if identity.IDClient <= 0 {
		return nil, fmt.Errorf("%w: у пользователя нет записи клиента", apperr.ErrNotFound)
	}
	token, err := sess.Token(ctx)
	if err != nil {
		return nil, err
	}

	id := strconv.FormatInt(identity.IDClient, 10)
	body := model.Record{
		"logon_name":       form.LogonName,
		"password":         form.Password,
		"name":             form.Name,
		"email":            form.Email,
		"address":          form.Address,
		"telephone_number": form.TelephoneNumber,
	}
	resp, err := s.backend.Update(ctx, token, profileResource, id, body)
	if err != nil {
		return nil, fmt.Errorf("изменение профиля: %w", err)
	}

	rec := resp
	if resp.String("id_client") != id {
		// Бэкенд ответил подтверждением без записи.
		rec = body.Clone()
		rec["id_client"] = float64(identity.IDClient)
	}
	delete(rec, "password")

	s.logger.Info("Профиль изменён",
		slog.String("session_id", sess.ID()),
		slog.String("id_client", id),
	)
	if s.onUpdate != nil {
		s.onUpdate(sess.ID(), rec)
	}
	return rec, nil
}
