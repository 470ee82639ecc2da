// profile.go: собственные данные пользователя.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/portline/console/internal/api/errors"
	"github.com/bigkaa/portline/console/internal/service"
	"github.com/bigkaa/portline/console/internal/validation"
)

// ProfileHandler: обработчики /console/profile.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

// NewProfileHandler создаёт обработчик профиля.
func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		logger:   logger.With(slog.String("component", "profile_handler")),
	}
}

// Get: GET /console/profile.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	identity, err := h.profiles.Profile(r.Context(), sess)
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

// Update: PUT /console/profile.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	var form validation.ProfileForm
	if err := decodeJSON(r, &form); err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	rec, err := h.profiles.Update(r.Context(), sess, form)
	if err != nil {
		h.logger.Info("Изменение профиля отклонено",
			slog.String("session_id", sess.ID()),
			slog.String("error", err.Error()),
		)
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
