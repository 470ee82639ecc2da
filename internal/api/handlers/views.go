// views.go: представления коллекций сущностей и мутации.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/portline/console/internal/api/errors"
	"github.com/bigkaa/portline/console/internal/domain/model"
	"github.com/bigkaa/portline/console/internal/service"
)

// ViewsHandler: обработчики /console/views.
type ViewsHandler struct {
	collections *service.CollectionService
	logger      *slog.Logger
}

// NewViewsHandler создаёт обработчик представлений.
func NewViewsHandler(collections *service.CollectionService, logger *slog.Logger) *ViewsHandler {
	return &ViewsHandler{
		collections: collections,
		logger:      logger.With(slog.String("component", "views_handler")),
	}
}

// List: GET /console/views/{resource}?q=&column=&sort=&page=&page_size=&nav=.
func (h *ViewsHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	q, err := parseViewQuery(r)
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	page, err := h.collections.View(r.Context(), sess, chi.URLParam(r, "resource"), q)
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Reload: POST /console/views/{resource}/reload.
func (h *ViewsHandler) Reload(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	page, err := h.collections.Reload(r.Context(), sess, chi.URLParam(r, "resource"))
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Related: GET /console/views/{resource}/by/{parent}/{parentID}?q=&column=&sort=&page=&page_size=&nav=.
func (h *ViewsHandler) Related(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	q, err := parseViewQuery(r)
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	page, err := h.collections.Related(r.Context(), sess,
		chi.URLParam(r, "resource"), chi.URLParam(r, "parent"), chi.URLParam(r, "parentID"), q)
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ReloadRelated: POST /console/views/{resource}/by/{parent}/{parentID}/reload.
func (h *ViewsHandler) ReloadRelated(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	page, err := h.collections.ReloadRelated(r.Context(), sess,
		chi.URLParam(r, "resource"), chi.URLParam(r, "parent"), chi.URLParam(r, "parentID"))
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Get: GET /console/views/{resource}/{id}.
func (h *ViewsHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	rec, err := h.collections.Get(r.Context(), sess, chi.URLParam(r, "resource"), chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Create: POST /console/views/{resource}.
func (h *ViewsHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	var body model.Record
	if err := decodeJSON(r, &body); err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	rec, err := h.collections.Create(r.Context(), sess, chi.URLParam(r, "resource"), body)
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// Update: PUT /console/views/{resource}/{id}.
func (h *ViewsHandler) Update(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	var body model.Record
	if err := decodeJSON(r, &body); err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	rec, err := h.collections.Update(r.Context(), sess, chi.URLParam(r, "resource"), chi.URLParam(r, "id"), body)
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Delete: DELETE /console/views/{resource}/{id}.
func (h *ViewsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	if err := h.collections.Delete(r.Context(), sess, chi.URLParam(r, "resource"), chi.URLParam(r, "id")); err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseViewQuery(r *http.Request) (service.ViewQuery, error) {
	query := r.URL.Query()
	q := service.ViewQuery{
		Term:   query.Get("q"),
		Column: query.Get("column"),
		Sort:   query.Get("sort"),
		Nav:    query.Get("nav"),
	}
	var err error
	if q.Page, err = queryInt(r, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = queryInt(r, "page_size"); err != nil {
		return q, err
	}
	return q, nil
}
