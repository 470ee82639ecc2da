// cart.go: корзина и оформление заказа.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/portline/console/internal/api/errors"
	"github.com/bigkaa/portline/console/internal/service"
	"github.com/bigkaa/portline/console/internal/validation"
)

// CartHandler: обработчики /console/cart.
type CartHandler struct {
	carts  *service.CartService
	logger *slog.Logger
}

// NewCartHandler создаёт обработчик корзины.
func NewCartHandler(carts *service.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		carts:  carts,
		logger: logger.With(slog.String("component", "cart_handler")),
	}
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// List: GET /console/cart.
func (h *CartHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	view, err := h.carts.Items(r.Context(), sess)
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Add: POST /console/cart/items.
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	var form validation.CartItemForm
	if err := decodeJSON(r, &form); err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	if form.Quantity == 0 {
		form.Quantity = 1
	}
	view, err := h.carts.Add(r.Context(), sess, form)
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SetQuantity: PUT /console/cart/items/{id}.
func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	id, err := pathInt64("id_product", chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	view, err := h.carts.SetQuantity(r.Context(), sess, validation.CartItemForm{IDProduct: id, Quantity: req.Quantity})
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Remove: DELETE /console/cart/items/{id}.
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	id, err := pathInt64("id_product", chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	view, err := h.carts.Remove(r.Context(), sess, id)
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Clear: DELETE /console/cart.
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	if err := h.carts.Clear(r.Context(), sess); err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout: POST /console/cart/checkout.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	var form validation.CheckoutForm
	if err := decodeJSON(r, &form); err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	res, err := h.carts.Checkout(r.Context(), sess, form)
	if err != nil {
		apierrors.WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
