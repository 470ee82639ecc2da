// carts.go: корзины сессий консоли и оформление заказа.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/bigkaa/portline/console/internal/cart"
	"github.com/bigkaa/portline/console/internal/domain/apperr"
	"github.com/bigkaa/portline/console/internal/domain/model"
	"github.com/bigkaa/portline/console/internal/domain/rbac"
	"github.com/bigkaa/portline/console/internal/resource"
	"github.com/bigkaa/portline/console/internal/session"
	"github.com/bigkaa/portline/console/internal/validation"
)

// CartBackend: операции бэкенда, нужные корзине.
type CartBackend interface {
	Get(ctx context.Context, token, resource, id string) (model.Record, error)
	Create(ctx context.Context, token, resource string, body model.Record) (model.Record, error)
}

// CartView: содержимое корзины с итогами.
type CartView struct {
	Items  []model.CartEntry `json:"items"`
	Totals cart.Totals       `json:"totals"`
}

// CheckoutResult: созданный заказ.
type CheckoutResult struct {
	Order model.Record `json:"order"`
}

// CartService: корзины по сессиям.
type CartService struct {
	backend   CartBackend
	validator *validation.Validator
	logger    *slog.Logger

	mu    sync.Mutex
	carts map[string]*cart.Cart

	onCheckout func(sessionID string, order model.Record)
}

// NewCartService создаёт сервис корзин.
func NewCartService(backend CartBackend, v *validation.Validator, logger *slog.Logger) *CartService {
	return &CartService{
		backend:   backend,
		validator: v,
		logger:    logger.With(slog.String("component", "carts")),
		carts:     make(map[string]*cart.Cart),
	}
}

// OnCheckout подписывает fn на успешное создание заказа.
func (s *CartService) OnCheckout(fn func(sessionID string, order model.Record)) {
	s.onCheckout = fn
}

// Items возвращает содержимое корзины. Бэкенд не вызывается.
func (s *CartService) Items(ctx context.Context, sess *session.Session) (*CartView, error) {
	if _, err := sess.Token(ctx); err != nil {
		return nil, err
	}
	items, err := s.cartFor(sess).Items(ctx)
	if err != nil {
		return nil, err
	}
	return &CartView{Items: items, Totals: cart.Sum(items)}, nil
}

// Add кладёт продукт в корзину. Продукт читается с бэкенда,
// чтобы зафиксировать название, цену и вес.
func (s *CartService) Add(ctx context.Context, sess *session.Session, form validation.CartItemForm) (*CartView, error) {
	if err := s.validator.Struct(form); err != nil {
		return nil, err
	}
	products, _ := resource.Lookup("products")
	token, err := authorize(ctx, sess, products, resource.ActionRead)
	if err != nil {
		return nil, err
	}
	product, err := s.backend.Get(ctx, token, products.Name, strconv.FormatInt(form.IDProduct, 10))
	if err != nil {
		return nil, fmt.Errorf("чтение продукта %d: %w", form.IDProduct, err)
	}
	items, err := s.cartFor(sess).Add(ctx, product, form.Quantity)
	if err != nil {
		return nil, err
	}
	return &CartView{Items: items, Totals: cart.Sum(items)}, nil
}

// SetQuantity меняет количество позиции.
func (s *CartService) SetQuantity(ctx context.Context, sess *session.Session, form validation.CartItemForm) (*CartView, error) {
	if err := s.validator.Struct(form); err != nil {
		return nil, err
	}
	if _, err := sess.Token(ctx); err != nil {
		return nil, err
	}
	items, err := s.cartFor(sess).SetQuantity(ctx, form.IDProduct, form.Quantity)
	if err != nil {
		return nil, err
	}
	return &CartView{Items: items, Totals: cart.Sum(items)}, nil
}

// Remove убирает позицию из корзины.
func (s *CartService) Remove(ctx context.Context, sess *session.Session, productID int64) (*CartView, error) {
	if _, err := sess.Token(ctx); err != nil {
		return nil, err
	}
	items, err := s.cartFor(sess).Remove(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &CartView{Items: items, Totals: cart.Sum(items)}, nil
}

// Clear очищает корзину.
func (s *CartService) Clear(ctx context.Context, sess *session.Session) error {
	if _, err := sess.Token(ctx); err != nil {
		return err
	}
	return s.cartFor(sess).Clear(ctx)
}

// Checkout оформляет заказ из корзины. Без порта и с пустой корзиной
// возвращает ValidationFailed, не обращаясь к бэкенду. Если клиент
// не указан, заказ оформляется на владельца токена.
func (s *CartService) Checkout(ctx context.Context, sess *session.Session, form validation.CheckoutForm) (*CheckoutResult, error) {
	if err := s.validator.Struct(form); err != nil {
		return nil, err
	}
	c := s.cartFor(sess)
	items, err := c.Items(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperr.NewValidation("cart", "корзина пуста")
	}

	orders, _ := resource.Lookup("orders")
	role, err := sess.RequireRole(ctx, orders.Allowed(resource.ActionCreate))
	if err != nil {
		return nil, err
	}
	if form.IDClient == 0 || role == rbac.RoleClient {
		// Клиент оформляет заказ только на себя.
		identity, err := sess.Identity(ctx)
		if err != nil {
			return nil, err
		}
		form.IDClient = identity.IDClient
	}
	token, err := sess.Token(ctx)
	if err != nil {
		return nil, err
	}

	order, err := c.Checkout(ctx, s.backend, token, form)
	if err != nil {
		if order != nil {
			s.logger.Warn("Заказ создан частично, корзина сохранена",
				slog.String("session_id", sess.ID()),
				slog.String("id_order", order.String("id_order")),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	s.logger.Info("Заказ оформлен",
		slog.String("session_id", sess.ID()),
		slog.String("id_order", order.String("id_order")),
		slog.Int("positions", len(items)),
	)
	if s.onCheckout != nil {
		s.onCheckout(sess.ID(), order)
	}
	return &CheckoutResult{Order: order}, nil
}

// ProductIDs возвращает идентификаторы продуктов в корзине сессии.
func (s *CartService) ProductIDs(ctx context.Context, sess *session.Session) (map[string]struct{}, error) {
	return s.cartFor(sess).ProductIDs(ctx)
}

// DropSession забывает корзину сессии. Содержимое остаётся в хранилище.
func (s *CartService) DropSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionID)
}

func (s *CartService) cartFor(sess *session.Session) *cart.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[sess.ID()]
	if !ok {
		c = cart.New(sess.Store(), s.validator)
		s.carts[sess.ID()] = c
	}
	return c
}
