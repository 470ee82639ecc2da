// Пакет cart: корзина клиента в локальном хранилище сессии (ключ "cart").
// Корзина живёт только на стороне клиента, бэкенд видит её лишь
// при оформлении заказа.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/bigkaa/portline/console/internal/domain/apperr"
	"github.com/bigkaa/portline/console/internal/domain/model"
	"github.com/bigkaa/portline/console/internal/session"
	"github.com/bigkaa/portline/console/internal/validation"
)

// Ресурсы бэкенда, используемые при оформлении заказа.
const (
	resourceOrders         = "orders"
	resourceOrdersProducts = "orders_products"
)

// Backend: операции бэкенда, нужные для оформления заказа.
type Backend interface {
	Create(ctx context.Context, token, resource string, body model.Record) (model.Record, error)
}

// Totals: итоги корзины.
type Totals struct {
	Positions int     `json:"positions"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Weight    float64 `json:"weight"`
}

// Cart: корзина одной сессии. Безопасна для конкурентного использования.
type Cart struct {
	mu        sync.Mutex
	store     session.Store
	validator *validation.Validator
}

// New создаёт корзину поверх хранилища сессии.
func New(store session.Store, v *validation.Validator) *Cart {
	return &Cart{store: store, validator: v}
}

// Items возвращает позиции корзины.
func (c *Cart) Items(ctx context.Context) ([]model.CartEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

// Add добавляет продукт. Если продукт уже в корзине, количество увеличивается,
// но не сверх validation.MaxQuantity.
func (c *Cart) Add(ctx context.Context, product model.Record, quantity int) ([]model.CartEntry, error) {
	entry, err := model.CartEntryFromProduct(product, quantity)
	if err != nil {
		return nil, apperr.NewValidation("id_product", err.Error())
	}
	if err := c.validator.Struct(validation.CartItemForm{IDProduct: entry.IDProduct, Quantity: quantity}); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	items, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	merged := false
	for i := range items {
		if items[i].IDProduct == entry.IDProduct {
			if items[i].Quantity > validation.MaxQuantity-quantity {
				return nil, apperr.NewValidation("quantity",
					fmt.Sprintf("в корзине не больше %d единиц продукта", validation.MaxQuantity))
			}
			items[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		items = append(items, entry)
	}
	if err := c.save(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// SetQuantity задаёт количество позиции (не меньше 1).
func (c *Cart) SetQuantity(ctx context.Context, productID int64, quantity int) ([]model.CartEntry, error) {
	if err := c.validator.Struct(validation.CartItemForm{IDProduct: productID, Quantity: quantity}); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	items, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].IDProduct == productID {
			items[i].Quantity = quantity
			if err := c.save(ctx, items); err != nil {
				return nil, err
			}
			return items, nil
		}
	}
	return nil, fmt.Errorf("продукт %d в корзине: %w", productID, apperr.ErrNotFound)
}

// Remove удаляет позицию. Отсутствующая позиция не является ошибкой.
func (c *Cart) Remove(ctx context.Context, productID int64) ([]model.CartEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, it := range items {
		if it.IDProduct != productID {
			out = append(out, it)
		}
	}
	if err := c.save(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Clear очищает корзину.
func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(ctx, nil)
}

// Total считает итоги корзины.
func (c *Cart) Total(ctx context.Context) (Totals, error) {
	items, err := c.Items(ctx)
	if err != nil {
		return Totals{}, err
	}
	return Sum(items), nil
}

// Sum считает итоги по списку позиций.
func Sum(items []model.CartEntry) Totals {
	var t Totals
	for _, it := range items {
		t.Positions++
		t.Quantity += it.Quantity
		t.Price += it.Subtotal()
		t.Weight += it.Weight * float64(it.Quantity)
	}
	return t
}

// ProductIDs возвращает множество id продуктов в корзине
// (каталог скрывает уже добавленные продукты).
func (c *Cart) ProductIDs(ctx context.Context) (map[string]struct{}, error) {
	items, err := c.Items(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(items))
	for _, it := range items {
		ids[strconv.FormatInt(it.IDProduct, 10)] = struct{}{}
	}
	return ids, nil
}

// Checkout оформляет заказ: создаёт заказ со статусом pending, затем
// по одной связи заказ-продукт на каждую позицию и очищает корзину.
// Без выбранного порта или с пустой корзиной бэкенд не вызывается.
func (c *Cart) Checkout(ctx context.Context, backend Backend, token string, form validation.CheckoutForm) (model.Record, error) {
	if err := c.validator.Struct(form); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	items, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperr.NewValidation("cart", "корзина пуста")
	}

	order, err := backend.Create(ctx, token, resourceOrders, model.Record{
		"status":    model.OrderStatusPending,
		"id_port":   form.IDPort,
		"id_client": form.IDClient,
	})
	if err != nil {
		return nil, fmt.Errorf("создание заказа: %w", err)
	}
	orderID, ok := order.Int("id_order")
	if !ok {
		return nil, fmt.Errorf("создание заказа: %w",
			&apperr.BackendError{Kind: apperr.ErrUnexpectedBackend, Status: 200, Message: "в ответе нет id_order"})
	}

	for _, it := range items {
		_, err := backend.Create(ctx, token, resourceOrdersProducts, model.Record{
			"id_order":   orderID,
			"id_product": it.IDProduct,
			"quantity":   it.Quantity,
		})
		if err != nil {
			// Заказ уже создан; корзина сохраняется, чтобы пользователь мог повторить.
			return order, fmt.Errorf("добавление продукта %d в заказ %d: %w", it.IDProduct, orderID, err)
		}
	}

	if err := c.save(ctx, nil); err != nil {
		return order, err
	}
	return order, nil
}

// load читает корзину. Вызывается под c.mu.
func (c *Cart) load(ctx context.Context) ([]model.CartEntry, error) {
	raw, ok, err := c.store.Get(ctx, session.KeyCart)
	if err != nil {
		return nil, fmt.Errorf("чтение корзины: %w", err)
	}
	items := []model.CartEntry{}
	if !ok || raw == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("разбор корзины: %w", err)
	}
	return items, nil
}

// save записывает корзину. Пустая корзина удаляет ключ. Вызывается под c.mu.
func (c *Cart) save(ctx context.Context, items []model.CartEntry) error {
	if len(items) == 0 {
		if err := c.store.Delete(ctx, session.KeyCart); err != nil {
			return fmt.Errorf("очистка корзины: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("сериализация корзины: %w", err)
	}
	if err := c.store.Set(ctx, session.KeyCart, string(raw)); err != nil {
		return fmt.Errorf("запись корзины: %w", err)
	}
	return nil
}
