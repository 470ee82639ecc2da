package model

import (
	"errors"
)

// Статусы заказа.
const (
	OrderStatusPending = "pending"
)

// CartEntry: позиция корзины, хранится в локальном хранилище под ключом "cart".
type CartEntry struct {
	IDProduct int64   `json:"id_product"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Weight    float64 `json:"weight"`
	Quantity  int     `json:"quantity"`
}

// Subtotal возвращает стоимость позиции.
func (e CartEntry) Subtotal() float64 {
	return e.Price * float64(e.Quantity)
}

// CartEntryFromProduct строит позицию корзины из записи продукта.
func CartEntryFromProduct(p Record, quantity int) (CartEntry, error) {
	id, ok := p.Int("id_product")
	if !ok {
		return CartEntry{}, errors.New("у продукта нет числового id_product")
	}
	price, _ := ParseNumber(p["price"])
	weight, _ := ParseNumber(p["weight"])
	return CartEntry{
		IDProduct: id,
		Name:      p.String("name"),
		Price:     price,
		Weight:    weight,
		Quantity:  quantity,
	}, nil
}

// Identity: ответ GET /api/clients/me.
type Identity struct {
	IDClient        int64  `json:"id_client"`
	Role            string `json:"role"`
	Name            string `json:"name,omitempty"`
	Email           string `json:"email,omitempty"`
	LogonName       string `json:"logon_name,omitempty"`
	Address         string `json:"address,omitempty"`
	TelephoneNumber string `json:"telephone_number,omitempty"`
}

// LoginResult: ответ POST /api/clients/login.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
}

// Credentials: тело запроса входа.
type Credentials struct {
	LogonName string `json:"logon_name"`
	Password  string `json:"password"`
}

// Registration: тело запроса регистрации клиента (POST /api/clients).
type Registration struct {
	LogonName       string `json:"logon_name"`
	Password        string `json:"password"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Address         string `json:"address"`
	TelephoneNumber string `json:"telephone_number"`
}
