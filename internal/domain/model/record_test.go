package model

import (
	"encoding/json"
	"testing"
)

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: ""},
		{name: "строка", in: "Odessa", want: "Odessa"},
		{name: "целый float64", in: float64(42), want: "42"},
		{name: "дробный float64", in: 12.5, want: "12.5"},
		{name: "int", in: 7, want: "7"},
		{name: "bool", in: true, want: "true"},
		{name: "json.Number", in: json.Number("3.10"), want: "3.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Stringify(tt.in); got != tt.want {
				t.Errorf("Stringify(%v) = %q, хотели %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNumber(t *testing.T) {
	if _, ok := Number("12"); ok {
		t.Error("строка не должна считаться числом")
	}
	if _, ok := Number(nil); ok {
		t.Error("nil не должен считаться числом")
	}
	if f, ok := Number(float64(3)); !ok || f != 3 {
		t.Errorf("Number(3) = %v, %v", f, ok)
	}
	if f, ok := ParseNumber(" 12.50 "); !ok || f != 12.5 {
		t.Errorf("ParseNumber(\" 12.50 \") = %v, %v", f, ok)
	}
	if _, ok := ParseNumber("abc"); ok {
		t.Error("ParseNumber(\"abc\") должен вернуть false")
	}
}

func TestFieldsKey(t *testing.T) {
	single := FieldsKey("id_port")
	if got := single(Record{"id_port": float64(5)}); got != "5" {
		t.Errorf("одиночный ключ = %q", got)
	}
	if got := single(Record{"id_port": nil}); got != "" {
		t.Errorf("nil-ключ должен давать пустую строку, получили %q", got)
	}

	composite := FieldsKey("id_order", "id_product")
	got := composite(Record{"id_order": float64(3), "id_product": float64(11), "quantity": float64(2)})
	if got != "3_11" {
		t.Errorf("составной ключ = %q, хотели 3_11", got)
	}
	if got := composite(Record{"id_order": float64(3)}); got != "" {
		t.Errorf("неполный составной ключ = %q, хотели пустой", got)
	}
}

func TestCartEntryFromProduct(t *testing.T) {
	p := Record{"id_product": float64(9), "name": "Cement", "price": "12.50", "weight": float64(40)}
	e, err := CartEntryFromProduct(p, 2)
	if err != nil {
		t.Fatalf("CartEntryFromProduct: %v", err)
	}
	if e.IDProduct != 9 || e.Price != 12.5 || e.Weight != 40 || e.Quantity != 2 {
		t.Errorf("неожиданная позиция: %+v", e)
	}
	if e.Subtotal() != 25 {
		t.Errorf("Subtotal = %v, хотели 25", e.Subtotal())
	}

	if _, err := CartEntryFromProduct(Record{"name": "x"}, 1); err == nil {
		t.Error("ожидали ошибку для продукта без id_product")
	}
}
