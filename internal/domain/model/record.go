// Пакет model содержит типы данных консоли: запись коллекции,
// ключ идентичности, позицию корзины и профиль пользователя.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record: запись коллекции в том виде, в каком её вернул бэкенд.
// Схема открытая, значения скалярные: string, число, bool или nil.
type Record map[string]any

// Has проверяет, что поле присутствует и не равно nil.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// String возвращает строковое представление поля.
// Для отсутствующего поля или nil возвращает пустую строку.
func (r Record) String(field string) string {
	return Stringify(r[field])
}

// Float возвращает числовое значение поля.
// Второй результат false, если значение не является числом.
func (r Record) Float(field string) (float64, bool) {
	return Number(r[field])
}

// Int возвращает целое значение поля (дробная часть отбрасывается).
func (r Record) Int(field string) (int64, bool) {
	f, ok := Number(r[field])
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Clone возвращает поверхностную копию записи.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Stringify приводит скалярное значение к строке.
// nil даёт пустую строку, целые float64 выводятся без дробной части.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Number проверяет, что значение числовое, и возвращает его как float64.
// Строки числами не считаются, даже если содержат цифры.
func Number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), !math.IsNaN(float64(x))
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ParseNumber как Number, но дополнительно разбирает строки ("12.50").
// Нужен полям, которые бэкенд отдаёт строкой (DECIMAL).
func ParseNumber(v any) (float64, bool) {
	if f, ok := Number(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// KeyFunc извлекает ключ идентичности записи. Пустой ключ означает,
// что идентичность не определена.
type KeyFunc func(Record) string

// FieldsKey строит KeyFunc из одного или нескольких полей.
// Составной ключ склеивается через "_", как в маршрутах бэкенда
// (/api/orders_products/{id_order}_{id_product}).
func FieldsKey(fields ...string) KeyFunc {
	return func(r Record) string {
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			if !r.Has(f) {
				return ""
			}
			parts = append(parts, r.String(f))
		}
		return strings.Join(parts, "_")
	}
}
