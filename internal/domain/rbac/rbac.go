// Пакет rbac описывает роли пользователей консоли и наборы допустимых ролей.
// Роль определяется бэкендом (GET /api/clients/me), консоль её не вычисляет,
// а только сверяет с набором, разрешённым для операции.
package rbac

import (
	"sort"
	"strings"
)

// Role: роль пользователя, как её возвращает бэкенд.
type Role string

// Роли в порядке возрастания привилегий.
const (
	RoleClient   Role = "CLIENT"
	RoleEmployee Role = "EMPLOYEE"
	RoleAdmin    Role = "ADMIN"
)

// roleWeight: вес роли для сравнения и упорядочивания.
// GUEST бэкенда сюда намеренно не входит: гость не считается вошедшим.
var roleWeight = map[Role]int{
	RoleClient:   1,
	RoleEmployee: 2,
	RoleAdmin:    3,
}

// ParseRole приводит строку к Role (регистр не важен).
// Возвращает false, если роль неизвестна.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !IsValidRole(r) {
		return "", false
	}
	return r, true
}

// IsValidRole проверяет, является ли значение допустимой ролью.
func IsValidRole(r Role) bool {
	_, ok := roleWeight[r]
	return ok
}

// HighestRole возвращает максимальную роль из набора.
// Если набор пуст, возвращает пустую строку.
func HighestRole(roles []Role) Role {
	var highest Role
	for _, r := range roles {
		if roleWeight[r] > roleWeight[highest] {
			highest = r
		}
	}
	return highest
}

// Set: набор ролей, которым разрешена операция.
type Set map[Role]struct{}

// NewSet строит набор из перечисленных ролей. Неизвестные роли пропускаются.
func NewSet(roles ...Role) Set {
	s := make(Set, len(roles))
	for _, r := range roles {
		if IsValidRole(r) {
			s[r] = struct{}{}
		}
	}
	return s
}

// Предопределённые наборы.
var (
	// AnyRole: любой вошедший пользователь.
	AnyRole = NewSet(RoleClient, RoleEmployee, RoleAdmin)
	// Staff: сотрудники и администраторы.
	Staff = NewSet(RoleEmployee, RoleAdmin)
	// AdminOnly: только администраторы.
	AdminOnly = NewSet(RoleAdmin)
)

// Allows проверяет, входит ли роль в набор.
func (s Set) Allows(r Role) bool {
	_, ok := s[r]
	return ok
}

// Roles возвращает роли набора по возрастанию привилегий.
func (s Set) Roles() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return roleWeight[out[i]] < roleWeight[out[j]]
	})
	return out
}

// String возвращает роли через запятую, например "EMPLOYEE,ADMIN".
func (s Set) String() string {
	roles := s.Roles()
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}
