// Пакет apperr описывает таксономию ошибок консоли.
// Все ошибки бэкенда и локальной валидации сводятся к шести sentinel-значениям,
// сравнение выполняется через errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrUnauthenticated: нет токена или бэкенд ответил 401.
	ErrUnauthenticated = errors.New("требуется аутентификация")
	// ErrAccessDenied: роль не входит в допустимый набор или бэкенд ответил 403.
	ErrAccessDenied = errors.New("доступ запрещён")
	// ErrNotFound: запись не найдена (404).
	ErrNotFound = errors.New("запись не найдена")
	// ErrValidationFailed: локальная проверка формы, сетевой вызов не выполнялся.
	ErrValidationFailed = errors.New("ошибка валидации")
	// ErrBackendUnreachable: сетевая ошибка при обращении к бэкенду.
	ErrBackendUnreachable = errors.New("бэкенд недоступен")
	// ErrUnexpectedBackend: любой другой не-2xx ответ бэкенда.
	ErrUnexpectedBackend = errors.New("неожиданный ответ бэкенда")
)

// BackendError несёт HTTP-статус и текст ответа бэкенда.
// Kind содержит один из sentinel-ов пакета.
type BackendError struct {
	Kind    error
	Status  int
	Message string
}

// Error реализует интерфейс error.
func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (HTTP %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("%v (HTTP %d): %s", e.Kind, e.Status, e.Message)
}

// Unwrap позволяет errors.Is сопоставлять BackendError с sentinel-ом.
func (e *BackendError) Unwrap() error {
	return e.Kind
}

// KindForStatus возвращает sentinel для HTTP-статуса ответа бэкенда.
// Для 2xx возвращает nil.
func KindForStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return ErrUnauthenticated
	case status == http.StatusForbidden:
		return ErrAccessDenied
	case status == http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrUnexpectedBackend
	}
}

// FromStatus строит BackendError по статусу и тексту ответа.
// Для 2xx возвращает nil.
func FromStatus(status int, message string) error {
	kind := KindForStatus(status)
	if kind == nil {
		return nil
	}
	return &BackendError{Kind: kind, Status: status, Message: message}
}

// Unreachable оборачивает сетевую ошибку в ErrBackendUnreachable.
func Unreachable(err error) error {
	return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
}

// ValidationError перечисляет ошибочные поля формы.
type ValidationError struct {
	// Fields: имя поля -> описание нарушения.
	Fields map[string]string
}

// NewValidation создаёт ошибку валидации для одного поля.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Error реализует интерфейс error. Поля выводятся в алфавитном порядке.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidationFailed.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap позволяет errors.Is(err, ErrValidationFailed).
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
