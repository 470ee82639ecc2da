// Пакет errors: ответы с ошибками консоли в едином формате
// {"error": {"code": "...", "message": "..."}}.
// Доменные ошибки переводятся в HTTP-статус и код через FromDomain.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/bigkaa/portline/console/internal/domain/apperr"
)

// Коды ошибок.
const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeAccessDenied       = "ACCESS_DENIED"
	CodeNotFound           = "NOT_FOUND"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeBackendUnreachable = "BACKEND_UNREACHABLE"
	CodeBackendError       = "BACKEND_ERROR"
	CodeInternalError      = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// WriteError записывает ответ ошибки.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	write(w, statusCode, errorDetail{Code: code, Message: message})
}

func write(w http.ResponseWriter, statusCode int, detail errorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}

// ValidationFailed: 400 с нарушениями по полям.
func ValidationFailed(w http.ResponseWriter, message string, fields map[string]string) {
	write(w, http.StatusBadRequest, errorDetail{Code: CodeValidationFailed, Message: message, Fields: fields})
}

// InternalError: 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// FromDomain возвращает HTTP-статус и код для доменной ошибки.
func FromDomain(err error) (status int, code string) {
	switch {
	case stderrors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized, CodeUnauthenticated
	case stderrors.Is(err, apperr.ErrAccessDenied):
		return http.StatusForbidden, CodeAccessDenied
	case stderrors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case stderrors.Is(err, apperr.ErrValidationFailed):
		return http.StatusBadRequest, CodeValidationFailed
	case stderrors.Is(err, apperr.ErrBackendUnreachable):
		return http.StatusBadGateway, CodeBackendUnreachable
	case stderrors.Is(err, apperr.ErrUnexpectedBackend):
		return http.StatusBadGateway, CodeBackendError
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

// WriteDomainError записывает ответ для доменной ошибки.
// Текст внутренних ошибок наружу не отдаётся.
func WriteDomainError(w http.ResponseWriter, err error) {
	status, code := FromDomain(err)
	detail := errorDetail{Code: code, Message: err.Error()}
	var verr *apperr.ValidationError
	if stderrors.As(err, &verr) {
		detail.Fields = verr.Fields
	}
	if status == http.StatusInternalServerError {
		detail.Message = "внутренняя ошибка консоли"
	}
	write(w, status, detail)
}
