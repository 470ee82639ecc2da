// Пакет handlers: HTTP-обработчики консоли.
// Обработчики разбирают запрос, вызывают сервисный слой и переводят
// доменные ошибки в ответы единого формата.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/portline/console/internal/api/errors"
	"github.com/bigkaa/portline/console/internal/api/middleware"
	"github.com/bigkaa/portline/console/internal/domain/apperr"
	"github.com/bigkaa/portline/console/internal/session"
)

// maxBodyBytes: максимальный размер тела запроса.
const maxBodyBytes = 1 << 20

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса. Некорректный JSON даёт ValidationFailed.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperr.NewValidation("body", "не удалось прочитать тело запроса")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.NewValidation("body", fmt.Sprintf("некорректный JSON: %v", err))
	}
	return nil
}

// currentSession возвращает сессию запроса. Отсутствие сессии означает
// ошибку сборки маршрутов (Attach не подключён).
func currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		apierrors.InternalError(w, "сессия не привязана к запросу")
		return nil, false
	}
	return sess, true
}

// queryInt разбирает целочисленный query-параметр; пустое значение даёт 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.NewValidation(name, "ожидается целое число")
	}
	return v, nil
}

// pathInt64 разбирает целочисленный параметр пути.
func pathInt64(name, raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, apperr.NewValidation(name, "ожидается положительное целое число")
	}
	return v, nil
}
