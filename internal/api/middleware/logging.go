// Пакет middleware: HTTP middleware консоли.
// logging.go: журнал запросов консоли через slog.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// responseWriter запоминает статус и число записанных байт для журнала и метрик.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

type traceKey struct{}

// requestTrace: сведения, которые внутренние middleware сообщают журналу
// уже после того, как запрос прошёл RequestLogger.
type requestTrace struct {
	sessionID string
}

// noteSession записывает идентификатор сессии в трассу запроса, если она есть.
func noteSession(ctx context.Context, id string) {
	if tr, ok := ctx.Value(traceKey{}).(*requestTrace); ok {
		tr.sessionID = id
	}
}

// servicePath: служебные пути (health и сбор метрик), журналируются на DEBUG.
func servicePath(path string) bool {
	return path == "/metrics" || strings.HasPrefix(path, "/health/")
}

// requestLevel выбирает уровень записи: 5xx ERROR, 4xx WARN,
// успешные служебные запросы DEBUG, остальное INFO.
func requestLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case servicePath(path):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// RequestLogger пишет одну запись на запрос: метод, шаблон маршрута chi,
// статус, длительность и сессию консоли, если запрос её получил.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)
			tr := &requestTrace{}

			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), traceKey{}, tr)))

			level := requestLevel(r.URL.Path, wrapped.statusCode)
			if !logger.Enabled(r.Context(), level) {
				return
			}
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routePattern(r)),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
			}
			if tr.sessionID != "" {
				attrs = append(attrs, slog.String("session_id", tr.sessionID))
			}
			logger.LogAttrs(r.Context(), level, "Запрос консоли", attrs...)
		})
	}
}
