// Пакет apiclient: HTTP-клиент REST-бэкенда Portline на go-resty.
// Поддерживает TLS с кастомным CA (CONSOLE_BACKEND_CA_CERT_PATH).
// Операции: коллекции (/api/<resource>), подколлекции по родителю
// (/api/<resource>/<parent>/<id>), профиль (/api/clients/me),
// вход (/api/clients/login) и регистрация (POST /api/clients).
// Повторы запросов отключены: любая ошибка окончательна для действия.
package apiclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/portline/console/internal/domain/apperr"
	"github.com/bigkaa/portline/console/internal/domain/model"
)

// Prometheus-метрики обращений к бэкенду.
var (
	backendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_backend_requests_total",
		Help: "Количество запросов к REST-бэкенду по операции и исходу.",
	}, []string{"operation", "outcome"})
	backendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "console_backend_request_duration_seconds",
		Help:    "Длительность запросов к REST-бэкенду.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// Client: клиент REST-бэкенда. Токен передаётся в каждый вызов,
// поэтому один клиент обслуживает все сессии.
type Client struct {
	rc     *resty.Client
	logger *slog.Logger
}

// New создаёт клиент бэкенда.
// caCertPath: путь к CA-сертификату (пустая строка: системный пул).
func New(baseURL string, timeout time.Duration, caCertPath string, logger *slog.Logger) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("некорректный URL бэкенда %q: %w", baseURL, err)
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата бэкенда: %w", err)
		}
		rc.SetTLSClientConfig(tlsConfig)
		logger.Info("CA-сертификат бэкенда добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		rc:     rc,
		logger: logger.With(slog.String("component", "backend_client")),
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("CA-сертификат не содержит PEM-блоков")
	}

	return &tls.Config{
		RootCAs:    caCertPool,
		MinVersion: tls.VersionTLS12,
	}, nil
}

// List загружает коллекцию целиком: GET /api/<resource>.
func (c *Client) List(ctx context.Context, token, resource string) ([]model.Record, error) {
	var out []model.Record
	resp, err := c.request(ctx, token).SetResult(&out).Get(collectionPath(resource))
	if err := c.check("list_"+resource, resp, err); err != nil {
		return nil, fmt.Errorf("загрузка %s: %w", resource, err)
	}
	if out == nil {
		out = []model.Record{}
	}
	return out, nil
}

// ListRelated загружает подколлекцию по родителю: GET /api/<resource>/<parent>/<id>.
// Бэкенд отвечает 404 на пустую подколлекцию, это пустой список.
func (c *Client) ListRelated(ctx context.Context, token, resource, parent, parentID string) ([]model.Record, error) {
	var out []model.Record
	resp, err := c.request(ctx, token).SetResult(&out).Get(relatedPath(resource, parent, parentID))
	if err := c.check("list_"+resource+"_by_"+parent, resp, err); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return []model.Record{}, nil
		}
		return nil, fmt.Errorf("загрузка %s по %s %s: %w", resource, parent, parentID, err)
	}
	if out == nil {
		out = []model.Record{}
	}
	return out, nil
}

// Get загружает одну запись: GET /api/<resource>/<id>.
func (c *Client) Get(ctx context.Context, token, resource, id string) (model.Record, error) {
	var out model.Record
	resp, err := c.request(ctx, token).SetResult(&out).Get(itemPath(resource, id))
	if err := c.check("get_"+resource, resp, err); err != nil {
		return nil, fmt.Errorf("загрузка %s/%s: %w", resource, id, err)
	}
	return out, nil
}

// Create создаёт запись и возвращает каноническую версию от бэкенда.
func (c *Client) Create(ctx context.Context, token, resource string, body model.Record) (model.Record, error) {
	var out model.Record
	resp, err := c.request(ctx, token).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		Post(collectionPath(resource))
	if err := c.check("create_"+resource, resp, err); err != nil {
		return nil, fmt.Errorf("создание %s: %w", resource, err)
	}
	return out, nil
}

// Update обновляет запись и возвращает каноническую версию от бэкенда.
func (c *Client) Update(ctx context.Context, token, resource, id string, body model.Record) (model.Record, error) {
	var out model.Record
	resp, err := c.request(ctx, token).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		Put(itemPath(resource, id))
	if err := c.check("update_"+resource, resp, err); err != nil {
		return nil, fmt.Errorf("обновление %s/%s: %w", resource, id, err)
	}
	return out, nil
}

// Delete удаляет запись. Тело ответа (или 204) не используется.
func (c *Client) Delete(ctx context.Context, token, resource, id string) error {
	resp, err := c.request(ctx, token).Delete(itemPath(resource, id))
	if err := c.check("delete_"+resource, resp, err); err != nil {
		return fmt.Errorf("удаление %s/%s: %w", resource, id, err)
	}
	return nil
}

// Me возвращает профиль владельца токена: GET /api/clients/me.
func (c *Client) Me(ctx context.Context, token string) (*model.Identity, error) {
	var out model.Identity
	resp, err := c.request(ctx, token).SetResult(&out).Get("/api/clients/me")
	if err := c.check("me", resp, err); err != nil {
		return nil, fmt.Errorf("определение роли: %w", err)
	}
	return &out, nil
}

// Login выполняет вход: POST /api/clients/login.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (*model.LoginResult, error) {
	var out model.LoginResult
	resp, err := c.request(ctx, "").
		SetHeader("Content-Type", "application/json").
		SetBody(creds).
		SetResult(&out).
		Post("/api/clients/login")
	if err := c.check("login", resp, err); err != nil {
		return nil, fmt.Errorf("вход %s: %w", creds.LogonName, err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("вход %s: %w", creds.LogonName,
			&apperr.BackendError{Kind: apperr.ErrUnexpectedBackend, Status: resp.StatusCode(), Message: "в ответе нет access_token"})
	}
	return &out, nil
}

// Register регистрирует клиента: POST /api/clients.
func (c *Client) Register(ctx context.Context, reg model.Registration) (model.Record, error) {
	var out model.Record
	resp, err := c.request(ctx, "").
		SetHeader("Content-Type", "application/json").
		SetBody(reg).
		SetResult(&out).
		Post("/api/clients")
	if err := c.check("register", resp, err); err != nil {
		return nil, fmt.Errorf("регистрация %s: %w", reg.LogonName, err)
	}
	return out, nil
}

// request готовит запрос с контекстом и bearer-токеном.
func (c *Client) request(ctx context.Context, token string) *resty.Request {
	req := c.rc.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	return req
}

// check переводит результат resty в ошибку таксономии и пишет метрики.
func (c *Client) check(operation string, resp *resty.Response, err error) error {
	if resp != nil {
		backendRequestDuration.WithLabelValues(operation).Observe(resp.Time().Seconds())
	}

	if err != nil {
		backendRequestsTotal.WithLabelValues(operation, "unreachable").Inc()
		c.logger.Warn("Бэкенд недоступен",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, context.Canceled) {
			return err
		}
		return apperr.Unreachable(err)
	}

	if resp.IsSuccess() {
		backendRequestsTotal.WithLabelValues(operation, "ok").Inc()
		return nil
	}

	backendRequestsTotal.WithLabelValues(operation, fmt.Sprintf("%dxx", resp.StatusCode()/100)).Inc()
	c.logger.Debug("Бэкенд вернул ошибку",
		slog.String("operation", operation),
		slog.Int("status", resp.StatusCode()),
	)
	return apperr.FromStatus(resp.StatusCode(), errorMessage(resp.Body()))
}

// errorMessage извлекает текст ошибки из тела ответа бэкенда.
// Формат бэкенда: {"detail": "..."} или {"detail": [{"msg": "..."}]}.
func errorMessage(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(payload.Detail, &items) == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}

	return truncate(strings.TrimSpace(string(body)), maxMessageBytes)
}

// maxMessageBytes: предел длины текста ошибки, взятого из сырого тела ответа.
const maxMessageBytes = 200

// truncate обрезает s до n байт, не разрывая символ UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func collectionPath(resource string) string {
	return "/api/" + resource
}

func relatedPath(resource, parent, parentID string) string {
	return "/api/" + resource + "/" + url.PathEscape(parent) + "/" + url.PathEscape(parentID)
}

func itemPath(resource, id string) string {
	return "/api/" + resource + "/" + url.PathEscape(id)
}
