package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/portline/console/internal/api/handlers"
	"github.com/bigkaa/portline/console/internal/api/middleware"
	"github.com/bigkaa/portline/console/internal/config"
	"github.com/bigkaa/portline/console/internal/domain/apperr"
	"github.com/bigkaa/portline/console/internal/domain/model"
	"github.com/bigkaa/portline/console/internal/resource"
	"github.com/bigkaa/portline/console/internal/service"
	"github.com/bigkaa/portline/console/internal/session"
	"github.com/bigkaa/portline/console/internal/validation"
)

// jwtNoExp: JWT без exp (подпись не проверяется).
const jwtNoExp = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiJrYXRlIn0.c2ln"

// memBackend: REST-бэкенд в памяти.
type memBackend struct {
	mu     sync.Mutex
	role   string
	data   map[string][]model.Record
	nextID int64
}

func newMemBackend() *memBackend {
	return &memBackend{
		role: "EMPLOYEE",
		data: map[string][]model.Record{
			"ports": {
				{"id_port": float64(1), "name": "Riga", "location": "Daugava", "country": "Latvia"},
				{"id_port": float64(2), "name": "Gdansk", "location": "Motlawa", "country": "Poland"},
			},
			"products": {
				{"id_product": float64(5), "name": "Cement", "price": "12.50", "weight": float64(40), "id_port": float64(1)},
				{"id_product": float64(6), "name": "Timber", "price": "80", "weight": float64(500), "id_port": float64(2)},
			},
			"clients": {
				{"id_client": float64(7), "logon_name": "ann1", "name": "Ann Lee", "email": "ann@portline.lan"},
			},
		},
		nextID: 100,
	}
}

func (b *memBackend) keyFor(name string) model.KeyFunc {
	desc, _ := resource.Lookup(name)
	return desc.KeyFunc()
}

func (b *memBackend) Me(context.Context, string) (*model.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &model.Identity{IDClient: 7, Role: b.role}, nil
}

func (b *memBackend) Login(_ context.Context, creds model.Credentials) (*model.LoginResult, error) {
	if creds.Password != "secret" {
		return nil, apperr.FromStatus(http.StatusUnauthorized, "Incorrect username or password")
	}
	return &model.LoginResult{AccessToken: jwtNoExp, Role: b.role}, nil
}

func (b *memBackend) Register(_ context.Context, reg model.Registration) (model.Record, error) {
	return model.Record{"id_client": float64(55), "logon_name": reg.LogonName, "password": "hash"}, nil
}

func (b *memBackend) List(_ context.Context, _ string, name string) ([]model.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Record, 0, len(b.data[name]))
	for _, r := range b.data[name] {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (b *memBackend) ListRelated(_ context.Context, _ string, name, parent, parentID string) ([]model.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []model.Record{}
	for _, r := range b.data[name] {
		if r.String("id_"+parent) == parentID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (b *memBackend) Get(_ context.Context, _ string, name, id string) (model.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := b.keyFor(name)
	for _, r := range b.data[name] {
		if key(r) == id {
			return r.Clone(), nil
		}
	}
	return nil, apperr.FromStatus(http.StatusNotFound, "Not found")
}

func (b *memBackend) Create(_ context.Context, _ string, name string, body model.Record) (model.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := body.Clone()
	desc, _ := resource.Lookup(name)
	if len(desc.Key) == 1 {
		b.nextID++
		rec[desc.Key[0]] = float64(b.nextID)
	}
	b.data[name] = append(b.data[name], rec)
	return rec, nil
}

func (b *memBackend) Update(_ context.Context, _ string, name, id string, body model.Record) (model.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := b.keyFor(name)
	for i, r := range b.data[name] {
		if key(r) == id {
			merged := r.Clone()
			for k, v := range body {
				merged[k] = v
			}
			b.data[name][i] = merged
			return merged.Clone(), nil
		}
	}
	return nil, apperr.FromStatus(http.StatusNotFound, "Not found")
}

func (b *memBackend) Delete(_ context.Context, _ string, name, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := b.keyFor(name)
	for i, r := range b.data[name] {
		if key(r) == id {
			b.data[name] = append(b.data[name][:i], b.data[name][i+1:]...)
			return nil
		}
	}
	return apperr.FromStatus(http.StatusNotFound, "Not found")
}

func (b *memBackend) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data[name])
}

type okChecker struct{}

func (okChecker) CheckReady() (string, string) { return "ok", "" }

func newTestServer(t *testing.T, backend *memBackend) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{Port: 0, ShutdownTimeout: time.Second}
	v := validation.New()

	carts := service.NewCartService(backend, v, logger)
	collections := service.NewCollectionService(backend, carts.ProductIDs, 20, 100, 100, time.Hour, logger)
	auth := service.NewAuthService(backend, v, logger)
	auth.OnLogout(collections.DropSession)
	profiles := service.NewProfileService(backend, v, logger)
	profiles.OnUpdate(func(sessionID string, rec model.Record) {
		collections.Refresh(sessionID, "clients", rec)
	})
	carts.OnCheckout(func(sessionID string, order model.Record) {
		collections.Absorb(sessionID, "orders", order)
	})

	stores := func(string) session.Store { return session.NewMemoryStore() }
	registry := session.NewRegistry(10, time.Hour, stores, backend, logger)
	t.Cleanup(registry.Close)

	sessions := middleware.NewSessions(registry, false, time.Hour, logger)
	srv := New(cfg, logger, Handlers{
		Health:  handlers.NewHealthHandler(map[string]handlers.ReadinessChecker{"backend": okChecker{}}),
		Auth:    handlers.NewAuthHandler(auth, sessions, logger),
		Views:   handlers.NewViewsHandler(collections, logger),
		Profile: handlers.NewProfileHandler(profiles, logger),
		Cart:    handlers.NewCartHandler(carts, logger),
	}, sessions)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func do(t *testing.T, c *http.Client, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func names(page map[string]any) []string {
	items, _ := page["items"].([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		rec, _ := it.(map[string]any)
		name, _ := rec["name"].(string)
		out = append(out, name)
	}
	return out
}

func login(t *testing.T, c *http.Client, base string) {
	t.Helper()
	resp, body := do(t, c, http.MethodPost, base+"/console/login", `{"logon_name":"kate","password":"secret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "EMPLOYEE", body["role"])
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, newMemBackend())
	c := newClient(t)

	resp, body := do(t, c, http.MethodGet, ts.URL+"/health/live", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Empty(t, resp.Cookies(), "health не должен создавать сессию")

	resp, body = do(t, c, http.MethodGet, ts.URL+"/health/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = do(t, c, http.MethodGet, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_GateAndLogin(t *testing.T) {
	ts := newTestServer(t, newMemBackend())
	c := newClient(t)

	resp, _ := do(t, c, http.MethodGet, ts.URL+"/console/views/ports", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, middleware.LoginPath, resp.Header.Get("Location"))

	resp, body := do(t, c, http.MethodGet, ts.URL+"/console/login", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["logged_in"])

	resp, body = do(t, c, http.MethodPost, ts.URL+"/console/login", `{"logon_name":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	resp, body = do(t, c, http.MethodPost, ts.URL+"/console/login", `{"logon_name":"kate","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", errorCode(body))

	login(t, c, ts.URL)

	resp, body = do(t, c, http.MethodGet, ts.URL+"/console/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["has_token"])
	assert.Equal(t, "EMPLOYEE", body["role"])

	resp, _ = do(t, c, http.MethodPost, ts.URL+"/console/logout", "")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, _ = do(t, c, http.MethodGet, ts.URL+"/console/cart", "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestServer_LoginIssuesNewSessionID(t *testing.T) {
	ts := newTestServer(t, newMemBackend())
	victim := newClient(t)

	resp, _ := do(t, victim, http.MethodGet, ts.URL+"/console/login", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	before := sessionCookieValue(t, resp)

	// Чужой клиент знает идентификатор сессии до входа.
	attacker := newClient(t)
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	attacker.Jar.SetCookies(u, []*http.Cookie{{Name: middleware.SessionCookieName, Value: before, Path: "/"}})

	resp, _ = do(t, victim, http.MethodPost, ts.URL+"/console/login", `{"logon_name":"kate","password":"secret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	after := sessionCookieValue(t, resp)
	assert.NotEqual(t, before, after, "после входа идентификатор сессии должен смениться")

	resp, body := do(t, victim, http.MethodGet, ts.URL+"/console/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["has_token"])

	resp, body = do(t, attacker, http.MethodGet, ts.URL+"/console/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["has_token"])
	assert.NotEqual(t, after, body["id"])

	resp, _ = do(t, attacker, http.MethodGet, ts.URL+"/console/views/ports", "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestServer_PlantedCookieNotAdopted(t *testing.T) {
	ts := newTestServer(t, newMemBackend())
	c := newClient(t)
	const planted = "11111111-2222-4333-8444-555555555555"
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	c.Jar.SetCookies(u, []*http.Cookie{{Name: middleware.SessionCookieName, Value: planted, Path: "/"}})

	resp, body := do(t, c, http.MethodGet, ts.URL+"/console/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, planted, body["id"])
	assert.NotEqual(t, planted, sessionCookieValue(t, resp))
}

// sessionCookieValue возвращает последнее значение cookie сессии в ответе.
func sessionCookieValue(t *testing.T, resp *http.Response) string {
	t.Helper()
	var value string
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			value = c.Value
		}
	}
	require.NotEmpty(t, value, "cookie сессии не установлена")
	return value
}

func TestServer_Register(t *testing.T) {
	ts := newTestServer(t, newMemBackend())
	c := newClient(t)

	resp, body := do(t, c, http.MethodPost, ts.URL+"/console/register", `{"logon_name":"kate"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	resp, body = do(t, c, http.MethodPost, ts.URL+"/console/register",
		`{"logon_name":"kate","password":"secret","name":"Kate","email":"kate@example.com","address":"Riga","telephone_number":"37120000000"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "kate", body["logon_name"])
	assert.NotContains(t, body, "password")
}

func TestServer_Views(t *testing.T) {
	backend := newMemBackend()
	ts := newTestServer(t, backend)
	c := newClient(t)
	login(t, c, ts.URL)

	resp, page := do(t, c, http.MethodGet, ts.URL+"/console/views/ports?sort=name", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Gdansk", "Riga"}, names(page))
	assert.EqualValues(t, 2, page["total"])

	resp, body := do(t, c, http.MethodGet, ts.URL+"/console/views/ports?sort=tonnage", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	resp, body = do(t, c, http.MethodGet, ts.URL+"/console/views/warehouses", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	resp, created := do(t, c, http.MethodPost, ts.URL+"/console/views/ports",
		`{"name":"Genoa","location":"Liguria","country":"Italy"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 101, created["id_port"])

	resp, page = do(t, c, http.MethodGet, ts.URL+"/console/views/ports?sort=name", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Gdansk", "Genoa", "Riga"}, names(page))

	resp, page = do(t, c, http.MethodGet, ts.URL+"/console/views/ports?q=g&column=name", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.ElementsMatch(t, []string{"Gdansk", "Genoa", "Riga"}, names(page))

	resp, updated := do(t, c, http.MethodPut, ts.URL+"/console/views/ports/1", `{"name":"Riga Freeport"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Riga Freeport", updated["name"])

	resp, got := do(t, c, http.MethodGet, ts.URL+"/console/views/ports/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Riga Freeport", got["name"])

	resp, _ = do(t, c, http.MethodDelete, ts.URL+"/console/views/ports/2", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 2, backend.count("ports"))

	resp, page = do(t, c, http.MethodGet, ts.URL+"/console/views/ports?sort=name", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Genoa", "Riga Freeport"}, names(page))

	resp, page = do(t, c, http.MethodPost, ts.URL+"/console/views/ports/reload", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, page["total"])
}

func TestServer_RelatedViews(t *testing.T) {
	backend := newMemBackend()
	ts := newTestServer(t, backend)
	c := newClient(t)
	login(t, c, ts.URL)

	resp, page := do(t, c, http.MethodGet, ts.URL+"/console/views/products/by/port/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Cement"}, names(page))

	resp, body := do(t, c, http.MethodGet, ts.URL+"/console/views/products/by/client/7", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	resp, body = do(t, c, http.MethodGet, ts.URL+"/console/views/products/by/port/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	backend.mu.Lock()
	backend.data["products"] = append(backend.data["products"],
		model.Record{"id_product": float64(9), "name": "Steel", "price": "30", "weight": float64(90), "id_port": float64(1)})
	backend.mu.Unlock()

	resp, page = do(t, c, http.MethodGet, ts.URL+"/console/views/products/by/port/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Cement"}, names(page), "снимок берётся из кэша")

	resp, page = do(t, c, http.MethodPost, ts.URL+"/console/views/products/by/port/1/reload", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.ElementsMatch(t, []string{"Cement", "Steel"}, names(page))
}

func TestServer_ProfileUpdate(t *testing.T) {
	backend := newMemBackend()
	ts := newTestServer(t, backend)
	c := newClient(t)

	resp, _ := do(t, c, http.MethodPut, ts.URL+"/console/profile", `{}`)
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	login(t, c, ts.URL)

	resp, body := do(t, c, http.MethodPut, ts.URL+"/console/profile",
		`{"logon_name":"ann1","password":"short","name":"Ann Lee","email":"ann@portline.lan","address":"Riga, Daugava 1","telephone_number":"37120001111"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	resp, rec := do(t, c, http.MethodPut, ts.URL+"/console/profile",
		`{"logon_name":"ann1","password":"longenough","name":"Ann Ozola","email":"ann@portline.lan","address":"Riga, Daugava 1","telephone_number":"37120001111"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ann Ozola", rec["name"])
	assert.NotContains(t, rec, "password")

	resp, got := do(t, c, http.MethodGet, ts.URL+"/console/views/clients/7", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ann Ozola", got["name"])
}

func TestServer_RoleDenied(t *testing.T) {
	backend := newMemBackend()
	backend.role = "CLIENT"
	ts := newTestServer(t, backend)
	c := newClient(t)

	resp, body := do(t, c, http.MethodPost, ts.URL+"/console/login", `{"logon_name":"ann","password":"secret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "CLIENT", body["role"])

	resp, body = do(t, c, http.MethodGet, ts.URL+"/console/views/ports", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "ACCESS_DENIED", errorCode(body))

	resp, _ = do(t, c, http.MethodGet, ts.URL+"/console/views/products", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_CartAndCheckout(t *testing.T) {
	backend := newMemBackend()
	ts := newTestServer(t, backend)
	c := newClient(t)
	login(t, c, ts.URL)

	resp, body := do(t, c, http.MethodPost, ts.URL+"/console/cart/checkout", `{"id_port":1}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	resp, view := do(t, c, http.MethodPost, ts.URL+"/console/cart/items", `{"id_product":5,"quantity":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	totals, _ := view["totals"].(map[string]any)
	assert.EqualValues(t, 25, totals["price"])
	assert.EqualValues(t, 80, totals["weight"])

	resp, page := do(t, c, http.MethodGet, ts.URL+"/console/views/products", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Timber"}, names(page), "продукт из корзины скрыт в каталоге")

	resp, view = do(t, c, http.MethodPut, ts.URL+"/console/cart/items/5", `{"quantity":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	totals, _ = view["totals"].(map[string]any)
	assert.EqualValues(t, 37.5, totals["price"])

	resp, body = do(t, c, http.MethodPut, ts.URL+"/console/cart/items/5", `{"quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	resp, body = do(t, c, http.MethodPost, ts.URL+"/console/cart/checkout", `{"id_port":1}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	order, _ := body["order"].(map[string]any)
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, 1, backend.count("orders"))
	assert.Equal(t, 1, backend.count("orders_products"))

	resp, view = do(t, c, http.MethodGet, ts.URL+"/console/cart", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, view["items"])

	resp, _ = do(t, c, http.MethodPost, ts.URL+"/console/cart/items", `{"id_product":6}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, c, http.MethodDelete, ts.URL+"/console/cart/items/6", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, c, http.MethodDelete, ts.URL+"/console/cart", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
