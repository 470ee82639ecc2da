package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/bigkaa/portline/console/internal/domain/apperr"
	"github.com/bigkaa/portline/console/internal/domain/model"
	"github.com/bigkaa/portline/console/internal/session"
)

// testToken: JWT без exp (подпись не проверяется).
const testToken = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiJrYXRlIn0.c2ln"

// fakeBackend: бэкенд в памяти с управляемой ролью и журналом вызовов.
type fakeBackend struct {
	mu       sync.Mutex
	role     string
	idClient int64
	data     map[string][]model.Record
	calls    map[string]int
	created  []string
	nextID   int64
	failOn   string
}

func newFakeBackend(role string) *fakeBackend {
	return &fakeBackend{
		role:     role,
		idClient: 7,
		data:     make(map[string][]model.Record),
		calls:    make(map[string]int),
		nextID:   100,
	}
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) hit(op string) error {
	f.calls[op]++
	if f.failOn == op {
		return apperr.FromStatus(500, "сбой "+op)
	}
	return nil
}

func (f *fakeBackend) Me(_ context.Context, _ string) (*model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("me"); err != nil {
		return nil, err
	}
	return &model.Identity{IDClient: f.idClient, Role: f.role}, nil
}

func (f *fakeBackend) Login(_ context.Context, creds model.Credentials) (*model.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("login"); err != nil {
		return nil, err
	}
	if creds.Password != "secret" {
		return nil, apperr.FromStatus(401, "Incorrect username or password")
	}
	return &model.LoginResult{AccessToken: testToken, Role: f.role}, nil
}

func (f *fakeBackend) Register(_ context.Context, reg model.Registration) (model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("register"); err != nil {
		return nil, err
	}
	return model.Record{"id_client": float64(55), "logon_name": reg.LogonName, "password": "hash", "role": "CLIENT"}, nil
}

func (f *fakeBackend) List(_ context.Context, _ string, resource string) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("list:" + resource); err != nil {
		return nil, err
	}
	out := make([]model.Record, len(f.data[resource]))
	copy(out, f.data[resource])
	return out, nil
}

func (f *fakeBackend) ListRelated(_ context.Context, _ string, resource, parent, parentID string) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("related:" + resource + "/" + parent); err != nil {
		return nil, err
	}
	out := []model.Record{}
	for _, r := range f.data[resource] {
		if r.String("id_"+parent) == parentID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (f *fakeBackend) Get(_ context.Context, _ string, resource, id string) (model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("get:" + resource); err != nil {
		return nil, err
	}
	for _, r := range f.data[resource] {
		if model.FieldsKey(idField(resource))(r) == id {
			return r.Clone(), nil
		}
	}
	return nil, apperr.FromStatus(404, "Not found")
}

func (f *fakeBackend) Create(_ context.Context, _ string, resource string, body model.Record) (model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("create:" + resource); err != nil {
		return nil, err
	}
	rec := body.Clone()
	if resource != "orders_products" {
		f.nextID++
		rec[idField(resource)] = float64(f.nextID)
	}
	f.data[resource] = append(f.data[resource], rec)
	f.created = append(f.created, resource)
	return rec, nil
}

func (f *fakeBackend) Update(_ context.Context, _ string, resource, id string, body model.Record) (model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("update:" + resource); err != nil {
		return nil, err
	}
	if resource == "ships" {
		// Бэкенд кораблей отвечает подтверждением, а не записью.
		return model.Record{"message": "Ship updated successfully"}, nil
	}
	rec := body.Clone()
	rec[idField(resource)] = id
	return rec, nil
}

func (f *fakeBackend) Delete(_ context.Context, _ string, resource, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("delete:" + resource); err != nil {
		return err
	}
	key := model.FieldsKey(idField(resource))
	for i, r := range f.data[resource] {
		if key(r) == id {
			f.data[resource] = append(f.data[resource][:i], f.data[resource][i+1:]...)
			return nil
		}
	}
	return apperr.FromStatus(404, "Not found")
}

func idField(resource string) string {
	switch resource {
	case "ships":
		return "id_ship"
	case "ports":
		return "id_port"
	case "orders":
		return "id_order"
	case "products":
		return "id_product"
	case "clients":
		return "id_client"
	default:
		return fmt.Sprintf("id_%s", resource)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSession создаёт сессию с сохранённым токеном.
func newTestSession(t *testing.T, backend session.Backend) *session.Session {
	t.Helper()
	store := session.NewMemoryStore()
	if err := store.Set(context.Background(), session.KeyToken, testToken); err != nil {
		t.Fatal(err)
	}
	return session.New(uuid.NewString(), store, backend, testLogger())
}
