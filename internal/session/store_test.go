package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStores(t *testing.T) {
	dir := t.TempDir()
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(dir, "nested", "console.json")),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := store.Get(ctx, KeyToken); err != nil || ok {
				t.Fatalf("пустое хранилище: ok=%v err=%v", ok, err)
			}
			if err := store.Set(ctx, KeyToken, "tok"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := store.Set(ctx, KeyCart, `[{"id_product":1}]`); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if v, ok, err := store.Get(ctx, KeyToken); err != nil || !ok || v != "tok" {
				t.Fatalf("Get = %q, %v, %v", v, ok, err)
			}

			if err := store.Delete(ctx, KeyToken, KeyRole); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, ok, _ := store.Get(ctx, KeyToken); ok {
				t.Error("токен должен быть удалён")
			}
			if _, ok, _ := store.Get(ctx, KeyCart); !ok {
				t.Error("корзина не должна удаляться вместе с токеном")
			}
		})
	}
}

func TestFileStore_PersistsBetweenInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.json")
	ctx := context.Background()

	if err := NewFileStore(path).Set(ctx, KeyRole, "ADMIN"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := NewFileStore(path).Get(ctx, KeyRole)
	if err != nil || !ok || v != "ADMIN" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Errorf("права файла %o, хотели 600", perm)
	}
}

func TestFileStore_Corrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewFileStore(path).Get(context.Background(), KeyToken); err == nil {
		t.Error("ожидали ошибку разбора повреждённого файла")
	}
}
