package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bigkaa/portline/console/internal/domain/apperr"
	"github.com/bigkaa/portline/console/internal/domain/rbac"
	"github.com/bigkaa/portline/console/internal/session"
	"github.com/bigkaa/portline/console/internal/validation"
)

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend("EMPLOYEE")
	svc := NewAuthService(fb, validation.New(), testLogger())
	sess := session.New("00000000-0000-0000-0000-000000000002", session.NewMemoryStore(), fb, testLogger())

	if _, err := svc.Login(ctx, sess, validation.LoginForm{LogonName: "kate"}); !errors.Is(err, apperr.ErrValidationFailed) {
		t.Fatalf("пустой пароль: %v", err)
	}
	if fb.count("login") != 0 {
		t.Error("ошибка валидации не должна обращаться к бэкенду")
	}

	if _, err := svc.Login(ctx, sess, validation.LoginForm{LogonName: "kate", Password: "wrong"}); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Errorf("неверный пароль: %v", err)
	}

	role, err := svc.Login(ctx, sess, validation.LoginForm{LogonName: "kate", Password: "secret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if role != rbac.RoleEmployee || !sess.HasToken() {
		t.Errorf("после входа: role=%s has_token=%v", role, sess.HasToken())
	}
}

func TestAuthService_LogoutDropsCaches(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend("ADMIN")
	seedPorts(fb)
	collections := newCollections(fb, nil)
	svc := NewAuthService(fb, validation.New(), testLogger())
	svc.OnLogout(collections.DropSession)
	sess := newTestSession(t, fb)

	if _, err := collections.View(ctx, sess, "ports", ViewQuery{}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Logout(ctx, sess); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := sess.Token(ctx); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Errorf("токен после выхода: %v", err)
	}
	if collections.views.Len() != 0 {
		t.Errorf("кэш коллекций после выхода: %d", collections.views.Len())
	}
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBackend("CLIENT")
	svc := NewAuthService(fb, validation.New(), testLogger())

	bad := validation.RegisterForm{
		LogonName: "kate", Password: "p", Name: "Kate", Email: "not-an-email",
		Address: "Odessa", TelephoneNumber: "12",
	}
	_, err := svc.Register(ctx, bad)
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ожидали ValidationError, получили %v", err)
	}
	if _, ok := verr.Fields["email"]; !ok {
		t.Error("нет нарушения по email")
	}
	if _, ok := verr.Fields["telephone_number"]; !ok {
		t.Error("нет нарушения по telephone_number")
	}

	good := bad
	good.Email = "kate@port.org"
	good.TelephoneNumber = "380501112233"
	rec, err := svc.Register(ctx, good)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if rec.Has("password") {
		t.Error("пароль не должен возвращаться")
	}
}
