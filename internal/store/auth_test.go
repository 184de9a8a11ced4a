package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openAuthTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "auth-store.db")
	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return st, context.Background()
}

func TestAuthUserLifecycle(t *testing.T) {
	st, ctx := openAuthTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	count, err := st.CountEnabledUsers(ctx)
	if err != nil {
		t.Fatalf("count enabled users: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	created := &AuthUser{Username: "Admin", PasswordHash: "hash-1", Role: "admin", CreatedAt: now}
	if err := st.CreateUser(ctx, created); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.Username != "admin" {
		t.Fatalf("expected normalized username admin, got %q", created.Username)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}

	count, err = st.CountEnabledUsers(ctx)
	if err != nil {
		t.Fatalf("count enabled users after create: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 user, got %d", count)
	}

	loaded, err := st.GetUserByUsername(ctx, "ADMIN")
	if err != nil {
		t.Fatalf("get user by username: %v", err)
	}
	if loaded == nil || loaded.ID != created.ID {
		t.Fatalf("expected loaded user %q, got %+v", created.ID, loaded)
	}
	byID, err := st.GetUserByID(ctx, created.ID)
	if err != nil || byID == nil || byID.Username != "admin" {
		t.Fatalf("get by id: %+v err=%v", byID, err)
	}

	disabled, err := st.SetUserDisabled(ctx, "admin", true, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("disable user: %v", err)
	}
	if disabled == nil || !disabled.Disabled {
		t.Fatalf("expected disabled user, got %+v", disabled)
	}
	count, err = st.CountEnabledUsers(ctx)
	if err != nil {
		t.Fatalf("count after disable: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 enabled users, got %d", count)
	}

	missing, err := st.SetUserDisabled(ctx, "ghost", true, now)
	if err != nil {
		t.Fatalf("disable missing: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing user")
	}

	deleted, err := st.DeleteUser(ctx, "admin")
	if err != nil || !deleted {
		t.Fatalf("delete user: deleted=%v err=%v", deleted, err)
	}
	deleted, err = st.DeleteUser(ctx, "admin")
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	st, ctx := openAuthTestStore(t)
	if err := st.CreateUser(ctx, &AuthUser{Username: "hr1", PasswordHash: "h", Role: "hr"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := st.CreateUser(ctx, &AuthUser{Username: "HR1", PasswordHash: "h", Role: "hr"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestSubjectUserLinkedToPerson(t *testing.T) {
	st, ctx := seededStore(t)
	user := &AuthUser{Username: "ana", PasswordHash: "h", Role: "subject", PersonID: "p-ana"}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	users, err := st.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 1 || users[0].PersonID != "p-ana" || users[0].Role != "subject" {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestCreateUserValidation(t *testing.T) {
	st, ctx := openAuthTestStore(t)
	for name, user := range map[string]*AuthUser{
		"username": {PasswordHash: "h", Role: "hr"},
		"hash":     {Username: "a", Role: "hr"},
		"role":     {Username: "a", PasswordHash: "h"},
	} {
		if err := st.CreateUser(ctx, user); err == nil {
			t.Fatalf("expected error for missing %s", name)
		}
	}
}
