//go:build integration
// +build integration

package db

import (
	"context"
	"errors"
	"testing"

	"moard/internal/testutil/mongotest"
)

func TestUsers_Lifecycle(t *testing.T) {
	ctx := context.Background()
	uri := mongotest.Start(t)
	users := NewUsers(mongotest.Database(t, uri, "moard_test"))

	if err := users.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}

	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	created, err := users.Create(ctx, "Alice", hash)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Username != "alice" {
		t.Fatalf("username not normalized: %q", created.Username)
	}

	if _, err := users.Create(ctx, "alice", hash); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := users.Authenticate(ctx, "ALICE", "hunter22")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("authenticated wrong user")
	}

	if _, err := users.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := users.Authenticate(ctx, "bob", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	if err := users.SetAvatar(ctx, created.ID.Hex(), created.ID.Hex()+".png"); err != nil {
		t.Fatalf("SetAvatar: %v", err)
	}
	byID, err := users.FindByID(ctx, created.ID.Hex())
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if byID.Avatar != created.ID.Hex()+".png" {
		t.Fatalf("avatar = %q", byID.Avatar)
	}

	if _, err := users.FindByID(ctx, "not-an-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
