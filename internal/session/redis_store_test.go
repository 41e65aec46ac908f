package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

// exerciseStore runs the shared contract against any Store.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.Save(ctx, "token-1", "alice", expiresAt); err != nil {
		t.Fatalf("Save token-1 failed: %v", err)
	}
	if err := store.Save(ctx, "token-2", "bob", expiresAt); err != nil {
		t.Fatalf("Save token-2 failed: %v", err)
	}

	data, err := store.Lookup(ctx, "token-1")
	if err != nil {
		t.Fatalf("Lookup token-1 failed: %v", err)
	}
	if data.Username != "alice" {
		t.Errorf("expected alice, got %s", data.Username)
	}

	if err := store.Revoke(ctx, "token-1"); err != nil {
		t.Fatalf("Revoke token-1 failed: %v", err)
	}
	if _, err := store.Lookup(ctx, "token-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for revoked token-1, got %v", err)
	}
	if data, err := store.Lookup(ctx, "token-2"); err != nil || data.Username != "bob" {
		t.Fatalf("Lookup token-2 after revoke = %+v, %v", data, err)
	}

	if _, err := store.Lookup(ctx, "non-existent-token"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown token, got %v", err)
	}
	if err := store.Revoke(ctx, "non-existent-token"); err != nil {
		t.Errorf("Revoke for non-existent token failed: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()
	exerciseStore(t, store)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-url"); err == nil {
		t.Fatal("expected an error for a malformed url")
	}
}

func TestRedisSessionExpires(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "expired-token", "alice", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s.FastForward(2 * time.Second)

	if _, err := store.Lookup(ctx, "expired-token"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired token, got %v", err)
	}
}

func TestMemorySessionExpires(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	if err := store.Save(ctx, "t", "alice", now.Add(time.Minute)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := store.Lookup(ctx, "t"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound at expiry, got %v", err)
	}
}
