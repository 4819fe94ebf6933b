package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisRegistry, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	registry, err := NewRedisRegistry("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis registry: %v", err)
	}
	return registry, s
}

func TestNewRedisRegistry(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	registry, err := NewRedisRegistry("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisRegistry failed: %v", err)
	}
	defer registry.Close()

	ctx := context.Background()
	if err := registry.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLookupSession(t *testing.T) {
	registry, s := setupTestRedis(t)
	defer registry.Close()
	defer s.Close()

	ctx := context.Background()
	sess := Session{
		UserID:    "usr_1",
		Role:      "delegate",
		Committee: "unep",
		Bloc:      "Coastal Alliance",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}

	if err := registry.Save(ctx, "hash-1", sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := registry.Lookup(ctx, "hash-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.UserID != sess.UserID || got.Committee != sess.Committee || got.Bloc != sess.Bloc {
		t.Errorf("session round-trip mismatch: %+v", got)
	}
	if got.ActiveBloc() != "Coastal Alliance" {
		t.Errorf("expected delegate bloc as active, got %q", got.ActiveBloc())
	}
}

func TestChairSelectionOverridesActiveBloc(t *testing.T) {
	registry, s := setupTestRedis(t)
	defer registry.Close()
	defer s.Close()

	ctx := context.Background()
	sess := Session{
		UserID:    "usr_2",
		Role:      "chair",
		Committee: "unep",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := registry.Save(ctx, "hash-2", sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := registry.Lookup(ctx, "hash-2")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.ActiveBloc() != "" {
		t.Errorf("chair without selection should have no active bloc, got %q", got.ActiveBloc())
	}

	got.SelectedBloc = "Island States"
	if err := registry.Save(ctx, "hash-2", got); err != nil {
		t.Fatalf("Save after select failed: %v", err)
	}

	got, err = registry.Lookup(ctx, "hash-2")
	if err != nil {
		t.Fatalf("Lookup after select failed: %v", err)
	}
	if got.ActiveBloc() != "Island States" {
		t.Errorf("expected selection as active bloc, got %q", got.ActiveBloc())
	}
}

func TestLookupExpiredSession(t *testing.T) {
	registry, s := setupTestRedis(t)
	defer registry.Close()
	defer s.Close()

	ctx := context.Background()
	sess := Session{
		UserID:    "usr_3",
		Role:      "delegate",
		Committee: "unep",
		ExpiresAt: time.Now().Add(1 * time.Millisecond),
	}
	if err := registry.Save(ctx, "expired-hash", sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Fast-forward time in miniredis
	s.FastForward(2 * time.Millisecond)

	if _, err := registry.Lookup(ctx, "expired-hash"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired session, got %v", err)
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	registry, s := setupTestRedis(t)
	defer registry.Close()
	defer s.Close()

	if _, err := registry.Lookup(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeSession(t *testing.T) {
	registry, s := setupTestRedis(t)
	defer registry.Close()
	defer s.Close()

	ctx := context.Background()
	sess := Session{
		UserID:    "usr_4",
		Role:      "delegate",
		Committee: "unep",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := registry.Save(ctx, "revoke-hash", sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := registry.Revoke(ctx, "revoke-hash"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := registry.Lookup(ctx, "revoke-hash"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after revoke, got %v", err)
	}

	// Revoking again should not error
	if err := registry.Revoke(ctx, "revoke-hash"); err != nil {
		t.Errorf("second Revoke failed: %v", err)
	}
}

func TestMemoryRegistry(t *testing.T) {
	registry := NewMemoryRegistry()
	ctx := context.Background()

	sess := Session{
		UserID:    "usr_5",
		Role:      "chair",
		Committee: "security",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := registry.Save(ctx, "mem-hash", sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := registry.Lookup(ctx, "mem-hash")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.UserID != "usr_5" {
		t.Errorf("round-trip mismatch: %+v", got)
	}

	expired := sess
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	if err := registry.Save(ctx, "old-hash", expired); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := registry.Lookup(ctx, "old-hash"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired session, got %v", err)
	}

	if err := registry.Revoke(ctx, "mem-hash"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := registry.Lookup(ctx, "mem-hash"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after revoke, got %v", err)
	}
}
