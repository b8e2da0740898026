package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create cache store: %v", err)
	}
	return store, s
}

func TestGuardInvalidatesOnVersionMismatch(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	s.Set(keyVersion, "0")
	s.Set(keyRole, "maintenance")
	s.Set(keyView, "finance")
	s.Set(keySettings, `{"darkMode":true}`)

	invalidated, err := NewGuard(store).Ensure(ctx)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !invalidated {
		t.Fatal("expected invalidation on version mismatch")
	}

	for _, key := range []string{keySettings, keyRole, keyView} {
		if s.Exists(key) {
			t.Fatalf("key %s should have been cleared", key)
		}
	}

	settings, err := store.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if settings != DefaultSettings() {
		t.Fatalf("settings should be defaults after invalidation: %+v", settings)
	}
	role, err := store.Role(ctx)
	if err != nil {
		t.Fatalf("Role failed: %v", err)
	}
	if role != "" {
		t.Fatalf("cached role should be gone, got %q", role)
	}

	if got, _ := s.Get(keyVersion); got != CacheVersion {
		t.Fatalf("version marker = %q, want %q", got, CacheVersion)
	}
}

func TestGuardIsIdempotent(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()
	_ = s

	ctx := context.Background()
	first, err := NewGuard(store).Ensure(ctx)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !first {
		t.Fatal("first run with no marker should invalidate")
	}

	if err := store.SaveRole(ctx, "owner"); err != nil {
		t.Fatalf("SaveRole failed: %v", err)
	}
	second, err := NewGuard(store).Ensure(ctx)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if second {
		t.Fatal("matching version must be a no-op")
	}
	role, err := store.Role(ctx)
	if err != nil {
		t.Fatalf("Role failed: %v", err)
	}
	if role != "owner" {
		t.Fatalf("no-op run must not clear state, got role %q", role)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	settings := DefaultSettings()
	settings.DarkMode = true
	settings.Profile.Name = "Marta Silva"
	settings.Language = "pt"

	if err := store.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	loaded, err := store.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if loaded != settings {
		t.Fatalf("settings round trip mismatch: %+v", loaded)
	}
}

func TestSettingsMissingReturnsDefaults(t *testing.T) {
	store, _ := setupTestStore(t)
	defer store.Close()

	loaded, err := store.Settings(context.Background())
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if loaded != DefaultSettings() {
		t.Fatalf("expected defaults, got %+v", loaded)
	}
}

func TestSettingsCorruptValueFallsBack(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()

	s.Set(keySettings, "{not json")
	loaded, err := store.Settings(context.Background())
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if loaded != DefaultSettings() {
		t.Fatalf("corrupt settings should fall back to defaults, got %+v", loaded)
	}
}

func TestViewRoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	view, err := store.View(ctx)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if view != "" {
		t.Fatalf("expected empty view, got %q", view)
	}

	if err := store.SaveView(ctx, "calendar"); err != nil {
		t.Fatalf("SaveView failed: %v", err)
	}
	view, err = store.View(ctx)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if view != "calendar" {
		t.Fatalf("view round trip mismatch: %q", view)
	}
}
