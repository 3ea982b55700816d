package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ricirt/plinko-sync/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/plinko")

	cfg, err := config.LoadFile("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway != config.GatewayPostgres || cfg.SlotBackend != "file" {
		t.Fatalf("unexpected defaults: gateway=%s slot=%s", cfg.Gateway, cfg.SlotBackend)
	}
	if cfg.QueueKey != "plinko_sync_queue_v1" {
		t.Fatalf("unexpected queue key %q", cfg.QueueKey)
	}
	if cfg.SyncInterval != 15*time.Second {
		t.Fatalf("unexpected sync interval %v", cfg.SyncInterval)
	}
}

func TestLoad_RequiresGatewayTarget(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := config.LoadFile(""); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}

	t.Setenv("GATEWAY", "rest")
	if _, err := config.LoadFile(""); err == nil || !strings.Contains(err.Error(), "REST_URL") {
		t.Fatalf("expected REST_URL error, got %v", err)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/plinko")
	t.Setenv("SYNC_INTERVAL", "often")
	t.Setenv("SYNC_MAX_ATTEMPTS", "many")

	cfg, err := config.LoadFile("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SyncInterval != 15*time.Second || cfg.SyncMaxAttempts != 20 {
		t.Fatalf("expected defaults for unparsable values, got %v / %d", cfg.SyncInterval, cfg.SyncMaxAttempts)
	}
}

func TestLoad_YAMLFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plinko.yaml")
	doc := `
GATEWAY: rest
REST_URL: https://example.supabase.co
SYNC_INTERVAL: 1m
SYNC_MAX_ATTEMPTS: 3
slot_backend: sqlite
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SYNC_MAX_ATTEMPTS", "7")

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway != config.GatewayREST || cfg.RestURL != "https://example.supabase.co" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.SyncInterval != time.Minute {
		t.Fatalf("expected 1m, got %v", cfg.SyncInterval)
	}
	if cfg.SlotBackend != "sqlite" {
		t.Fatalf("expected lower-case keys to be accepted, got %q", cfg.SlotBackend)
	}
	if cfg.SyncMaxAttempts != 7 {
		t.Fatalf("environment should override the file, got %d", cfg.SyncMaxAttempts)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate_Backend(t *testing.T) {
	cfg := &config.Config{
		SlotBackend: "redis", SlotDir: "d", QueueKey: "k",
		Gateway: config.GatewayPostgres, DatabaseURL: "x",
		SyncInterval: time.Second, SyncMaxBackoff: time.Second,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected SLOT_BACKEND error")
	}
}
