package config

import (
	"testing"
)

func TestLoadRequiresDSNWithoutSQLite(t *testing.T) {
	t.Setenv("CANTEEN_APP_ENV", "test")
	t.Setenv("CANTEEN_DB_DSN", "")
	t.Setenv("CANTEEN_USE_SQLITE", "false")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DSN missing")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CANTEEN_APP_ENV", "dev")
	t.Setenv("CANTEEN_USE_SQLITE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Port != "8080" {
		t.Fatalf("unexpected port %q", cfg.App.Port)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("unexpected retry attempts %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Store.OpTimeout.Seconds() != 5 {
		t.Fatalf("unexpected op timeout %s", cfg.Store.OpTimeout)
	}
	if !cfg.App.IsDev() || cfg.App.IsProd() {
		t.Fatal("env helpers disagree with CANTEEN_APP_ENV")
	}
	if cfg.Redis.Enabled() {
		t.Fatal("redis should be disabled when no addr configured")
	}
}
