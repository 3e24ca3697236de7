package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		configPathEnv, "PORT", "LOG_LEVEL", "HTTP_TIMEOUT_SECONDS", "SUPABASE_URL",
		"SUPABASE_ANON_KEY", "EVENT_SOURCE", "SQLITE_PATH", "JOURNEY_LOOKBACK_LIMIT",
		"BATCH_EVENT_LIMIT",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	cfg := FromEnv()
	if cfg.Port != "8080" || cfg.HTTPTimeout != 15*time.Second || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.EventSource != SourceREST || cfg.LookbackLimit != 30 || cfg.BatchLimit != 500 {
		t.Fatalf("unexpected source defaults: %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "3")
	t.Setenv("SUPABASE_URL", "https://x.supabase.co/")
	t.Setenv("EVENT_SOURCE", "SQLite")
	t.Setenv("JOURNEY_LOOKBACK_LIMIT", "12")
	t.Setenv("BATCH_EVENT_LIMIT", "nope")

	cfg := FromEnv()
	if cfg.Port != "9090" || cfg.LogLevel != slog.LevelDebug || cfg.HTTPTimeout != 3*time.Second {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.SupabaseURL != "https://x.supabase.co" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.SupabaseURL)
	}
	if cfg.EventSource != SourceSQLite || cfg.LookbackLimit != 12 || cfg.BatchLimit != 500 {
		t.Fatalf("unexpected values: %+v", cfg)
	}
}

func TestYAMLOverlayLosesToEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "coursepulse.yaml")
	body := `
port: "7000"
logLevel: warn
supabase:
  url: https://file.supabase.co
  anonKey: file-key
eventSource: sqlite
sqlitePath: /tmp/mirror.db
journey:
  lookbackLimit: 40
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv("PORT", "7001")

	cfg := FromEnv()
	if cfg.Port != "7001" {
		t.Fatalf("env should win, got port %q", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelWarn || cfg.SupabaseKey != "file-key" || cfg.SupabaseURL != "https://file.supabase.co" {
		t.Fatalf("file values missing: %+v", cfg)
	}
	if cfg.EventSource != SourceSQLite || cfg.SQLitePath != "/tmp/mirror.db" || cfg.LookbackLimit != 40 {
		t.Fatalf("file values missing: %+v", cfg)
	}
}

func TestUnknownSourceFallsBackToREST(t *testing.T) {
	clearEnv(t)
	t.Setenv("EVENT_SOURCE", "kafka")
	if got := FromEnv().EventSource; got != SourceREST {
		t.Fatalf("expected rest, got %q", got)
	}
}

func TestBadConfigFileIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	if got := FromEnv().Port; got != "8080" {
		t.Fatalf("expected default port, got %q", got)
	}
}
