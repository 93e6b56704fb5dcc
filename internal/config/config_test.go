package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roach88/earworm/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantDB := filepath.Join(tempHome, ".local", "share", "earworm", "earworm.db")
	if cfg.Paths.Database != wantDB {
		t.Fatalf("unexpected database path: got %q want %q", cfg.Paths.Database, wantDB)
	}
	if cfg.Paths.Rules != "" || cfg.Paths.Catalog != "" {
		t.Fatalf("expected built-in rules and catalog, got %q / %q", cfg.Paths.Rules, cfg.Paths.Catalog)
	}
	if cfg.Sync.Mode != config.SyncModeSimulated {
		t.Fatalf("unexpected sync mode: %q", cfg.Sync.Mode)
	}
	if cfg.Sync.SuccessRate != 0.9 {
		t.Fatalf("unexpected success rate: %v", cfg.Sync.SuccessRate)
	}
	if cfg.Sync.Latency() != 400*time.Millisecond {
		t.Fatalf("unexpected latency: %v", cfg.Sync.Latency())
	}
	if cfg.Logging.Format != "text" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
database = "~/data/points.db"
rules = "~/rules.cue"

[sync]
mode = "HTTP"
endpoint = "https://ledger.example.com/confirm"
timeout_seconds = 3

[logging]
level = "Debug"
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected to load %q, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.Paths.Database != filepath.Join(tempHome, "data", "points.db") {
		t.Fatalf("unexpected database path: %q", cfg.Paths.Database)
	}
	if cfg.Paths.Rules != filepath.Join(tempHome, "rules.cue") {
		t.Fatalf("unexpected rules path: %q", cfg.Paths.Rules)
	}
	if cfg.Sync.Mode != config.SyncModeHTTP {
		t.Fatalf("expected mode normalized to http, got %q", cfg.Sync.Mode)
	}
	if cfg.Sync.Timeout() != 3*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.Sync.Timeout())
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[sync]\nmood = \"none\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		toml    string
		wantMsg string
	}{
		{"http without endpoint", "[sync]\nmode = \"http\"\n", "sync.endpoint is required"},
		{"http bad scheme", "[sync]\nmode = \"http\"\nendpoint = \"ftp://x\"\n", "http(s) URL"},
		{"unknown mode", "[sync]\nmode = \"carrier-pigeon\"\n", "sync.mode must be one of"},
		{"success rate", "[sync]\nsuccess_rate = 1.5\n", "sync.success_rate"},
		{"latency", "[sync]\nlatency_ms = -1\n", "sync.latency_ms"},
		{"log format", "[logging]\nformat = \"xml\"\n", "logging.format"},
		{"log level", "[logging]\nlevel = \"loud\"\n", "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.toml))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantMsg)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("error %q does not contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestParseNoneModeNeedsNothing(t *testing.T) {
	cfg, err := config.Parse([]byte("[sync]\nmode = \"none\"\n[paths]\ndatabase = \":memory:\"\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.Paths.Database != ":memory:" {
		t.Fatalf("memory database path must not be expanded, got %q", cfg.Paths.Database)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
}

func TestEnsureDirectoriesCreatesDatabaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "deeper")
	cfg := config.Default()
	cfg.Paths.Database = filepath.Join(dir, "earworm.db")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected %q to exist", dir)
	}
}

func TestEncodeRoundTrips(t *testing.T) {
	cfg := config.Default()
	cfg.Sync.Mode = config.SyncModeNone
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), "none") {
		t.Fatalf("unexpected encoding:\n%s", data)
	}
	back, err := config.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if back.Sync.Mode != config.SyncModeNone {
		t.Fatalf("round trip lost mode: %q", back.Sync.Mode)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := config.ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
