package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv(EnvDataDir, t.TempDir())

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.LogLevel() != DefaultLogLevel {
		t.Errorf("LogLevel() = %q, want %q", cfg.LogLevel(), DefaultLogLevel)
	}
	if cfg.AutosaveDebounce() != DefaultAutosaveDebounce {
		t.Errorf("AutosaveDebounce() = %v, want %v", cfg.AutosaveDebounce(), DefaultAutosaveDebounce)
	}
	if cfg.DBPath() != filepath.Join(cfg.DataDir(), DBFilename) {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
	if cfg.MediaDir() != filepath.Join(cfg.DataDir(), "media") {
		t.Errorf("MediaDir() = %q", cfg.MediaDir())
	}
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDataDir, t.TempDir())
	t.Setenv(EnvPort, "9999")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvAutosaveDebounce, "500ms")
	t.Setenv(EnvGenerateToken, "tok-123")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9999 {
		t.Errorf("Port() = %d, want 9999", cfg.Port())
	}
	if cfg.LogLevel() != "debug" {
		t.Errorf("LogLevel() = %q, want debug", cfg.LogLevel())
	}
	if cfg.AutosaveDebounce() != 500*time.Millisecond {
		t.Errorf("AutosaveDebounce() = %v, want 500ms", cfg.AutosaveDebounce())
	}
	if cfg.GenerateToken() != "tok-123" {
		t.Errorf("GenerateToken() = %q", cfg.GenerateToken())
	}
}

func TestNew_InvalidPort(t *testing.T) {
	t.Setenv(EnvDataDir, t.TempDir())

	for _, bad := range []string{"abc", "0", "70000"} {
		t.Setenv(EnvPort, bad)
		if _, err := New(); err == nil {
			t.Errorf("port %q accepted", bad)
		}
	}
}

func TestNew_ConfigFileOverlay(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)

	yaml := `
port: 7070
log_level: warn
autosave_debounce: 10s
generate:
  base_url: https://example.test/api
  poll_interval: 2s
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFilename), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 7070 {
		t.Errorf("Port() = %d, want 7070 from file", cfg.Port())
	}
	if cfg.LogLevel() != "warn" {
		t.Errorf("LogLevel() = %q, want warn", cfg.LogLevel())
	}
	if cfg.AutosaveDebounce() != 10*time.Second {
		t.Errorf("AutosaveDebounce() = %v, want 10s", cfg.AutosaveDebounce())
	}
	if cfg.GenerateBaseURL() != "https://example.test/api" {
		t.Errorf("GenerateBaseURL() = %q", cfg.GenerateBaseURL())
	}
	if cfg.GeneratePollInterval() != 2*time.Second {
		t.Errorf("GeneratePollInterval() = %v, want 2s", cfg.GeneratePollInterval())
	}
}

func TestNew_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvPort, "9001")

	if err := os.WriteFile(filepath.Join(dir, ConfigFilename), []byte("port: 7070\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9001 {
		t.Errorf("Port() = %d, want env override 9001", cfg.Port())
	}
}

func TestNew_Headless(t *testing.T) {
	t.Setenv(EnvDataDir, t.TempDir())

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Headless() {
		t.Error("Headless() = true by default")
	}

	t.Setenv(EnvHeadless, "true")
	cfg, err = New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Headless() {
		t.Error("Headless() = false with env set")
	}

	t.Setenv(EnvHeadless, "banana")
	if _, err := New(); err == nil {
		t.Error("invalid headless value accepted")
	}
}

func TestNew_MalformedConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)

	if err := os.WriteFile(filepath.Join(dir, ConfigFilename), []byte("port: [not a number"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(); err == nil {
		t.Error("malformed config file accepted")
	}
}
