package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Session.MaxTurns != 20 {
		t.Errorf("Session.MaxTurns = %d, want 20", cfg.Session.MaxTurns)
	}
	if cfg.Limiter.PerMinute != 30 {
		t.Errorf("Limiter.PerMinute = %d, want 30", cfg.Limiter.PerMinute)
	}
	if cfg.Wire.MaxEventBytes != 65536 {
		t.Errorf("Wire.MaxEventBytes = %d, want 65536", cfg.Wire.MaxEventBytes)
	}
}

func TestLoadNoPathAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Name != "anthropic" {
		t.Errorf("Provider.Name = %q, want anthropic", cfg.Provider.Name)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.yaml")
	content := `
server:
  port: 9090
session:
  maxTurns: 5
rateLimit:
  perMinute: 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Session.MaxTurns != 5 {
		t.Errorf("Session.MaxTurns = %d, want 5", cfg.Session.MaxTurns)
	}
	if cfg.Limiter.PerMinute != 10 {
		t.Errorf("Limiter.PerMinute = %d, want 10", cfg.Limiter.PerMinute)
	}
	// Untouched fields keep their defaults.
	if cfg.Provider.RequestTimeout != 30*time.Second {
		t.Errorf("Provider.RequestTimeout = %v, want 30s", cfg.Provider.RequestTimeout)
	}
}

func TestLoadEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	t.Setenv("LISTEN_PORT", "7070")
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "test-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Provider.Name != "openai" {
		t.Errorf("Provider.Name = %q, want openai", cfg.Provider.Name)
	}
	if cfg.Provider.APIKey != "test-key" {
		t.Errorf("Provider.APIKey = %q, want test-key", cfg.Provider.APIKey)
	}
}

func TestLoadExpandsEnvVarsInFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.yaml")
	if err := os.WriteFile(path, []byte("provider:\n  model: ${TEST_MODEL_ID}\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	t.Setenv("TEST_MODEL_ID", "claude-sonnet-4-20250514")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Model != "claude-sonnet-4-20250514" {
		t.Errorf("Provider.Model = %q, want claude-sonnet-4-20250514", cfg.Provider.Model)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/path/conductor.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
