package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAliasOverridesLegacy(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("EVENTGATE_PORT", "5000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 5000 {
		t.Fatalf("expected the alias to win, got %d", cfg.Port)
	}
}

func TestLoadFallsBackToLegacyThenDefault(t *testing.T) {
	t.Setenv("PORT", "4000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 4000 {
		t.Fatalf("expected the legacy var, got %d", cfg.Port)
	}
}

func TestLoadDefaultPortWithoutAnyEnv(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("expected default port 3000, got %d", cfg.Port)
	}
}

func TestLoadOverlayURLsSurviveWithoutEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eventgate.yaml")
	if err := os.WriteFile(path, []byte("urls:\n  http: https://api.example.com\n  ws: wss://api.example.com\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.URLs.HTTP != "https://api.example.com" {
		t.Fatalf("unexpected http base url %q", cfg.URLs.HTTP)
	}
}

func TestLoadMissingOverlayFileIsNotAnError(t *testing.T) {
	if _, err := Load("/nonexistent/eventgate.yaml"); err != nil {
		t.Fatalf("expected a missing overlay file to be tolerated, got %v", err)
	}
}
