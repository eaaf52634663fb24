package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "glacier.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
app_name = "demo"
width = 800
height = 600
frames_in_flight = 3
verbose = true
bindless_capacity = 256
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppName != "demo" || cfg.Width != 800 || cfg.Height != 600 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.FramesInFlight != 3 || !cfg.Verbose || cfg.BindlessCapacity != 256 {
		t.Fatalf("cfg = %+v", cfg)
	}
	// Untouched keys keep their defaults.
	if cfg.AssetsDir != Default().AssetsDir {
		t.Fatalf("assets dir = %q", cfg.AssetsDir)
	}
}

func TestLoadRejectsBadFramesInFlight(t *testing.T) {
	path := writeConfig(t, "frames_in_flight = 0\n")
	if _, err := Load(path); err == nil {
		t.Fatal("accepted zero frames in flight")
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeConfig(t, "width = [not toml")
	if _, err := Load(path); err == nil {
		t.Fatal("accepted malformed toml")
	}
}
