package muxconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.StatusBarEnabled() {
		t.Error("expected status bar enabled by default")
	}
	if len(cfg.Multiplexer.LeaderKeys) == 0 {
		t.Error("expected default leader keys")
	}
	if cfg.Multiplexer.LeaderTimeout != 1000 {
		t.Errorf("LeaderTimeout = %d, want 1000", cfg.Multiplexer.LeaderTimeout)
	}
}

func TestLoad_PartialConfigFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("multiplexer:\n  enabled: true\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Multiplexer.Enabled {
		t.Error("Enabled should be true")
	}
	if cfg.Multiplexer.LeaderTimeout != 1000 {
		t.Errorf("LeaderTimeout = %d, want default 1000", cfg.Multiplexer.LeaderTimeout)
	}
	if len(cfg.Multiplexer.Keybindings) != len(DefaultKeybindings()) {
		t.Errorf("Keybindings not defaulted: got %d entries", len(cfg.Multiplexer.Keybindings))
	}
}

func TestLoad_ExplicitStatusBarFalseIsHonored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("multiplexer:\n  status_bar: false\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StatusBarEnabled() {
		t.Error("expected status bar disabled when explicitly set false")
	}
}

func TestSaveLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")
	cfg := Default()
	cfg.Multiplexer.LeaderTimeout = 2500

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Multiplexer.LeaderTimeout != 2500 {
		t.Errorf("LeaderTimeout = %d, want 2500", loaded.Multiplexer.LeaderTimeout)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := make(chan *Config, 1)
	stop, err := Watch(path, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	updated := Default()
	updated.Multiplexer.LeaderTimeout = 42
	if err := Save(path, updated); err != nil {
		t.Fatalf("Save: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Multiplexer.LeaderTimeout != 42 {
			t.Errorf("reloaded LeaderTimeout = %d, want 42", cfg.Multiplexer.LeaderTimeout)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}
}
