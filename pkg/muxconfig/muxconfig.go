// Package muxconfig loads and hot-reloads the core's configuration shape
// (spec §6). It follows the teacher's pkg/config: a plain YAML-backed
// struct, zero-valued fields filled in by applyDefaults, written back with
// Save.
package muxconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the configuration shape consumed by the core (spec §6). All
// fields are optional; zero values are filled by applyDefaults.
type Config struct {
	Multiplexer Multiplexer `yaml:"multiplexer"`
}

// Multiplexer is the multiplexer.* namespace of spec §6.
type Multiplexer struct {
	Enabled        bool              `yaml:"enabled"`
	StatusBar      *bool             `yaml:"status_bar"`
	LeaderKeys     []string          `yaml:"leader_keys"`
	LeaderTimeout  int               `yaml:"leader_timeout_ms"`
	Keybindings    map[string]string `yaml:"keybindings"`
	StatusBarStyle StatusBarStyle    `yaml:"status_bar_style"`
}

// StatusBarStyle holds the status bar's format_left, format_center,
// format_right, fg and bg settings. They are read from
// multiplexer.status_bar_style, because multiplexer.status_bar is the
// on/off bool.
type StatusBarStyle struct {
	FormatLeft   string `yaml:"format_left"`
	FormatCenter string `yaml:"format_center"`
	FormatRight  string `yaml:"format_right"`
	Fg           string `yaml:"fg"`
	Bg           string `yaml:"bg"`
}

// DefaultKeybindings mirrors spec §4.8's command vocabulary; every variant
// has a default binding so a fresh config file works out of the box.
func DefaultKeybindings() map[string]string {
	return map[string]string{
		"split_horizontal": "-",
		"split_vertical":   "|",
		"close_pane":       "x",
		"next_pane":        "o",
		"prev_pane":        "O",
		"navigate_up":      "k",
		"navigate_down":    "j",
		"navigate_left":    "h",
		"navigate_right":   "l",
		"resize_up":        "Up",
		"resize_down":      "Down",
		"resize_left":      "Left",
		"resize_right":     "Right",
		"new_window":       "c",
		"close_window":     "&",
		"next_window":      "n",
		"prev_window":      "p",
		"rename_window":    ",",
		"toggle_zoom":      "z",
		"detach_session":   "d",
		"scrollback_mode":  "[",
	}
}

func applyDefaults(cfg *Config) {
	if len(cfg.Multiplexer.LeaderKeys) == 0 {
		cfg.Multiplexer.LeaderKeys = []string{"Control-Space", "Control-b"}
	}
	if cfg.Multiplexer.LeaderTimeout == 0 {
		cfg.Multiplexer.LeaderTimeout = 1000
	}
	if cfg.Multiplexer.Keybindings == nil {
		cfg.Multiplexer.Keybindings = DefaultKeybindings()
	}
	if cfg.Multiplexer.StatusBarStyle.FormatLeft == "" {
		cfg.Multiplexer.StatusBarStyle.FormatLeft = "{session}"
	}
	if cfg.Multiplexer.StatusBarStyle.FormatCenter == "" {
		cfg.Multiplexer.StatusBarStyle.FormatCenter = "{windows}"
	}
	if cfg.Multiplexer.StatusBarStyle.FormatRight == "" {
		cfg.Multiplexer.StatusBarStyle.FormatRight = "{pane} {time}"
	}
	if cfg.Multiplexer.StatusBarStyle.Fg == "" {
		cfg.Multiplexer.StatusBarStyle.Fg = "#ffffff"
	}
	if cfg.Multiplexer.StatusBarStyle.Bg == "" {
		cfg.Multiplexer.StatusBarStyle.Bg = "#333333"
	}
	if cfg.Multiplexer.StatusBar == nil {
		t := true
		cfg.Multiplexer.StatusBar = &t
	}
}

// StatusBarEnabled reports the effective status_bar setting.
func (c *Config) StatusBarEnabled() bool {
	return c.Multiplexer.StatusBar == nil || *c.Multiplexer.StatusBar
}

// Default returns a Config with every field at its documented default.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses path, filling unset fields with defaults (spec §6).
// A missing file is not an error: it returns Default() so a server can
// start against a bare data directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("muxconfig: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("muxconfig: parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("muxconfig: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("muxconfig: mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("muxconfig: write %s: %w", path, err)
	}
	return nil
}
