// Package paths resolves mux's on-disk layout (spec §6):
//
//	Data dir: ~/.local/share/mux/          (override: MUX_DATA_DIR)
//	Sessions: <data_dir>/sessions/<name>.json
//	Sockets:  <data_dir>/sockets/<name>.sock
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	dataDirOnce   sync.Once
	dataDirCached string
)

// DataDir resolves the data directory.
// Priority: MUX_DATA_DIR env > ~/.local/share/mux/
func DataDir() string {
	dataDirOnce.Do(func() {
		if env := os.Getenv("MUX_DATA_DIR"); env != "" {
			dataDirCached = env
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				dataDirCached = "."
			} else {
				dataDirCached = filepath.Join(home, ".local", "share", "mux")
			}
		}
	})
	return dataDirCached
}

// SessionsDir returns <data_dir>/sessions.
func SessionsDir() string {
	return filepath.Join(DataDir(), "sessions")
}

// SocketsDir returns <data_dir>/sockets.
func SocketsDir() string {
	return filepath.Join(DataDir(), "sockets")
}

// SessionPath returns the persisted-session path for a named session.
func SessionPath(name string) string {
	return filepath.Join(SessionsDir(), name+".json")
}

// SocketPath returns the Unix domain socket path for a named session.
func SocketPath(name string) string {
	return filepath.Join(SocketsDir(), name+".sock")
}

// ConfigPath returns the full path to config.yaml, alongside the data dir
// rather than XDG_CONFIG_HOME: mux is a single-binary tool with one
// configuration file, not a suite of config-bearing components.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// EnsureSessionsDir creates the sessions directory if it doesn't exist and
// returns its path.
func EnsureSessionsDir() (string, error) {
	dir := SessionsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create sessions dir %s: %w", dir, err)
	}
	return dir, nil
}

// EnsureSocketsDir creates the sockets directory (owner-only, spec §5 "The
// socket file is created with restrictive permissions") if it doesn't exist
// and returns its path.
func EnsureSocketsDir() (string, error) {
	dir := SocketsDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create sockets dir %s: %w", dir, err)
	}
	return dir, nil
}

// ResetForTest clears cached values so tests can re-run resolution logic.
// Only use in tests.
func ResetForTest() {
	dataDirOnce = sync.Once{}
	dataDirCached = ""
}
