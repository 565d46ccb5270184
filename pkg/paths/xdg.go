// Package paths provides XDG-compliant path resolution for warden.
//
// Resolution order:
// 1. WARDEN_HOME (portable root) → $WARDEN_HOME/{config,data,state}
// 2. XDG env vars → $XDG_*_HOME/warden
// 3. Platform defaults → ~/.config/warden, ~/.local/state/warden, etc.
package paths

import (
	"os"
	"path/filepath"
)

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if wardenHome := os.Getenv("WARDEN_HOME"); wardenHome != "" {
		return filepath.Join(wardenHome, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getDataHome returns the base data home directory.
func getDataHome() string {
	if wardenHome := os.Getenv("WARDEN_HOME"); wardenHome != "" {
		return filepath.Join(wardenHome, "data")
	}
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return xdgDataHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "share")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if wardenHome := os.Getenv("WARDEN_HOME"); wardenHome != "" {
		return filepath.Join(wardenHome, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// ConfigDir returns the warden configuration directory.
// Used for config files like warden.yml.
func ConfigDir() string {
	base := getConfigHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "warden")
}

// DataDir returns the warden data directory.
func DataDir() string {
	base := getDataHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "warden")
}

// StateDir returns the warden state directory.
// Used for runtime state, pidfiles, logs.
func StateDir() string {
	base := getStateHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "warden")
}

// DefaultRunsRoot returns the default directory scanned for run
// directories when the config does not name one.
func DefaultRunsRoot() string {
	data := DataDir()
	if data == "" {
		return ""
	}
	return filepath.Join(data, "runs")
}

// RuntimeDir returns the warden runtime directory for sockets and pipes.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if wardenHome := os.Getenv("WARDEN_HOME"); wardenHome != "" {
		return filepath.Join(wardenHome, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "warden")
	}
	// Fallback: use state dir for socket on systems without XDG_RUNTIME_DIR
	return StateDir()
}

// SocketPath returns the path to the warden daemon unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "wardend.sock")
}

// PidFilePath returns the path to the warden daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "wardend.pid")
}

// EnsureDirs creates all warden directories if they don't exist.
func EnsureDirs() error {
	dirs := []string{
		ConfigDir(),
		DataDir(),
		StateDir(),
		RuntimeDir(),
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
