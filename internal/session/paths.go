package session

import (
	"os"
	"path/filepath"
)

// DefaultBaseDir returns ~/.wamux, the fallback when no base dir is configured.
func DefaultBaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wamux")
}

// Dir returns the directory holding one session's credentials and artifacts.
func Dir(baseDir, id string) string {
	return filepath.Join(baseDir, "sessions", id)
}

// CredsDBPath returns the protocol credential database path for a session.
func CredsDBPath(baseDir, id string) string {
	return filepath.Join(Dir(baseDir, id), "creds.db")
}

// QRPath returns where the current pairing code image is written.
func QRPath(baseDir, id string) string {
	return filepath.Join(Dir(baseDir, id), "qr.png")
}

// MetaDBPath returns the daemon-owned metadata database path.
func MetaDBPath(baseDir string) string {
	return filepath.Join(baseDir, "wamux.db")
}

// SocketPath returns the daemon's Unix socket path.
func SocketPath(baseDir string) string {
	return filepath.Join(baseDir, "wamuxd.sock")
}

// LockPath returns the daemon lock file path.
func LockPath(baseDir string) string {
	return filepath.Join(baseDir, "LOCK")
}

// LogPath returns the daemon log file path.
func LogPath(baseDir string) string {
	return filepath.Join(baseDir, "logs", "wamuxd.log")
}

// ConfigPath returns the daemon config file path.
func ConfigPath(baseDir string) string {
	return filepath.Join(baseDir, "config.toml")
}

// EnsureDir creates a session's directory with owner-only permissions.
func EnsureDir(baseDir, id string) error {
	return os.MkdirAll(Dir(baseDir, id), 0700)
}
