package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	bookFile = "peers.db"
	envDir   = "P2P_MESH_DATA_DIR"
)

// DefaultDataDir returns a per-user directory appropriate for persisting node state.
// P2P_MESH_DATA_DIR wins when set; otherwise it prefers os.UserConfigDir and
// falls back to the current directory.
func DefaultDataDir() string {
	if v := strings.TrimSpace(os.Getenv(envDir)); v != "" {
		return filepath.Clean(v)
	}
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "p2p-mesh")
	}
	return ".p2p-mesh"
}

// EnsureDir makes sure dir exists and returns the cleaned path.
func EnsureDir(dir string) (string, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// BookPath creates dir if needed and returns the peer book file inside it.
func BookPath(dir string) (string, error) {
	dir, err := EnsureDir(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, bookFile), nil
}
