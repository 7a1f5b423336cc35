// Package util holds small filesystem helpers shared by the harness.
package util

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands a leading "~/" (or "~\\") to the current user's home directory.
//
// It intentionally does not expand "~user/..." (which is shell-specific).
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}

	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	if strings.HasPrefix(path, "~\\") {
		return filepath.Join(home, path[2:])
	}

	return path
}

// EnsureDir ensures that a directory exists, creating it if necessary.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// ArtifactPath joins name onto dir, creating dir if needed. Used for
// screenshots, HTML dumps, and transcript files.
func ArtifactPath(dir, name string) (string, error) {
	if err := EnsureDir(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
