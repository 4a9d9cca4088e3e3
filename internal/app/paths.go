package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	appDirName = "nibbles"
	dbFileName = "nibbles.db"
)

// DefaultDBPath is the SQLite file used when DATABASE_PATH is not set.
func DefaultDBPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, appDirName, dbFileName), nil
}

func EnsureDBDir(path string) error {
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}
	return nil
}
