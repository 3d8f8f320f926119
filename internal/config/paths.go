package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const appDirName = "Programista"

// DataDir resolves the directory for durable application data (favorites,
// settings, provider packs). PROGRAMISTA_DATA_DIR overrides the OS default.
func DataDir() (string, error) {
	if dir := os.Getenv("PROGRAMISTA_DATA_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// CacheDir resolves the directory for rebuildable caches (KV cache, search
// index). PROGRAMISTA_CACHE_DIR overrides the OS default.
func CacheDir() (string, error) {
	if dir := os.Getenv("PROGRAMISTA_CACHE_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve user cache dir: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// EnsureDir creates dir (and parents) when missing.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}
