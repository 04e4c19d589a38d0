// Package defaults locates the data directory and provides the embedded
// default configuration.
//
// The data directory is ~/.chplg-devtools. Override with the
// CHPLG_DEVTOOLS_DATA_DIR environment variable.
package defaults

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DataDirEnv overrides DataDir when set.
const DataDirEnv = "CHPLG_DEVTOOLS_DATA_DIR"

//go:embed dotdevtools/*
var defaultFiles embed.FS

// DataDir returns the directory holding data.json and config.yaml.
func DataDir() (string, error) {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".chplg-devtools"), nil
}

// EnsureDir creates dir if it doesn't exist and copies in any default
// file that is missing. Existing files are left alone.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return copyDefaults(dir)
}

func copyDefaults(dir string) error {
	return fs.WalkDir(defaultFiles, "dotdevtools", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "dotdevtools" {
			return nil
		}

		// embed.FS paths always use forward slashes.
		relPath := strings.TrimPrefix(path, "dotdevtools/")
		destPath := filepath.Join(dir, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0755)
		}
		if _, err := os.Stat(destPath); err == nil {
			return nil
		}

		data, err := defaultFiles.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded %s: %w", path, err)
		}
		if err := os.WriteFile(destPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", destPath, err)
		}
		return nil
	})
}

// GetDefault returns the content of a default file by name.
// Example: GetDefault("config.yaml")
func GetDefault(name string) ([]byte, error) {
	return defaultFiles.ReadFile("dotdevtools/" + name)
}
