package utils

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// EnsureDirectoryExists creates a directory and any missing parents. It is
// safe to call repeatedly.
func EnsureDirectoryExists(dirPath string) error {
	if dirPath == "" || dirPath == "." {
		return nil
	}

	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		absPath = dirPath
	}

	if info, err := os.Stat(absPath); err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("path %s exists but is not a directory", absPath)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", absPath, err)
	}
	slog.Debug("created directory", "path", absPath)
	return nil
}

// EnsureFileDirectory creates the directory a file will be written to.
func EnsureFileDirectory(filePath string) error {
	return EnsureDirectoryExists(filepath.Dir(filePath))
}
