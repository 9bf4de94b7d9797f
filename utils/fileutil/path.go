package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaxFileSize caps how much spec or IR content is read from disk (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// ExpandPath expands ~ and environment variables in a path and cleans it.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}

	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}

		if path == "~" {
			return homeDir, nil
		}

		if strings.HasPrefix(path, "~/") {
			return filepath.Join(homeDir, path[2:]), nil
		}
	}

	return filepath.Clean(path), nil
}

// SafeReadFile reads a file after checking its size against MaxFileSize.
func SafeReadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("file %s exceeds maximum size of %d bytes", path, MaxFileSize)
	}
	return os.ReadFile(path)
}
