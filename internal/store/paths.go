package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// GlobalHistoryPath returns the path to the global .fission directory.
// On Unix: ~/.fission
// On Windows: %USERPROFILE%\.fission
func GlobalHistoryPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".fission"), nil
}

// LocalHistoryPath returns the path to the local .fission directory
// for the given project root.
func LocalHistoryPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".fission")
}

// ResolveHistoryDir returns dir when set and the global path otherwise.
func ResolveHistoryDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return GlobalHistoryPath()
}
