// Package localpath resolves and checks paths on the local disk: user paths
// given on the command line, and file names received from the server.
package localpath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Expand replaces a leading ~ with the home directory and returns the
// absolute form of path. Quoted paths reach the CLI without shell expansion.
func Expand(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand %s: %w", path, err)
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ValidateFilename rejects names that would leave the directory they are
// joined to. Use it on names that come from the server.
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return errors.New("filename cannot be empty")
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("filename contains null byte: %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("filename cannot contain path separators: %s", name)
	case name == "." || name == "..":
		return fmt.Errorf("filename cannot be '%s'", name)
	}
	return nil
}

// Within joins name to dir after checking name with ValidateFilename.
func Within(dir, name string) (string, error) {
	if err := ValidateFilename(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
