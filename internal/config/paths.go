package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// LogDirectory returns the default directory for log files.
//
// Locations:
//   - Windows: %LOCALAPPDATA%\Jobson\logs
//   - Unix: ~/.config/jobson/logs
func LogDirectory() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "jobson-logs")
			}
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		return filepath.Join(localAppData, "Jobson", "logs")
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "jobson-logs")
		}
		return filepath.Join(homeDir, ".config", "jobson", "logs")
	}
	return filepath.Join(configDir, "jobson", "logs")
}

// ResolveLogFile turns a configured log file into an absolute path. Relative
// names are placed in LogDirectory, which is created with owner-only access.
func ResolveLogFile(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return name, nil
	}
	dir := LogDirectory()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
