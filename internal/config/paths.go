// Package config loads and saves the connection profile file.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// EnvConfig overrides the profile file location.
const EnvConfig = "BROCOLI_CONFIG"

const fileName = "brocoli.ini"

// legacyFileName is the profile in the home directory used by releases that
// predate ConfigDir.
const legacyFileName = ".brocoli.ini"

// ConfigDir returns the directory holding the profile file.
//   - Windows: %USERPROFILE%\.config\brocoli
//   - Unix: ~/.config/brocoli
func ConfigDir() string {
	var home string
	if runtime.GOOS == "windows" {
		home = os.Getenv("USERPROFILE")
	}
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "brocoli")
		}
	}
	return filepath.Join(home, ".config", "brocoli")
}

// DefaultPath returns the profile file used when --config is not given.
// A legacy ~/.brocoli.ini is used, and later saved to, as long as no
// profile exists in ConfigDir.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	path := filepath.Join(ConfigDir(), fileName)
	if _, err := os.Stat(path); err == nil {
		return path
	}
	if legacy := LegacyPath(); legacy != "" {
		if info, err := os.Stat(legacy); err == nil && info.Mode().IsRegular() {
			return legacy
		}
	}
	return path
}

// LegacyPath returns ~/.brocoli.ini, or "" when the home directory is unknown.
func LegacyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, legacyFileName)
}

// LogDirectory returns the directory of the rotating log file.
//
// Locations:
//   - Windows: %LOCALAPPDATA%\brocoli\logs
//   - Unix: ~/.config/brocoli/logs
func LogDirectory() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "brocoli-logs")
			}
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		return filepath.Join(localAppData, "brocoli", "logs")
	}
	return filepath.Join(ConfigDir(), "logs")
}

// EnsureLogDirectory creates the log directory, readable by its owner only.
func EnsureLogDirectory() error {
	return os.MkdirAll(LogDirectory(), 0700)
}
