// Package paths resolves where coachdb keeps its configuration, local
// database, plan file and backups.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// appName is the directory name used under platform config and data roots.
const appName = "coachdb"

// CWD-relative and config-relative default names.
const (
	DefaultDataDirName   = ".coachdb-db"
	DefaultPlanFileName  = "plan.yaml"
	DefaultBackupDirName = "backups"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "COACHDB_CONFIG_DIR"
	EnvDataDir   = "COACHDB_DATA_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/coachdb (fallback ~/.config/coachdb)
// macOS:   ~/Library/Application Support/coachdb
// Windows: %APPDATA%/coachdb
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", appName), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// ResolveConfigDir returns the configuration directory following the precedence
// chain: flag > COACHDB_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the local database directory following the
// precedence chain: flag > config.yaml data_dir > COACHDB_DATA_DIR env >
// $(CWD)/.coachdb-db.
func ResolveDataDir(flag, configValue string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		return filepath.Abs(configValue)
	}
	if env := os.Getenv(EnvDataDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// ResolvePlanFile returns the reconciliation plan path. A relative config
// value is taken relative to the config directory; an empty one means
// <configDir>/plan.yaml.
func ResolvePlanFile(configValue, configDir string) string {
	return underDir(configValue, configDir, DefaultPlanFileName)
}

// ResolveBackupDir returns the automatic backup directory. A relative
// config value is taken relative to the data directory; an empty one means
// <dataDir>/backups.
func ResolveBackupDir(configValue, dataDir string) string {
	return underDir(configValue, dataDir, DefaultBackupDirName)
}

func underDir(value, dir, fallback string) string {
	switch {
	case value == "":
		return filepath.Join(dir, fallback)
	case filepath.IsAbs(value):
		return value
	default:
		return filepath.Join(dir, value)
	}
}
