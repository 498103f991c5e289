package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// GetConfigDir returns the directory holding config.yaml and .env.
//
// BURROW_CONFIG_DIR overrides the platform default:
//   - Linux:   $XDG_CONFIG_HOME/burrow or ~/.config/burrow
//   - macOS:   ~/Library/Application Support/burrow
//   - Windows: %APPDATA%\burrow
func GetConfigDir() (string, error) {
	if dir := os.Getenv("BURROW_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", AppName), nil
	case "windows":
		if base := os.Getenv("APPDATA"); base != "" {
			return filepath.Join(base, AppName), nil
		}
		return filepath.Join(homeDir, "AppData", "Roaming", AppName), nil
	default:
		if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
			return filepath.Join(base, AppName), nil
		}
		return filepath.Join(homeDir, ".config", AppName), nil
	}
}

// GetDataDir returns the directory holding the vector and history databases.
// BURROW_DATA_DIR overrides the default of ~/.local/share/burrow
// ($XDG_DATA_HOME/burrow when set).
func GetDataDir() (string, error) {
	if dir := os.Getenv("BURROW_DATA_DIR"); dir != "" {
		return dir, nil
	}

	if base := os.Getenv("XDG_DATA_HOME"); base != "" {
		return filepath.Join(base, AppName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".local", "share", AppName), nil
}

func GetVectorDBPath(dataDir string) string {
	return filepath.Join(dataDir, VectorDBName)
}

func GetHistoryDBPath(dataDir string) string {
	return filepath.Join(dataDir, HistoryDBName)
}

func GetIndexerLockPath(dataDir string) string {
	return filepath.Join(dataDir, IndexerLockName)
}
