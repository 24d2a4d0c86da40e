package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables overriding the default locations.
const (
	EnvConfigPath = "BM_CONFIG_PATH"
	EnvHome       = "BM_HOME"
)

// Defaults are the locations used when the command line names none.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults resolves the default locations. BM_CONFIG_PATH replaces
// ~/.config/bm.toml and BM_HOME replaces ~/.local/share/bm.
func GetDefaults() (*Defaults, error) {
	configPath := os.Getenv(EnvConfigPath)
	baseDir := os.Getenv(EnvHome)

	if configPath == "" || baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		if configPath == "" {
			configPath = filepath.Join(home, ".config", "bm.toml")
		}
		if baseDir == "" {
			baseDir = filepath.Join(home, ".local", "share", "bm")
		}
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}
