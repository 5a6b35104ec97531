package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// AppDirName is the directory name used below the XDG base directories.
	AppDirName = "buildclient"
)

// ConfigDir returns $XDG_CONFIG_HOME/buildclient, falling back to ~/.config/buildclient.
func ConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns $XDG_STATE_HOME/buildclient, falling back to ~/.local/state/buildclient.
func StateDir() (string, error) {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func xdgDir(envName, fallback string) (string, error) {
	if base := os.Getenv(envName); base != "" && filepath.IsAbs(base) {
		return filepath.Join(base, AppDirName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get home directory: %v", err)
	}
	return filepath.Join(homeDir, fallback, AppDirName), nil
}
