// Package config provides configuration loading and path management.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDir = "acpcall"

// Paths contains the standard on-disk locations.
type Paths struct {
	Data   string // ~/.local/share/acpcall
	Config string // ~/.config/acpcall
	State  string // ~/.local/state/acpcall
}

// GetPaths resolves the standard paths, honoring ACPCALL_HOME as an
// all-in-one override and the XDG variables individually.
func GetPaths() *Paths {
	if home := os.Getenv("ACPCALL_HOME"); home != "" {
		return &Paths{
			Data:   home,
			Config: home,
			State:  home,
		}
	}
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), appDir),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), appDir),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), appDir),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.State} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// SessionDBPath is the default location of the session mapping database.
func (p *Paths) SessionDBPath() string {
	return filepath.Join(p.Data, "sessions.db")
}

// SocketPath is the default location of the service socket.
func (p *Paths) SocketPath() string {
	return filepath.Join(p.State, "acp.sock")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "acpcall.json")
}
