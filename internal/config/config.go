package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// DefaultStreamLimit caps a single stdio line from the agent subprocess.
const DefaultStreamLimit = 64 * 1024 * 1024

// Config holds everything needed to reach the agent and the service.
type Config struct {
	// ServerCommand launches the agent subprocess; split shell-style
	// before the fixed serve arguments are appended.
	ServerCommand string `json:"serverCommand,omitempty"`
	// CardPath points at the agent card passed to the subprocess.
	CardPath string `json:"cardPath,omitempty"`
	// ServerCwd is the working directory for the subprocess; defaults
	// to the card's directory when empty.
	ServerCwd string `json:"serverCwd,omitempty"`

	// SocketPath is where the proxy service listens.
	SocketPath string `json:"socketPath,omitempty"`
	// DBPath is the session mapping database file.
	DBPath string `json:"dbPath,omitempty"`

	// Mode is an optional session mode id applied to new sessions.
	Mode string `json:"mode,omitempty"`
	// StreamLimit caps a single stdio line from the agent, in bytes.
	StreamLimit int `json:"streamLimit,omitempty"`

	// LogLevel is the zerolog level name.
	LogLevel string `json:"logLevel,omitempty"`
	// LogPretty renders console output instead of JSON logs.
	LogPretty bool `json:"logPretty,omitempty"`
}

// Load builds the effective configuration (priority order):
//  1. built-in defaults
//  2. global config (~/.config/acpcall/acpcall.json or .jsonc)
//  3. project config (<directory>/acpcall.json or .jsonc)
//  4. ACPCALL_CONFIG file override
//  5. environment variables
//
// A .env file in the working directory is loaded first so that env
// overrides can come from it.
func Load(directory string) (*Config, error) {
	_ = godotenv.Load()

	paths := GetPaths()
	cfg := &Config{
		ServerCommand: "uv run fast-agent",
		SocketPath:    paths.SocketPath(),
		DBPath:        paths.SessionDBPath(),
		StreamLimit:   DefaultStreamLimit,
		LogLevel:      "info",
	}

	loaded := make(map[string]bool)
	loadOnce := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil || loaded[abs] {
			return
		}
		if loadConfigFile(path, cfg) == nil {
			loaded[abs] = true
		}
	}

	loadOnce(filepath.Join(paths.Config, "acpcall.json"))
	loadOnce(filepath.Join(paths.Config, "acpcall.jsonc"))

	if directory != "" {
		loadOnce(filepath.Join(directory, "acpcall.json"))
		loadOnce(filepath.Join(directory, "acpcall.jsonc"))
	}

	if override := os.Getenv("ACPCALL_CONFIG"); override != "" {
		loadOnce(override)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadConfigFile merges one jsonc file into cfg. A missing file is not
// an error; a malformed one is.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var file Config
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}

	mergeConfig(cfg, &file)
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate resolves {env:VAR} placeholders in config text.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func mergeConfig(target, source *Config) {
	if source.ServerCommand != "" {
		target.ServerCommand = source.ServerCommand
	}
	if source.CardPath != "" {
		target.CardPath = source.CardPath
	}
	if source.ServerCwd != "" {
		target.ServerCwd = source.ServerCwd
	}
	if source.SocketPath != "" {
		target.SocketPath = source.SocketPath
	}
	if source.DBPath != "" {
		target.DBPath = source.DBPath
	}
	if source.Mode != "" {
		target.Mode = source.Mode
	}
	if source.StreamLimit > 0 {
		target.StreamLimit = source.StreamLimit
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.LogPretty {
		target.LogPretty = true
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ACPCALL_SERVER_COMMAND"); v != "" {
		cfg.ServerCommand = v
	}
	if v := os.Getenv("ACPCALL_CARD_PATH"); v != "" {
		cfg.CardPath = v
	}
	if v := os.Getenv("ACPCALL_SOCKET"); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv("ACPCALL_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ACPCALL_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("ACPCALL_STREAM_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StreamLimit = n
		}
	}
	if v := os.Getenv("ACPCALL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Save writes the configuration to a file, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
