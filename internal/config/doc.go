// Package config provides configuration loading, merging, and path
// management.
//
// # Configuration Loading
//
// Load merges configuration from multiple sources in priority order:
//
//  1. built-in defaults (socket and database under the standard paths)
//  2. global config (~/.config/acpcall/acpcall.json or .jsonc)
//  3. project config (acpcall.json or .jsonc in the working directory)
//  4. ACPCALL_CONFIG file override
//  5. environment variables
//
// A .env file in the working directory is loaded first via godotenv so
// that environment overrides can come from it.
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with comments, processed with tidwall/jsonc)
// are accepted. Configuration text supports {env:VAR_NAME} placeholders
// which expand to environment variable values before parsing.
//
// # Path Management
//
// Paths follow the XDG Base Directory Specification:
//   - Data: ~/.local/share/acpcall (XDG_DATA_HOME) for sessions.db
//   - Config: ~/.config/acpcall (XDG_CONFIG_HOME)
//   - State: ~/.local/state/acpcall (XDG_STATE_HOME) for the socket
//
// ACPCALL_HOME collapses all three into one directory, which keeps test
// setups and container deployments to a single mount.
//
// # Environment Variable Overrides
//
//   - ACPCALL_SERVER_COMMAND - agent launch command
//   - ACPCALL_CARD_PATH - agent card file
//   - ACPCALL_SOCKET - service socket path
//   - ACPCALL_DB - session database path
//   - ACPCALL_MODE - session mode id
//   - ACPCALL_STREAM_LIMIT - stdio line cap in bytes
//   - ACPCALL_LOG_LEVEL - zerolog level name
//   - ACPCALL_CONFIG - path to a specific config file
package config
