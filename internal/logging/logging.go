// Package logging configures the process-wide zerolog logger.
//
// All diagnostics go to stderr so that stdout stays reserved for agent
// output. Subsystems obtain a child logger via For, which tags every
// event with a component name.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. It is usable before Setup is
// called; Setup replaces it.
var Logger = zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()

// Setup replaces the root logger. level is parsed case-insensitively
// (debug, info, warn, error, fatal); unrecognized values fall back to
// info. When pretty is set, events are rendered by a console writer
// instead of raw JSON.
func Setup(level string, pretty bool) {
	SetupWriter(os.Stderr, level, pretty)
}

// SetupWriter is Setup with an explicit destination, used by tests.
func SetupWriter(w io.Writer, level string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	Logger = zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// For returns a child logger tagged with a component name, e.g.
// "store" or "service".
func For(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// Debug starts a debug event on the root logger.
func Debug() *zerolog.Event { return Logger.Debug() }

// Info starts an info event on the root logger.
func Info() *zerolog.Event { return Logger.Info() }

// Warn starts a warn event on the root logger.
func Warn() *zerolog.Event { return Logger.Warn() }

// Error starts an error event on the root logger.
func Error() *zerolog.Event { return Logger.Error() }
