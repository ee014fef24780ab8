package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"  debug  ", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestSetupWriterFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "warn", false)
	defer Setup("info", false)

	Debug().Msg("hidden")
	Warn().Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug event leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn event missing: %q", out)
	}
}

func TestForTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "info", false)
	defer Setup("info", false)

	l := For("store")
	l.Info().Msg("opened")

	if !strings.Contains(buf.String(), `"component":"store"`) {
		t.Errorf("component field missing: %q", buf.String())
	}
}
