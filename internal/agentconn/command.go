package agentconn

import (
	"fmt"
	"os"
	"strings"

	"mvdan.cc/sh/v3/shell"
)

// serveArgs is the fixed argument tail that puts the agent binary into
// stdio ACP mode with a per-connection instance.
var serveArgs = []string{"serve", "--transport", "acp", "--instance-scope", "connection", "--card"}

// ResolveCommand splits serverCmd shell-style and appends the serve
// arguments plus the card path. Environment references in serverCmd are
// expanded.
func ResolveCommand(serverCmd, cardPath string) ([]string, error) {
	if strings.TrimSpace(serverCmd) == "" {
		return nil, fmt.Errorf("agent server command is empty")
	}
	if strings.TrimSpace(cardPath) == "" {
		return nil, fmt.Errorf("agent card path is empty")
	}

	fields, err := shell.Fields(serverCmd, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("parse agent server command: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("agent server command is empty")
	}

	argv := make([]string, 0, len(fields)+len(serveArgs)+1)
	argv = append(argv, fields...)
	argv = append(argv, serveArgs...)
	argv = append(argv, cardPath)
	return argv, nil
}
