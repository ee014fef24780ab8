// Package agentconn spawns the agent subprocess and drives its ACP
// connection over stdio.
package agentconn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	acp "github.com/coder/acp-go-sdk"
	"github.com/rs/zerolog"

	"github.com/acpcall/acpcall/internal/logging"
)

const defaultStreamLimit = 64 * 1024 * 1024

// Options configures a subprocess connection.
type Options struct {
	// ServerCommand is the shell-style command launching the agent.
	ServerCommand string
	// CardPath is the agent card passed on the command line.
	CardPath string
	// Cwd is the subprocess working directory; defaults to the card's
	// directory.
	Cwd string
	// StreamLimit caps a single stdio line from the agent, in bytes.
	StreamLimit int
	// Handler receives session updates and client-side requests.
	Handler acp.Client
}

// Session is a freshly created agent session and the mode ids it
// advertises.
type Session struct {
	ID      string
	ModeIDs []string
}

// Conn is a live connection to one agent subprocess.
type Conn struct {
	cmd   *exec.Cmd
	conn  *acp.ClientSideConnection
	stdin io.WriteCloser
	cwd   string
	log   zerolog.Logger
}

// Spawn starts the agent subprocess and completes the ACP handshake.
// File-system and terminal capabilities are declared off; the proxy
// never services those requests.
func Spawn(ctx context.Context, opts Options) (*Conn, error) {
	argv, err := ResolveCommand(opts.ServerCommand, opts.CardPath)
	if err != nil {
		return nil, err
	}

	cwd := opts.Cwd
	if cwd == "" {
		cwd = filepath.Dir(opts.CardPath)
	}
	limit := opts.StreamLimit
	if limit <= 0 {
		limit = defaultStreamLimit
	}

	log := logging.For("agentconn")
	log.Debug().Strs("argv", argv).Str("cwd", cwd).Msg("starting agent subprocess")

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create agent stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("create agent stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("start agent subprocess: %w", err)
	}

	conn := acp.NewClientSideConnection(opts.Handler, stdin, newLineGuard(stdout, limit))
	conn.SetLogger(slog.New(slog.NewTextHandler(log, &slog.HandlerOptions{Level: slog.LevelWarn})))

	c := &Conn{cmd: cmd, conn: conn, stdin: stdin, cwd: cwd, log: log}

	if _, err := conn.Initialize(ctx, acp.InitializeRequest{
		ProtocolVersion: acp.ProtocolVersionNumber,
		ClientCapabilities: acp.ClientCapabilities{
			Fs: acp.FileSystemCapability{
				ReadTextFile:  false,
				WriteTextFile: false,
			},
			Terminal: false,
		},
	}); err != nil {
		_ = c.Close()
		if cmd.ProcessState != nil && cmd.ProcessState.Exited() {
			return nil, fmt.Errorf("initialize agent connection (agent exited with code %d): %w",
				cmd.ProcessState.ExitCode(), err)
		}
		return nil, fmt.Errorf("initialize agent connection: %w", err)
	}

	return c, nil
}

// Cwd returns the resolved working directory of the subprocess, which
// is also the root for sessions created on this connection.
func (c *Conn) Cwd() string {
	return c.cwd
}

// NewSession opens a fresh agent session rooted at cwd.
func (c *Conn) NewSession(ctx context.Context, cwd string) (Session, error) {
	resp, err := c.conn.NewSession(ctx, acp.NewSessionRequest{
		Cwd:        cwd,
		McpServers: []acp.McpServer{},
	})
	if err != nil {
		return Session{}, fmt.Errorf("create agent session: %w", err)
	}

	sess := Session{ID: string(resp.SessionId)}
	if resp.Modes != nil {
		for _, m := range resp.Modes.AvailableModes {
			sess.ModeIDs = append(sess.ModeIDs, string(m.Id))
		}
	}
	c.log.Debug().Str("session_id", sess.ID).Strs("modes", sess.ModeIDs).Msg("agent session created")
	return sess, nil
}

// SetMode switches the session into the given mode id. Errors come
// back classified like Prompt's, since a stale session can surface
// here first when a mode is configured.
func (c *Conn) SetMode(ctx context.Context, sessionID, modeID string) error {
	_, err := c.conn.SetSessionMode(ctx, acp.SetSessionModeRequest{
		SessionId: acp.SessionId(sessionID),
		ModeId:    acp.SessionModeId(modeID),
	})
	if err != nil {
		return fmt.Errorf("set session mode %q: %w", modeID, classify(err))
	}
	return nil
}

// Prompt sends one user turn and blocks until the agent stops. Errors
// come back classified; callers branch on the kind.
func (c *Conn) Prompt(ctx context.Context, sessionID, text string) (acp.StopReason, error) {
	resp, err := c.conn.Prompt(ctx, acp.PromptRequest{
		SessionId: acp.SessionId(sessionID),
		Prompt:    []acp.ContentBlock{acp.TextBlock(text)},
	})
	if err != nil {
		return "", classify(err)
	}
	return resp.StopReason, nil
}

// Cancel asks the agent to stop the in-flight turn.
func (c *Conn) Cancel(ctx context.Context, sessionID string) error {
	return c.conn.Cancel(ctx, acp.CancelNotification{SessionId: acp.SessionId(sessionID)})
}

// Close shuts the subprocess down: stdin closes first so a well-behaved
// agent exits on its own, then the process is killed and reaped.
func (c *Conn) Close() error {
	_ = c.stdin.Close()
	if c.cmd.Process != nil {
		if c.cmd.ProcessState == nil || !c.cmd.ProcessState.Exited() {
			_ = c.cmd.Process.Kill()
		}
		_ = c.cmd.Wait()
	}
	return nil
}
