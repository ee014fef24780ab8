package client

import (
	"context"
	"fmt"
	"io"

	acp "github.com/coder/acp-go-sdk"

	"github.com/acpcall/acpcall/internal/agentconn"
	"github.com/acpcall/acpcall/internal/logging"
	"github.com/acpcall/acpcall/internal/permission"
)

// Console is the acp.Client used when this process drives the agent
// itself. Chunks go to Out, everything else (permission menus, dots,
// diagnostics) goes to ErrW so the main stream stays agent text only.
type Console struct {
	Resolver             *permission.Resolver
	StripLeadingNewlines bool
	ChunkDelimiter       bool
	ShowTools            bool
	Out                  io.Writer
	ErrW                 io.Writer

	needsNewline    bool
	startedOutput   bool
	delimiterActive bool
}

func (c *Console) SessionUpdate(ctx context.Context, params acp.SessionNotification) error {
	u := agentconn.DecodeUpdate(params.Update)
	switch u.Kind {
	case agentconn.UpdateAgentText:
		if u.Text == "" {
			return nil
		}
		text := u.Text
		if c.StripLeadingNewlines && !c.startedOutput {
			text = trimLeadingNewlines(text)
			if text == "" {
				return nil
			}
		}
		c.startedOutput = true
		fmt.Fprint(c.Out, text)
		c.needsNewline = text[len(text)-1] != '\n'
		if c.ChunkDelimiter {
			fmt.Fprint(c.ErrW, ".")
			c.delimiterActive = true
		}
	case agentconn.UpdateToolCallStart, agentconn.UpdateToolCallProgress:
		c.flushDelimiter()
		if c.ShowTools {
			fmt.Fprintf(c.ErrW, "[acp] Tool update: %s\n", u.Title)
		} else {
			logging.Debug().Str("title", u.Title).Msg("tool update")
		}
	default:
		c.flushDelimiter()
		logging.Debug().Msg("session update ignored")
	}
	return nil
}

func (c *Console) RequestPermission(ctx context.Context, params acp.RequestPermissionRequest) (acp.RequestPermissionResponse, error) {
	c.flushDelimiter()
	c.breakLine()

	title := ""
	if params.ToolCall.Title != nil {
		title = *params.ToolCall.Title
	}
	options := make([]permission.Option, 0, len(params.Options))
	for _, opt := range params.Options {
		options = append(options, permission.Option{ID: string(opt.OptionId), Name: opt.Name})
	}

	optionID, ok := c.Resolver.Resolve(title, options)
	if !ok {
		return acp.RequestPermissionResponse{Outcome: acp.NewRequestPermissionOutcomeCancelled()}, nil
	}
	return acp.RequestPermissionResponse{
		Outcome: acp.NewRequestPermissionOutcomeSelected(acp.PermissionOptionId(optionID)),
	}, nil
}

// EmitError prints a diagnostic on the error stream, breaking the
// output line first so it never glues onto streamed agent text.
func (c *Console) EmitError(msg string) {
	c.flushDelimiter()
	c.breakLine()
	logging.Error().Msg(msg)
	fmt.Fprintf(c.ErrW, "[acp][error] %s\n", msg)
}

// breakLine terminates a partially written chunk line on stdout before
// any non-chunk output appears.
func (c *Console) breakLine() {
	if c.needsNewline {
		fmt.Fprintln(c.Out)
		c.needsNewline = false
	}
}

func (c *Console) flushDelimiter() {
	if c.delimiterActive {
		fmt.Fprintln(c.ErrW)
		c.delimiterActive = false
	}
}

func trimLeadingNewlines(s string) string {
	for len(s) > 0 && s[0] == '\n' {
		s = s[1:]
	}
	return s
}

// The agent may ask for filesystem or terminal service; this client
// declares both capabilities off and answers every such call with an
// error, which the connection maps to a method-not-found response.

func (c *Console) ReadTextFile(ctx context.Context, params acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	return acp.ReadTextFileResponse{}, fmt.Errorf("fs/read_text_file not supported")
}

func (c *Console) WriteTextFile(ctx context.Context, params acp.WriteTextFileRequest) (acp.WriteTextFileResponse, error) {
	return acp.WriteTextFileResponse{}, fmt.Errorf("fs/write_text_file not supported")
}

func (c *Console) CreateTerminal(ctx context.Context, params acp.CreateTerminalRequest) (acp.CreateTerminalResponse, error) {
	return acp.CreateTerminalResponse{}, fmt.Errorf("terminal/create not supported")
}

func (c *Console) KillTerminalCommand(ctx context.Context, params acp.KillTerminalCommandRequest) (acp.KillTerminalCommandResponse, error) {
	return acp.KillTerminalCommandResponse{}, fmt.Errorf("terminal/kill not supported")
}

func (c *Console) TerminalOutput(ctx context.Context, params acp.TerminalOutputRequest) (acp.TerminalOutputResponse, error) {
	return acp.TerminalOutputResponse{}, fmt.Errorf("terminal/output not supported")
}

func (c *Console) ReleaseTerminal(ctx context.Context, params acp.ReleaseTerminalRequest) (acp.ReleaseTerminalResponse, error) {
	return acp.ReleaseTerminalResponse{}, fmt.Errorf("terminal/release not supported")
}

func (c *Console) WaitForTerminalExit(ctx context.Context, params acp.WaitForTerminalExitRequest) (acp.WaitForTerminalExitResponse, error) {
	return acp.WaitForTerminalExitResponse{}, fmt.Errorf("terminal/wait_for_exit not supported")
}
