package server

import (
	"context"
	"fmt"
	"strings"
	"sync"

	acp "github.com/coder/acp-go-sdk"

	"github.com/acpcall/acpcall/internal/agentconn"
	"github.com/acpcall/acpcall/internal/event"
	"github.com/acpcall/acpcall/internal/logging"
	"github.com/acpcall/acpcall/internal/permission"
)

// activeRequest is the state of the one in-flight prompt cycle: the
// client's stream, its policy flags, and the channel relaying
// permission answers from the listener goroutine.
type activeRequest struct {
	wire *Writer

	autoApprove          bool
	allowAlways          bool
	showTools            bool
	stripLeadingNewlines bool

	// startedOutput flips after the first delivered chunk; only that
	// chunk is subject to leading-newline stripping. Touched solely by
	// the agent callback goroutine.
	startedOutput bool

	// answers carries permission_response option ids. Closed when the
	// client stream ends, which reads as a cancelled answer.
	answers chan *string
}

func newActiveRequest(wire *Writer, req promptEnvelope) *activeRequest {
	return &activeRequest{
		wire:                 wire,
		autoApprove:          req.AutoApprove,
		allowAlways:          req.AllowAlways,
		showTools:            req.ShowTools,
		stripLeadingNewlines: req.StripLeadingNewlines,
		answers:              make(chan *string, 1),
	}
}

func (a *activeRequest) sendError(msg string) {
	_ = a.wire.Send(Message{Type: TypeError, ErrMessage: msg})
}

// relayClient is the service's acp.Client. It holds a single-slot
// register for the active request; updates arriving between cycles are
// dropped.
type relayClient struct {
	mu     sync.Mutex
	active *activeRequest
}

func newRelayClient() *relayClient {
	return &relayClient{}
}

func (r *relayClient) attach(a *activeRequest) {
	r.mu.Lock()
	r.active = a
	r.mu.Unlock()
}

func (r *relayClient) detach() {
	r.mu.Lock()
	r.active = nil
	r.mu.Unlock()
}

func (r *relayClient) current() *activeRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *relayClient) SessionUpdate(ctx context.Context, params acp.SessionNotification) error {
	active := r.current()
	if active == nil {
		return nil
	}

	u := agentconn.DecodeUpdate(params.Update)
	switch u.Kind {
	case agentconn.UpdateAgentText:
		text := u.Text
		if text == "" {
			return nil
		}
		if active.stripLeadingNewlines && !active.startedOutput {
			text = strings.TrimLeft(text, "\n")
			if text == "" {
				return nil
			}
		}
		active.startedOutput = true
		_ = active.wire.Send(Message{Type: TypeChunk, Text: text})

	case agentconn.UpdateToolCallStart, agentconn.UpdateToolCallProgress:
		eventName := "tool_call_start"
		if u.Kind == agentconn.UpdateToolCallProgress {
			eventName = "tool_call_update"
		}
		if active.showTools {
			_ = active.wire.Send(Message{Type: TypeTool, Event: eventName, Title: u.Title})
		} else {
			logging.Debug().Str("title", u.Title).Msg("tool update")
		}

	default:
		logging.Debug().Msg("unhandled session update")
	}
	return nil
}

func (r *relayClient) RequestPermission(ctx context.Context, params acp.RequestPermissionRequest) (acp.RequestPermissionResponse, error) {
	active := r.current()
	if active == nil {
		return cancelled(), nil
	}

	if active.autoApprove {
		optionID := permission.OptionAllowOnce
		if active.allowAlways {
			optionID = permission.OptionAllowAlways
		}
		event.Publish(event.Event{
			Type: event.PermissionResolved,
			Data: event.PermissionResolvedData{OptionID: optionID, Auto: true},
		})
		return selected(optionID), nil
	}

	title := "tool execution"
	if params.ToolCall.Title != nil && *params.ToolCall.Title != "" {
		title = *params.ToolCall.Title
	}

	options := make([]permission.Option, 0, len(params.Options))
	optionIDs := make([]string, 0, len(params.Options))
	for _, opt := range params.Options {
		options = append(options, permission.Option{ID: string(opt.OptionId), Name: opt.Name})
		optionIDs = append(optionIDs, string(opt.OptionId))
	}

	event.Publish(event.Event{
		Type: event.PermissionRequested,
		Data: event.PermissionRequestedData{Title: title, Options: optionIDs},
	})

	_ = active.wire.Send(Message{Type: TypePermissionRequest, Title: title, Options: options})

	select {
	case <-ctx.Done():
		return cancelled(), nil
	case answer, ok := <-active.answers:
		if !ok || answer == nil || *answer == "" {
			event.Publish(event.Event{
				Type: event.PermissionResolved,
				Data: event.PermissionResolvedData{},
			})
			return cancelled(), nil
		}
		event.Publish(event.Event{
			Type: event.PermissionResolved,
			Data: event.PermissionResolvedData{OptionID: *answer},
		})
		return selected(*answer), nil
	}
}

func selected(optionID string) acp.RequestPermissionResponse {
	return acp.RequestPermissionResponse{
		Outcome: acp.NewRequestPermissionOutcomeSelected(acp.PermissionOptionId(optionID)),
	}
}

func cancelled() acp.RequestPermissionResponse {
	return acp.RequestPermissionResponse{
		Outcome: acp.NewRequestPermissionOutcomeCancelled(),
	}
}

// The agent's fs and terminal capabilities are declared off at
// initialize time, so these should never arrive.

func (r *relayClient) ReadTextFile(ctx context.Context, params acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	return acp.ReadTextFileResponse{}, fmt.Errorf("fs/read_text_file not supported")
}

func (r *relayClient) WriteTextFile(ctx context.Context, params acp.WriteTextFileRequest) (acp.WriteTextFileResponse, error) {
	return acp.WriteTextFileResponse{}, fmt.Errorf("fs/write_text_file not supported")
}

func (r *relayClient) CreateTerminal(ctx context.Context, params acp.CreateTerminalRequest) (acp.CreateTerminalResponse, error) {
	return acp.CreateTerminalResponse{}, fmt.Errorf("terminal/create not supported")
}

func (r *relayClient) KillTerminalCommand(ctx context.Context, params acp.KillTerminalCommandRequest) (acp.KillTerminalCommandResponse, error) {
	return acp.KillTerminalCommandResponse{}, fmt.Errorf("terminal/kill not supported")
}

func (r *relayClient) TerminalOutput(ctx context.Context, params acp.TerminalOutputRequest) (acp.TerminalOutputResponse, error) {
	return acp.TerminalOutputResponse{}, fmt.Errorf("terminal/output not supported")
}

func (r *relayClient) ReleaseTerminal(ctx context.Context, params acp.ReleaseTerminalRequest) (acp.ReleaseTerminalResponse, error) {
	return acp.ReleaseTerminalResponse{}, fmt.Errorf("terminal/release not supported")
}

func (r *relayClient) WaitForTerminalExit(ctx context.Context, params acp.WaitForTerminalExitRequest) (acp.WaitForTerminalExitResponse, error) {
	return acp.WaitForTerminalExitResponse{}, fmt.Errorf("terminal/wait_for_exit not supported")
}
