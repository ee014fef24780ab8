// Package server is the local-socket proxy service: one long-lived
// agent subprocess shared by short-lived socket clients, one prompt
// cycle in flight at a time.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/acpcall/acpcall/internal/agentconn"
	"github.com/acpcall/acpcall/internal/event"
	"github.com/acpcall/acpcall/internal/logging"
	"github.com/acpcall/acpcall/internal/session"
)

// Options configures the service.
type Options struct {
	SocketPath    string
	ServerCommand string
	CardPath      string
	// ServerCwd roots agent sessions; defaults to the card's directory.
	ServerCwd string
	// StreamLimit caps a single agent stdio line, in bytes.
	StreamLimit int
}

// Server owns the agent subprocess and the unix socket listener.
type Server struct {
	opts      Options
	serverCwd string
	relay     *relayClient
	agent     session.Agent
	ln        net.Listener

	// inFlight serializes prompt cycles process-wide. TryLock failure
	// is the busy signal; nothing ever queues.
	inFlight sync.Mutex

	log zerolog.Logger
}

// New validates the configuration. The subprocess is not started until
// Run.
func New(opts Options) (*Server, error) {
	if opts.CardPath == "" {
		return nil, fmt.Errorf("agent card path is required")
	}
	card, err := filepath.Abs(opts.CardPath)
	if err != nil {
		return nil, fmt.Errorf("resolve agent card path: %w", err)
	}
	if _, err := os.Stat(card); err != nil {
		return nil, fmt.Errorf("agent card path not found: %s", card)
	}
	opts.CardPath = card

	cwd := opts.ServerCwd
	if cwd == "" {
		cwd = filepath.Dir(card)
	}
	info, err := os.Stat(cwd)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("server cwd not found: %s", cwd)
	}

	return &Server{
		opts:      opts,
		serverCwd: cwd,
		relay:     newRelayClient(),
		log:       logging.For("service"),
	}, nil
}

// Run starts the agent subprocess, binds the socket, and serves until
// ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.prepareSocketPath(); err != nil {
		return err
	}

	agent, err := agentconn.Spawn(ctx, agentconn.Options{
		ServerCommand: s.opts.ServerCommand,
		CardPath:      s.opts.CardPath,
		Cwd:           s.serverCwd,
		StreamLimit:   s.opts.StreamLimit,
		Handler:       s.relay,
	})
	if err != nil {
		return err
	}
	s.agent = agent
	defer func() {
		_ = agent.Close()
	}()

	ln, err := net.Listen("unix", s.opts.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.SocketPath, err)
	}
	s.ln = ln
	defer func() {
		_ = ln.Close()
		_ = os.Remove(s.opts.SocketPath)
	}()

	s.log.Info().Str("socket", s.opts.SocketPath).Msg("service listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info().Msg("service shutting down")
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

// prepareSocketPath unlinks a stale socket file; anything else at the
// path is a configuration error.
func (s *Server) prepareSocketPath() error {
	path := s.opts.SocketPath
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(filepath.Dir(path), 0o755)
		}
		return fmt.Errorf("stat socket path: %w", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("socket path exists and is not a socket: %s", path)
	}
	return os.Remove(path)
}

// promptEnvelope is the first message of a cycle, with session_id kept
// raw so a wrong type gets its own diagnostic.
type promptEnvelope struct {
	Type                 string          `json:"type"`
	SessionID            json.RawMessage `json:"session_id"`
	Prompt               string          `json:"prompt"`
	ModeID               string          `json:"mode_id"`
	AutoApprove          bool            `json:"auto_approve"`
	AllowAlways          bool            `json:"allow_always"`
	ShowTools            bool            `json:"show_tools"`
	StripLeadingNewlines bool            `json:"strip_leading_newlines"`
}

// parseSessionID accepts a JSON string, null, or absence. Whitespace
// collapses to empty, which means "open a fresh session".
func parseSessionID(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", err
	}
	return strings.TrimSpace(id), nil
}

// handleConn runs one prompt cycle: IDLE until the lock is held, ACTIVE
// while the prompt is driven, DONE when the terminal message is sent.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	wire := NewWriter(conn)

	if !s.inFlight.TryLock() {
		_ = wire.Send(Message{Type: TypeError, ErrMessage: "ACP service busy; try again later."})
		return
	}
	defer s.inFlight.Unlock()

	reader := NewReader(conn)
	line, err := reader.NextLine()
	if err != nil {
		return
	}

	var req promptEnvelope
	if err := json.Unmarshal(line, &req); err != nil {
		return
	}
	if req.Type != string(TypePrompt) {
		_ = wire.Send(Message{Type: TypeError, ErrMessage: "Expected prompt request."})
		return
	}
	if req.Prompt == "" {
		_ = wire.Send(Message{Type: TypeError, ErrMessage: "prompt is required."})
		return
	}
	sessionID, err := parseSessionID(req.SessionID)
	if err != nil {
		_ = wire.Send(Message{Type: TypeError, ErrMessage: "session_id must be a string or null."})
		return
	}

	requestID := ulid.Make().String()
	s.log.Info().Str("request_id", requestID).Str("session_id", sessionID).Msg("prompt cycle started")
	event.Publish(event.Event{Type: event.CycleStarted, Data: event.CycleStartedData{RequestID: requestID}})

	active := newActiveRequest(wire, req)
	s.relay.attach(active)
	defer s.relay.detach()

	// Listener: forwards permission answers until the client stream
	// ends. Closing the channel reads as a cancelled answer.
	go func() {
		for {
			msg, err := reader.Next()
			if err != nil {
				close(active.answers)
				return
			}
			if msg.Type == TypePermissionResponse {
				select {
				case active.answers <- msg.OptionID:
				default:
				}
			}
		}
	}()

	runner := &session.Runner{
		Agent:  s.agent,
		Cwd:    s.serverCwd,
		ModeID: req.ModeID,
		Report: active.sendError,
	}

	finalID, err := runner.Send(ctx, sessionID, req.Prompt)
	if err != nil {
		active.sendError(fmt.Sprintf("ACP service error: %v", err))
		// The client can still persist the session it asked for.
		if sessionID != "" {
			_ = wire.Send(Message{Type: TypeDone, SessionID: &sessionID})
		}
		s.log.Error().Err(err).Str("request_id", requestID).Msg("prompt cycle failed")
		event.Publish(event.Event{Type: event.CycleFinished, Data: event.CycleFinishedData{RequestID: requestID, Err: err.Error()}})
		return
	}

	_ = wire.Send(Message{Type: TypeDone, SessionID: &finalID})
	s.log.Info().Str("request_id", requestID).Str("session_id", finalID).Msg("prompt cycle finished")
	event.Publish(event.Event{Type: event.CycleFinished, Data: event.CycleFinishedData{RequestID: requestID}})
}
