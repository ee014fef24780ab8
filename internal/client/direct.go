package client

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/acpcall/acpcall/internal/agentconn"
	"github.com/acpcall/acpcall/internal/permission"
	"github.com/acpcall/acpcall/internal/session"
)

// DirectOptions configures a run that spawns its own agent subprocess
// instead of going through the socket service.
type DirectOptions struct {
	ServerCommand string
	CardPath      string
	ServerCwd     string
	StreamLimit   int
	DBPath        string

	ChatID string
	Prompt string
	ModeID string

	AutoApprove          bool
	AllowAlways          bool
	StripLeadingNewlines bool
	ChunkDelimiter       bool
	ShowTools            bool

	// Interactive reports whether stdin is a terminal a human can
	// answer permission prompts on.
	Interactive bool
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
}

// RunDirect spawns the agent, resolves the chat id to a session and
// drives one prompt cycle against it, tearing the subprocess down on
// the way out.
func RunDirect(ctx context.Context, opts DirectOptions) error {
	st := openStore(opts.DBPath)
	if st != nil {
		defer st.Close()
	}

	console := &Console{
		Resolver: &permission.Resolver{
			AutoApprove: opts.AutoApprove || opts.AllowAlways,
			AllowAlways: opts.AllowAlways,
			Interactive: opts.Interactive,
			Input:       opts.Stdin,
			Err:         opts.Stderr,
		},
		StripLeadingNewlines: opts.StripLeadingNewlines,
		ChunkDelimiter:       opts.ChunkDelimiter,
		ShowTools:            opts.ShowTools,
		Out:                  opts.Stdout,
		ErrW:                 opts.Stderr,
	}

	conn, err := agentconn.Spawn(ctx, agentconn.Options{
		ServerCommand: opts.ServerCommand,
		CardPath:      opts.CardPath,
		Cwd:           opts.ServerCwd,
		StreamLimit:   opts.StreamLimit,
		Handler:       console,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	sessionID := lookupSession(ctx, st, opts.ChatID)

	// Track the session the prompt is currently bound to so a
	// cancelled context interrupts the right one.
	var current atomic.Value
	current.Store(sessionID)

	stop := context.AfterFunc(ctx, func() {
		if id, _ := current.Load().(string); id != "" {
			_ = conn.Cancel(context.Background(), id)
		}
	})
	defer stop()

	runner := &session.Runner{
		Agent:  conn,
		Cwd:    conn.Cwd(),
		ModeID: opts.ModeID,
		ChatID: opts.ChatID,
		Persist: func(id string) {
			current.Store(id)
			persistSession(context.Background(), st, opts.ChatID, id)
		},
		Report: console.EmitError,
	}

	_, err = runner.Send(ctx, sessionID, opts.Prompt)
	return err
}
