package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acpcall/acpcall/internal/logging"
	"github.com/acpcall/acpcall/internal/permission"
	"github.com/acpcall/acpcall/internal/server"
)

// SocketOptions configures a run against an already-running socket
// service.
type SocketOptions struct {
	SocketPath string
	DBPath     string

	ChatID string
	Prompt string
	ModeID string

	AutoApprove          bool
	AllowAlways          bool
	StripLeadingNewlines bool
	ChunkDelimiter       bool
	ShowTools            bool

	// Wait keeps retrying the dial for this long before the transport
	// error becomes fatal. Zero means a single attempt.
	Wait time.Duration

	Interactive bool
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
}

// RunSocket sends one prompt to the service and relays its messages
// until the cycle is done or the connection drops.
func RunSocket(ctx context.Context, opts SocketOptions) error {
	st := openStore(opts.DBPath)
	if st != nil {
		defer st.Close()
	}
	sessionID := lookupSession(ctx, st, opts.ChatID)

	conn, err := dial(ctx, opts.SocketPath, opts.Wait)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := server.Message{
		Type:                 server.TypePrompt,
		Prompt:               opts.Prompt,
		ModeID:               opts.ModeID,
		AutoApprove:          opts.AutoApprove || opts.AllowAlways,
		AllowAlways:          opts.AllowAlways,
		ShowTools:            opts.ShowTools,
		StripLeadingNewlines: opts.StripLeadingNewlines,
	}
	if sessionID != "" {
		req.SessionID = &sessionID
	}

	wire := server.NewWriter(conn)
	if err := wire.Send(req); err != nil {
		return fmt.Errorf("send prompt to service: %w", err)
	}

	resolver := &permission.Resolver{
		AutoApprove: opts.AutoApprove || opts.AllowAlways,
		AllowAlways: opts.AllowAlways,
		Interactive: opts.Interactive,
		Input:       opts.Stdin,
		Err:         opts.Stderr,
	}

	reader := server.NewReader(conn)
	delimiterActive := false
	flushDelimiter := func() {
		if delimiterActive {
			fmt.Fprintln(opts.Stderr)
			delimiterActive = false
		}
	}

	for {
		msg, err := reader.Next()
		if err != nil {
			// EOF or a torn line from a dying service both end the
			// cycle; anything persisted so far stays persisted.
			flushDelimiter()
			return nil
		}

		if msg.Type == server.TypeChunk {
			if msg.Text != "" {
				fmt.Fprint(opts.Stdout, msg.Text)
				if opts.ChunkDelimiter {
					fmt.Fprint(opts.Stderr, ".")
					delimiterActive = true
				}
			}
			continue
		}
		flushDelimiter()

		switch msg.Type {
		case server.TypeError:
			text := msg.ErrMessage
			if text == "" {
				text = "Unknown ACP error."
			}
			fmt.Fprintf(opts.Stderr, "[acp][error] %s\n", text)

		case server.TypeTool:
			fmt.Fprintf(opts.Stderr, "[acp] Tool update: %s\n", msg.Title)

		case server.TypePermissionRequest:
			resp := server.Message{Type: server.TypePermissionResponse}
			if optionID, ok := resolver.Resolve(msg.Title, msg.Options); ok {
				resp.OptionID = &optionID
			}
			if err := wire.Send(resp); err != nil {
				return fmt.Errorf("send permission response: %w", err)
			}

		case server.TypeDone:
			if msg.SessionID != nil && *msg.SessionID != "" {
				persistSession(ctx, st, opts.ChatID, *msg.SessionID)
			}
			return nil

		default:
			logging.Debug().Str("type", string(msg.Type)).Msg("unknown service message")
		}
	}
}

// dial connects to the service socket, optionally retrying with
// exponential backoff while the service comes up.
func dial(ctx context.Context, path string, wait time.Duration) (net.Conn, error) {
	attempt := func() (net.Conn, error) {
		return net.Dial("unix", path)
	}

	conn, err := attempt()
	if err == nil || wait <= 0 {
		return conn, wrapDialError(err, path)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = wait

	err = backoff.Retry(func() error {
		var retryErr error
		conn, retryErr = attempt()
		return retryErr
	}, backoff.WithContext(policy, ctx))
	return conn, wrapDialError(err, path)
}

func wrapDialError(err error, path string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ACP service socket not found: %s", path)
	}
	return fmt.Errorf("failed to connect to ACP service: %w", err)
}
