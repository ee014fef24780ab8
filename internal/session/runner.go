// Package session drives prompt turns against the agent, creating and
// recovering sessions as needed.
package session

import (
	"context"
	"fmt"
	"slices"

	acp "github.com/coder/acp-go-sdk"

	"github.com/acpcall/acpcall/internal/agentconn"
	"github.com/acpcall/acpcall/internal/event"
	"github.com/acpcall/acpcall/internal/logging"
)

// Agent is the slice of the subprocess connection the runner needs.
type Agent interface {
	NewSession(ctx context.Context, cwd string) (agentconn.Session, error)
	SetMode(ctx context.Context, sessionID, modeID string) error
	Prompt(ctx context.Context, sessionID, text string) (acp.StopReason, error)
}

// Runner sends one prompt per call, transparently replacing a session
// the agent refuses or no longer knows. At most one replacement happens
// per call; a failure after that propagates.
type Runner struct {
	Agent Agent
	// Cwd roots new sessions.
	Cwd string
	// ModeID, when set, is applied to the session before each prompt.
	ModeID string
	// ChatID tags lifecycle events; informational only.
	ChatID string
	// Persist, when non-nil, records a newly created session id.
	Persist func(sessionID string)
	// Report, when non-nil, receives human-readable diagnostics.
	Report func(msg string)
}

// Send runs one prompt turn. An empty sessionID opens a fresh session
// first. The returned id is the session the prompt finally ran on.
func (r *Runner) Send(ctx context.Context, sessionID, prompt string) (string, error) {
	if sessionID == "" {
		sess, err := r.createSession(ctx)
		if err != nil {
			return "", err
		}
		sessionID = sess.ID
		event.Publish(event.Event{
			Type: event.SessionCreated,
			Data: event.SessionCreatedData{ChatID: r.ChatID, SessionID: sessionID},
		})
	}

	// A stale session can fail at the mode step before the prompt is
	// ever issued; that counts as the same not-found recovery.
	if r.ModeID != "" {
		if err := r.Agent.SetMode(ctx, sessionID, r.ModeID); err != nil {
			r.report(fmt.Sprintf("ACP request failed: %v", err))
			if !agentconn.IsSessionNotFound(err) {
				return "", err
			}
			logging.Warn().Str("chat_id", r.ChatID).Str("session_id", sessionID).
				Msg("agent session not found; creating a new session")
			r.report(fmt.Sprintf("ACP session not found: %s", sessionID))
			return r.recover(ctx, sessionID, prompt, event.ReasonSessionNotFound)
		}
	}

	stop, err := r.Agent.Prompt(ctx, sessionID, prompt)
	if err != nil {
		r.report(fmt.Sprintf("ACP request failed: %v", err))
		if !agentconn.IsSessionNotFound(err) {
			return "", err
		}
		logging.Warn().Str("chat_id", r.ChatID).Str("session_id", sessionID).
			Msg("agent session not found; creating a new session")
		r.report(fmt.Sprintf("ACP session not found: %s", sessionID))
		return r.recover(ctx, sessionID, prompt, event.ReasonSessionNotFound)
	}

	if stop == acp.StopReasonRefusal {
		r.report(fmt.Sprintf("ACP prompt refused for session %s", sessionID))
		return r.recover(ctx, sessionID, prompt, event.ReasonRefusal)
	}

	event.Publish(event.Event{
		Type: event.PromptCompleted,
		Data: event.PromptCompletedData{SessionID: sessionID, StopReason: string(stop)},
	})
	return sessionID, nil
}

// recover opens a replacement session and retries the prompt exactly
// once. A second refusal or any error here is final.
func (r *Runner) recover(ctx context.Context, oldID, prompt string, reason event.RecoveryReason) (string, error) {
	sess, err := r.createSession(ctx)
	if err != nil {
		return "", err
	}

	event.Publish(event.Event{
		Type: event.SessionRecovered,
		Data: event.SessionRecoveredData{OldSessionID: oldID, NewSessionID: sess.ID, Reason: reason},
	})

	if r.ModeID != "" {
		if err := r.Agent.SetMode(ctx, sess.ID, r.ModeID); err != nil {
			return "", err
		}
	}

	stop, err := r.Agent.Prompt(ctx, sess.ID, prompt)
	if err != nil {
		r.report(fmt.Sprintf("ACP request failed: %v", err))
		return "", err
	}
	if stop == acp.StopReasonRefusal {
		return "", fmt.Errorf("agent refused prompt again on fresh session %s", sess.ID)
	}

	event.Publish(event.Event{
		Type: event.PromptCompleted,
		Data: event.PromptCompletedData{SessionID: sess.ID, StopReason: string(stop)},
	})
	return sess.ID, nil
}

// createSession opens a session, checks the configured mode against
// what the agent advertises, and persists the id right away so the
// mapping survives even if the prompt later fails.
func (r *Runner) createSession(ctx context.Context) (agentconn.Session, error) {
	sess, err := r.Agent.NewSession(ctx, r.Cwd)
	if err != nil {
		return agentconn.Session{}, err
	}
	if sess.ID == "" {
		return agentconn.Session{}, fmt.Errorf("agent did not return a session id")
	}
	if r.ModeID != "" && len(sess.ModeIDs) > 0 && !slices.Contains(sess.ModeIDs, r.ModeID) {
		return agentconn.Session{}, fmt.Errorf("mode %q not offered by agent (available: %v)", r.ModeID, sess.ModeIDs)
	}
	if r.Persist != nil {
		r.Persist(sess.ID)
	}
	return sess, nil
}

func (r *Runner) report(msg string) {
	if r.Report != nil {
		r.Report(msg)
	}
}
