package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	acp "github.com/coder/acp-go-sdk"

	"github.com/acpcall/acpcall/internal/agentconn"
	"github.com/acpcall/acpcall/internal/logging"
	"github.com/acpcall/acpcall/internal/permission"
)

// scriptedAgent plays the agent side of a cycle. Its prompt function
// can push updates through the relay, the way the real subprocess
// callbacks do.
type scriptedAgent struct {
	relay       *relayClient
	nextSession int
	prompt      func(a *scriptedAgent, sessionID string) (acp.StopReason, error)
}

func (a *scriptedAgent) NewSession(ctx context.Context, cwd string) (agentconn.Session, error) {
	a.nextSession++
	return agentconn.Session{ID: fmt.Sprintf("sess-%d", a.nextSession)}, nil
}

func (a *scriptedAgent) SetMode(ctx context.Context, sessionID, modeID string) error {
	return nil
}

func (a *scriptedAgent) Prompt(ctx context.Context, sessionID, text string) (acp.StopReason, error) {
	return a.prompt(a, sessionID)
}

func (a *scriptedAgent) chunk(text string) {
	_ = a.relay.SessionUpdate(context.Background(), acp.SessionNotification{
		Update: acp.SessionUpdate{
			AgentMessageChunk: &acp.SessionUpdateAgentMessageChunk{Content: acp.TextBlock(text)},
		},
	})
}

func (a *scriptedAgent) toolStart(title string) {
	_ = a.relay.SessionUpdate(context.Background(), acp.SessionNotification{
		Update: acp.SessionUpdate{
			ToolCall: &acp.SessionUpdateToolCall{Title: title},
		},
	})
}

func newTestServer(prompt func(a *scriptedAgent, sessionID string) (acp.StopReason, error)) (*Server, *scriptedAgent) {
	relay := newRelayClient()
	agent := &scriptedAgent{relay: relay, prompt: prompt}
	s := &Server{
		relay:     relay,
		agent:     agent,
		serverCwd: "/",
		log:       logging.For("service-test"),
	}
	return s, agent
}

// connPair returns both ends of a connected unix socket. Unlike
// net.Pipe it has kernel buffering, matching the real transport: the
// busy path writes before reading, which deadlocks a synchronous pipe.
func connPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "t.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	clientSide, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	serverSide, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return serverSide, clientSide
}

// runCycle starts handleConn on one end of a pipe and returns the other
// end's reader/writer.
func runCycle(t *testing.T, s *Server) (*Writer, *Reader, func()) {
	t.Helper()
	serverSide, clientSide := connPair(t)
	done := make(chan struct{})
	go func() {
		s.handleConn(context.Background(), serverSide)
		close(done)
	}()
	cleanup := func() {
		_ = clientSide.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("handleConn did not finish")
		}
	}
	return NewWriter(clientSide), NewReader(clientSide), cleanup
}

func sendPrompt(t *testing.T, w *Writer, msg Message) {
	t.Helper()
	msg.Type = TypePrompt
	if err := w.Send(msg); err != nil {
		t.Fatalf("send prompt: %v", err)
	}
}

func readMsg(t *testing.T, r *Reader) Message {
	t.Helper()
	msg, err := r.Next()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestPromptChunksDone(t *testing.T) {
	s, _ := newTestServer(func(a *scriptedAgent, sessionID string) (acp.StopReason, error) {
		a.chunk("hello ")
		a.chunk("world")
		return acp.StopReasonEndTurn, nil
	})
	w, r, cleanup := runCycle(t, s)
	defer cleanup()

	sendPrompt(t, w, Message{Prompt: "hi"})

	if m := readMsg(t, r); m.Type != TypeChunk || m.Text != "hello " {
		t.Errorf("first message = %+v", m)
	}
	if m := readMsg(t, r); m.Type != TypeChunk || m.Text != "world" {
		t.Errorf("second message = %+v", m)
	}
	m := readMsg(t, r)
	if m.Type != TypeDone || m.SessionID == nil || *m.SessionID != "sess-1" {
		t.Errorf("final message = %+v", m)
	}
}

func TestExistingSessionPassedThrough(t *testing.T) {
	var prompted string
	s, _ := newTestServer(func(a *scriptedAgent, sessionID string) (acp.StopReason, error) {
		prompted = sessionID
		return acp.StopReasonEndTurn, nil
	})
	w, r, cleanup := runCycle(t, s)
	defer cleanup()

	sid := "sess-known"
	sendPrompt(t, w, Message{Prompt: "hi", SessionID: &sid})

	m := readMsg(t, r)
	if m.Type != TypeDone || *m.SessionID != "sess-known" {
		t.Errorf("done = %+v", m)
	}
	if prompted != "sess-known" {
		t.Errorf("prompted session = %q", prompted)
	}
}

func TestBusyRejection(t *testing.T) {
	release := make(chan struct{})
	s, _ := newTestServer(func(a *scriptedAgent, sessionID string) (acp.StopReason, error) {
		<-release
		return acp.StopReasonEndTurn, nil
	})

	w1, r1, cleanup1 := runCycle(t, s)
	defer cleanup1()
	sendPrompt(t, w1, Message{Prompt: "first"})

	// Wait for the first cycle to take the lock.
	deadline := time.Now().Add(2 * time.Second)
	for s.inFlight.TryLock() {
		s.inFlight.Unlock()
		if time.Now().After(deadline) {
			t.Fatal("first cycle never took the lock")
		}
		time.Sleep(5 * time.Millisecond)
	}

	w2, r2, cleanup2 := runCycle(t, s)
	defer cleanup2()
	sendPrompt(t, w2, Message{Prompt: "second"})

	m := readMsg(t, r2)
	if m.Type != TypeError || m.ErrMessage != "ACP service busy; try again later." {
		t.Errorf("busy response = %+v", m)
	}

	close(release)
	if m := readMsg(t, r1); m.Type != TypeDone {
		t.Errorf("first cycle final = %+v", m)
	}
}

func TestRejectsNonPromptFirstMessage(t *testing.T) {
	s, _ := newTestServer(nil)
	w, r, cleanup := runCycle(t, s)
	defer cleanup()

	if err := w.Send(Message{Type: TypePermissionResponse}); err != nil {
		t.Fatalf("send: %v", err)
	}
	m := readMsg(t, r)
	if m.Type != TypeError || m.ErrMessage != "Expected prompt request." {
		t.Errorf("response = %+v", m)
	}
}

func TestRejectsEmptyPrompt(t *testing.T) {
	s, _ := newTestServer(nil)
	w, r, cleanup := runCycle(t, s)
	defer cleanup()

	sendPrompt(t, w, Message{})
	m := readMsg(t, r)
	if m.Type != TypeError || m.ErrMessage != "prompt is required." {
		t.Errorf("response = %+v", m)
	}
}

func TestRejectsNonStringSessionID(t *testing.T) {
	s, _ := newTestServer(nil)
	serverSide, clientSide := net.Pipe()
	go s.handleConn(context.Background(), serverSide)
	defer clientSide.Close()

	if _, err := clientSide.Write([]byte(`{"type":"prompt","prompt":"hi","session_id":42}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := readMsg(t, NewReader(clientSide))
	if m.Type != TypeError || m.ErrMessage != "session_id must be a string or null." {
		t.Errorf("response = %+v", m)
	}
}

func TestPermissionRoundTrip(t *testing.T) {
	var granted acp.RequestPermissionResponse
	title := "run tests"
	s, _ := newTestServer(func(a *scriptedAgent, sessionID string) (acp.StopReason, error) {
		resp, err := a.relay.RequestPermission(context.Background(), acp.RequestPermissionRequest{
			SessionId: acp.SessionId(sessionID),
			ToolCall:  acp.RequestPermissionToolCall{Title: &title},
			Options: []acp.PermissionOption{
				{OptionId: "allow_once", Name: "Allow once", Kind: acp.PermissionOptionKindAllowOnce},
				{OptionId: "reject_once", Name: "Reject", Kind: acp.PermissionOptionKindRejectOnce},
			},
		})
		if err != nil {
			return "", err
		}
		granted = resp
		return acp.StopReasonEndTurn, nil
	})
	w, r, cleanup := runCycle(t, s)
	defer cleanup()

	sendPrompt(t, w, Message{Prompt: "hi"})

	m := readMsg(t, r)
	if m.Type != TypePermissionRequest || m.Title != "run tests" {
		t.Fatalf("permission request = %+v", m)
	}
	if len(m.Options) != 2 || m.Options[0].ID != "allow_once" {
		t.Fatalf("options = %+v", m.Options)
	}

	choice := "allow_once"
	if err := w.Send(Message{Type: TypePermissionResponse, OptionID: &choice}); err != nil {
		t.Fatalf("send answer: %v", err)
	}

	if m := readMsg(t, r); m.Type != TypeDone {
		t.Errorf("final = %+v", m)
	}
	if granted.Outcome.Selected == nil || granted.Outcome.Selected.OptionId != "allow_once" {
		t.Errorf("granted outcome = %+v", granted)
	}
}

func TestPermissionAutoApprove(t *testing.T) {
	var granted acp.RequestPermissionResponse
	s, _ := newTestServer(func(a *scriptedAgent, sessionID string) (acp.StopReason, error) {
		resp, _ := a.relay.RequestPermission(context.Background(), acp.RequestPermissionRequest{
			Options: []acp.PermissionOption{
				{OptionId: "allow_always", Name: "Always", Kind: acp.PermissionOptionKindAllowAlways},
			},
		})
		granted = resp
		return acp.StopReasonEndTurn, nil
	})
	w, r, cleanup := runCycle(t, s)
	defer cleanup()

	sendPrompt(t, w, Message{Prompt: "hi", AutoApprove: true, AllowAlways: true})

	// No permission_request reaches the wire; flow runs straight to done.
	if m := readMsg(t, r); m.Type != TypeDone {
		t.Errorf("final = %+v", m)
	}
	if granted.Outcome.Selected == nil || granted.Outcome.Selected.OptionId != permission.OptionAllowAlways {
		t.Errorf("granted outcome = %+v", granted)
	}
}

func TestStripLeadingNewlinesFirstChunkOnly(t *testing.T) {
	s, _ := newTestServer(func(a *scriptedAgent, sessionID string) (acp.StopReason, error) {
		a.chunk("\n\n")
		a.chunk("\nfirst")
		a.chunk("\nsecond")
		return acp.StopReasonEndTurn, nil
	})
	w, r, cleanup := runCycle(t, s)
	defer cleanup()

	sendPrompt(t, w, Message{Prompt: "hi", StripLeadingNewlines: true})

	if m := readMsg(t, r); m.Text != "first" {
		t.Errorf("first chunk = %q, want %q", m.Text, "first")
	}
	if m := readMsg(t, r); m.Text != "\nsecond" {
		t.Errorf("second chunk = %q, want %q", m.Text, "\nsecond")
	}
	if m := readMsg(t, r); m.Type != TypeDone {
		t.Errorf("final = %+v", m)
	}
}

func TestToolEventsOnlyWhenRequested(t *testing.T) {
	s, _ := newTestServer(func(a *scriptedAgent, sessionID string) (acp.StopReason, error) {
		a.toolStart("grep")
		a.chunk("after tool")
		return acp.StopReasonEndTurn, nil
	})

	// show_tools off: the tool update is swallowed.
	w, r, cleanup := runCycle(t, s)
	sendPrompt(t, w, Message{Prompt: "hi"})
	if m := readMsg(t, r); m.Type != TypeChunk || m.Text != "after tool" {
		t.Errorf("first message = %+v, want chunk", m)
	}
	if m := readMsg(t, r); m.Type != TypeDone {
		t.Errorf("final = %+v", m)
	}
	cleanup()

	// show_tools on: the tool event comes through first.
	w, r, cleanup = runCycle(t, s)
	defer cleanup()
	sendPrompt(t, w, Message{Prompt: "hi", ShowTools: true})
	m := readMsg(t, r)
	if m.Type != TypeTool || m.Event != "tool_call_start" || m.Title != "grep" {
		t.Errorf("tool message = %+v", m)
	}
}

func TestRefusalRecoveredByService(t *testing.T) {
	s, _ := newTestServer(func(a *scriptedAgent, sessionID string) (acp.StopReason, error) {
		if sessionID == "sess-stale" {
			return acp.StopReasonRefusal, nil
		}
		a.chunk("recovered")
		return acp.StopReasonEndTurn, nil
	})
	w, r, cleanup := runCycle(t, s)
	defer cleanup()

	sid := "sess-stale"
	sendPrompt(t, w, Message{Prompt: "hi", SessionID: &sid})

	m := readMsg(t, r)
	if m.Type != TypeError || !strings.Contains(m.ErrMessage, "refused for session sess-stale") {
		t.Errorf("diagnostic = %+v", m)
	}
	if m := readMsg(t, r); m.Type != TypeChunk || m.Text != "recovered" {
		t.Errorf("chunk = %+v", m)
	}
	m = readMsg(t, r)
	if m.Type != TypeDone || *m.SessionID != "sess-1" {
		t.Errorf("done = %+v", m)
	}
}

func TestErrorStillSendsDoneWithKnownSession(t *testing.T) {
	s, _ := newTestServer(func(a *scriptedAgent, sessionID string) (acp.StopReason, error) {
		return "", &agentconn.RequestError{Kind: agentconn.KindOther, Err: fmt.Errorf("agent crashed")}
	})
	w, r, cleanup := runCycle(t, s)
	defer cleanup()

	sid := "sess-known"
	sendPrompt(t, w, Message{Prompt: "hi", SessionID: &sid})

	sawServiceError := false
	var final Message
	for {
		m := readMsg(t, r)
		if m.Type == TypeError && strings.Contains(m.ErrMessage, "ACP service error") {
			sawServiceError = true
			continue
		}
		if m.Type == TypeError {
			continue
		}
		final = m
		break
	}
	if !sawServiceError {
		t.Error("service error diagnostic missing")
	}
	if final.Type != TypeDone || final.SessionID == nil || *final.SessionID != "sess-known" {
		t.Errorf("final = %+v", final)
	}
}

func TestParseSessionID(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{``, "", false},
		{`null`, "", false},
		{`"sess-1"`, "sess-1", false},
		{`"  "`, "", false},
		{`42`, "", true},
		{`{"x":1}`, "", true},
	}
	for _, tc := range cases {
		got, err := parseSessionID(json.RawMessage(tc.raw))
		if (err != nil) != tc.wantErr {
			t.Errorf("parseSessionID(%s) err = %v, wantErr %v", tc.raw, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("parseSessionID(%s) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
