package agentconn

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	acp "github.com/coder/acp-go-sdk"
)

func TestResolveCommand(t *testing.T) {
	argv, err := ResolveCommand("my-agent --fast", "/cards/agent.json")
	if err != nil {
		t.Fatalf("ResolveCommand failed: %v", err)
	}

	want := []string{
		"my-agent", "--fast",
		"serve", "--transport", "acp", "--instance-scope", "connection",
		"--card", "/cards/agent.json",
	}
	if len(argv) != len(want) {
		t.Fatalf("argv = %v, want %v", argv, want)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, argv[i], want[i])
		}
	}
}

func TestResolveCommandQuoting(t *testing.T) {
	argv, err := ResolveCommand(`"/opt/my agent/bin" -v`, "/cards/agent.json")
	if err != nil {
		t.Fatalf("ResolveCommand failed: %v", err)
	}
	if argv[0] != "/opt/my agent/bin" || argv[1] != "-v" {
		t.Errorf("quoted command mishandled: %v", argv[:2])
	}
}

func TestResolveCommandErrors(t *testing.T) {
	if _, err := ResolveCommand("", "/cards/agent.json"); err == nil {
		t.Error("expected error for empty command")
	}
	if _, err := ResolveCommand("   ", "/cards/agent.json"); err == nil {
		t.Error("expected error for blank command")
	}
	if _, err := ResolveCommand("my-agent", ""); err == nil {
		t.Error("expected error for empty card path")
	}
}

func TestLineGuardPassesShortLines(t *testing.T) {
	src := strings.NewReader("one\ntwo\nthree\n")
	g := newLineGuard(src, 8)

	out, err := io.ReadAll(g)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(out) != "one\ntwo\nthree\n" {
		t.Errorf("data mangled: %q", out)
	}
}

func TestLineGuardRejectsLongLine(t *testing.T) {
	src := strings.NewReader("short\n" + strings.Repeat("x", 100) + "\n")
	g := newLineGuard(src, 16)

	_, err := io.ReadAll(g)
	if !errors.Is(err, ErrStreamLimit) {
		t.Errorf("err = %v, want ErrStreamLimit", err)
	}
}

func TestLineGuardResetsAtNewline(t *testing.T) {
	// Each line is at the cap, so only a line crossing it may fail.
	src := strings.NewReader(strings.Repeat(strings.Repeat("y", 8)+"\n", 5))
	g := newLineGuard(src, 8)

	if _, err := io.ReadAll(g); err != nil {
		t.Errorf("lines at exactly the cap should pass: %v", err)
	}
}

func TestDecodeUpdateAgentText(t *testing.T) {
	raw := acp.SessionUpdate{
		AgentMessageChunk: &acp.SessionUpdateAgentMessageChunk{
			Content: acp.TextBlock("hello"),
		},
	}

	u := DecodeUpdate(raw)
	if u.Kind != UpdateAgentText {
		t.Fatalf("Kind = %v, want UpdateAgentText", u.Kind)
	}
	if u.Text != "hello" {
		t.Errorf("Text = %q, want hello", u.Text)
	}
}

func TestDecodeUpdateToolCall(t *testing.T) {
	raw := acp.SessionUpdate{
		ToolCall: &acp.SessionUpdateToolCall{Title: "read file"},
	}

	u := DecodeUpdate(raw)
	if u.Kind != UpdateToolCallStart {
		t.Fatalf("Kind = %v, want UpdateToolCallStart", u.Kind)
	}
	if u.Title != "read file" {
		t.Errorf("Title = %q, want %q", u.Title, "read file")
	}
}

func TestDecodeUpdateUnknown(t *testing.T) {
	if u := DecodeUpdate(acp.SessionUpdate{}); u.Kind != UpdateOther {
		t.Errorf("Kind = %v, want UpdateOther", u.Kind)
	}
}

func TestClassifySessionNotFound(t *testing.T) {
	err := classify(fmt.Errorf("rpc: Session not found: sess-1"))
	if err.Kind != KindSessionNotFound {
		t.Errorf("Kind = %v, want KindSessionNotFound", err.Kind)
	}
	if !IsSessionNotFound(err) {
		t.Error("IsSessionNotFound should report true")
	}
}

func TestClassifyOther(t *testing.T) {
	err := classify(fmt.Errorf("connection reset"))
	if err.Kind != KindOther {
		t.Errorf("Kind = %v, want KindOther", err.Kind)
	}
	if IsSessionNotFound(err) {
		t.Error("IsSessionNotFound should report false")
	}
}

func TestIsSessionNotFoundWrapped(t *testing.T) {
	inner := classify(fmt.Errorf("Session not found"))
	wrapped := fmt.Errorf("prompt failed: %w", inner)
	if !IsSessionNotFound(wrapped) {
		t.Error("classification should survive wrapping")
	}
}
