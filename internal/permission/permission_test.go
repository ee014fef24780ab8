package permission

import (
	"bytes"
	"strings"
	"testing"
)

var stdOptions = []Option{
	{ID: "allow_once", Name: "Allow once"},
	{ID: "allow_always", Name: "Always allow"},
	{ID: "reject_once", Name: "Reject"},
}

func TestAutoApproveAllowOnce(t *testing.T) {
	r := &Resolver{AutoApprove: true}

	id, ok := r.Resolve("run command", stdOptions)
	if !ok || id != OptionAllowOnce {
		t.Errorf("got (%q, %v), want (allow_once, true)", id, ok)
	}
}

func TestAutoApproveAllowAlways(t *testing.T) {
	r := &Resolver{AutoApprove: true, AllowAlways: true}

	id, ok := r.Resolve("run command", stdOptions)
	if !ok || id != OptionAllowAlways {
		t.Errorf("got (%q, %v), want (allow_always, true)", id, ok)
	}
}

func TestNonInteractiveRejectsOnce(t *testing.T) {
	var errOut bytes.Buffer
	r := &Resolver{Interactive: false, Err: &errOut}

	id, ok := r.Resolve("run command", stdOptions)
	if !ok || id != OptionRejectOnce {
		t.Errorf("got (%q, %v), want (reject_once, true)", id, ok)
	}
	if errOut.Len() != 0 {
		t.Errorf("non-interactive rejection should not prompt: %q", errOut.String())
	}
}

func TestNonInteractiveWithoutRejectOption(t *testing.T) {
	r := &Resolver{Interactive: false}
	options := []Option{{ID: "allow_once", Name: "Allow once"}}

	if id, ok := r.Resolve("run command", options); ok {
		t.Errorf("expected no selection when reject_once is absent, got %q", id)
	}
}

func TestInteractiveSelectByIndex(t *testing.T) {
	var errOut bytes.Buffer
	r := &Resolver{Interactive: true, Input: strings.NewReader("2\n"), Err: &errOut}

	id, ok := r.Resolve("run command", stdOptions)
	if !ok || id != "allow_always" {
		t.Errorf("got (%q, %v), want (allow_always, true)", id, ok)
	}
	if !strings.Contains(errOut.String(), "Permission required: run command") {
		t.Errorf("menu header missing: %q", errOut.String())
	}
	if !strings.Contains(errOut.String(), "2) Always allow (allow_always)") {
		t.Errorf("menu entry missing: %q", errOut.String())
	}
}

func TestInteractiveSelectByID(t *testing.T) {
	var errOut bytes.Buffer
	r := &Resolver{Interactive: true, Input: strings.NewReader("reject_once\n"), Err: &errOut}

	id, ok := r.Resolve("run command", stdOptions)
	if !ok || id != "reject_once" {
		t.Errorf("got (%q, %v), want (reject_once, true)", id, ok)
	}
}

func TestInteractiveInvalidThenValid(t *testing.T) {
	var errOut bytes.Buffer
	r := &Resolver{Interactive: true, Input: strings.NewReader("nope\n1\n"), Err: &errOut}

	id, ok := r.Resolve("run command", stdOptions)
	if !ok || id != "allow_once" {
		t.Errorf("got (%q, %v), want (allow_once, true)", id, ok)
	}
	if !strings.Contains(errOut.String(), "Invalid option. Enter a number or option id.") {
		t.Errorf("invalid-input diagnostic missing: %q", errOut.String())
	}
}

func TestInteractiveEmptyInputConsumesAttempt(t *testing.T) {
	var errOut bytes.Buffer
	// Two blanks then a valid pick: blanks burn attempts silently.
	r := &Resolver{Interactive: true, Input: strings.NewReader("\n\n3\n"), Err: &errOut}

	id, ok := r.Resolve("run command", stdOptions)
	if !ok || id != "reject_once" {
		t.Errorf("got (%q, %v), want (reject_once, true)", id, ok)
	}
	if strings.Contains(errOut.String(), "Invalid option") {
		t.Errorf("blank input should not print the invalid diagnostic: %q", errOut.String())
	}
}

func TestInteractiveExhaustsAttempts(t *testing.T) {
	var errOut bytes.Buffer
	r := &Resolver{Interactive: true, Input: strings.NewReader("a\nb\nc\nd\n"), Err: &errOut}

	if id, ok := r.Resolve("run command", stdOptions); ok {
		t.Errorf("expected no selection after three bad answers, got %q", id)
	}
	if got := strings.Count(errOut.String(), "Select option: "); got != 3 {
		t.Errorf("prompted %d times, want 3", got)
	}
}

func TestInteractiveEOF(t *testing.T) {
	var errOut bytes.Buffer
	r := &Resolver{Interactive: true, Input: strings.NewReader(""), Err: &errOut}

	if id, ok := r.Resolve("run command", stdOptions); ok {
		t.Errorf("expected no selection on EOF, got %q", id)
	}
}

func TestOutOfRangeIndexIsInvalid(t *testing.T) {
	var errOut bytes.Buffer
	r := &Resolver{Interactive: true, Input: strings.NewReader("9\n0\n-1\n"), Err: &errOut}

	if id, ok := r.Resolve("run command", stdOptions); ok {
		t.Errorf("expected no selection for out-of-range indexes, got %q", id)
	}
	if got := strings.Count(errOut.String(), "Invalid option"); got != 3 {
		t.Errorf("invalid diagnostics = %d, want 3", got)
	}
}

func TestNonCanonicalIndexIsInvalid(t *testing.T) {
	var errOut bytes.Buffer
	// "+2" and "02" parse as 2 but do not match the printed index.
	r := &Resolver{Interactive: true, Input: strings.NewReader("+2\n02\n2\n"), Err: &errOut}

	id, ok := r.Resolve("run command", stdOptions)
	if !ok || id != "allow_always" {
		t.Errorf("got (%q, %v), want (allow_always, true)", id, ok)
	}
	if got := strings.Count(errOut.String(), "Invalid option"); got != 2 {
		t.Errorf("invalid diagnostics = %d, want 2", got)
	}
}

func TestEmptyTitleFallsBack(t *testing.T) {
	var errOut bytes.Buffer
	r := &Resolver{Interactive: true, Input: strings.NewReader("1\n"), Err: &errOut}

	r.Resolve("", stdOptions)
	if !strings.Contains(errOut.String(), "Permission required: tool execution") {
		t.Errorf("fallback title missing: %q", errOut.String())
	}
}
