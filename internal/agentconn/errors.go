package agentconn

import (
	"errors"
	"strings"
)

// ErrorKind classifies a failed agent request.
type ErrorKind int

const (
	// KindOther covers every failure without special handling.
	KindOther ErrorKind = iota
	// KindSessionNotFound means the agent no longer knows the session,
	// typically after a restart.
	KindSessionNotFound
)

// RequestError is an agent request failure with a classified kind.
// Callers branch on Kind instead of inspecting transport errors.
type RequestError struct {
	Kind ErrorKind
	Err  error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// classify wraps a prompt error with its kind. The SDK surfaces agent
// JSON-RPC errors as plain errors, so session expiry is recognized by
// the agent's message text; this is the only place that text is
// inspected.
func classify(err error) *RequestError {
	kind := KindOther
	if strings.Contains(err.Error(), "Session not found") {
		kind = KindSessionNotFound
	}
	return &RequestError{Kind: kind, Err: err}
}

// IsSessionNotFound reports whether err carries KindSessionNotFound.
func IsSessionNotFound(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Kind == KindSessionNotFound
}
