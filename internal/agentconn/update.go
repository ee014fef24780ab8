package agentconn

import (
	acp "github.com/coder/acp-go-sdk"
)

// UpdateKind says which shape a session update carried.
type UpdateKind int

const (
	// UpdateOther is any update the proxy does not surface.
	UpdateOther UpdateKind = iota
	// UpdateAgentText is a streamed chunk of agent output.
	UpdateAgentText
	// UpdateToolCallStart is the beginning of a tool invocation.
	UpdateToolCallStart
	// UpdateToolCallProgress is a status or content change on a running
	// tool invocation.
	UpdateToolCallProgress
)

// Update is a session update decoded into the one shape downstream code
// consumes. Text is set for UpdateAgentText; Title for the tool kinds
// (possibly empty on progress updates).
type Update struct {
	Kind  UpdateKind
	Text  string
	Title string
}

// DecodeUpdate inspects the raw union once and returns the flattened
// form. Unknown and unhandled variants come back as UpdateOther.
func DecodeUpdate(raw acp.SessionUpdate) Update {
	switch {
	case raw.AgentMessageChunk != nil:
		if text := raw.AgentMessageChunk.Content.Text; text != nil {
			return Update{Kind: UpdateAgentText, Text: text.Text}
		}
		return Update{Kind: UpdateAgentText}
	case raw.ToolCall != nil:
		return Update{Kind: UpdateToolCallStart, Title: raw.ToolCall.Title}
	case raw.ToolCallUpdate != nil:
		u := Update{Kind: UpdateToolCallProgress}
		if raw.ToolCallUpdate.Title != nil {
			u.Title = *raw.ToolCallUpdate.Title
		}
		return u
	default:
		return Update{Kind: UpdateOther}
	}
}
