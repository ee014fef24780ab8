package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/acpcall/acpcall/internal/permission"
)

// MessageType discriminates socket messages.
type MessageType string

const (
	TypePrompt             MessageType = "prompt"
	TypeChunk              MessageType = "chunk"
	TypeTool               MessageType = "tool"
	TypePermissionRequest  MessageType = "permission_request"
	TypePermissionResponse MessageType = "permission_response"
	TypeError              MessageType = "error"
	TypeDone               MessageType = "done"
)

// Message is one newline-framed JSON object on the socket. Fields are
// populated per type: clients send prompt and permission_response, the
// service sends chunk, tool, permission_request, error and done.
type Message struct {
	Type MessageType `json:"type"`

	// prompt and done. A pointer keeps null distinguishable from
	// absent on the prompt side.
	SessionID *string `json:"session_id,omitempty"`

	// prompt
	Prompt               string `json:"prompt,omitempty"`
	ModeID               string `json:"mode_id,omitempty"`
	AutoApprove          bool   `json:"auto_approve,omitempty"`
	AllowAlways          bool   `json:"allow_always,omitempty"`
	ShowTools            bool   `json:"show_tools,omitempty"`
	StripLeadingNewlines bool   `json:"strip_leading_newlines,omitempty"`

	// chunk
	Text string `json:"text,omitempty"`

	// tool
	Event string `json:"event,omitempty"`
	Title string `json:"title,omitempty"`

	// permission_request
	Options []permission.Option `json:"options,omitempty"`

	// permission_response; null means no selection.
	OptionID *string `json:"option_id,omitempty"`

	// error
	ErrMessage string `json:"message,omitempty"`
}

// Writer serializes concurrent message writes onto one stream. The
// agent's update callbacks and the cycle driver both write to the same
// client connection.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (ww *Writer) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode socket message: %w", err)
	}
	data = append(data, '\n')

	ww.mu.Lock()
	defer ww.mu.Unlock()
	if _, err := ww.w.Write(data); err != nil {
		return fmt.Errorf("write socket message: %w", err)
	}
	return nil
}

// Reader frames newline-delimited JSON off a stream.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// NextLine returns the next raw frame. io.EOF means a clean close.
func (wr *Reader) NextLine() ([]byte, error) {
	line, err := wr.r.ReadBytes('\n')
	if len(line) == 0 && err != nil {
		return nil, err
	}
	return line, nil
}

// Next returns the next message. A parse failure is an error too, since
// framing can no longer be trusted.
func (wr *Reader) Next() (Message, error) {
	line, err := wr.NextLine()
	if err != nil {
		return Message{}, err
	}

	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return Message{}, fmt.Errorf("decode socket message: %w", err)
	}
	return msg, nil
}
