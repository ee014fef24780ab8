// Package permission resolves the agent's tool-approval requests.
package permission

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/acpcall/acpcall/internal/logging"
)

// Well-known option ids shared with the agent's permission model.
const (
	OptionAllowOnce   = "allow_once"
	OptionAllowAlways = "allow_always"
	OptionRejectOnce  = "reject_once"
)

const maxAttempts = 3

// Option is one selectable answer to a permission request.
type Option struct {
	ID   string `json:"option_id"`
	Name string `json:"name"`
}

// Resolver answers permission requests per the configured policy:
// automatic approval first, then a rejection when no terminal is
// attached, then an interactive menu.
type Resolver struct {
	// AutoApprove selects an allow option without consulting anyone.
	AutoApprove bool
	// AllowAlways upgrades automatic approval to a persistent grant.
	AllowAlways bool
	// Interactive reports whether a human can answer on Input.
	Interactive bool
	// Input carries the human's choices, one per line.
	Input io.Reader
	// Err receives the menu and prompts.
	Err io.Writer
}

// Resolve returns the chosen option id. ok is false when no selection
// was made, which callers turn into a cancelled outcome.
func (r *Resolver) Resolve(title string, options []Option) (string, bool) {
	if r.AutoApprove {
		if r.AllowAlways {
			return OptionAllowAlways, true
		}
		return OptionAllowOnce, true
	}

	if !r.Interactive {
		logging.Debug().Str("title", title).Msg("permission requested without TTY; rejecting once")
		for _, opt := range options {
			if opt.ID == OptionRejectOnce {
				return OptionRejectOnce, true
			}
		}
		return "", false
	}

	if title == "" {
		title = "tool execution"
	}
	fmt.Fprintf(r.Err, "\nPermission required: %s\n", title)
	for idx, opt := range options {
		fmt.Fprintf(r.Err, "  %d) %s (%s)\n", idx+1, opt.Name, opt.ID)
	}

	return r.selectOption(options)
}

// selectOption reads up to maxAttempts choices. A choice may be an
// option id or a 1-based index; empty input consumes an attempt
// silently, unrecognized input consumes one with a diagnostic.
func (r *Resolver) selectOption(options []Option) (string, bool) {
	byID := make(map[string]bool, len(options))
	for _, opt := range options {
		byID[opt.ID] = true
	}

	scanner := bufio.NewScanner(r.Input)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		fmt.Fprint(r.Err, "Select option: ")
		if !scanner.Scan() {
			break
		}
		choice := strings.TrimSpace(scanner.Text())
		if choice == "" {
			continue
		}
		if byID[choice] {
			return choice, true
		}
		if idx := indexChoice(choice, len(options)); idx >= 0 {
			return options[idx].ID, true
		}
		fmt.Fprintln(r.Err, "Invalid option. Enter a number or option id.")
	}

	logging.Debug().Msg("permission prompt exceeded retries; cancelling")
	return "", false
}

// indexChoice matches the printed 1-based index exactly, so "+2" and
// "02" are rejected even though Atoi would accept them. Returns the
// 0-based index, or -1.
func indexChoice(choice string, n int) int {
	for idx := 1; idx <= n; idx++ {
		if choice == strconv.Itoa(idx) {
			return idx - 1
		}
	}
	return -1
}
