/*
Package event provides the in-process pub/sub bus used to announce
session-lifecycle and prompt-cycle activity.

The bus is built on watermill's gochannel for infrastructure while
keeping direct-call semantics so payloads stay typed. Both synchronous
and asynchronous delivery are available.

# Event Types

Session events:
  - session.created: a new agent session was opened for a chat
  - session.recovered: a prompt cycle replaced a refusing or expired
    session with a fresh one
  - prompt.completed: a prompt turn finished with a stop reason

Cycle events:
  - cycle.started: the service accepted a prompt request
  - cycle.finished: the in-flight lock was released

Permission events:
  - permission.requested: the agent asked for a tool approval
  - permission.resolved: the approval was answered or abandoned

# Usage

Publishing:

	event.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{ChatID: chatID, SessionID: id},
	})

Subscribing:

	unsubscribe := event.Subscribe(event.SessionRecovered, func(e event.Event) {
		data := e.Data.(event.SessionRecoveredData)
		logging.Info().Str("reason", string(data.Reason)).Msg("session recovered")
	})
	defer unsubscribe()

# Subscriber Safety

PublishSync calls subscribers in the publisher's goroutine. Subscribers
must complete quickly, use non-blocking channel sends, and never publish
re-entrantly or acquire locks the publisher might hold.

# Testing

event.Reset() tears down the global bus and replaces it with a fresh
one; call it in test cleanup. event.NewBus() creates an isolated
instance when a test must not touch global state.
*/
package event
