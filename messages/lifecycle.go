package messages

import (
	"time"
)

// Kinds of the bus-internal lifecycle events. These are always emitted and
// cannot be suppressed.
const (
	KindCommandStarted = "relay.command.started"
	KindCommandResult  = "relay.command.result"
	KindHandlerFailed  = "relay.event.handler_failed"
	KindSessionStarted = "relay.session.started"
	KindSessionEnded   = "relay.session.ended"
)

// CommandStartedEvent is published immediately before a command handler runs.
type CommandStartedEvent struct {
	EventEnvelope
	Command Command `json:"command"`
}

// NewCommandStarted wraps a command about to execute. The event inherits the
// command's session scope.
func NewCommandStarted(cmd Command) *CommandStartedEvent {
	return &CommandStartedEvent{
		EventEnvelope: NewEventEnvelope(cmd.Session()),
		Command:       cmd,
	}
}

func (*CommandStartedEvent) Kind() string { return KindCommandStarted }

// CommandResultEvent is published after every command execution, whether the
// handler succeeded, failed, or panicked.
type CommandResultEvent struct {
	EventEnvelope
	Result CommandResult `json:"result"`
}

// NewCommandResult wraps the result of a finished command execution.
func NewCommandResult(res CommandResult) *CommandResultEvent {
	return &CommandResultEvent{
		EventEnvelope: NewEventEnvelope(res.SessionID),
		Result:        res,
	}
}

func (*CommandResultEvent) Kind() string { return KindCommandResult }

// EventHandlerFailedEvent reports a single event handler invocation that
// returned an error or panicked. It carries the offending event and flows
// through the same dispatch path as any other event, so observability sinks
// and registered handlers see it.
type EventHandlerFailedEvent struct {
	EventEnvelope
	Event   Event  `json:"event"`
	Handler string `json:"handler"`
	Err     error  `json:"error"`
}

// NewHandlerFailed wraps a failed handler invocation for the given event.
func NewHandlerFailed(ev Event, handler string, err error) *EventHandlerFailedEvent {
	return &EventHandlerFailedEvent{
		EventEnvelope: NewEventEnvelope(ev.Session()),
		Event:         ev,
		Handler:       handler,
		Err:           err,
	}
}

func (*EventHandlerFailedEvent) Kind() string { return KindHandlerFailed }

func (e *EventHandlerFailedEvent) Error() string {
	errStr := "<nil>"
	if e.Err != nil {
		errStr = e.Err.Error()
	}
	return errStr + " handler=" + e.Handler + " event=" + e.Event.Kind()
}

// SessionStartedEvent is published when a session handle is created.
type SessionStartedEvent struct {
	EventEnvelope
}

// NewSessionStarted announces a freshly created session.
func NewSessionStarted(id SessionID) *SessionStartedEvent {
	return &SessionStartedEvent{EventEnvelope: NewEventEnvelope(id)}
}

func (*SessionStartedEvent) Kind() string { return KindSessionStarted }

// SessionEndedEvent is published when a session handle closes. Err carries
// the error that ended the session, if any.
type SessionEndedEvent struct {
	EventEnvelope
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// NewSessionEnded announces session teardown after all of the session's
// handlers were deregistered.
func NewSessionEnded(id SessionID, err error, duration time.Duration) *SessionEndedEvent {
	ev := &SessionEndedEvent{
		EventEnvelope: NewEventEnvelope(id),
		Duration:      duration,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	return ev
}

func (*SessionEndedEvent) Kind() string { return KindSessionEnded }
