package messages

import (
	"time"

	"github.com/casualjim/relay/pkg/uuidx"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// SessionID names a registration scope on the bus. The zero value is treated
// as Global.
type SessionID string

// Global is the scope visible to messages from every session.
const Global SessionID = "GLOBAL"

// Message is the shared surface of commands and events.
type Message interface {
	ID() uuid.UUID
	Kind() string
	Session() SessionID
	SentAt() strfmt.DateTime
	Metadata() Meta

	stamp(SessionID)
}

// Command is a message addressed to exactly one handler, expecting a result.
type Command interface {
	Message
	isCommand()
}

// Event is a message broadcast to zero or more handlers.
type Event interface {
	Message
	isEvent()
}

// ScheduledEvent is an event whose delivery is deferred until ScheduledAt.
// Events opt in by embedding Schedule.
type ScheduledEvent interface {
	Event
	ScheduledAt() time.Time
}

// Validator is implemented by messages that want shape validation at publish
// time.
type Validator interface {
	Validate() error
}

// Meta is an open key-value map attached to a message, stored as raw JSON.
type Meta struct {
	gjson.Result
}

// ParseMeta builds message metadata from a JSON document.
func ParseMeta(raw string) Meta {
	return Meta{Result: gjson.Parse(raw)}
}

// MarshalJSON embeds the metadata document verbatim.
func (m Meta) MarshalJSON() ([]byte, error) {
	if !m.Exists() {
		return []byte("null"), nil
	}
	return []byte(m.Raw), nil
}

// Envelope carries the identity, scope, and provenance shared by every
// message. Concrete types embed CommandEnvelope or EventEnvelope instead of
// embedding Envelope directly.
type Envelope struct {
	MessageID uuid.UUID       `json:"message_id"`
	SessionID SessionID       `json:"session_id,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
	Meta      Meta            `json:"meta,omitempty"`
}

// NewEnvelope returns an envelope scoped to Global with a fresh v7 id and the
// current time.
func NewEnvelope() Envelope {
	return NewSessionEnvelope(Global)
}

// NewSessionEnvelope returns an envelope scoped to the given session.
func NewSessionEnvelope(id SessionID) Envelope {
	return Envelope{
		MessageID: uuidx.New(),
		SessionID: id,
		Timestamp: strfmt.DateTime(time.Now()),
	}
}

func (e Envelope) ID() uuid.UUID { return e.MessageID }

func (e Envelope) Session() SessionID {
	if e.SessionID == "" {
		return Global
	}
	return e.SessionID
}

func (e Envelope) SentAt() strfmt.DateTime { return e.Timestamp }

func (e Envelope) Metadata() Meta { return e.Meta }

func (e *Envelope) stamp(id SessionID) { e.SessionID = id }

// CommandEnvelope marks the embedding type as a Command.
type CommandEnvelope struct {
	Envelope
}

func (CommandEnvelope) isCommand() {}

// NewCommandEnvelope returns a command envelope scoped to the given session.
func NewCommandEnvelope(id SessionID) CommandEnvelope {
	return CommandEnvelope{Envelope: NewSessionEnvelope(id)}
}

// EventEnvelope marks the embedding type as an Event.
type EventEnvelope struct {
	Envelope
}

func (EventEnvelope) isEvent() {}

// NewEventEnvelope returns an event envelope scoped to the given session.
func NewEventEnvelope(id SessionID) EventEnvelope {
	return EventEnvelope{Envelope: NewSessionEnvelope(id)}
}

// Schedule defers delivery of the embedding event until At. A zero At is
// rejected at publish time.
type Schedule struct {
	At strfmt.DateTime `json:"scheduled_at"`
}

// ScheduleAt returns a Schedule releasing at the given time.
func ScheduleAt(at time.Time) Schedule {
	return Schedule{At: strfmt.DateTime(at)}
}

// ScheduleAfter returns a Schedule releasing after the given delay.
func ScheduleAfter(d time.Duration) Schedule {
	return ScheduleAt(time.Now().Add(d))
}

func (s Schedule) ScheduledAt() time.Time { return time.Time(s.At) }

// Stamp rewrites the session scope of a message. It is called by session
// handles before a message enters the bus; messages must not be restamped
// once published.
func Stamp(m Message, id SessionID) { m.stamp(id) }
