package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/casualjim/relay/messages"
	"github.com/casualjim/relay/pkg/uuidx"
	"github.com/fogfish/opts"
)

// ErrSessionClosed rejects use of a session handle after Close.
var ErrSessionClosed = errors.New("session is closed")

// Session is a named registration boundary on the bus. Handlers registered
// through it live exactly as long as the session: Close deregisters them all,
// leaving any parent or sibling session untouched. It is not a data boundary;
// events carry their own session id.
type Session struct {
	id      messages.SessionID
	bus     *Bus
	started time.Time
	closed  atomic.Bool
}

// WithSessionID names the session instead of generating an id.
var WithSessionID = opts.ForName[Session, messages.SessionID]("id")

// Session creates a session handle and publishes SessionStartedEvent. The id
// defaults to a fresh uuid; the Global scope name is reserved.
func (b *Bus) Session(options ...opts.Option[Session]) *Session {
	s := &Session{
		bus:     b,
		started: time.Now(),
	}
	if err := opts.Apply(s, options); err != nil {
		panic(err)
	}
	if s.id == "" {
		s.id = messages.SessionID(uuidx.NewString())
	}
	if s.id == messages.Global {
		panic("relay: session id GLOBAL is reserved")
	}

	b.publishLifecycle(context.Background(), messages.NewSessionStarted(s.id))
	return s
}

// WithSession runs fn with a fresh session and guarantees teardown: handlers
// registered through the session are deregistered when fn returns, errors,
// or panics. Nested WithSession calls tear down innermost first.
func (b *Bus) WithSession(ctx context.Context, fn func(context.Context, *Session) error, options ...opts.Option[Session]) (err error) {
	s := b.Session(options...)
	defer func() {
		if r := recover(); r != nil {
			_ = s.end(ctx, fmt.Errorf("panic: %v", r))
			panic(r)
		}
		if endErr := s.end(ctx, err); endErr != nil && err == nil {
			err = endErr
		}
	}()
	return fn(ctx, s)
}

// ID returns the session's scope name.
func (s *Session) ID() messages.SessionID { return s.id }

// Active reports whether the session is still open.
func (s *Session) Active() bool { return !s.closed.Load() }

// RegisterCommandHandler binds a command handler scoped to this session.
// Commands executed through the session resolve here first and fall back to
// Global.
func (s *Session) RegisterCommandHandler(kind string, h messages.CommandHandler) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.bus.registry.AddCommandHandler(s.id, kind, h)
}

// RegisterEventHandler appends an event handler scoped to this session.
// Only events carrying this session's id reach it.
func (s *Session) RegisterEventHandler(kind string, h messages.EventHandler) (string, error) {
	if s.closed.Load() {
		return "", ErrSessionClosed
	}
	return s.bus.registry.AddEventHandler(s.id, kind, h)
}

// Execute stamps the command with the session's id and runs it, resolving
// the handler at session scope before Global.
func (s *Session) Execute(ctx context.Context, cmd messages.Command) messages.CommandResult {
	if cmd == nil {
		return messages.Fail(nil, ErrNilCommand)
	}
	if s.closed.Load() {
		return messages.Fail(cmd, ErrSessionClosed)
	}
	messages.Stamp(cmd, s.id)
	return s.bus.execute(ctx, cmd, s.id)
}

// Publish stamps the event with the session's id and publishes it.
func (s *Session) Publish(ctx context.Context, ev messages.Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	if s.closed.Load() {
		return ErrSessionClosed
	}
	messages.Stamp(ev, s.id)
	return s.bus.Publish(ctx, ev)
}

// Close deregisters every handler owned by the session and publishes
// SessionEndedEvent. Idempotent.
func (s *Session) Close(ctx context.Context) error {
	return s.end(ctx, nil)
}

func (s *Session) end(ctx context.Context, cause error) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.bus.registry.DropScope(s.id)
	return s.bus.Publish(ctx, messages.NewSessionEnded(s.id, cause, time.Since(s.started)))
}
