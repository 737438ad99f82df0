package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/relay/internal/dispatcher"
	"github.com/casualjim/relay/internal/registry"
	"github.com/casualjim/relay/internal/scheduler"
	"github.com/casualjim/relay/messages"
	"github.com/casualjim/relay/observability"
	"github.com/casualjim/relay/pkg/slogx"
	"github.com/fogfish/opts"
)

const (
	defaultQueueSize      = 1024
	defaultHandlerTimeout = 30 * time.Second
)

var (
	// ErrNoHandler reports a command kind with no registered handler. It
	// reaches callers only as CommandResult.Err text, never as a returned
	// error.
	ErrNoHandler = errors.New("no handler registered")

	// ErrNilCommand reports an Execute call without a command.
	ErrNilCommand = errors.New("command is required")

	// ErrNilEvent reports a Publish call without an event.
	ErrNilEvent = errors.New("event is required")
)

// SessionID aliases the messages type so most callers need only this package.
type SessionID = messages.SessionID

// Global is the scope visible to messages from every session.
const Global = messages.Global

// Bus is the composition root: registry, dispatcher, and scheduler wired
// together behind the public command/event API. Construct one per
// application with New and share it by injection; Reset exists for test
// harnesses, not production control flow.
type Bus struct {
	queueSize      int
	handlerTimeout time.Duration

	registry   *registry.Registry
	dispatcher *dispatcher.Dispatcher
	scheduler  *scheduler.Scheduler
}

var (
	// WithQueueSize sets the immediate dispatch queue capacity.
	WithQueueSize = opts.ForName[Bus, int]("queueSize")

	// WithHandlerTimeout bounds every command and event handler invocation.
	// Zero disables the deadline.
	WithHandlerTimeout = opts.ForName[Bus, time.Duration]("handlerTimeout")
)

// New builds a stopped bus. Call Start to begin dispatching.
func New(options ...opts.Option[Bus]) *Bus {
	b := &Bus{
		queueSize:      defaultQueueSize,
		handlerTimeout: defaultHandlerTimeout,
	}
	if err := opts.Apply(b, options); err != nil {
		panic(err)
	}

	b.registry = registry.New()
	b.dispatcher = dispatcher.New(b.registry, b.queueSize, b.handlerTimeout)
	b.scheduler = scheduler.New(func(ev messages.Event) {
		if err := b.dispatcher.Enqueue(context.Background(), ev); err != nil {
			slog.Error("failed to enqueue scheduled event", slogx.Error(err))
		}
	})
	return b
}

// Start launches the dispatch loop and the scheduler. Idempotent.
func (b *Bus) Start() {
	b.dispatcher.Start()
	b.scheduler.Start()
}

// Stop halts background activity. The in-flight event finishes its handlers;
// queued events and the scheduled backlog survive for a later Start.
func (b *Bus) Stop(ctx context.Context) error {
	return errors.Join(
		b.scheduler.Stop(ctx),
		b.dispatcher.Stop(ctx),
	)
}

// Reset stops the bus and clears the registry, the queue, the scheduled
// backlog, and the observability sinks. For test harnesses.
func (b *Bus) Reset(ctx context.Context) error {
	if err := b.Stop(ctx); err != nil {
		return err
	}
	b.registry.Clear()
	b.scheduler.Clear()
	b.dispatcher.Reset()
	return nil
}

// Drain blocks until the immediate dispatch queue is empty and every
// dequeued event finished all its handlers. It does not wait for the
// scheduled backlog.
func (b *Bus) Drain(ctx context.Context) error {
	return b.dispatcher.Drain(ctx)
}

// Execute runs the single handler for the command's kind and returns its
// result. Routing and handler failures come back as failed results; Execute
// never panics on a handler's behalf. CommandStartedEvent and
// CommandResultEvent wrap the invocation, both scoped to the command's
// session.
func (b *Bus) Execute(ctx context.Context, cmd messages.Command) messages.CommandResult {
	if cmd == nil {
		return messages.Fail(nil, ErrNilCommand)
	}
	return b.execute(ctx, cmd, cmd.Session())
}

func (b *Bus) execute(ctx context.Context, cmd messages.Command, scope messages.SessionID) messages.CommandResult {
	entry, ok := b.registry.CommandHandler(scope, cmd.Kind())
	if !ok && scope != messages.Global {
		entry, ok = b.registry.CommandHandler(messages.Global, cmd.Kind())
	}
	if !ok {
		return messages.Fail(cmd, fmt.Errorf("%w for command %q", ErrNoHandler, cmd.Kind()))
	}

	b.publishLifecycle(ctx, messages.NewCommandStarted(cmd))

	value, err := b.invokeCommand(ctx, entry.Handler, cmd)

	var res messages.CommandResult
	if err != nil {
		res = messages.Fail(cmd, err)
	} else {
		res = messages.Succeed(cmd, value)
	}

	b.publishLifecycle(ctx, messages.NewCommandResult(res))
	return res
}

// publishLifecycle enqueues a bus-internal event. A full queue is logged,
// never surfaced: lifecycle reporting must not fail the command path.
func (b *Bus) publishLifecycle(ctx context.Context, ev messages.Event) {
	if err := b.dispatcher.Enqueue(ctx, ev); err != nil {
		slog.Error("failed to publish lifecycle event", append(slogx.Message(ev), slogx.Error(err))...)
	}
}

// invokeCommand runs the handler in its own goroutine joined under the
// configured timeout. Panics become errors; a timed-out goroutine is
// abandoned and its return discarded.
func (b *Bus) invokeCommand(ctx context.Context, h messages.CommandHandler, cmd messages.Command) (any, error) {
	if b.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.handlerTimeout)
		defer cancel()
	}

	type outcome struct {
		value any
		err   error
	}
	result := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- outcome{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		v, err := h(ctx, cmd)
		result <- outcome{value: v, err: err}
	}()

	select {
	case out := <-result:
		return out.value, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("handler did not finish: %w", ctx.Err())
	}
}

// Publish validates the event and queues it for asynchronous dispatch,
// returning as soon as it is enqueued. Scheduled events go to the scheduler
// instead of the immediate queue; a zero scheduled time is rejected here.
func (b *Bus) Publish(ctx context.Context, ev messages.Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	if v, ok := ev.(messages.Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid event %q: %w", ev.Kind(), err)
		}
	}
	if sev, ok := ev.(messages.ScheduledEvent); ok {
		return b.scheduler.Add(sev)
	}
	return b.dispatcher.Enqueue(ctx, ev)
}

// RegisterCommandHandler binds the handler for a command kind at Global
// scope. A kind already bound in that scope is rejected with
// registry.ErrDuplicateCommandHandler: re-registration is a configuration
// error, not a silent replace.
func (b *Bus) RegisterCommandHandler(kind string, h messages.CommandHandler) error {
	return b.registry.AddCommandHandler(messages.Global, kind, h)
}

// UnregisterCommandHandler unbinds a command kind at Global scope.
func (b *Bus) UnregisterCommandHandler(kind string) {
	b.registry.RemoveCommandHandler(messages.Global, kind)
}

// RegisterEventHandler appends a handler for an event kind at Global scope
// and returns its registration id. Effective for events dispatched after the
// call, not retroactive.
func (b *Bus) RegisterEventHandler(kind string, h messages.EventHandler) (string, error) {
	return b.registry.AddEventHandler(messages.Global, kind, h)
}

// UnregisterEventHandler removes one Global registration by id.
func (b *Bus) UnregisterEventHandler(kind, registrationID string) bool {
	return b.registry.RemoveEventHandler(messages.Global, kind, registrationID)
}

// RegisterObservabilityHandler subscribes a sink to every event,
// independent of session scope.
func (b *Bus) RegisterObservabilityHandler(h observability.Handler) {
	b.dispatcher.AddSink(h)
}
