package messages

import (
	"context"
	"fmt"
)

// CommandHandler executes a command and returns its value. The bus converts
// the return into a CommandResult; errors and panics never reach the caller
// raw.
type CommandHandler func(ctx context.Context, cmd Command) (any, error)

// EventHandler reacts to a single event. A returned error (or panic) is
// contained by the dispatcher and surfaced as an EventHandlerFailedEvent.
type EventHandler func(ctx context.Context, ev Event) error

// CommandHandlerFor adapts a handler of a concrete command type to the
// untyped CommandHandler the registry stores. Receiving any other type is a
// wiring bug and reported as a failure.
func CommandHandlerFor[C Command](fn func(ctx context.Context, cmd C) (any, error)) CommandHandler {
	return func(ctx context.Context, cmd Command) (any, error) {
		typed, ok := cmd.(C)
		if !ok {
			return nil, fmt.Errorf("command handler bound to %q received %T", cmd.Kind(), cmd)
		}
		return fn(ctx, typed)
	}
}

// EventHandlerFor adapts a handler of a concrete event type to the untyped
// EventHandler the registry stores.
func EventHandlerFor[E Event](fn func(ctx context.Context, ev E) error) EventHandler {
	return func(ctx context.Context, ev Event) error {
		typed, ok := ev.(E)
		if !ok {
			return fmt.Errorf("event handler bound to %q received %T", ev.Kind(), ev)
		}
		return fn(ctx, typed)
	}
}
