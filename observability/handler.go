// Package observability provides the handler-independent tap that receives
// every event the bus dispatches, including bus-internal lifecycle events.
// Sinks are for logging and tracing: their failures are logged locally and
// never interfere with functional handlers.
package observability

import (
	"context"
	"log/slog"

	"github.com/casualjim/relay/messages"
	"github.com/casualjim/relay/pkg/slogx"
)

// Handler receives every event regardless of session scope.
type Handler interface {
	HandleEvent(ctx context.Context, ev messages.Event) error
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, ev messages.Event) error

func (fn HandlerFunc) HandleEvent(ctx context.Context, ev messages.Event) error {
	return fn(ctx, ev)
}

// Log returns a sink that writes one structured log line per event.
func Log() Handler {
	return logHandler{}
}

type logHandler struct{}

func (logHandler) HandleEvent(ctx context.Context, ev messages.Event) error {
	switch e := ev.(type) {
	case *messages.EventHandlerFailedEvent:
		slog.ErrorContext(ctx, "event handler failed",
			slog.String("handler", e.Handler),
			slog.String("event_kind", e.Event.Kind()),
			slogx.Error(e.Err),
			slogx.Session(e.Session()),
		)
	case *messages.CommandResultEvent:
		slog.InfoContext(ctx, "command finished",
			slog.String("command_id", e.Result.CommandID.String()),
			slog.Bool("success", e.Result.Success),
			slogx.Session(e.Session()),
		)
	default:
		slog.InfoContext(ctx, "event dispatched", slogx.Message(ev)...)
	}
	return nil
}

// Composite fans an event out to several sinks, in order. The first error is
// returned after every sink ran.
type Composite []Handler

func NewComposite(handlers ...Handler) Composite {
	return Composite(handlers)
}

func (c Composite) HandleEvent(ctx context.Context, ev messages.Event) error {
	var first error
	for _, h := range c {
		if err := h.HandleEvent(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
