// Package dispatcher runs the bus's core loop: it pulls published events off
// the immediate queue, fans each one out to its resolved handlers, contains
// handler failures, and exposes a drain barrier.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/casualjim/relay/internal/registry"
	"github.com/casualjim/relay/messages"
	"github.com/casualjim/relay/observability"
	"github.com/casualjim/relay/pkg/slogx"
)

// Dispatcher owns the immediate dispatch queue and the single goroutine that
// drains it. Handlers for one event run to completion before the next event
// is dequeued; each handler invocation is its own goroutine joined with a
// timeout, so one hung handler cannot wedge its siblings past the deadline.
type Dispatcher struct {
	registry *registry.Registry
	timeout  time.Duration

	queue chan messages.Event

	sinkMu sync.RWMutex
	sinks  []observability.Handler

	// pending counts events enqueued but not fully dispatched. idle is
	// closed whenever pending reaches zero; Drain waits on it.
	mu      sync.Mutex
	pending int64
	idle    chan struct{}

	runMu   sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func New(reg *registry.Registry, queueSize int, handlerTimeout time.Duration) *Dispatcher {
	idle := make(chan struct{})
	close(idle)
	return &Dispatcher{
		registry: reg,
		timeout:  handlerTimeout,
		queue:    make(chan messages.Event, queueSize),
		idle:     idle,
	}
}

// AddSink subscribes an observability handler to every event.
func (d *Dispatcher) AddSink(h observability.Handler) {
	d.sinkMu.Lock()
	d.sinks = append(d.sinks, h)
	d.sinkMu.Unlock()
}

// ClearSinks removes every observability handler.
func (d *Dispatcher) ClearSinks() {
	d.sinkMu.Lock()
	d.sinks = nil
	d.sinkMu.Unlock()
}

// Enqueue queues an event for dispatch. It blocks only while the queue is at
// capacity; ctx bounds that wait. Events enqueued while the loop is stopped
// stay queued until the next Start.
func (d *Dispatcher) Enqueue(ctx context.Context, ev messages.Event) error {
	d.track()
	select {
	case d.queue <- ev:
		return nil
	case <-ctx.Done():
		d.complete()
		return ctx.Err()
	}
}

func (d *Dispatcher) track() {
	d.mu.Lock()
	if d.pending == 0 {
		d.idle = make(chan struct{})
	}
	d.pending++
	d.mu.Unlock()
}

func (d *Dispatcher) complete() {
	d.mu.Lock()
	d.pending--
	if d.pending == 0 {
		close(d.idle)
	}
	d.mu.Unlock()
}

// Drain blocks until every event enqueued before the call (and any events
// their handlers enqueued meanwhile) has been dispatched to all its handlers.
// The scheduled-event backlog is not part of the barrier.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	ch := d.idle
	d.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the dispatch loop. Idempotent.
func (d *Dispatcher) Start() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.loop(d.stop, d.done)
}

// Stop halts the loop after the in-flight event finishes its handlers.
// Undispatched events remain queued for a later Start; nothing is dropped.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if !d.running {
		return nil
	}
	close(d.stop)
	select {
	case <-d.done:
		d.running = false
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset drops the queued backlog and the observability sinks. The caller
// must Stop the loop first.
func (d *Dispatcher) Reset() {
	d.ClearSinks()

	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		select {
		case <-d.queue:
			d.pending--
		default:
			if d.pending <= 0 {
				d.pending = 0
				select {
				case <-d.idle:
				default:
					close(d.idle)
				}
			}
			return
		}
	}
}

func (d *Dispatcher) loop(stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case ev := <-d.queue:
			d.dispatch(context.Background(), ev)
			d.complete()
		}
	}
}

// dispatch fans one event out: observability sinks first, then the handlers
// registered at the event's session scope, then the GLOBAL ones. Each
// handler failure is contained and reported; it never stops the fan-out.
func (d *Dispatcher) dispatch(ctx context.Context, ev messages.Event) {
	d.sinkMu.RLock()
	sinks := make([]observability.Handler, len(d.sinks))
	copy(sinks, d.sinks)
	d.sinkMu.RUnlock()

	for _, sink := range sinks {
		if err := d.invokeSink(ctx, sink, ev); err != nil {
			slog.Error("observability handler failed",
				slog.String("sink", fmt.Sprintf("%T", sink)),
				slogx.Kind(ev.Kind()),
				slogx.Error(err),
			)
		}
	}

	var entries []registry.EventEntry
	if scope := ev.Session(); scope != messages.Global {
		entries = d.registry.EventHandlers(scope, ev.Kind())
	}
	entries = append(entries, d.registry.EventHandlers(messages.Global, ev.Kind())...)

	for _, entry := range entries {
		err := d.invoke(ctx, entry.Handler, ev)
		if err == nil {
			continue
		}
		d.reportFailure(ev, entry.Name, err)
	}
}

// reportFailure feeds a handler failure back into the dispatch stream. A
// failure while handling a failure event is logged and dropped instead,
// bounding re-entry at depth one.
func (d *Dispatcher) reportFailure(ev messages.Event, handler string, err error) {
	if ev.Kind() == messages.KindHandlerFailed {
		slog.Error("handler failed while handling a failure event, dropping",
			slog.String("handler", handler),
			slogx.Error(err),
		)
		return
	}

	failure := messages.NewHandlerFailed(ev, handler, err)
	d.track()
	select {
	case d.queue <- failure:
	default:
		// The loop is the queue's only consumer, so blocking here would
		// deadlock the dispatch of the very event being reported.
		d.complete()
		slog.Error("dispatch queue full, dropping failure event",
			slog.String("handler", handler),
			slogx.Error(err),
		)
	}
}

func (d *Dispatcher) invokeSink(ctx context.Context, sink observability.Handler, ev messages.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observability handler panicked: %v", r)
		}
	}()
	return sink.HandleEvent(ctx, ev)
}

// invoke runs one handler with the configured timeout. Panics become errors.
// A timed-out handler goroutine is abandoned; its eventual return value is
// discarded.
func (d *Dispatcher) invoke(ctx context.Context, h messages.EventHandler, ev messages.Event) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("handler panicked: %v", r)
			}
		}()
		result <- h(ctx, ev)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("handler did not finish: %w", ctx.Err())
	}
}
