// Package scheduler holds back scheduled events until their due time and
// releases them into the live dispatch stream in chronological order.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/casualjim/relay/messages"
)

// ErrInvalidSchedule rejects scheduled events without a usable due time.
var ErrInvalidSchedule = errors.New("scheduled event has no scheduled time")

type item struct {
	ev  messages.ScheduledEvent
	at  time.Time
	seq uint64
}

// pending is a min-heap on (due time, publish sequence): earlier times first,
// FIFO among equal times.
type pending []*item

func (p pending) Len() int { return len(p) }

func (p pending) Less(i, j int) bool {
	if p[i].at.Equal(p[j].at) {
		return p[i].seq < p[j].seq
	}
	return p[i].at.Before(p[j].at)
}

func (p pending) Swap(i, j int) { p[i], p[j] = p[j], p[i] }

func (p *pending) Push(x any) { *p = append(*p, x.(*item)) }

func (p *pending) Pop() any {
	old := *p
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*p = old[:n-1]
	return it
}

// Scheduler owns the backlog of not-yet-due events. Release pushes a due
// event into the immediate dispatch queue; it may block until the queue
// accepts it.
type Scheduler struct {
	release func(messages.Event)

	mu   sync.Mutex
	heap pending
	seq  uint64

	runMu   sync.Mutex
	running bool
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

func New(release func(messages.Event)) *Scheduler {
	return &Scheduler{
		release: release,
		wake:    make(chan struct{}, 1),
	}
}

// Add accepts a scheduled event into the backlog. Events already past due
// are released on the next tick.
func (s *Scheduler) Add(ev messages.ScheduledEvent) error {
	at := ev.ScheduledAt()
	if at.IsZero() {
		return ErrInvalidSchedule
	}

	s.mu.Lock()
	s.seq++
	heap.Push(&s.heap, &item{ev: ev, at: at, seq: s.seq})
	s.mu.Unlock()

	s.kick()
	return nil
}

// Pending reports the backlog size.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}

// Clear drops the backlog without releasing anything.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	s.heap = nil
	s.mu.Unlock()
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start launches the timer loop. Idempotent.
func (s *Scheduler) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
}

// Stop halts the timer loop, keeping the backlog for a later Start.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return nil
	}
	close(s.stop)
	select {
	case <-s.done:
		s.running = false
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(stop, done chan struct{}) {
	defer close(done)

	for {
		due, next := s.takeDue(time.Now())
		for _, it := range due {
			s.release(it.ev)
		}

		var timer <-chan time.Time
		if !next.IsZero() {
			timer = time.After(time.Until(next))
		}

		select {
		case <-stop:
			return
		case <-s.wake:
		case <-timer:
		}
	}
}

// takeDue pops every event due at or before now, in (time, sequence) order,
// and reports the due time of the next remaining event (zero if none).
func (s *Scheduler) takeDue(now time.Time) ([]*item, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*item
	for s.heap.Len() > 0 && !s.heap[0].at.After(now) {
		due = append(due, heap.Pop(&s.heap).(*item))
	}

	var next time.Time
	if s.heap.Len() > 0 {
		next = s.heap[0].at
	}
	return due, next
}
