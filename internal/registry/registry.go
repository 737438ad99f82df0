// Package registry maps (message kind, session scope) pairs to handlers.
//
// Command handlers are unique per (kind, scope); a second registration is
// rejected, not replaced. Event handlers form an ordered set per (kind,
// scope): fan-out happens in registration order.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/relay/messages"
	"github.com/casualjim/relay/pkg/reflectx"
	"github.com/casualjim/relay/pkg/uuidx"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrDuplicateCommandHandler rejects a second command handler for a kind
// already bound within the same scope.
var ErrDuplicateCommandHandler = errors.New("command handler already registered")

// ErrNilHandler rejects nil handler registrations.
var ErrNilHandler = errors.New("handler is required")

// CommandEntry is a registered command handler with its display name.
type CommandEntry struct {
	Name    string
	Handler messages.CommandHandler
}

// EventEntry is a registered event handler with its registration id and
// display name. The name identifies the handler in failure events.
type EventEntry struct {
	ID      string
	Name    string
	Handler messages.EventHandler
}

// scope holds the registrations owned by one session (or by Global). The
// scope map itself is lock-free; each scope guards its own tables so that
// registrations racing with dispatch stay consistent.
type scope struct {
	mu       sync.RWMutex
	commands map[string]CommandEntry
	events   map[string]*orderedmap.OrderedMap[string, EventEntry]
}

func newScope() *scope {
	return &scope{
		commands: make(map[string]CommandEntry),
		events:   make(map[string]*orderedmap.OrderedMap[string, EventEntry]),
	}
}

// Registry is the bus-wide handler table.
type Registry struct {
	scopes *haxmap.Map[string, *scope]
}

func New() *Registry {
	return &Registry{
		scopes: haxmap.New[string, *scope](),
	}
}

func (r *Registry) scopeFor(id messages.SessionID) *scope {
	sc, _ := r.scopes.GetOrCompute(string(id), newScope)
	return sc
}

// AddCommandHandler binds a handler to a command kind within a scope.
// Returns ErrDuplicateCommandHandler if the kind is already bound there.
func (r *Registry) AddCommandHandler(id messages.SessionID, kind string, h messages.CommandHandler) error {
	if h == nil {
		return ErrNilHandler
	}

	sc := r.scopeFor(id)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if _, exists := sc.commands[kind]; exists {
		return fmt.Errorf("%w: kind %q in scope %q", ErrDuplicateCommandHandler, kind, id)
	}
	sc.commands[kind] = CommandEntry{
		Name:    reflectx.FunctionName(h),
		Handler: h,
	}
	return nil
}

// CommandHandler looks up the handler for a command kind in exactly the given
// scope. Fallback across scopes is the dispatcher's concern.
func (r *Registry) CommandHandler(id messages.SessionID, kind string) (CommandEntry, bool) {
	sc, ok := r.scopes.Get(string(id))
	if !ok {
		return CommandEntry{}, false
	}

	sc.mu.RLock()
	defer sc.mu.RUnlock()
	entry, ok := sc.commands[kind]
	return entry, ok
}

// RemoveCommandHandler unbinds a command kind from a scope.
func (r *Registry) RemoveCommandHandler(id messages.SessionID, kind string) {
	sc, ok := r.scopes.Get(string(id))
	if !ok {
		return
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.commands, kind)
}

// AddEventHandler appends a handler to the ordered set for an event kind
// within a scope and returns its registration id.
func (r *Registry) AddEventHandler(id messages.SessionID, kind string, h messages.EventHandler) (string, error) {
	if h == nil {
		return "", ErrNilHandler
	}

	sc := r.scopeFor(id)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	set := sc.events[kind]
	if set == nil {
		set = orderedmap.New[string, EventEntry]()
		sc.events[kind] = set
	}

	regID := uuidx.NewString()
	set.Set(regID, EventEntry{
		ID:      regID,
		Name:    reflectx.FunctionName(h),
		Handler: h,
	})
	return regID, nil
}

// RemoveEventHandler removes a single registration by id. Reports whether a
// registration was removed.
func (r *Registry) RemoveEventHandler(id messages.SessionID, kind, regID string) bool {
	sc, ok := r.scopes.Get(string(id))
	if !ok {
		return false
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	set := sc.events[kind]
	if set == nil {
		return false
	}
	_, present := set.Delete(regID)
	return present
}

// RemoveEventHandlers drops every handler for an event kind within a scope.
func (r *Registry) RemoveEventHandlers(id messages.SessionID, kind string) {
	sc, ok := r.scopes.Get(string(id))
	if !ok {
		return
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.events, kind)
}

// EventHandlers returns the ordered handlers for an event kind in exactly the
// given scope. The returned slice is a snapshot; registrations made after the
// call do not affect it.
func (r *Registry) EventHandlers(id messages.SessionID, kind string) []EventEntry {
	sc, ok := r.scopes.Get(string(id))
	if !ok {
		return nil
	}

	sc.mu.RLock()
	defer sc.mu.RUnlock()

	set := sc.events[kind]
	if set == nil {
		return nil
	}

	entries := make([]EventEntry, 0, set.Len())
	for pair := set.Oldest(); pair != nil; pair = pair.Next() {
		entries = append(entries, pair.Value)
	}
	return entries
}

// DropScope removes every registration owned by a session. Used on session
// teardown.
func (r *Registry) DropScope(id messages.SessionID) {
	r.scopes.Del(string(id))
}

// Clear removes every registration in every scope.
func (r *Registry) Clear() {
	r.scopes.ForEach(func(key string, _ *scope) bool {
		r.scopes.Del(key)
		return true
	})
}
