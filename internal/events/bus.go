// Package events holds named single-slot handler tables.
package events

import (
	"fmt"
	"sort"
	"sync"
)

// Handler is the opaque callback bound to an event name. The payload is
// whatever the dispatching side passes: a packet's data string, a peer,
// or an address.
type Handler func(payload any) error

// Event is a slot holding at most one Handler.
type Event struct {
	mu      sync.RWMutex
	handler Handler
}

// Handle registers h on the slot, replacing any previous handler.
func (e *Event) Handle(h Handler) *Event {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
	return e
}

// Call invokes the handler with payload. An empty slot is a no-op.
// A panicking handler is reported as an error.
func (e *Event) Call(payload any) (err error) {
	e.mu.RLock()
	h := e.handler
	e.mu.RUnlock()
	if h == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(payload)
}

// Bus maps event names to Events.
type Bus struct {
	mu    sync.RWMutex
	table map[string]*Event
}

func NewBus() *Bus {
	return &Bus{table: make(map[string]*Event)}
}

// Bind stores a fresh Event under name and returns it. A prior Event under
// the same name is discarded, never chained.
func (b *Bus) Bind(name string) *Event {
	ev := &Event{}
	b.mu.Lock()
	b.table[name] = ev
	b.mu.Unlock()
	return ev
}

// Trigger invokes the Event bound under name. It reports false, with no side
// effect, if name was never bound. The lock is released before the handler
// runs so handlers may bind other names.
func (b *Bus) Trigger(name string, payload any) (bool, error) {
	b.mu.RLock()
	ev, ok := b.table[name]
	b.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, ev.Call(payload)
}

// Bound reports whether name has an Event.
func (b *Bus) Bound(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.table[name]
	return ok
}

// Names returns the bound names in sorted order.
func (b *Bus) Names() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.table))
	for name := range b.table {
		out = append(out, name)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}
