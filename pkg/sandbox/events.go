package sandbox

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// EventType identifies a sandbox lifecycle transition.
type EventType string

const (
	EventCreating EventType = "sandbox:creating"
	EventCreated  EventType = "sandbox:created"
	EventStarted  EventType = "sandbox:started"
	EventError    EventType = "sandbox:error"
)

// Event is a lifecycle notification. For a single sandbox the sequence
// creating, created, started is strictly ordered and fully emitted before
// Create returns.
type Event struct {
	Type      EventType
	SandboxID string
	ProjectID string
	Status    Status
	Err       error
	Time      time.Time
}

// Listener receives events. A panicking listener is isolated; the
// remaining listeners still run and the triggering operation continues.
type Listener func(Event)

// Emitter is an instance-scoped subscriber list. Emission is synchronous
// so listeners observe events in order.
type Emitter struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[int]Listener)}
}

// On registers a listener and returns its unsubscribe func.
func (e *Emitter) On(l Listener) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Emit delivers the event to every listener in subscription order.
func (e *Emitter) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	e.mu.RLock()
	ids := make([]int, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	// map order is random; deliver in subscription order
	sort.Ints(ids)
	snapshot := make([]Listener, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, e.listeners[id])
	}
	e.mu.RUnlock()

	for _, l := range snapshot {
		notify(l, ev)
	}
}

func notify(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sandbox event listener panicked",
				slog.String("event", string(ev.Type)),
				slog.Any("panic", r))
		}
	}()
	l(ev)
}
