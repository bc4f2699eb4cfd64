package xtypes

import "sync"

// Listener receives the arguments passed to Emit.
type Listener func(args ...any)

// EventEmitter is a minimal Node-style event emitter: named events, each
// with an ordered list of listeners, some of which fire at most once.
// sio.Socket uses one to dispatch inbound events to the listeners an
// application registers.
type EventEmitter struct {
	mu        sync.Mutex
	listeners map[string][]entry
}

type entry struct {
	fn   Listener
	once bool
}

// NewEventEmitter returns a ready-to-use EventEmitter.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{listeners: make(map[string][]entry)}
}

// On registers fn to run every time evt is emitted.
func (e *EventEmitter) On(evt string, fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[evt] = append(e.listeners[evt], entry{fn: fn})
}

// Once registers fn to run the next time evt is emitted, then removes it.
func (e *EventEmitter) Once(evt string, fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[evt] = append(e.listeners[evt], entry{fn: fn, once: true})
}

// RemoveAllListeners removes every listener registered for evt. Since
// Go funcs are not comparable, callers that need to remove a specific
// listener should use RemoveAllListeners and re-register the ones they
// want to keep; most call sites in this codebase only ever register one
// listener per event name on a given emitter instance.
func (e *EventEmitter) RemoveAllListeners(evt string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listeners, evt)
}

// Emit invokes all listeners registered for evt, in registration order,
// synchronously on the calling goroutine. Once-listeners are removed
// before invocation so a listener that re-emits the same event cannot
// re-trigger itself.
func (e *EventEmitter) Emit(evt string, args ...any) {
	e.mu.Lock()
	fns := e.listeners[evt]
	if len(fns) == 0 {
		e.mu.Unlock()
		return
	}
	kept := fns[:0:0]
	call := make([]Listener, 0, len(fns))
	for _, en := range fns {
		call = append(call, en.fn)
		if !en.once {
			kept = append(kept, en)
		}
	}
	e.listeners[evt] = kept
	e.mu.Unlock()

	for _, fn := range call {
		fn(args...)
	}
}

// ListenerCount returns how many listeners are registered for evt.
func (e *EventEmitter) ListenerCount(evt string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[evt])
}
