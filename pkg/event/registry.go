// Package event implements the name-indexed handler registry that both the
// server and client transports dispatch through.
package event

import (
	"encoding/json"
	"net"
	"sync"

	"go.uber.org/zap"
)

// Handler receives the originating connection and the decoded positional
// contents of the packet that triggered it.
type Handler func(sock net.Conn, contents []json.RawMessage)

// Registry maps event names to the handlers registered against them.
// Separate Registry instances are used for the server side and the client
// side.
type Registry struct {
	log *zap.SugaredLogger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// New returns an empty registry that logs unknown-event warnings and
// handler panics through log.
func New(log *zap.SugaredLogger) *Registry {
	return &Registry{log: log, handlers: map[string][]Handler{}}
}

// On registers handler against name. Multiple handlers may share a name;
// all of them run on Trigger.
func (r *Registry) On(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = append(r.handlers[name], h)
}

// Trigger dispatches name to every registered handler. By default each
// handler runs in its own goroutine so a slow or blocking handler cannot
// stall the caller (typically a connection's receive loop). Pass
// inline=true to run handlers synchronously and wait for them to return
// before Trigger itself returns — used for client_disconnection, which
// must finish before the socket is closed.
//
// An event name with no registered handlers produces a warning, never an
// error: that's routine, e.g. an application that doesn't care about
// client_connection.
func (r *Registry) Trigger(sock net.Conn, name string, contents []json.RawMessage, inline bool) {
	r.mu.RLock()
	hs := append([]Handler(nil), r.handlers[name]...)
	r.mu.RUnlock()

	if len(hs) == 0 {
		if r.log != nil {
			r.log.Warnf("no handler registered for event %q", name)
		}
		return
	}

	if inline {
		for _, h := range hs {
			r.runHandler(h, sock, name, contents)
		}
		return
	}

	for _, h := range hs {
		go r.runHandler(h, sock, name, contents)
	}
}

// runHandler isolates one handler invocation: a panicking handler is
// logged and does not affect sibling handlers or the receive loop that
// called Trigger.
func (r *Registry) runHandler(h Handler, sock net.Conn, name string, contents []json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil && r.log != nil {
			r.log.Errorf("handler for %q panicked: %v", name, rec)
		}
	}()
	h(sock, contents)
}

// Names returns every event name with at least one registered handler.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	return names
}
