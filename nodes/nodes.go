// Package nodes maps node kinds to their execution handlers. The
// registry is injected into the runner rather than being a package-level
// singleton, so callers can extend the kind set without touching the
// engine.
package nodes

import (
	"context"
	"fmt"
	"sync"

	"github.com/floweave/floweave"
)

// Call carries everything a handler needs for one node execution.
type Call struct {
	NodeID string
	// Config is the kind-typed config decoded at validation time.
	Config any
	// Input holds the payloads gathered from incoming edges, keyed by the
	// edge's destination port.
	Input map[floweave.Port]any
	// Trigger is the payload the run was started with. Only trigger
	// handlers normally look at it.
	Trigger any
}

// Output is the data a node produced, keyed by output port. Downstream
// nodes receive the value on the port their in-edge names.
type Output map[floweave.Port]any

// Handler executes nodes of one kind. Handlers may perform external I/O;
// the runner owns timeouts and retries, so a handler should be safe to
// call again after a failure.
type Handler interface {
	Execute(ctx context.Context, call Call) (Output, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, call Call) (Output, error)

func (f HandlerFunc) Execute(ctx context.Context, call Call) (Output, error) {
	return f(ctx, call)
}

// Registry maps node kinds to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[floweave.NodeKind]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[floweave.NodeKind]Handler)}
}

// Builtin returns a registry with the built-in handlers registered.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(floweave.KindManualTrigger, ManualTrigger{})
	r.Register(floweave.KindHTTPRequest, &HTTPRequest{})
	return r
}

// Register binds a handler to a kind, replacing any previous binding.
func (r *Registry) Register(kind floweave.NodeKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Execute dispatches a call to the handler for kind. A panicking handler
// is recovered and reported as an error so the run coordinator keeps
// control of the run.
func (r *Registry) Execute(ctx context.Context, kind floweave.NodeKind, call Call) (out Output, err error) {
	r.mu.RLock()
	h, ok := r.handlers[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("nodes: no handler registered for kind %q", kind)
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("nodes: handler for kind %q panicked: %v", kind, rec)
		}
	}()

	return h.Execute(ctx, call)
}
