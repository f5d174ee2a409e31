// Package pipes implements the transformation chain applied to resolved
// values. Pipes must be deterministic for a given value and argument
// set so that cached values stay valid across runs.
package pipes

import (
	"context"
)

// Pipe transforms a value. Apply must never log or embed the input
// value in its error.
type Pipe interface {
	// Name is the registry key the pipe is dispatched under.
	Name() string
	// Apply transforms value using the call's named arguments.
	Apply(ctx context.Context, value string, args map[string]string) (string, error)
}

// Func adapts a plain function into a Pipe.
type Func struct {
	PipeName string
	Fn       func(value string, args map[string]string) (string, error)
}

// Name implements Pipe.
func (f Func) Name() string { return f.PipeName }

// Apply implements Pipe.
func (f Func) Apply(_ context.Context, value string, args map[string]string) (string, error) {
	return f.Fn(value, args)
}

// Registry maps pipe names to implementations. Register everything
// before evaluation starts; lookups are not synchronized.
type Registry struct {
	pipes map[string]Pipe
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pipes: make(map[string]Pipe)}
}

// DefaultRegistry returns a registry with all built-in pipes.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range builtins() {
		r.Register(p)
	}
	return r
}

// Register adds a pipe under its own name, replacing any previous
// registration.
func (r *Registry) Register(p Pipe) {
	r.pipes[p.Name()] = p
}

// Lookup returns the pipe registered under name.
func (r *Registry) Lookup(name string) (Pipe, bool) {
	p, ok := r.pipes[name]
	return p, ok
}

// Names returns the registered pipe names, unordered.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.pipes))
	for n := range r.pipes {
		names = append(names, n)
	}
	return names
}
