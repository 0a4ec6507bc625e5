package registry

import (
	"fmt"
	"log/slog"
	"sort"
)

// Module is the interface every compiled-in module implements to add its
// entries to a registry.
type Module[T any] interface {
	Register(r *Registry[T])
}

// Registry maps names to implementations of one kind.
type Registry[T any] struct {
	kind    string
	entries map[string]T
}

// New creates an empty registry. kind names the entries in log lines and
// errors, e.g. "workflow".
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:    kind,
		entries: make(map[string]T),
	}
}

// Register adds impl under name. Registering a name twice is a programmer
// error and panics.
func (r *Registry[T]) Register(name string, impl T) {
	if name == "" {
		panic(fmt.Sprintf("%s registered with an empty name", r.kind))
	}
	if _, exists := r.entries[name]; exists {
		panic(fmt.Sprintf("%s with name '%s' already registered", r.kind, name))
	}
	slog.Debug("Registering "+r.kind+".", "name", name)
	r.entries[name] = impl
}

// Load registers the entries of every module.
func (r *Registry[T]) Load(modules ...Module[T]) {
	for _, mod := range modules {
		mod.Register(r)
	}
}

// Lookup returns the implementation registered under name.
func (r *Registry[T]) Lookup(name string) (T, error) {
	impl, ok := r.entries[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown %s %q, registered: %v", r.kind, name, r.Names())
	}
	return impl, nil
}

// Names returns the registered names in lexical order.
func (r *Registry[T]) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered entries.
func (r *Registry[T]) Len() int {
	return len(r.entries)
}
