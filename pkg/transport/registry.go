// Package transport exposes reactive.Set graphs to external, non-Go
// clients: a JSON snapshot/websocket surface over HTTP, plus a GraphQL
// subscription field, guarded by pkg/reactiveauth. These are the "external
// collaborators" a reactive-collections core library deliberately stops
// short of designing; this package is this repository's opinionated take on
// one.
package transport

import (
	"sync"

	"github.com/mnohosten/reactor/pkg/reactive"
)

// Registry is a name-to-set directory, the transport layer's entry point
// into a running reactive graph. Handlers look up a collection by name the
// way a database handler looks up a collection by name.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]reactive.Set[any]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sets: make(map[string]reactive.Set[any])}
}

// Register exposes source under name, erasing its item type to `any` so
// heterogeneous collections can share one registry. Registering the same
// name twice replaces the previous entry; existing subscribers to the old
// entry are unaffected, they simply stop seeing it from future lookups.
func Register[T any](r *Registry, name string, source reactive.Set[T]) {
	erased := reactive.Map[T, any](source, func(v T) any { return v })
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[name] = erased
}

// Get returns the set registered under name, if any.
func (r *Registry) Get(name string) (reactive.Set[any], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sets[name]
	return s, ok
}

// Names returns every currently registered collection name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sets))
	for name := range r.sets {
		out = append(out, name)
	}
	return out
}
