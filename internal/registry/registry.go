// Package registry maps configuration type names to factories.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownType is returned when a type name has no registered factory.
var ErrUnknownType = errors.New("unknown type")

// Registry maps type names to values of F, usually factory functions.
type Registry[F any] struct {
	name    string
	mu      sync.RWMutex
	entries map[string]F
}

// New creates an empty registry. name is used in error messages.
func New[F any](name string) *Registry[F] {
	return &Registry[F]{name: name, entries: make(map[string]F)}
}

// Name returns the registry name.
func (r *Registry[F]) Name() string {
	return r.name
}

// Register adds f under typ. Registering a name twice panics; registration
// happens at package init and a duplicate is a programming error.
func (r *Registry[F]) Register(typ string, f F) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[typ]; ok {
		panic(fmt.Sprintf("registry %s: %q already registered", r.name, typ))
	}
	r.entries[typ] = f
}

// Get returns the entry for typ.
func (r *Registry[F]) Get(typ string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.entries[typ]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%s: %w %q (registered: %s)",
			r.name, ErrUnknownType, typ, strings.Join(r.namesLocked(), ", "))
	}
	return f, nil
}

// Has reports whether typ is registered.
func (r *Registry[F]) Has(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[typ]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry[F]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry[F]) namesLocked() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
