package notify

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps backend ids and aliases to factories. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	aliases   map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		aliases:   make(map[string]string),
	}
}

// Register adds a factory under id and any aliases. Names must be unique
// across ids and aliases.
func (r *Registry) Register(id string, f Factory, aliases ...string) error {
	if id == "" || f == nil {
		return fmt.Errorf("register backend: id and factory are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range append([]string{id}, aliases...) {
		if r.taken(name) {
			return fmt.Errorf("register backend %s: name %q already registered", id, name)
		}
	}
	r.factories[id] = f
	for _, alias := range aliases {
		r.aliases[alias] = id
	}
	return nil
}

// MustRegister is Register that panics on error. Use at startup only.
func (r *Registry) MustRegister(id string, f Factory, aliases ...string) {
	if err := r.Register(id, f, aliases...); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered under id or one of its aliases.
func (r *Registry) Lookup(name string) (Factory, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.factories[name]; ok {
		return f, name, nil
	}
	if id, ok := r.aliases[name]; ok {
		return r.factories[id], id, nil
	}
	return nil, "", &UnknownBackendError{Ref: name}
}

// Resolve accepts a backend id, an alias or a dotted reference whose last
// segment is an id or alias (for example "backends.email"). It returns the
// factory and the canonical id.
func (r *Registry) Resolve(ref string) (Factory, string, error) {
	name := ref
	if i := strings.LastIndex(ref, "."); i >= 0 {
		name = ref[i+1:]
	}
	f, id, err := r.Lookup(name)
	if err != nil {
		return nil, "", &UnknownBackendError{Ref: ref}
	}
	return f, id, nil
}

// IDs lists registered backend ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) taken(name string) bool {
	if _, ok := r.factories[name]; ok {
		return true
	}
	_, ok := r.aliases[name]
	return ok
}
