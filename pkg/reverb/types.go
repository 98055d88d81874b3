package reverb

import (
	"encoding/json"
	"fmt"
	"sync"
)

// UnknownUID is the sentinel uid carried by an entity that has not yet been
// assigned an identity by the server.
const UnknownUID = "Unknown"

// baseTypeName is the always-present, never-instantiable sentinel entry in
// the type registry.
const baseTypeName = "ReverbObject"

// Constructor builds a concrete Entity from its positional field values
// (decoded from the wire) and its owner tag. fields has exactly as many
// elements as the class declares, in declaration order.
type Constructor func(fields []json.RawMessage, ownerTag int) (Entity, error)

// TypeRegistry is a class-name → Constructor map, one per World (there is
// no package-level instance). The application fills it at start-up, before
// constructing the World, and treats it as read-only thereafter, so lookups
// need no locking discipline beyond what a mutex already gives a concurrent
// writer during that start-up window.
type TypeRegistry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewTypeRegistry returns a registry pre-seeded with the abstract
// ReverbObject base entry, which always fails to construct.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{ctors: map[string]Constructor{}}
	r.ctors[baseTypeName] = func([]json.RawMessage, int) (Entity, error) {
		return nil, fmt.Errorf("reverb: %s is an abstract base and cannot be instantiated", baseTypeName)
	}
	return r
}

// Register adds a class name to the registry. Registering the same name
// twice overwrites the previous constructor, which is convenient for
// tests; application code is expected to register each class exactly
// once.
func (r *TypeRegistry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = ctor
}

// Lookup returns the constructor registered for name, or ErrTypeNotFound.
func (r *TypeRegistry) Lookup(name string) (Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.ctors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTypeNotFound, name)
	}
	return ctor, nil
}

// Has reports whether name is present in the registry.
func (r *TypeRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ctors[name]
	return ok
}
