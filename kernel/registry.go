package kernel

import "sync"

// Factory constructs a fresh, uninitialized Module instance.
type Factory func() Module

// Registry maps a module's directory name to the Factory that constructs it.
// Go has no runtime equivalent of a dynamic import() of an arbitrary on-disk
// file; per the Open Question resolution in DESIGN.md, module discovery is
// collapsed to "the directory exists under modulesPath AND a Factory was
// registered at link time for that name" rather than a dynamic file load.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// DefaultRegistry is the process-wide registry concrete modules register
// into via their package init().
var DefaultRegistry = NewRegistry()

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates name with factory. Intended to be called from a
// module package's init().
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Lookup returns the factory registered for name, if any.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}
