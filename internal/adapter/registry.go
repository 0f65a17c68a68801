package adapter

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the running instances by name.
type Registry struct {
	instances map[string]Instance
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]Instance)}
}

// Register adds an instance. Empty and duplicate names are rejected.
func (r *Registry) Register(name string, instance Instance) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[name]; exists {
		return fmt.Errorf("instance %q is already registered", name)
	}
	r.instances[name] = instance
	return nil
}

// Get returns the named instance.
func (r *Registry) Get(name string) (Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	instance, ok := r.instances[name]
	return instance, ok
}

// List returns instance names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.instances))
	for name := range r.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove deletes the named instance and reports whether it existed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.instances[name]
	delete(r.instances, name)
	return exists
}

// Len returns the number of instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}
