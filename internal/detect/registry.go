package detect

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages a named collection of detectors that can be looked up at
// runtime. It is safe for concurrent use.
type Registry struct {
	detectors map[string]Detector
	mu        sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		detectors: make(map[string]Detector),
	}
}

// Register adds a detector to the registry under the given name.
// If a detector with the same name already exists it will be replaced.
func (r *Registry) Register(name string, d Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors[name] = d
}

// Get retrieves a detector by name. It returns an error when the name is not
// registered.
func (r *Registry) Get(name string) (Detector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.detectors[name]
	if !ok {
		return nil, fmt.Errorf("detector %q: not registered", name)
	}
	return d, nil
}

// List returns the names of all registered detectors in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.detectors))
	for n := range r.detectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
