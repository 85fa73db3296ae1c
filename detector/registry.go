package detector

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps names to camera sessions.  It replaces the usual
// process-wide camera table: the composition root owns one and passes it
// to whatever issues connect or configure calls.
type Registry struct {
	mu      sync.Mutex
	cameras map[string]*Camera
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{cameras: make(map[string]*Camera)}
}

// Add registers a camera under name, erroring if the name is taken
func (r *Registry) Add(name string, c *Camera) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cameras[name]; ok {
		return fmt.Errorf("registry already holds a camera named %q", name)
	}
	r.cameras[name] = c
	return nil
}

// Get looks a camera up by name
func (r *Registry) Get(name string) (*Camera, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cameras[name]
	if !ok {
		return nil, fmt.Errorf("no camera named %q", name)
	}
	return c, nil
}

// Names returns the registered names, sorted
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.cameras))
	for name := range r.cameras {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
