package filter

import (
	"sync"

	"github.com/scopehal/triggersync"
)

// Registry resolves filter names to the filters owned elsewhere in the session.
// Trigger groups store only borrowed references; the registry is where those
// references are looked up when a saved layout is loaded.
type Registry struct {
	mu      sync.RWMutex
	filters map[string]triggersync.PausableFilter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		filters: make(map[string]triggersync.PausableFilter),
	}
}

// Register adds or replaces a filter under its name.
func (r *Registry) Register(f triggersync.PausableFilter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[f.Name()] = f
}

// Unregister removes the filter with the given name. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.filters, name)
}

// Get returns the filter registered under name.
// Returns triggersync.ErrFilterNotFound if there is none.
func (r *Registry) Get(name string) (triggersync.PausableFilter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.filters[name]
	if !ok {
		return nil, triggersync.ErrFilterNotFound
	}
	return f, nil
}

// Len returns the number of registered filters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.filters)
}
