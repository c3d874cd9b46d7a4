package model

import (
	"sync"
)

// entry serialises provisioning of one artifact path. handle is set only
// after a successful load.
type entry struct {
	handle *Handle
	mu     sync.Mutex
}

// Registry stores one entry per artifact path.
type Registry struct {
	entries map[string]*entry
	mu      sync.RWMutex
}

// NewRegistry creates a new entry registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// lookup returns the entry for key, creating it if needed.
func (r *Registry) lookup(key string) *entry {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok {
		return e
	}
	e = &entry{}
	r.entries[key] = e
	return e
}

// Get returns the loaded handle for an artifact path.
func (r *Registry) Get(path string) (*Handle, bool) {
	r.mu.RLock()
	e, ok := r.entries[path]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.handle, e.handle != nil
}

// List returns all loaded handles.
func (r *Registry) List() []*Handle {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	handles := make([]*Handle, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.handle != nil {
			handles = append(handles, e.handle)
		}
		e.mu.Unlock()
	}

	return handles
}
