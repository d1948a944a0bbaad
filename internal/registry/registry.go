// Package registry holds the authoritative session id to handle map. Every
// check-then-mutate sequence is a single method under one lock: the
// at-most-one-handle-per-id invariant depends on that atomicity.
package registry

import "sync"

// Registry maps session ids to handles. H is the handle type, compared by
// identity.
type Registry[H comparable] struct {
	mu      sync.Mutex
	handles map[string]H
}

// New creates an empty registry.
func New[H comparable]() *Registry[H] {
	return &Registry[H]{
		handles: make(map[string]H),
	}
}

// Get returns the registered handle for id.
func (r *Registry[H]) Get(id string) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// PutIfAbsent registers h unless a handle already exists. Returns the handle
// now registered and whether h was stored.
func (r *Registry[H]) PutIfAbsent(id string, h H) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.handles[id]; ok {
		return existing, false
	}
	r.handles[id] = h
	return h, true
}

// Replace registers h unconditionally and returns the prior handle, if any.
// The prior handle is invalidated, not closed; the caller owns any teardown.
func (r *Registry[H]) Replace(id string, h H) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prior, had := r.handles[id]
	r.handles[id] = h
	return prior, had
}

// Remove unregisters h, but only while it is still the current handle for
// id. A superseded handle can therefore never evict its replacement.
func (r *Registry[H]) Remove(id string, h H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.handles[id]; !ok || current != h {
		return false
	}
	delete(r.handles, id)
	return true
}

// RemoveIf unregisters h while it is still the current handle for id and
// pred holds. pred runs under the registry lock, so the check and the
// removal are one atomic step with respect to every other registry
// mutation. pred is not called for a stale handle.
func (r *Registry[H]) RemoveIf(id string, h H, pred func() bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.handles[id]; !ok || current != h {
		return false
	}
	if !pred() {
		return false
	}
	delete(r.handles, id)
	return true
}

// UpdateIfCurrent runs fn under the registry lock while h is still the
// registered handle for id. Reports whether fn ran. Used to tie a handle
// state change to its registration so a concurrent check-then-remove cannot
// interleave between the two.
func (r *Registry[H]) UpdateIfCurrent(id string, h H, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.handles[id]; !ok || current != h {
		return false
	}
	fn()
	return true
}

// IsCurrent reports whether h is the registered handle for id.
func (r *Registry[H]) IsCurrent(id string, h H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.handles[id]
	return ok && current == h
}

// Len returns the number of registered handles.
func (r *Registry[H]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// IDs returns the registered session ids.
func (r *Registry[H]) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	return ids
}
