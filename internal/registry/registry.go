package registry

import "sync"

// Registry maps upload tokens to their live service instance. It is shared by
// the provisioning handler, which inserts, and by every instance, which
// removes itself on teardown.
type Registry[T any] struct {
	m sync.Mutex
	// token -> instance
	entries map[string]T
}

func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// TryRegister stores v under tok unless an entry already exists, in which
// case it reports false and leaves the existing entry alone.
func (r *Registry[T]) TryRegister(tok string, v T) bool {
	r.m.Lock()
	defer r.m.Unlock()
	if _, exists := r.entries[tok]; exists {
		return false
	}
	r.entries[tok] = v
	return true
}

// Remove deletes tok. Removing an absent token is a no-op.
func (r *Registry[T]) Remove(tok string) {
	r.m.Lock()
	defer r.m.Unlock()
	delete(r.entries, tok)
}

func (r *Registry[T]) Lookup(tok string) (T, bool) {
	r.m.Lock()
	defer r.m.Unlock()
	v, ok := r.entries[tok]
	return v, ok
}

func (r *Registry[T]) Len() int {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.entries)
}

// Each calls fn for a snapshot of the current entries.
func (r *Registry[T]) Each(fn func(tok string, v T)) {
	r.m.Lock()
	snapshot := make(map[string]T, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	r.m.Unlock()
	for k, v := range snapshot {
		fn(k, v)
	}
}
