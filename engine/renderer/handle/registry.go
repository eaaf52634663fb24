package handle

import "sync"

// Registry associates handles of type T with a payload of type P. Each
// registered resource gets an index from the allocator; the entry and
// the index are reclaimed when the last handle clone is released. The
// release hook observes the departing payload, so owners that must
// defer GPU-side reclamation queue it there and apply it later.
type Registry[T any, P any] struct {
	mu      sync.Mutex
	alloc   Allocator
	release func(Raw[T], P)
	entries map[uint32]entry[T, P]
}

type entry[T any, P any] struct {
	weak    Weak[T]
	payload P
}

func NewRegistry[T any, P any](alloc Allocator, release func(Raw[T], P)) *Registry[T, P] {
	return &Registry[T, P]{
		alloc:   alloc,
		release: release,
		entries: make(map[uint32]entry[T, P]),
	}
}

// Register stores a payload and returns the owning handle for it.
func (r *Registry[T, P]) Register(payload P) Handle[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := r.alloc.Allocate()
	h := New(Raw[T]{Index: index}, func(raw Raw[T]) {
		r.mu.Lock()
		e := r.entries[raw.Index]
		delete(r.entries, raw.Index)
		r.alloc.Free(raw.Index)
		r.mu.Unlock()
		// The hook runs outside the registry lock so it may take the
		// owning system's.
		if r.release != nil {
			r.release(raw, e.payload)
		}
	})
	r.entries[index] = entry[T, P]{weak: h.Downgrade(), payload: payload}
	return h
}

// Get returns the payload of a live handle.
func (r *Registry[T, P]) Get(raw Raw[T]) (P, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[raw.Index]
	if !ok || e.weak.Expired() {
		var zero P
		return zero, false
	}
	return e.payload, true
}

// Update replaces the payload of a live handle.
func (r *Registry[T, P]) Update(raw Raw[T], payload P) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[raw.Index]
	if !ok || e.weak.Expired() {
		return false
	}
	e.payload = payload
	r.entries[raw.Index] = e
	return true
}

func (r *Registry[T, P]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ForEach visits every live entry. The registry lock is held during the
// walk, so the callback must not call back into the registry.
func (r *Registry[T, P]) ForEach(fn func(Raw[T], P)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for index, e := range r.entries {
		if e.weak.Expired() {
			continue
		}
		fn(Raw[T]{Index: index}, e.payload)
	}
}
