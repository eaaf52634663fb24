// Package handle implements reference-counted typed handles to renderer
// resources. A handle is cheap to clone and pass around; the resource
// behind it is released through a registry-provided callback when the
// last clone goes away.
package handle

import "sync/atomic"

// Raw is the plain index form of a handle, safe to store in maps and to
// hand to the GPU. It carries no ownership.
type Raw[T any] struct {
	Index uint32
}

type inner[T any] struct {
	raw  Raw[T]
	refs atomic.Int32
	free func(Raw[T])
}

// Handle is an owning reference. The zero value is invalid.
type Handle[T any] struct {
	inner *inner[T]
}

// New creates a handle with one reference. free runs when the last
// clone is released.
func New[T any](raw Raw[T], free func(Raw[T])) Handle[T] {
	h := Handle[T]{inner: &inner[T]{raw: raw, free: free}}
	h.inner.refs.Store(1)
	return h
}

func (h Handle[T]) Valid() bool {
	return h.inner != nil
}

func (h Handle[T]) Raw() Raw[T] {
	return h.inner.raw
}

// Clone takes another reference to the same resource.
func (h Handle[T]) Clone() Handle[T] {
	h.inner.refs.Add(1)
	return h
}

// Release drops one reference, freeing the resource index when it was
// the last one.
func (h Handle[T]) Release() {
	refs := h.inner.refs.Add(-1)
	if refs > 0 {
		return
	}
	if refs < 0 {
		panic("handle released more times than cloned")
	}
	if h.inner.free != nil {
		h.inner.free(h.inner.raw)
	}
}

// Weak observes a handle without keeping it alive.
type Weak[T any] struct {
	inner *inner[T]
}

func (h Handle[T]) Downgrade() Weak[T] {
	return Weak[T]{inner: h.inner}
}

func (w Weak[T]) Expired() bool {
	return w.inner == nil || w.inner.refs.Load() <= 0
}

// Upgrade returns an owning handle if the resource is still alive.
func (w Weak[T]) Upgrade() (Handle[T], bool) {
	if w.inner == nil {
		return Handle[T]{}, false
	}
	for {
		refs := w.inner.refs.Load()
		if refs <= 0 {
			return Handle[T]{}, false
		}
		if w.inner.refs.CompareAndSwap(refs, refs+1) {
			return Handle[T]{inner: w.inner}, true
		}
	}
}
