package handle

// Allocator hands out stable uint32 indices for resource handles.
type Allocator interface {
	Allocate() uint32
	Free(index uint32)
}

// SimpleAllocator is a monotonic counter. Freed indices are never
// reused, which keeps indices unique for the lifetime of the registry.
type SimpleAllocator struct {
	next uint32
}

func (a *SimpleAllocator) Allocate() uint32 {
	index := a.next
	a.next++
	return index
}

func (a *SimpleAllocator) Free(uint32) {}

// FreelistAllocator reuses freed indices in LIFO order, keeping the
// index space dense for registries that back arrays.
type FreelistAllocator struct {
	next uint32
	free []uint32
}

func (a *FreelistAllocator) Allocate() uint32 {
	if n := len(a.free); n > 0 {
		index := a.free[n-1]
		a.free = a.free[:n-1]
		return index
	}
	index := a.next
	a.next++
	return index
}

func (a *FreelistAllocator) Free(index uint32) {
	a.free = append(a.free, index)
}
