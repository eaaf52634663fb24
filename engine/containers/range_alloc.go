package containers

// Range is a half-open [Start, End) interval of buffer space.
type Range struct {
	Start uint64
	End   uint64
}

func (r Range) Size() uint64 {
	return r.End - r.Start
}

// RangeAllocator hands out non-overlapping ranges from a linear space,
// coalescing freed neighbours. Used to suballocate shared vertex/index
// buffers.
type RangeAllocator struct {
	capacity uint64
	free     []Range
}

func NewRangeAllocator(capacity uint64) *RangeAllocator {
	return &RangeAllocator{
		capacity: capacity,
		free:     []Range{{Start: 0, End: capacity}},
	}
}

func (ra *RangeAllocator) Capacity() uint64 {
	return ra.capacity
}

// Allocate returns the first free range of at least `size` units.
func (ra *RangeAllocator) Allocate(size uint64) (Range, bool) {
	if size == 0 {
		return Range{}, false
	}
	for i := range ra.free {
		if ra.free[i].Size() < size {
			continue
		}
		out := Range{Start: ra.free[i].Start, End: ra.free[i].Start + size}
		if ra.free[i].Size() == size {
			ra.free = append(ra.free[:i], ra.free[i+1:]...)
		} else {
			ra.free[i].Start += size
		}
		return out, true
	}
	return Range{}, false
}

// Free returns a range to the allocator. Freeing a range that was never
// allocated corrupts the free list and is a logic error.
func (ra *RangeAllocator) Free(r Range) {
	if r.Size() == 0 {
		return
	}
	insert := len(ra.free)
	for i := range ra.free {
		if ra.free[i].Start >= r.End {
			insert = i
			break
		}
	}
	ra.free = append(ra.free, Range{})
	copy(ra.free[insert+1:], ra.free[insert:])
	ra.free[insert] = r

	// Coalesce with the right neighbour, then the left one.
	if insert+1 < len(ra.free) && ra.free[insert].End == ra.free[insert+1].Start {
		ra.free[insert].End = ra.free[insert+1].End
		ra.free = append(ra.free[:insert+1], ra.free[insert+2:]...)
	}
	if insert > 0 && ra.free[insert-1].End == ra.free[insert].Start {
		ra.free[insert-1].End = ra.free[insert].End
		ra.free = append(ra.free[:insert], ra.free[insert+1:]...)
	}
}

// GrowTo extends the allocator space to a new capacity.
func (ra *RangeAllocator) GrowTo(capacity uint64) {
	if capacity <= ra.capacity {
		return
	}
	ra.Free(Range{Start: ra.capacity, End: capacity})
	ra.capacity = capacity
}
