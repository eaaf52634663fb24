package containers

import "testing"

func TestRangeAllocatorFirstFit(t *testing.T) {
	ra := NewRangeAllocator(100)

	a, ok := ra.Allocate(30)
	if !ok || a.Start != 0 || a.End != 30 {
		t.Fatalf("first allocation = %+v, %v", a, ok)
	}
	b, ok := ra.Allocate(70)
	if !ok || b.Start != 30 {
		t.Fatalf("second allocation = %+v, %v", b, ok)
	}
	if _, ok := ra.Allocate(1); ok {
		t.Fatal("allocation succeeded on a full allocator")
	}
}

func TestRangeAllocatorCoalesce(t *testing.T) {
	ra := NewRangeAllocator(100)
	a, _ := ra.Allocate(25)
	b, _ := ra.Allocate(25)
	c, _ := ra.Allocate(50)

	ra.Free(a)
	ra.Free(c)
	// A 50-unit hole only exists if freeing b merges with both sides.
	ra.Free(b)

	whole, ok := ra.Allocate(100)
	if !ok || whole.Start != 0 || whole.End != 100 {
		t.Fatalf("expected the whole space back, got %+v, %v", whole, ok)
	}
}

func TestRangeAllocatorGrow(t *testing.T) {
	ra := NewRangeAllocator(10)
	head, _ := ra.Allocate(10)

	ra.GrowTo(40)
	if ra.Capacity() != 40 {
		t.Fatalf("capacity = %d, want 40", ra.Capacity())
	}
	r, ok := ra.Allocate(30)
	if !ok || r.Start != 10 {
		t.Fatalf("allocation after grow = %+v, %v", r, ok)
	}

	// Freed head coalesces with nothing yet still allocates.
	ra.Free(head)
	if _, ok := ra.Allocate(10); !ok {
		t.Fatal("failed to reuse freed head range")
	}
}

func TestRangeAllocatorZeroSize(t *testing.T) {
	ra := NewRangeAllocator(10)
	if _, ok := ra.Allocate(0); ok {
		t.Fatal("zero-size allocation succeeded")
	}
}
