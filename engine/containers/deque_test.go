package containers

import "testing"

func TestDequePushPopOrder(t *testing.T) {
	dq := NewDeque[int](2)
	dq.PushBack(1)
	dq.PushBack(2)
	dq.PushFront(0)

	if got := dq.Len(); got != 3 {
		t.Fatalf("expected length 3, got %d", got)
	}
	for want := 0; want < 3; want++ {
		got, ok := dq.PopFront()
		if !ok || got != want {
			t.Fatalf("PopFront = %d, %v, want %d", got, ok, want)
		}
	}
	if _, ok := dq.PopFront(); ok {
		t.Fatal("PopFront on empty deque reported ok")
	}
}

func TestDequePopBack(t *testing.T) {
	dq := NewDeque[string](1)
	dq.PushBack("a")
	dq.PushBack("b")

	if got, _ := dq.PopBack(); got != "b" {
		t.Fatalf("PopBack = %q, want b", got)
	}
	if got, _ := dq.PopBack(); got != "a" {
		t.Fatalf("PopBack = %q, want a", got)
	}
}

func TestDequeGrowKeepsOrder(t *testing.T) {
	dq := NewDeque[int](2)
	for i := 0; i < 50; i++ {
		dq.PushBack(i)
	}
	// Wrap the ring before growing again.
	for i := 0; i < 10; i++ {
		dq.PopFront()
		dq.PushBack(50 + i)
	}
	for i := 0; i < dq.Len(); i++ {
		if got := dq.At(i); got != 10+i {
			t.Fatalf("At(%d) = %d, want %d", i, got, 10+i)
		}
	}
}

func TestDequeAtPanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	dq := NewDeque[int](2)
	dq.PushBack(1)
	dq.At(1)
}
