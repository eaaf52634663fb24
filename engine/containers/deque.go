package containers

// Deque is a growable double-ended queue backed by a ring buffer.
type Deque[T any] struct {
	data  []T
	head  int
	count int
}

func NewDeque[T any](capacity int) *Deque[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Deque[T]{
		data: make([]T, capacity),
	}
}

func (dq *Deque[T]) Len() int {
	return dq.count
}

// PushFront adds an element to the front of the queue.
func (dq *Deque[T]) PushFront(value T) {
	dq.growIfFull()
	dq.head = (dq.head - 1 + len(dq.data)) % len(dq.data)
	dq.data[dq.head] = value
	dq.count++
}

// PushBack adds an element to the back of the queue.
func (dq *Deque[T]) PushBack(value T) {
	dq.growIfFull()
	dq.data[(dq.head+dq.count)%len(dq.data)] = value
	dq.count++
}

// PopFront removes and returns the front element.
func (dq *Deque[T]) PopFront() (T, bool) {
	var zero T
	if dq.count == 0 {
		return zero, false
	}
	value := dq.data[dq.head]
	dq.data[dq.head] = zero
	dq.head = (dq.head + 1) % len(dq.data)
	dq.count--
	return value, true
}

// PopBack removes and returns the back element.
func (dq *Deque[T]) PopBack() (T, bool) {
	var zero T
	if dq.count == 0 {
		return zero, false
	}
	index := (dq.head + dq.count - 1) % len(dq.data)
	value := dq.data[index]
	dq.data[index] = zero
	dq.count--
	return value, true
}

// Front returns the front element without removing it.
func (dq *Deque[T]) Front() (T, bool) {
	var zero T
	if dq.count == 0 {
		return zero, false
	}
	return dq.data[dq.head], true
}

// At returns the element at the given position counted from the front.
func (dq *Deque[T]) At(i int) T {
	if i < 0 || i >= dq.count {
		panic("deque index out of range")
	}
	return dq.data[(dq.head+i)%len(dq.data)]
}

func (dq *Deque[T]) growIfFull() {
	if dq.count < len(dq.data) {
		return
	}
	grown := make([]T, len(dq.data)*2)
	for i := 0; i < dq.count; i++ {
		grown[i] = dq.data[(dq.head+i)%len(dq.data)]
	}
	dq.data = grown
	dq.head = 0
}
