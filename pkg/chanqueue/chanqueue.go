// Package chanqueue implements the bounded blocking queue contract on top of
// a buffered Go channel. The channel runtime already provides the exact
// semantics required (producers park when the buffer is full, consumers park
// when it is empty), so this implementation is mostly a naming shim. It serves
// as the baseline the hand-built queues are validated and benchmarked against.
package chanqueue

type ChanQueue[T any] struct {
	ch chan T
}

func New[T any](capacity uint64) *ChanQueue[T] {
	// Enforce minimum capacity of 1 to ensure proper bounded buffer semantics.
	// A zero-capacity Go channel is an unbuffered synchronization primitive,
	// not a zero-capacity buffer, which would cause unexpected behavior.
	if capacity < 1 {
		capacity = 1
	}
	return &ChanQueue[T]{
		ch: make(chan T, capacity),
	}
}

// Push appends val, blocking while the queue is full.
func (q *ChanQueue[T]) Push(val T) {
	q.ch <- val
}

// Pop removes and returns the oldest element, blocking while the queue is
// empty.
func (q *ChanQueue[T]) Pop() T {
	return <-q.ch
}

func (q *ChanQueue[T]) FreeSlots() uint64 {
	return uint64(cap(q.ch) - len(q.ch))
}

func (q *ChanQueue[T]) UsedSlots() uint64 {
	return uint64(len(q.ch))
}

// Capacity returns the fixed capacity the queue was created with.
func (q *ChanQueue[T]) Capacity() uint64 {
	return uint64(cap(q.ch))
}
