// Package ringqueue provides a bounded, blocking, multi-producer/multi-consumer
// FIFO queue backed by a fixed circular buffer.
//
// Unlike non-blocking queues, Push and Pop never fail and never spin: a
// producer that finds the buffer full sleeps until
// a consumer frees a slot, and a consumer that finds it empty sleeps until a
// producer delivers. Coordination is the classic monitor pattern: one mutex
// guarding the buffer, plus two condition variables ("room available" and
// "element available") whose predicates are re-checked after every wakeup.
package ringqueue

import "sync"

// RingQueue is a fixed-capacity circular buffer with blocking Push and Pop.
//
// The buffer's live region is the "occupied window": the size slots starting
// at start, wrapping modulo the capacity. Only those slots hold values; popped
// slots are zeroed so the buffer never retains references to elements that
// have already left the queue.
type RingQueue[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond // signaled after each Pop frees a slot
	notEmpty *sync.Cond // signaled after each Push delivers an element

	slots    []T
	start    uint64 // index of the oldest occupied slot
	size     uint64 // number of occupied slots
	capacity uint64
}

// New creates an empty RingQueue with the given capacity. The capacity is
// fixed for the lifetime of the queue.
func New[T any](capacity uint64) *RingQueue[T] {
	// Enforce minimum capacity of 1. A zero-capacity queue could never make
	// progress: every Push would wait for a Pop and every Pop would wait for
	// a Push, with no slot to hand a value through.
	if capacity < 1 {
		capacity = 1
	}
	q := &RingQueue[T]{
		slots:    make([]T, capacity),
		capacity: capacity,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends val to the queue, blocking while the queue is full.
//
// The wait loop re-checks the predicate after every wakeup: a signal only
// means the state was favorable at signal time, not that it still is once
// this goroutine has reacquired the lock.
func (q *RingQueue[T]) Push(val T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == q.capacity {
		q.notFull.Wait()
	}

	q.slots[(q.start+q.size)%q.capacity] = val
	q.size++

	// Exactly one waiter is woken: this Push satisfies at most one blocked Pop.
	q.notEmpty.Signal()
}

// Pop removes and returns the oldest element, blocking while the queue is
// empty.
func (q *RingQueue[T]) Pop() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 {
		q.notEmpty.Wait()
	}

	val := q.slots[q.start]
	var zero T
	q.slots[q.start] = zero // vacated slots hold no value
	q.start = (q.start + 1) % q.capacity
	q.size--

	q.notFull.Signal()
	return val
}

// Clone returns an independent copy of the queue taken as a point-in-time
// snapshot: the lock is held while the occupied window is copied, so the
// snapshot can never observe a half-applied Push or Pop. The clone gets its
// own mutex and condition variables; no waiter is ever shared with the
// original, and operations on one queue are invisible to the other.
//
// Elements are copied by assignment. For pointer element types the pointers
// are duplicated and the pointees shared.
func (q *RingQueue[T]) Clone() *RingQueue[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	c := New[T](q.capacity)
	for i := uint64(0); i < q.size; i++ {
		idx := (q.start + i) % q.capacity
		c.slots[idx] = q.slots[idx]
	}
	c.start = q.start
	c.size = q.size
	return c
}

// FreeSlots returns how many more elements can be pushed before the queue is
// full. The value is exact at the moment of the call but may be stale by the
// time the caller acts on it.
func (q *RingQueue[T]) FreeSlots() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity - q.size
}

// UsedSlots returns how many elements are currently queued.
func (q *RingQueue[T]) UsedSlots() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Capacity returns the fixed capacity the queue was created with.
func (q *RingQueue[T]) Capacity() uint64 {
	return q.capacity
}
