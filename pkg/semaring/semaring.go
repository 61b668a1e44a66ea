// Package semaring implements the bounded blocking queue contract with
// counting semaphores instead of condition variables: one semaphore counts
// vacant slots and parks producers, the other counts occupied slots and parks
// consumers. A small mutex still serializes the window bookkeeping; the
// semaphores only do the sleeping and the accounting.
package semaring

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// SemaRing is a fixed-capacity circular buffer with blocking Push and Pop.
//
// A permit on free is the right to write one slot; a permit on used is the
// right to take one committed element. Permits on used are only released
// after the element is fully written, so a consumer that gets past
// used.Acquire always finds at least one occupied slot under the mutex.
type SemaRing[T any] struct {
	free *semaphore.Weighted // vacant slots; Push acquires, Pop releases
	used *semaphore.Weighted // occupied slots; Pop acquires, Push releases

	mu       sync.Mutex
	slots    []T
	start    uint64
	size     uint64
	capacity uint64
}

// New creates an empty SemaRing with the given capacity. The capacity is
// fixed for the lifetime of the queue.
func New[T any](capacity uint64) *SemaRing[T] {
	// Enforce minimum capacity of 1; with zero slots neither side could ever
	// acquire a permit and the queue would deadlock on first use.
	if capacity < 1 {
		capacity = 1
	}
	q := &SemaRing[T]{
		free:     semaphore.NewWeighted(int64(capacity)),
		used:     semaphore.NewWeighted(int64(capacity)),
		slots:    make([]T, capacity),
		capacity: capacity,
	}
	// A weighted semaphore starts with all permits available. free is correct
	// as created (every slot vacant); used must start at zero.
	q.used.TryAcquire(int64(capacity))
	return q
}

// Push appends val to the queue, blocking while the queue is full.
func (q *SemaRing[T]) Push(val T) {
	// Background context: blocking here is indefinite and not cancelable,
	// so Acquire cannot fail.
	_ = q.free.Acquire(context.Background(), 1)

	q.mu.Lock()
	q.slots[(q.start+q.size)%q.capacity] = val
	q.size++
	q.mu.Unlock()

	q.used.Release(1)
}

// Pop removes and returns the oldest element, blocking while the queue is
// empty.
func (q *SemaRing[T]) Pop() T {
	_ = q.used.Acquire(context.Background(), 1)

	q.mu.Lock()
	val := q.slots[q.start]
	var zero T
	q.slots[q.start] = zero // vacated slots hold no value
	q.start = (q.start + 1) % q.capacity
	q.size--
	q.mu.Unlock()

	q.free.Release(1)
	return val
}

// Clone returns an independent copy of the queue. The mutex is held while the
// occupied window is copied; pushes that have reserved a slot but not yet
// written it are not part of the snapshot. The clone gets fresh semaphores
// adjusted to the copied element count, so no waiter is shared with the
// original.
func (q *SemaRing[T]) Clone() *SemaRing[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	c := New[T](q.capacity)
	for i := uint64(0); i < q.size; i++ {
		idx := (q.start + i) % q.capacity
		c.slots[idx] = q.slots[idx]
	}
	c.start = q.start
	c.size = q.size
	if q.size > 0 {
		// Fresh semaphores describe an empty queue; shift q.size permits
		// from free to used. Both calls operate on unshared semaphores and
		// cannot block.
		c.free.TryAcquire(int64(q.size))
		c.used.Release(int64(q.size))
	}
	return c
}

// FreeSlots returns how many more elements can be pushed before the queue is
// full. The value is exact at the moment of the call but may be stale by the
// time the caller acts on it.
func (q *SemaRing[T]) FreeSlots() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity - q.size
}

// UsedSlots returns how many elements are currently queued.
func (q *SemaRing[T]) UsedSlots() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Capacity returns the fixed capacity the queue was created with.
func (q *SemaRing[T]) Capacity() uint64 {
	return q.capacity
}
