package queue

// QueueValidationInterface is a *type constraint* that ensures any type Q has
// these methods. We never store Q in a runtime interface—
// we only use QueueValidationInterface at compile time to ensure matching signatures.
type QueueValidationInterface[T any] interface {
	// Push adds an element to the queue, blocking while the queue is full.
	Push(T)

	// Pop removes and returns the oldest element, blocking while the queue
	// is empty. There is no "empty" return: callers wait until an element
	// arrives.
	Pop() T

	// FreeSlots returns how many more elements can be pushed before the queue is full.
	FreeSlots() uint64

	// UsedSlots returns how many elements are currently queued.
	UsedSlots() uint64
}
