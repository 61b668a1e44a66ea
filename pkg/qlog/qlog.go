// Package qlog decorates a blocking queue with per-operation event logging.
//
// Logging here is observational only: it never alters queue semantics, and a
// misbehaving or absent sink must not be able to break Push or Pop. Events
// are emitted at Debug level so a production logger ignores them unless
// explicitly turned up.
package qlog

import "go.uber.org/zap"

// Queue is the queue surface Logged wraps. Any of this repository's
// implementations satisfies it.
type Queue[T any] interface {
	Push(T)
	Pop() T
	FreeSlots() uint64
	UsedSlots() uint64
}

// Logged forwards every operation to the wrapped queue and reports it to the
// logger.
type Logged[T any] struct {
	q   Queue[T]
	log *zap.Logger
}

// Wrap returns q with event logging attached. A nil logger is replaced by a
// no-op logger, so Wrap(q, nil) is a safe way to keep the decorator in place
// with logging disabled.
func Wrap[T any](q Queue[T], log *zap.Logger) *Logged[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logged[T]{q: q, log: log}
}

// Push logs the element and then delegates. The event is emitted before the
// queue is entered, so a producer that parks on a full queue has already
// announced what it is trying to deliver.
func (l *Logged[T]) Push(val T) {
	l.log.Debug("pushing into queue", zap.Any("value", val))
	l.q.Push(val)
}

// Pop delegates and then logs the element it extracted.
func (l *Logged[T]) Pop() T {
	val := l.q.Pop()
	l.log.Debug("popping from queue", zap.Any("value", val))
	return val
}

func (l *Logged[T]) FreeSlots() uint64 {
	return l.q.FreeSlots()
}

func (l *Logged[T]) UsedSlots() uint64 {
	return l.q.UsedSlots()
}
