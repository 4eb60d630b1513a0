// Package queue provides an unbounded lock-free multi-producer single-consumer queue.
package queue

import "sync/atomic"

type node[T any] struct {
	next  atomic.Pointer[node[T]]
	value T
}

// MPSC is an unbounded FIFO queue. Push may be called from any number of
// goroutines; Pop, Drain and Empty must only be called by a single consumer.
//
// Producers serialize on an atomic swap of the head pointer, so the queue order
// is the order of those swaps and every producer's own order is preserved.
type MPSC[T any] struct {
	head atomic.Pointer[node[T]] // last pushed node, owned by producers
	tail *node[T]                // stub or last popped node, owned by the consumer
	size atomic.Int64
}

// NewMPSC creates an empty queue.
func NewMPSC[T any]() *MPSC[T] {
	stub := &node[T]{}
	q := &MPSC[T]{tail: stub}
	q.head.Store(stub)
	return q
}

// Push appends v to the queue. It never blocks.
func (q *MPSC[T]) Push(v T) {
	n := &node[T]{value: v}
	q.size.Add(1)
	prev := q.head.Swap(n)
	// Between the swap and this store the consumer sees the queue as ending at
	// prev; the element becomes visible once the link is published.
	prev.next.Store(n)
}

// Pop removes and returns the oldest element. The second result is false when
// no linked element is available.
func (q *MPSC[T]) Pop() (T, bool) {
	next := q.tail.next.Load()
	if next == nil {
		var zero T
		return zero, false
	}
	v := next.value
	var zero T
	next.value = zero
	q.tail = next
	q.size.Add(-1)
	return v, true
}

// Empty reports whether Pop would currently find nothing.
func (q *MPSC[T]) Empty() bool {
	return q.tail.next.Load() == nil
}

// Len returns the approximate number of queued elements.
func (q *MPSC[T]) Len() int {
	n := q.size.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Drain pops every currently linked element, oldest first.
func (q *MPSC[T]) Drain() []T {
	var out []T
	for {
		v, ok := q.Pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}
