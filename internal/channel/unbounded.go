package channel

import "github.com/OCAP2/tickbridge/internal/queue"

// Unbounded creates a channel pair backed by a lock-free MPSC queue. TrySend
// never reports ErrFull.
func Unbounded[T any]() (Sender[T], Receiver[T]) {
	st := &state{}
	q := queue.NewMPSC[T]()
	return &unboundedSender[T]{slot: newSlot(st), q: q}, &unboundedReceiver[T]{st: st, q: q}
}

type unboundedSender[T any] struct {
	*slot
	q *queue.MPSC[T]
}

// TrySend appends v to the queue unless the slot or the receiver is closed.
func (s *unboundedSender[T]) TrySend(v T) error {
	if !s.usable() {
		return ErrDisconnected
	}
	s.q.Push(v)
	return nil
}

// Clone opens a new sender slot on the same queue.
func (s *unboundedSender[T]) Clone() Sender[T] {
	return &unboundedSender[T]{slot: newSlot(s.st), q: s.q}
}

// Close releases this sender slot.
func (s *unboundedSender[T]) Close() {
	s.release()
}

type unboundedReceiver[T any] struct {
	st *state
	q  *queue.MPSC[T]
}

// TryRecv pops the oldest value. It reports ErrDisconnected only once the
// queue is drained and no sender remains.
func (r *unboundedReceiver[T]) TryRecv() (T, error) {
	if v, ok := r.q.Pop(); ok {
		return v, nil
	}
	if r.st.disconnected() {
		// A push completes before its sender's Close, so anything sent before
		// the last slot was released is linked by now.
		if v, ok := r.q.Pop(); ok {
			return v, nil
		}
		var zero T
		return zero, ErrDisconnected
	}
	var zero T
	return zero, ErrEmpty
}

// Len returns the approximate number of queued values.
func (r *unboundedReceiver[T]) Len() int {
	return r.q.Len()
}

// Close marks the receiver as gone and discards queued values.
func (r *unboundedReceiver[T]) Close() {
	if r.st.receiverClosed.CompareAndSwap(false, true) {
		r.q.Drain()
	}
}
