package channel

// Bounded creates a channel pair backed by a buffered Go channel of the given
// capacity. TrySend reports ErrFull instead of blocking when the buffer is full.
// The underlying Go channel is never closed, so late senders cannot panic.
func Bounded[T any](capacity int) (Sender[T], Receiver[T]) {
	if capacity < 1 {
		capacity = 1
	}
	st := &state{}
	ch := make(chan T, capacity)
	return &boundedSender[T]{slot: newSlot(st), ch: ch}, &boundedReceiver[T]{st: st, ch: ch}
}

type boundedSender[T any] struct {
	*slot
	ch chan T
}

// TrySend sends v if there is room in the buffer.
func (s *boundedSender[T]) TrySend(v T) error {
	if !s.usable() {
		return ErrDisconnected
	}
	select {
	case s.ch <- v:
		return nil
	default:
		return ErrFull
	}
}

// Clone opens a new sender slot on the same buffer.
func (s *boundedSender[T]) Clone() Sender[T] {
	return &boundedSender[T]{slot: newSlot(s.st), ch: s.ch}
}

// Close releases this sender slot.
func (s *boundedSender[T]) Close() {
	s.release()
}

type boundedReceiver[T any] struct {
	st *state
	ch chan T
}

// TryRecv receives the oldest buffered value.
func (r *boundedReceiver[T]) TryRecv() (T, error) {
	select {
	case v := <-r.ch:
		return v, nil
	default:
	}
	if r.st.disconnected() {
		select {
		case v := <-r.ch:
			return v, nil
		default:
		}
		var zero T
		return zero, ErrDisconnected
	}
	var zero T
	return zero, ErrEmpty
}

// Len returns the number of values currently buffered.
func (r *boundedReceiver[T]) Len() int {
	return len(r.ch)
}

// Close marks the receiver as gone and discards buffered values.
func (r *boundedReceiver[T]) Close() {
	if !r.st.receiverClosed.CompareAndSwap(false, true) {
		return
	}
	for {
		select {
		case <-r.ch:
		default:
			return
		}
	}
}
