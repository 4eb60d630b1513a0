// Package channel provides generic channel pairs with non-blocking try semantics
// for decoupled communication between producers and a single consumer.
package channel

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrFull is returned by TrySend when the channel cannot accept another value.
	ErrFull = errors.New("channel full")

	// ErrEmpty is returned by TryRecv when no value is available yet.
	ErrEmpty = errors.New("channel empty")

	// ErrDisconnected is returned by TrySend when the receiver is gone, and by
	// TryRecv when the channel is empty and every sender is gone.
	ErrDisconnected = errors.New("channel disconnected")
)

// Sender provides write access to a channel.
type Sender[T any] interface {
	// TrySend enqueues v without blocking.
	TrySend(v T) error
	// Clone opens another sender slot on the same channel.
	Clone() Sender[T]
	// Close releases this sender slot. Calling it more than once has no effect.
	Close()
}

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	// TryRecv dequeues the oldest value without blocking.
	TryRecv() (T, error)
	// Len returns the approximate number of queued values.
	Len() int
	// Close tears the receiving side down; senders observe ErrDisconnected.
	Close()
}

// state tracks the liveness of both ends of a channel.
type state struct {
	senders        atomic.Int64
	receiverClosed atomic.Bool
}

// slot is one sender's claim on a channel.
type slot struct {
	st     *state
	closed atomic.Bool
}

func newSlot(st *state) *slot {
	st.senders.Add(1)
	return &slot{st: st}
}

// usable reports whether a send through this slot can reach a receiver.
func (s *slot) usable() bool {
	return !s.closed.Load() && !s.st.receiverClosed.Load()
}

func (s *slot) release() {
	if s.closed.CompareAndSwap(false, true) {
		s.st.senders.Add(-1)
	}
}

// disconnected reports whether no sender slot remains open.
func (st *state) disconnected() bool {
	return st.senders.Load() <= 0
}
