// Package bridge lets goroutines outside the tick loop hand typed messages to
// an app.App. Each registered message type gets its own unbounded channel; a
// PreUpdate system drains it every tick and re-emits the messages either as
// buffered app events or as immediate observer triggers.
package bridge

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/OCAP2/tickbridge/internal/channel"
)

var (
	// ErrChannelFull is wrapped by the panic raised when a send finds the
	// channel exhausted.
	ErrChannelFull = errors.New("unable to send message, channel full")

	// ErrSenderDropped is wrapped by the panic raised when the drain finds
	// every sender released while it is still scheduled.
	ErrSenderDropped = errors.New("sender resource dropped")

	// ErrAlreadyRegistered is wrapped by the panic raised when a message type
	// is registered twice.
	ErrAlreadyRegistered = errors.New("message type already registered")
)

// Strategy selects how drained messages reach the app.
type Strategy int

const (
	// Buffered appends messages to the app.Events stream of their type.
	Buffered Strategy = iota
	// Immediate triggers the observers of their type on the spot.
	Immediate
)

func (s Strategy) String() string {
	switch s {
	case Buffered:
		return "buffered"
	case Immediate:
		return "immediate"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Sender is the thread-safe write end for messages of type T. The handle
// stored in the world stays open for the lifetime of the app; producers with
// a shorter lifetime take a Clone and Close it when done.
type Sender[T any] struct {
	tx   channel.Sender[T]
	name string
}

// Send enqueues msg without blocking. Messages sent after the app has shut
// down are dropped. Send panics if the channel is full.
func (s *Sender[T]) Send(msg T) {
	err := s.tx.TrySend(msg)
	switch {
	case err == nil, errors.Is(err, channel.ErrDisconnected):
	case errors.Is(err, channel.ErrFull):
		panic(fmt.Errorf("bridge: %w (%s)", ErrChannelFull, s.name))
	default:
		panic(fmt.Errorf("bridge: send %s: %w", s.name, err))
	}
}

// Clone returns a new handle on the same channel.
func (s *Sender[T]) Clone() *Sender[T] {
	return &Sender[T]{tx: s.tx.Clone(), name: s.name}
}

// Close releases this handle. It is safe to call more than once.
func (s *Sender[T]) Close() {
	s.tx.Close()
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
