package app

import (
	"time"

	"github.com/OCAP2/tickbridge/internal/dispatcher"
)

// ObserverID identifies an observer registered with Observe.
type ObserverID = dispatcher.HandlerID

// Observe registers fn to run every time a value of type T is triggered.
// Observers for the same type run in registration order.
func Observe[T any](w *World, fn func(w *World, v T) error, opts ...dispatcher.Option) ObserverID {
	return w.observers.Register(typeKey[T](), func(e dispatcher.Event) error {
		v, _ := e.Payload.(T)
		return fn(w, v)
	}, opts...)
}

// Unobserve removes an observer.
func Unobserve(w *World, id ObserverID) bool {
	return w.observers.Unregister(id)
}

// Trigger runs every observer of T immediately on the calling goroutine and
// returns how many ran. Observer errors are logged, they do not stop the tick.
func Trigger[T any](w *World, v T) int {
	kind := typeKey[T]()
	n, err := w.observers.Dispatch(dispatcher.Event{Kind: kind, Payload: v, Timestamp: time.Now()})
	if err != nil {
		w.logger.Error("observer failed", "event", kind.String(), "tick", w.Tick(), "error", err)
	}
	return n
}

// HasObservers reports whether any observer is registered for T.
func HasObservers[T any](w *World) bool {
	return w.observers.HasHandler(typeKey[T]())
}
