package app

import (
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/OCAP2/tickbridge/internal/dispatcher"
)

// World owns process-wide resources and observer dispatch for one App.
// Apart from resource lookups, its methods belong to the tick goroutine.
type World struct {
	mu        sync.RWMutex
	resources map[reflect.Type]any
	order     []reflect.Type

	observers *dispatcher.Dispatcher
	logger    *slog.Logger

	tick atomic.Uint64
	exit atomic.Bool
}

func newWorld(observers *dispatcher.Dispatcher, logger *slog.Logger) *World {
	return &World{
		resources: make(map[reflect.Type]any),
		observers: observers,
		logger:    logger,
	}
}

// Tick returns the number of the tick currently running, or the last one that
// ran. It is zero before the first tick.
func (w *World) Tick() uint64 {
	return w.tick.Load()
}

// Logger returns the application logger.
func (w *World) Logger() *slog.Logger {
	return w.logger
}

// RequestExit asks the tick loop to stop after the current tick.
func (w *World) RequestExit() {
	w.exit.Store(true)
}

// ExitRequested reports whether RequestExit has been called.
func (w *World) ExitRequested() bool {
	return w.exit.Load()
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// InsertResource stores v as the resource of type T, replacing any previous value.
func InsertResource[T any](w *World, v T) {
	key := typeKey[T]()
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.resources[key]; !ok {
		w.order = append(w.order, key)
	}
	w.resources[key] = v
}

// Resource returns the resource of type T.
func Resource[T any](w *World) (T, bool) {
	w.mu.RLock()
	v, ok := w.resources[typeKey[T]()]
	w.mu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// MustResource returns the resource of type T and panics when it is missing.
func MustResource[T any](w *World) T {
	v, ok := Resource[T](w)
	if !ok {
		panic(fmt.Sprintf("app: resource %s not found", typeKey[T]()))
	}
	return v
}

// HasResource reports whether a resource of type T exists.
func HasResource[T any](w *World) bool {
	_, ok := Resource[T](w)
	return ok
}

// RemoveResource deletes the resource of type T and returns it.
func RemoveResource[T any](w *World) (T, bool) {
	key := typeKey[T]()
	w.mu.Lock()
	defer w.mu.Unlock()

	v, ok := w.resources[key]
	if !ok {
		var zero T
		return zero, false
	}
	delete(w.resources, key)
	for i, k := range w.order {
		if k == key {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return v.(T), true
}

// closers returns resources implementing io.Closer, newest first.
func (w *World) closers() []namedCloser {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []namedCloser
	for i := len(w.order) - 1; i >= 0; i-- {
		key := w.order[i]
		if c, ok := w.resources[key].(io.Closer); ok {
			out = append(out, namedCloser{name: key.String(), c: c})
		}
	}
	return out
}

type namedCloser struct {
	name string
	c    io.Closer
}
