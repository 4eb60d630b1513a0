// Package recorder journals bridged messages to a storage backend from inside
// the tick loop.
package recorder

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/OCAP2/tickbridge/internal/storage"
	"github.com/OCAP2/tickbridge/pkg/app"
	"github.com/OCAP2/tickbridge/pkg/core"
)

// Dependencies holds all dependencies for the recorder
type Dependencies struct {
	Backend storage.Backend
	Logger  *slog.Logger
}

// Recorder turns messages into records and appends them to the backend.
// Systems and observers call it from the tick loop only.
type Recorder struct {
	deps    Dependencies
	metrics *instruments

	mu            sync.Mutex
	appended      map[string]uint64
	failed        uint64
	lastFlush     time.Duration
	lastFlushTick uint64
	closed        bool
}

// New creates a recorder writing to deps.Backend.
func New(deps Dependencies) (*Recorder, error) {
	if deps.Backend == nil {
		return nil, fmt.Errorf("recorder requires a storage backend")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	metrics, err := newInstruments()
	if err != nil {
		return nil, err
	}
	return &Recorder{
		deps:     deps,
		metrics:  metrics,
		appended: make(map[string]uint64),
	}, nil
}

// KindOf returns the record kind used for messages of type T.
func KindOf[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// record appends one message. Failures are logged and counted; they never
// stop the tick.
func (r *Recorder) record(tick uint64, kind string, v any) {
	rec, err := core.NewRecord(tick, kind, v)
	if err == nil {
		err = r.deps.Backend.Append(rec)
	}

	r.mu.Lock()
	if err != nil {
		r.failed++
	} else {
		r.appended[kind]++
	}
	r.mu.Unlock()

	if err != nil {
		r.metrics.failed(kind)
		r.deps.Logger.Error("Failed to record message", "kind", kind, "tick", tick, "error", err)
		return
	}
	r.metrics.appended(kind)
}

// Appended returns how many records of kind were appended.
func (r *Recorder) Appended(kind string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appended[kind]
}

// Total returns how many records were appended across every kind.
func (r *Recorder) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n uint64
	for _, c := range r.appended {
		n += c
	}
	return n
}

// Failed returns how many messages could not be recorded.
func (r *Recorder) Failed() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// LastFlushDuration returns how long the last flush took.
func (r *Recorder) LastFlushDuration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastFlush
}

// Flush writes buffered records now.
func (r *Recorder) Flush(tick uint64) error {
	start := time.Now()
	err := r.deps.Backend.Flush()
	elapsed := time.Since(start)

	r.mu.Lock()
	r.lastFlush = elapsed
	r.lastFlushTick = tick
	r.mu.Unlock()

	r.metrics.flushed(elapsed)
	if err != nil {
		return fmt.Errorf("failed to flush journal at tick %d: %w", tick, err)
	}
	return nil
}

// Events records every message of the bridged event stream T. It adds an
// Update system; T must already be registered as an event.
func Events[T any](a *app.App, r *Recorder) {
	kind := KindOf[T]()
	reader := app.NewEventReader[T](a.World())
	a.AddSystems(app.Update, app.Named("recorder.events["+kind+"]", app.SystemFunc(func(w *app.World) {
		for _, msg := range reader.Read() {
			r.record(w.Tick(), kind, msg)
		}
	})))
}

// Triggers records every triggered T as it happens.
func Triggers[T any](a *app.App, r *Recorder) app.ObserverID {
	kind := KindOf[T]()
	return app.Observe(a.World(), func(w *app.World, msg T) error {
		r.record(w.Tick(), kind, msg)
		return nil
	})
}

// Flusher returns a system that flushes the backend every n ticks. It
// belongs in the Last phase. n of 0 disables periodic flushing.
func Flusher(r *Recorder, n uint64) app.System {
	return app.Named("recorder.flush", app.SystemFunc(func(w *app.World) {
		tick := w.Tick()
		if n == 0 || tick%n != 0 {
			return
		}
		if err := r.Flush(tick); err != nil {
			w.Logger().Error("Journal flush failed", "tick", tick, "error", err)
		}
	}))
}

// Close flushes what is left and closes the backend. It is registered as a
// world resource by Plugin so App.Shutdown runs it. Later calls do nothing.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	tick := r.lastFlushTick
	r.mu.Unlock()

	flushErr := r.Flush(tick)
	if err := r.deps.Backend.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return flushErr
}

// Plugin installs a recorder as a world resource with its periodic flusher.
type Plugin struct {
	Recorder   *Recorder
	FlushEvery uint64
}

// Build implements app.Plugin.
func (p Plugin) Build(a *app.App) {
	app.InsertResource(a.World(), p.Recorder)
	a.AddSystems(app.Last, Flusher(p.Recorder, p.FlushEvery))
}
