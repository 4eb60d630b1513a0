package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Event is a value dispatched to the handlers registered for its kind.
type Event struct {
	Kind      reflect.Type
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event.
type HandlerFunc func(Event) error

// HandlerID identifies a registered handler.
type HandlerID uint64

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	logged bool
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type registration struct {
	id HandlerID
	h  HandlerFunc
}

// Dispatcher routes events synchronously to every handler registered for the
// event's kind. It performs no buffering: Dispatch returns after all handlers
// have run on the calling goroutine.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]registration
	kinds    map[HandlerID]reflect.Type
	nextID   HandlerID
	logger   Logger

	// OTEL metrics
	processed metric.Int64Counter
	failed    metric.Int64Counter
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[reflect.Type][]registration),
		kinds:    make(map[HandlerID]reflect.Type),
		logger:   logger,
	}

	m := meter()

	var err error

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total handler invocations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.handler.errors",
		metric.WithDescription("Total handler invocations that returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating error counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given kind with optional configuration.
// Handlers for the same kind run in registration order.
func (d *Dispatcher) Register(kind reflect.Type, h HandlerFunc, opts ...Option) HandlerID {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h
	if cfg.logged && d.logger != nil {
		handler = d.withLogging(kind, handler)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.handlers[kind] = append(d.handlers[kind], registration{id: id, h: handler})
	d.kinds[id] = kind
	return id
}

// Unregister removes a handler. It reports whether the handler was registered.
func (d *Dispatcher) Unregister(id HandlerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	kind, ok := d.kinds[id]
	if !ok {
		return false
	}
	delete(d.kinds, id)

	regs := d.handlers[kind]
	kept := make([]registration, 0, len(regs))
	for _, r := range regs {
		if r.id != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(d.handlers, kind)
	} else {
		d.handlers[kind] = kept
	}
	return true
}

// Dispatch runs every handler currently registered for e.Kind and returns how
// many ran. Handler errors do not stop later handlers; they are joined.
func (d *Dispatcher) Dispatch(e Event) (int, error) {
	if e.Kind == nil && e.Payload != nil {
		e.Kind = reflect.TypeOf(e.Payload)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	// Handlers may register or unregister while running; work on a snapshot.
	d.mu.RLock()
	regs := d.handlers[e.Kind]
	d.mu.RUnlock()

	if len(regs) == 0 {
		return 0, nil
	}

	kindAttr := kindAttrs(e.Kind)
	ctx := context.Background()

	var errs []error
	for _, r := range regs {
		if err := r.h(e); err != nil {
			errs = append(errs, err)
			d.failed.Add(ctx, 1, kindAttr)
		}
		d.processed.Add(ctx, 1, kindAttr)
	}
	return len(regs), errors.Join(errs...)
}

// HasHandler returns true if at least one handler is registered for the kind.
func (d *Dispatcher) HasHandler(kind reflect.Type) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[kind]) > 0
}

func (d *Dispatcher) withLogging(kind reflect.Type, h HandlerFunc) HandlerFunc {
	name := kindName(kind)
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "kind", name)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "kind", name, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "kind", name, "duration", time.Since(start))
		}

		return err
	}
}

func kindName(kind reflect.Type) string {
	if kind == nil {
		return "<nil>"
	}
	return kind.String()
}
