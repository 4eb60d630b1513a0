package bridge

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/tickbridge/internal/channel"
	"github.com/OCAP2/tickbridge/pkg/app"
)

// DebugCapacity bounds each channel in builds tagged debug, where exhaustion
// is reported instead of growing the queue. Other builds ignore it.
var DebugCapacity = 1024

// receiver is the world resource owning the read end for T.
type receiver[T any] struct {
	rx       channel.Receiver[T]
	name     string
	strategy Strategy
	forward  func(w *app.World, msg T)

	forwarded metric.Int64Counter
	attrs     metric.MeasurementOption
	gauge     metric.Registration
}

// drain forwards every queued message in FIFO order and returns how many
// were forwarded.
func (r *receiver[T]) drain(w *app.World) int {
	n := 0
	defer func() {
		if n > 0 && r.forwarded != nil {
			r.forwarded.Add(context.Background(), int64(n), r.attrs)
		}
	}()

	for {
		msg, err := r.rx.TryRecv()
		switch {
		case err == nil:
			r.forward(w, msg)
			n++
		case errors.Is(err, channel.ErrEmpty):
			return n
		case errors.Is(err, channel.ErrDisconnected):
			panic(fmt.Errorf("bridge: %w (%s)", ErrSenderDropped, r.name))
		default:
			panic(fmt.Errorf("bridge: receive %s: %w", r.name, err))
		}
	}
}

// Close tears the read end down. Later sends are dropped.
func (r *receiver[T]) Close() error {
	r.rx.Close()
	if r.gauge != nil {
		return r.gauge.Unregister()
	}
	return nil
}

// Register bridges messages of type T into a using strategy. It panics if T
// is already registered.
func Register[T any](a *app.App, strategy Strategy) *app.App {
	tx, rx := channel.New[T](DebugCapacity)
	return register(a, strategy, tx, rx)
}

// AddEvent bridges T into a buffered app.Events stream.
func AddEvent[T any](a *app.App) *app.App {
	return Register[T](a, Buffered)
}

// AddTrigger bridges T into immediate observer triggers.
func AddTrigger[T any](a *app.App) *app.App {
	return Register[T](a, Immediate)
}

// SenderFor returns the sender registered for T. It panics if T is not registered.
func SenderFor[T any](w *app.World) *Sender[T] {
	s, ok := app.Resource[*Sender[T]](w)
	if !ok {
		panic(fmt.Sprintf("bridge: message type %s is not registered", typeName[T]()))
	}
	return s
}

func register[T any](a *app.App, strategy Strategy, tx channel.Sender[T], rx channel.Receiver[T]) *app.App {
	w := a.World()
	name := typeName[T]()

	if app.HasResource[*receiver[T]](w) {
		panic(fmt.Errorf("bridge: %w (%s)", ErrAlreadyRegistered, name))
	}

	r := &receiver[T]{rx: rx, name: name, strategy: strategy}
	switch strategy {
	case Buffered:
		app.AddEvent[T](a)
		r.forward = app.SendEvent[T]
	case Immediate:
		r.forward = func(w *app.World, msg T) { app.Trigger(w, msg) }
	default:
		panic(fmt.Sprintf("bridge: unknown strategy %d", int(strategy)))
	}

	if err := r.instrument(); err != nil {
		a.Logger().Warn("bridge metrics unavailable", "type", name, "error", err)
	}

	app.InsertResource(w, &Sender[T]{tx: tx, name: name})
	app.InsertResource(w, r)
	a.AddSystems(app.PreUpdate, app.Named("bridge.drain["+name+"]", app.SystemFunc(func(w *app.World) {
		r.drain(w)
	})))

	a.Logger().Debug("bridged message type registered", "type", name, "strategy", strategy.String())
	return a
}
