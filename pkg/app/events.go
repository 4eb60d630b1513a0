package app

import "fmt"

type eventInstance[T any] struct {
	id    uint64
	value T
}

// Events is a double-buffered event store. Values sent during a tick stay
// readable for that tick and the next one, then they are dropped.
type Events[T any] struct {
	previous []eventInstance[T]
	current  []eventInstance[T]
	nextID   uint64
}

// Send appends an event to the current buffer.
func (e *Events[T]) Send(v T) {
	e.current = append(e.current, eventInstance[T]{id: e.nextID, value: v})
	e.nextID++
}

// Update swaps the buffers. Events older than one tick are released.
func (e *Events[T]) Update() {
	old := e.previous
	clear(old)
	e.previous = e.current
	e.current = old[:0]
}

// Len returns the number of buffered events.
func (e *Events[T]) Len() int {
	return len(e.previous) + len(e.current)
}

// Drain removes and returns every buffered event, oldest first.
func (e *Events[T]) Drain() []T {
	out := make([]T, 0, e.Len())
	for _, ev := range e.previous {
		out = append(out, ev.value)
	}
	for _, ev := range e.current {
		out = append(out, ev.value)
	}
	clear(e.previous)
	clear(e.current)
	e.previous = e.previous[:0]
	e.current = e.current[:0]
	return out
}

// EventReader tracks which events of one type a consumer has already seen.
type EventReader[T any] struct {
	events *Events[T]
	next   uint64
}

// Read returns events not yet returned by this reader, in send order.
func (r *EventReader[T]) Read() []T {
	var out []T
	for _, buf := range [2][]eventInstance[T]{r.events.previous, r.events.current} {
		for _, ev := range buf {
			if ev.id >= r.next {
				out = append(out, ev.value)
			}
		}
	}
	r.next = r.events.nextID
	return out
}

// AddEvent registers the event type T: it inserts the Events[T] resource and
// schedules its buffer swap at the start of every tick. Calling it again for
// the same type does nothing.
func AddEvent[T any](a *App) {
	if HasResource[*Events[T]](a.world) {
		return
	}
	InsertResource(a.world, &Events[T]{})
	a.AddSystems(First, Named("events.update["+typeKey[T]().String()+"]", SystemFunc(func(w *World) {
		MustResource[*Events[T]](w).Update()
	})))
}

func eventsOf[T any](w *World) *Events[T] {
	events, ok := Resource[*Events[T]](w)
	if !ok {
		panic(fmt.Sprintf("app: event type %s is not registered", typeKey[T]()))
	}
	return events
}

// SendEvent appends v to the Events[T] buffer. T must be registered with AddEvent.
func SendEvent[T any](w *World, v T) {
	eventsOf[T](w).Send(v)
}

// NewEventReader returns a reader that starts with every event still buffered.
func NewEventReader[T any](w *World) *EventReader[T] {
	return &EventReader[T]{events: eventsOf[T](w)}
}
