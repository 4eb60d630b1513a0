//go:build debug

package channel

// New creates a new channel pair.
// In debug builds, this returns a bounded channel so exhaustion surfaces early
func New[T any](capacity int) (Sender[T], Receiver[T]) {
	return Bounded[T](capacity)
}
