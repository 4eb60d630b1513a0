//go:build !debug

package channel

// New creates a new channel pair.
// In production builds, this returns an unbounded channel (ignores capacity)
func New[T any](capacity int) (Sender[T], Receiver[T]) {
	return Unbounded[T]()
}
