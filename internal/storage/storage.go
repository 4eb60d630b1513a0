// Package storage defines the journal backend contract and selects a backend
// from configuration.
package storage

import "github.com/OCAP2/tickbridge/pkg/core"

// Record is a journaled message.
type Record = core.Record

// Backend is the interface all storage implementations must satisfy.
// Append is called from the frame loop and must not block on I/O for long;
// backends buffer and write on Flush when they can.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	Append(r *Record) error
	Flush() error
}

// Exportable is an optional interface for backends that produce a file when
// closed.
type Exportable interface {
	ExportedFilePath() string
}
