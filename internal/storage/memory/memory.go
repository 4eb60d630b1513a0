// Package memory keeps the journal in memory and exports it as JSON when closed.
package memory

import (
	"sync"
	"time"

	"github.com/OCAP2/tickbridge/internal/config"
	"github.com/OCAP2/tickbridge/pkg/core"
)

// Backend stores records in memory and exports to JSON
type Backend struct {
	cfg   config.MemoryConfig
	start time.Time

	records []core.Record
	kinds   map[string]int

	lastExportPath string
	closed         bool
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:   cfg,
		kinds: make(map[string]int),
	}
}

// Init starts a new journal session.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.start = time.Now().UTC()
	b.records = nil
	b.kinds = make(map[string]int)
	b.closed = false
	return nil
}

// Append stores a copy of r.
func (b *Backend) Append(r *core.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, *r)
	b.kinds[r.Kind]++
	return nil
}

// Flush is a no-op; records are held until Close.
func (b *Backend) Flush() error {
	return nil
}

// Close exports the journal. An empty output directory skips the export.
// Calling Close again does nothing.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.exportJSON(time.Now().UTC())
}

// Records returns a snapshot of the journal in append order.
func (b *Backend) Records() []core.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Record, len(b.records))
	copy(out, b.records)
	return out
}

// Count returns how many records of the given kind were appended.
func (b *Backend) Count(kind string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.kinds[kind]
}

// ExportedFilePath returns the path of the last export, or "" if none.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
