// Package gormstorage journals records to a SQL database through GORM.
// Appends are buffered in memory and written in batches by Flush.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/OCAP2/tickbridge/internal/config"
	"github.com/OCAP2/tickbridge/internal/database"
	"github.com/OCAP2/tickbridge/pkg/core"
)

const defaultBatchSize = 500

// Entry is the table row for one journaled record.
type Entry struct {
	ID         string `gorm:"primaryKey;size:36"`
	Tick       uint64 `gorm:"index"`
	Kind       string `gorm:"size:255;index"`
	Payload    datatypes.JSON
	ReceivedAt time.Time `gorm:"index"`
}

// TableName overrides the default "entries".
func (Entry) TableName() string {
	return "journal_entries"
}

func toEntry(r *core.Record) Entry {
	return Entry{
		ID:         r.ID.String(),
		Tick:       r.Tick,
		Kind:       r.Kind,
		Payload:    datatypes.JSON(r.Payload),
		ReceivedAt: r.ReceivedAt,
	}
}

func (e Entry) record() (core.Record, error) {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return core.Record{}, fmt.Errorf("invalid entry id %q: %w", e.ID, err)
	}
	return core.Record{
		ID:         id,
		Tick:       e.Tick,
		Kind:       e.Kind,
		Payload:    []byte(e.Payload),
		ReceivedAt: e.ReceivedAt,
	}, nil
}

// Dependencies holds all dependencies for the GORM storage backend.
// Open is used by Init when DB is nil.
type Dependencies struct {
	DB        *gorm.DB
	Open      func() (*gorm.DB, error)
	Logger    zerolog.Logger
	BatchSize int
}

// Backend implements storage.Backend on top of a gorm.DB.
type Backend struct {
	deps    Dependencies
	mu      sync.Mutex
	pending []Entry
	dbReady bool
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.BatchSize <= 0 {
		deps.BatchSize = defaultBatchSize
	}
	return &Backend{deps: deps}
}

// NewSQLite creates a backend on a SQLite file, or in memory for an empty path.
func NewSQLite(cfg config.SQLiteConfig, log zerolog.Logger) *Backend {
	return New(Dependencies{
		Open:   func() (*gorm.DB, error) { return database.OpenSQLite(cfg.Path, log) },
		Logger: log,
	})
}

// NewPostgres creates a backend on PostgreSQL.
func NewPostgres(cfg config.DBConfig, log zerolog.Logger) *Backend {
	return New(Dependencies{
		Open:   func() (*gorm.DB, error) { return database.OpenPostgres(cfg, log) },
		Logger: log,
	})
}

// Init opens the connection if needed and migrates the journal table.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		if b.deps.Open == nil {
			return errors.New("gorm backend has no database")
		}
		db, err := b.deps.Open()
		if err != nil {
			return err
		}
		b.deps.DB = db
	}

	b.deps.Logger.Info().Msg("Migrating schema")
	if err := b.deps.DB.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	b.dbReady = true
	b.deps.Logger.Info().Str("dialect", b.deps.DB.Dialector.Name()).Msg("Database setup complete")
	return nil
}

// Append queues r for the next Flush.
func (b *Backend) Append(r *core.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, toEntry(r))
	return nil
}

// Pending returns the number of records waiting for Flush.
func (b *Backend) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush writes queued records in batches. On failure the batch is kept and
// retried by the next Flush.
func (b *Backend) Flush() error {
	if !b.dbReady {
		return errors.New("gorm backend not initialized")
	}

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	if err := b.deps.DB.CreateInBatches(batch, b.deps.BatchSize).Error; err != nil {
		b.mu.Lock()
		b.pending = append(batch, b.pending...)
		b.mu.Unlock()
		b.deps.Logger.Error().Err(err).Int("count", len(batch)).Msg("Failed to write journal entries")
		return fmt.Errorf("failed to write %d journal entries: %w", len(batch), err)
	}

	b.deps.Logger.Debug().Int("count", len(batch)).Dur("duration", time.Since(start)).
		Msg("Wrote journal entries")
	return nil
}

// Records reads back stored records of a kind, or of every kind when kind is
// empty, ordered by tick.
func (b *Backend) Records(kind string) ([]core.Record, error) {
	if !b.dbReady {
		return nil, errors.New("gorm backend not initialized")
	}

	q := b.deps.DB.Order("tick").Order("received_at")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}

	var entries []Entry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}

	out := make([]core.Record, 0, len(entries))
	for _, e := range entries {
		r, err := e.record()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Close flushes remaining records and closes the connection.
func (b *Backend) Close() error {
	if !b.dbReady {
		return nil
	}

	var errs []error
	if err := b.Flush(); err != nil {
		errs = append(errs, err)
	}
	b.dbReady = false

	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to access sql interface: %w", err))
	} else if err := sqlDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	return errors.Join(errs...)
}
