// Package websocket streams journal records to a collector over a websocket.
package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/OCAP2/tickbridge/internal/config"
	"github.com/OCAP2/tickbridge/pkg/core"
	"github.com/OCAP2/tickbridge/pkg/streaming"
)

// Backend streams records to the collector. Nothing is kept locally, so it
// has no export file.
type Backend struct {
	conn    *connection
	cfg     config.WebSocketConfig
	session string
	sent    atomic.Uint64
	ended   atomic.Bool
}

// New creates a websocket storage backend.
func New(cfg config.WebSocketConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger.With("component", "websocket")),
		cfg:  cfg,
	}
}

// Init connects and opens a journal session, waiting for the server ack.
func (b *Backend) Init() error {
	if err := b.conn.dial(b.cfg.URL, b.cfg.Secret); err != nil {
		return err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate session id: %w", err)
	}
	b.session = id.String()

	data, err := marshalEnvelope(streaming.TypeStartJournal, streaming.StartJournalPayload{
		Session:   b.session,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	b.conn.setStart(data)

	return b.conn.sendAndWait(data, streaming.TypeStartJournal, ackTimeout)
}

// Session returns the id of the open journal session.
func (b *Backend) Session() string {
	return b.session
}

// Append sends the record fire-and-forget.
func (b *Backend) Append(r *core.Record) error {
	data, err := marshalEnvelope(streaming.TypeRecord, r)
	if err != nil {
		return err
	}
	if err := b.conn.send(data); err != nil {
		return err
	}
	b.sent.Add(1)
	return nil
}

// Flush is a no-op; the write loop sends records as they arrive.
func (b *Backend) Flush() error {
	return nil
}

// Close ends the journal session, waiting for the server ack, then
// disconnects.
func (b *Backend) Close() error {
	var errs []error
	if b.session != "" && b.ended.CompareAndSwap(false, true) {
		data, err := marshalEnvelope(streaming.TypeEndJournal, streaming.EndJournalPayload{
			Session: b.session,
			Records: b.sent.Load(),
		})
		if err == nil {
			err = b.conn.sendAndWait(data, streaming.TypeEndJournal, ackTimeout)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.conn.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	env, err := streaming.NewEnvelope(msgType, payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
