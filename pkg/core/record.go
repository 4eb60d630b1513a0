package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is one journaled message: the tick it was observed on, the Go type
// it carried and its JSON payload.
type Record struct {
	ID         uuid.UUID       `json:"id"`
	Tick       uint64          `json:"tick"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// NewRecord encodes payload and stamps the record with a fresh ID.
func NewRecord(tick uint64, kind string, payload any) (*Record, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate record id: %w", err)
	}
	return &Record{
		ID:         id,
		Tick:       tick,
		Kind:       kind,
		Payload:    raw,
		ReceivedAt: time.Now().UTC(),
	}, nil
}
