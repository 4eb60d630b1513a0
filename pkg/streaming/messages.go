// Package streaming defines the wire messages of the journal streaming
// protocol. Every message is a JSON Envelope sent as a websocket text frame.
package streaming

import (
	"encoding/json"
	"time"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartJournal = "start_journal"
	TypeEndJournal   = "end_journal"
	TypeRecord       = "record"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the websocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartJournalPayload opens a journal session. It is replayed after every
// reconnect so the server can resume the same session.
type StartJournalPayload struct {
	Session   string    `json:"session"`
	StartedAt time.Time `json:"startedAt"`
}

// EndJournalPayload closes a journal session.
type EndJournalPayload struct {
	Session string `json:"session"`
	Records uint64 `json:"records"`
}

// NewEnvelope encodes payload into an Envelope of the given type.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}
