package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrDecode marks an inbound frame that could not be turned into a snapshot.
var ErrDecode = errors.New("snapshot decode")

// Snapshot is the most recently decoded telemetry payload.
// Fields are passed through untouched; accessors below only read them.
type Snapshot struct {
	Payload    map[string]any
	Raw        json.RawMessage
	ReceivedAt time.Time
}

// DecodeSnapshot decodes one whole text frame. The frame must be a JSON object.
func DecodeSnapshot(b []byte, at time.Time) (*Snapshot, error) {
	var payload map[string]any
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: payload is null", ErrDecode)
	}
	raw := make(json.RawMessage, len(b))
	copy(raw, b)
	return &Snapshot{Payload: payload, Raw: bytes.TrimSpace(raw), ReceivedAt: at}, nil
}

// MarshalJSON re-emits the frame exactly as received.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	if s == nil || len(s.Raw) == 0 {
		return []byte("null"), nil
	}
	return s.Raw, nil
}

// UnmarshalJSON accepts the same frames DecodeSnapshot does.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	d, err := DecodeSnapshot(b, time.Time{})
	if err != nil {
		return err
	}
	*s = *d
	return nil
}

// Sentiment returns the numeric sentiment score, if present.
func (s *Snapshot) Sentiment() (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s.Payload["sentiment"].(float64)
	return v, ok
}

// Positions returns the positions mapping or nil.
func (s *Snapshot) Positions() map[string]any {
	if s == nil {
		return nil
	}
	m, _ := s.Payload["positions"].(map[string]any)
	return m
}

// ActivePositions counts position keys; a missing mapping counts as zero.
func (s *Snapshot) ActivePositions() int { return len(s.Positions()) }

// PnL returns the session profit/loss, zero when absent or not numeric.
func (s *Snapshot) PnL() float64 {
	if s == nil {
		return 0
	}
	v, _ := s.Payload["pnl"].(float64)
	return v
}
