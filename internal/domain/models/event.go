package models

import "time"

// EventKind tags a connection lifecycle notification.
type EventKind string

const (
	EventConnected       EventKind = "connected"
	EventMessageReceived EventKind = "message"
	EventDisconnected    EventKind = "disconnected"
)

// ConnectionEvent is one ordered notification from the connection manager.
type ConnectionEvent struct {
	Kind     EventKind        `json:"kind"`
	Seq      uint64           `json:"seq"`
	Status   ConnectionStatus `json:"status"`
	At       time.Time        `json:"at"`
	Snapshot *Snapshot        `json:"snapshot,omitempty"`
	Err      string           `json:"error,omitempty"`
}
