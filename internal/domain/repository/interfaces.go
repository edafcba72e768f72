package repository

import (
	"context"
	"errors"

	"NKDash/internal/domain/models"
)

// Conn is one established telemetry socket. Read returns the next whole text frame.
type Conn interface {
	Read() ([]byte, error)
	Close() error
}

// Dialer opens telemetry sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// ErrNoSnapshot is returned when a mirror holds nothing.
var ErrNoSnapshot = errors.New("no snapshot mirrored")

// SnapshotMirror keeps a copy of the latest snapshot outside the process.
type SnapshotMirror interface {
	Mirror(ctx context.Context, s *models.Snapshot) error
	Latest(ctx context.Context) (*models.Snapshot, error)
	Close() error
}

// EventPublisher forwards lifecycle events to an external bus.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.ConnectionEvent) error
	Close() error
}

type Metrics interface {
	RecordStatus(status models.ConnectionStatus)
	RecordMessage()
	RecordDecodeError()
	RecordReconnect()
	RecordDropped(subscriber string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
