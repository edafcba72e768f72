package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	drepo "NKDash/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Dialer implements repository.Dialer backed by gorilla/websocket.
type Dialer struct {
	dialer    *websocket.Dialer
	readLimit int64
	header    http.Header
}

// NewDialer creates a telemetry socket dialer.
func NewDialer(handshakeTimeout time.Duration, readLimit int64) *Dialer {
	d := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		d.HandshakeTimeout = handshakeTimeout
	}
	return &Dialer{dialer: &d, readLimit: readLimit, header: http.Header{}}
}

// Dial establishes the socket. The context only bounds the handshake.
func (d *Dialer) Dial(ctx context.Context, url string) (drepo.Conn, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		return nil, fmt.Errorf("telemetry connect: %w", err)
	}
	if d.readLimit > 0 {
		conn.SetReadLimit(d.readLimit)
	}
	return &Conn{conn: conn}, nil
}

// Conn wraps a websocket connection and yields only text frames.
type Conn struct {
	conn *websocket.Conn
}

// Read blocks until the next text frame. Binary frames are skipped.
func (c *Conn) Read() ([]byte, error) {
	for {
		mt, b, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("telemetry read: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		return b, nil
	}
}

// Close sends a close frame best-effort and closes the socket.
func (c *Conn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

var _ drepo.Dialer = (*Dialer)(nil)
