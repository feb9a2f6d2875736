package realtime

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the surface of a websocket connection the manager needs. It is
// satisfied by *websocket.Conn and narrow enough to fake in tests.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens websocket connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct {
	dialer *websocket.Dialer
}

// NewDialer returns a Dialer backed by gorilla/websocket with the given
// handshake timeout.
func NewDialer(handshakeTimeout time.Duration) Dialer {
	return &wsDialer{dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout}}
}

func (d *wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return conn, nil
}

var _ Conn = (*websocket.Conn)(nil)
