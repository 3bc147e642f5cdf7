// Package transport owns the streaming duplex connection to the chat
// backend: one connection per identity, heartbeat tolerance through
// read deadlines, and a bounded automatic reconnect.
package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultMaxAttempts bounds automatic reconnects after unexpected
	// closes. Beyond it the connection is reported as terminally failed
	// until an explicit Connect.
	DefaultMaxAttempts = 5

	// DefaultRetryDelay is the fixed delay before a scheduled reconnect.
	DefaultRetryDelay = 3 * time.Second

	// writeWait is the time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// readWait must exceed the server's heartbeat period (30s); any
	// inbound traffic extends the deadline.
	readWait = 60 * time.Second

	// maxMessageSize caps inbound frames.
	maxMessageSize = 512 * 1024

	handshakeTimeout = 10 * time.Second
)

// ErrNotConnected is reported when Send is called while the connection
// is not established.
var ErrNotConnected = errors.New("websocket is not connected")

// ErrReconnectExhausted is reported once when the automatic reconnect
// budget is spent.
var ErrReconnectExhausted = errors.New("websocket connection failed after multiple attempts")

// State is the connection lifecycle state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

// String returns the state name for logging and metrics.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Conn is the subset of *websocket.Conn the manager uses. Tests inject
// fakes through it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens connections. The default implementation wraps the
// gorilla dialer.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	// Header is attached to the handshake request (session cookies).
	Header http.Header
}

// Dial opens a websocket connection to url.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Callbacks are the manager's upward-facing hooks. They are invoked
// from manager goroutines and must not call back into the Manager.
type Callbacks struct {
	// OnMessage receives each inbound frame.
	OnMessage func(data []byte)
	// OnStateChange observes lifecycle transitions.
	OnStateChange func(s State)
	// OnError receives transport-level errors: dial failures,
	// unexpected closes, send-while-disconnected and, exactly once per
	// exhaustion, ErrReconnectExhausted.
	OnError func(err error)
}
