package transport

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Handler receives the reactions of a transport.
// Calls for one transport are never concurrent with each other.
type Handler interface {
	// OnOpen is called once the socket is established.
	OnOpen()

	// OnMessage is called for every inbound text frame, in arrival order.
	OnMessage(frame []byte)

	// OnClose is called exactly once when the transport ends, including
	// failed dials. err is nil for a locally requested close.
	OnClose(err error)
}

// Transport is an open (or opening) socket.
type Transport interface {
	// Send writes one frame.
	Send(frame []byte) error

	// Close ends the transport; the handler's OnClose follows.
	Close() error
}

// Dialer opens transports. Open must not block and must not invoke the
// handler before returning.
type Dialer interface {
	Open(url string, h Handler) Transport
}

// Config configures the websocket transport.
type Config struct {
	HandshakeTimeout time.Duration // Max time for the websocket handshake
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Interval between keepalive pings (0 disables)
	PingTimeout      time.Duration // Max time without pong before considering connection stale
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
	}
}
