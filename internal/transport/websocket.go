package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketDialer opens websocket transports.
type WebsocketDialer struct {
	cfg    Config
	header http.Header
	logger *slog.Logger
}

// NewWebsocketDialer creates a dialer. header may be nil.
func NewWebsocketDialer(cfg Config, header http.Header, logger *slog.Logger) *WebsocketDialer {
	if logger == nil {
		logger = slog.Default()
	}
	if header == nil {
		header = http.Header{}
	}

	return &WebsocketDialer{
		cfg:    cfg,
		header: header,
		logger: logger,
	}
}

// Open starts dialing url in the background and returns the transport handle.
func (d *WebsocketDialer) Open(url string, h Handler) Transport {
	ctx, cancel := context.WithCancel(context.Background())

	t := &websocketTransport{
		cfg:     d.cfg,
		logger:  d.logger.With("url", url),
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go t.run(url, d.header.Clone())

	return t
}

// websocketTransport implements the Transport interface.
type websocketTransport struct {
	cfg     Config
	logger  *slog.Logger
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	conn       *websocket.Conn
	connected  bool
	closed     bool
	stale      bool
	lastPongAt time.Time
}

// Send writes a text frame to the connection.
func (t *websocketTransport) Send(frame []byte) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrAlreadyClosed
	}
	if !t.connected {
		t.mu.RUnlock()
		return ErrNotConnected
	}
	conn := t.conn
	t.mu.RUnlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Close gracefully closes the connection, cancelling a dial in progress.
func (t *websocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	t.cancel()

	if conn == nil {
		return nil
	}

	// Send close message
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

// run dials, then reads until the connection ends. Every handler call
// happens on this goroutine.
func (t *websocketTransport) run(url string, header http.Header) {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(t.ctx, url, header)
	if err != nil {
		t.logger.Debug("websocket dial failed", "error", err)
		t.finish(err)
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		t.finish(nil)
		return
	}
	t.conn = conn
	t.connected = true
	t.lastPongAt = time.Now()
	t.mu.Unlock()

	// Server pings count as liveness too
	conn.SetPingHandler(func(data string) error {
		t.touch()
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(data string) error {
		t.touch()
		return nil
	})

	if t.cfg.PingInterval > 0 {
		go t.heartbeatLoop(conn)
	}

	t.logger.Debug("websocket connected")
	t.handler.OnOpen()

	t.finish(t.readLoop(conn))
}

// readLoop delivers frames until the connection fails.
func (t *websocketTransport) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.RLock()
			closed, stale := t.closed, t.stale
			t.mu.RUnlock()

			switch {
			case closed:
				return nil
			case stale:
				return ErrStaleConnection
			default:
				return err
			}
		}

		t.handler.OnMessage(data)
	}
}

// heartbeatLoop pings the server and closes stale connections.
func (t *websocketTransport) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				t.logger.Debug("failed to send ping", "error", err)
			}

			t.mu.Lock()
			lastPong := t.lastPongAt
			expired := t.cfg.PingTimeout > 0 && time.Since(lastPong) > t.cfg.PingTimeout
			if expired {
				t.stale = true
			}
			t.mu.Unlock()

			if expired {
				t.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", t.cfg.PingTimeout,
				)
				conn.Close()
				return
			}
		}
	}
}

func (t *websocketTransport) touch() {
	t.mu.Lock()
	t.lastPongAt = time.Now()
	t.mu.Unlock()
}

// finish marks the transport down and reports the close exactly once.
func (t *websocketTransport) finish(err error) {
	t.mu.Lock()
	t.connected = false
	if t.closed {
		err = nil
	}
	conn := t.conn
	t.mu.Unlock()

	close(t.done)
	t.cancel()
	if conn != nil {
		conn.Close()
	}

	t.handler.OnClose(err)
}
