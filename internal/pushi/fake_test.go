package pushi

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hivesolutions/pushi-go/internal/protocol"
	"github.com/hivesolutions/pushi-go/internal/transport"
)

// fakeDialer records every transport it opens.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (d *fakeDialer) Open(url string, h transport.Handler) transport.Transport {
	t := &fakeTransport{url: url, h: h}
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	return t
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[len(d.transports)-1]
}

// fakeTransport closes synchronously, like a socket whose close event
// fires immediately.
type fakeTransport struct {
	url     string
	h       transport.Handler
	mu      sync.Mutex
	sent    [][]byte
	closed  bool
	sendErr error
}

func (t *fakeTransport) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, frame)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.h.OnClose(nil)
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) frames(tb testing.TB, name string) []protocol.Frame {
	tb.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []protocol.Frame
	for _, raw := range t.sent {
		f, err := protocol.Decode(raw)
		if err != nil {
			tb.Fatalf("sent invalid frame %s: %v", raw, err)
		}
		if name == "" || f.Event == name {
			out = append(out, f)
		}
	}
	return out
}

func (t *fakeTransport) deliver(tb testing.TB, f protocol.Frame) {
	tb.Helper()
	raw, err := json.Marshal(f)
	if err != nil {
		tb.Fatalf("marshal frame: %v", err)
	}
	t.h.OnMessage(raw)
}

// confirm delivers an internal event whose data is string-encoded JSON.
func (t *fakeTransport) confirm(tb testing.TB, name, channel, payload string) {
	tb.Helper()
	data, _ := json.Marshal(payload)
	t.deliver(tb, protocol.Frame{Event: name, Channel: channel, Data: data})
}

func (t *fakeTransport) establish(tb testing.TB, socketID string) {
	tb.Helper()
	t.confirm(tb, protocol.EventConnectionEstablished, "", `{"socket_id":"`+socketID+`"}`)
}

func testConfig(d *fakeDialer) Config {
	return Config{
		Timeout:  20 * time.Millisecond,
		Dialer:   d,
		Registry: NewRegistry(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// newConnected returns an owner whose transport reported socketID.
func newConnected(t *testing.T, key string) (*Connection, *fakeDialer, Config) {
	t.Helper()
	d := &fakeDialer{}
	cfg := testConfig(d)
	c := New(key, cfg)
	d.last().establish(t, "123.456")
	if c.State() != StateConnected {
		t.Fatalf("state = %s, want connected", c.State())
	}
	return c, d, cfg
}

// calls records listener invocations.
type calls struct {
	mu     sync.Mutex
	events []string
	args   [][]any
	notify chan struct{}
}

func newCalls() *calls {
	return &calls{notify: make(chan struct{}, 64)}
}

func (c *calls) listener(name string, args ...any) {
	c.mu.Lock()
	c.events = append(c.events, name)
	c.args = append(c.args, args)
	c.mu.Unlock()
	c.notify <- struct{}{}
}

func (c *calls) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *calls) get(i int) (string, []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[i], c.args[i]
}

func (c *calls) wait(t *testing.T, what string) {
	t.Helper()
	select {
	case <-c.notify:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}
