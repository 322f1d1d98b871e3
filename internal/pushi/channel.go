package pushi

import (
	"encoding/json"

	"github.com/hivesolutions/pushi-go/internal/event"
	"github.com/hivesolutions/pushi-go/internal/protocol"
)

// Channel is a named subscription on a Connection.
type Channel struct {
	conn   *Connection
	name   string
	events *event.Dispatcher

	// guarded by conn.sock.mu
	data       json.RawMessage
	subscribed bool
}

func newChannel(conn *Connection, name string) *Channel {
	return &Channel{
		conn:   conn,
		name:   name,
		events: event.NewDispatcher(),
	}
}

// setSubscribed marks the channel confirmed and subscribes its aliases on
// conn, the handle that received the confirmation.
func (ch *Channel) setSubscribed(conn *Connection, payload json.RawMessage, n *notifications) {
	for _, alias := range protocol.Aliases(payload) {
		conn.channels[alias] = newChannel(conn, alias)
		conn.onSubscribe(alias, emptyPayload, n)
	}
	if !n.claim(ch, EventSubscribe) {
		return
	}
	ch.data = payload
	ch.subscribed = true
	n.trigger(ch.events, EventSubscribe, payload)
}

func (ch *Channel) setUnsubscribed(conn *Connection, payload json.RawMessage, n *notifications) {
	for _, alias := range protocol.Aliases(payload) {
		conn.onUnsubscribe(alias, emptyPayload, n)
	}
	if !n.claim(ch, EventUnsubscribe) {
		return
	}
	ch.subscribed = false
	n.trigger(ch.events, EventUnsubscribe, payload)
}

func (ch *Channel) setLatest(payload json.RawMessage, n *notifications) {
	if n.claim(ch, EventLatest) {
		n.trigger(ch.events, EventLatest, payload)
	}
}

func (ch *Channel) setMessage(name string, data json.RawMessage, mid string, timestamp float64, n *notifications) {
	if n.claim(ch, "message:"+name) {
		n.trigger(ch.events, name, data, mid, timestamp)
	}
}

// Name returns the channel name.
func (ch *Channel) Name() string {
	return ch.name
}

// Data returns the payload of the last subscription confirmation.
func (ch *Channel) Data() json.RawMessage {
	ch.conn.sock.mu.Lock()
	defer ch.conn.sock.mu.Unlock()
	return ch.data
}

// Subscribed reports whether the server confirmed the subscription.
func (ch *Channel) Subscribed() bool {
	ch.conn.sock.mu.Lock()
	defer ch.conn.sock.mu.Unlock()
	return ch.subscribed
}

// Connection returns the handle that created the channel.
func (ch *Channel) Connection() *Connection {
	return ch.conn
}

// Send emits an event on this channel.
func (ch *Channel) Send(name string, data any, opts ...SendOption) error {
	return ch.conn.SendChannel(name, data, ch.name, opts...)
}

// Unsubscribe leaves the channel. cb runs once on confirmation.
func (ch *Channel) Unsubscribe(cb event.Listener) (*Channel, error) {
	return ch.conn.Unsubscribe(ch.name, cb)
}

// Latest requests the channel's most recent stored messages.
func (ch *Channel) Latest(skip, count int, cb event.Listener) (*Channel, error) {
	return ch.conn.Latest(ch.name, skip, count, cb)
}

// Bind registers a persistent listener for a channel event.
func (ch *Channel) Bind(name string, listener event.Listener) *event.Binding {
	return ch.events.Bind(name, listener, false)
}

// Once registers a listener removed after its first invocation.
func (ch *Channel) Once(name string, listener event.Listener) *event.Binding {
	return ch.events.Once(name, listener)
}

// Unbind removes a binding returned by Bind or Once.
func (ch *Channel) Unbind(name string, b *event.Binding) {
	ch.events.Unbind(name, b)
}

// Trigger invokes the listeners bound to name.
func (ch *Channel) Trigger(name string, args ...any) {
	ch.events.Trigger(name, args...)
}
