package pushi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hivesolutions/pushi-go/internal/api"
	"github.com/hivesolutions/pushi-go/internal/event"
	"github.com/hivesolutions/pushi-go/internal/metrics"
	"github.com/hivesolutions/pushi-go/internal/protocol"
	"github.com/hivesolutions/pushi-go/internal/transport"
)

// State is the lifecycle state of a Connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
)

// Connection-level events triggered in addition to the raw protocol events.
const (
	EventConnect       = "connect"
	EventDisconnect    = "disconnect"
	EventSubscribe     = "subscribe"
	EventUnsubscribe   = "unsubscribe"
	EventLatest        = "latest"
	EventMemberAdded   = "member_added"
	EventMemberRemoved = "member_removed"
)

var emptyPayload = json.RawMessage(`{}`)

// Connection is a handle on a shared Pushi socket.
type Connection struct {
	id       uuid.UUID
	sock     *socket
	registry *Registry
	events   *event.Dispatcher
	dialer   transport.Dialer
	metrics  *metrics.Collector

	rootLogger *slog.Logger
	logger     *slog.Logger

	appKey      string
	baseURL     string
	url         string
	timeout     time.Duration
	authTimeout time.Duration
	appID       string
	appSecret   string
	authorizer  Authorizer
	client      *api.Client

	// guarded by sock.mu
	state    State
	socketID string
	channels map[string]*Channel
	cloned   bool
	base     *Connection
}

// New returns a handle for appKey. When cfg's registry already holds a
// Connection for appKey the handle is a clone sharing its transport,
// otherwise a new owner is registered and its transport opened.
func New(appKey string, cfg Config) *Connection {
	cfg.applyDefaults()

	base, existing := cfg.Registry.acquire(appKey, func() *Connection {
		return newConnection(appKey, cfg)
	})
	if existing {
		return base.clone()
	}

	base.Open(nil)
	return base
}

func newConnection(appKey string, cfg Config) *Connection {
	c := &Connection{
		id:       uuid.New(),
		registry: cfg.Registry,
		events:   event.NewDispatcher(),
		dialer:   cfg.Dialer,
		metrics:  cfg.Metrics,
		state:    StateDisconnected,
		channels: make(map[string]*Channel),
	}
	c.sock = &socket{subscribers: []*Connection{c}}
	c.configure(appKey, cfg)
	return c
}

// configure applies cfg. Caller holds sock.mu or has not published c yet.
func (c *Connection) configure(appKey string, cfg Config) {
	c.appKey = appKey
	c.baseURL = cfg.BaseURL
	c.url = cfg.BaseURL + appKey
	c.timeout = cfg.Timeout
	c.authTimeout = cfg.AuthTimeout
	c.appID = cfg.AppID
	c.appSecret = cfg.AppSecret
	c.rootLogger = cfg.Logger
	c.logger = cfg.Logger.With("handle", c.id.String(), "app_key", appKey)

	c.client = api.NewClient(
		api.WebBaseURL(cfg.BaseWebURL, cfg.BaseURL),
		api.WithLogger(c.logger),
		api.WithTimeout(cfg.AuthTimeout),
	)

	switch {
	case cfg.Authorizer != nil:
		c.authorizer = cfg.Authorizer
	case cfg.AuthEndpoint != "":
		c.authorizer = &api.EndpointAuthorizer{Client: c.client, Endpoint: cfg.AuthEndpoint}
	default:
		c.authorizer = nil
	}
}

// clone creates a handle sharing c's socket.
func (c *Connection) clone() *Connection {
	s := c.sock
	s.mu.Lock()

	h := &Connection{
		id:          uuid.New(),
		sock:        s,
		registry:    c.registry,
		events:      event.NewDispatcher(),
		dialer:      c.dialer,
		metrics:     c.metrics,
		appKey:      c.appKey,
		baseURL:     c.baseURL,
		url:         c.url,
		timeout:     c.timeout,
		authTimeout: c.authTimeout,
		appID:       c.appID,
		appSecret:   c.appSecret,
		authorizer:  c.authorizer,
		client:      c.client,
		state:       StateDisconnected,
		channels:    make(map[string]*Channel),
		cloned:      true,
		base:        c,
	}
	h.rootLogger = c.rootLogger
	h.logger = c.rootLogger.With("handle", h.id.String(), "app_key", c.appKey, "base", c.id.String())
	s.subscribers = append(s.subscribers, h)

	var n notifications
	if c.state == StateConnected {
		h.onConnect(c.socketID, &n)
	}
	s.mu.Unlock()

	h.logger.Debug("cloned connection", "connected", c.state == StateConnected)
	n.run()
	return h
}

// Open starts the transport. It is a no-op unless the handle is
// disconnected with no dial in progress. cb runs on the first open,
// inbound frame or close that follows.
func (c *Connection) Open(cb func()) {
	s := c.sock
	s.mu.Lock()
	defer s.mu.Unlock()
	c.open(cb)
}

// open is Open with sock.mu held.
func (c *Connection) open(cb func()) {
	s := c.sock
	if c.state != StateDisconnected || s.transport != nil {
		return
	}
	s.closing = false
	s.onOpen = cb

	h := &socketHandler{s: s}
	h.t = c.dialer.Open(c.url, h)
	s.transport = h.t

	c.metrics.TransportOpened()
	c.logger.Info("opening transport", "url", c.url)
}

// Close closes the shared transport. It is a no-op unless connected. A
// deliberate close suppresses reconnection until the next Open.
func (c *Connection) Close(cb func()) {
	s := c.sock
	s.mu.Lock()
	if c.state != StateConnected || s.transport == nil {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.onClose = cb
	t := s.transport
	s.mu.Unlock()

	c.logger.Info("closing transport")
	if err := t.Close(); err != nil {
		c.logger.Debug("transport close", "error", err)
	}
}

// Reopen closes the transport and opens a new one once the close completes.
func (c *Connection) Reopen() {
	c.restart(nil)
}

// restart reopens the transport, closing the current one first if any, and
// runs cb on the first event of the new transport.
func (c *Connection) restart(cb func()) {
	s := c.sock
	s.mu.Lock()
	t := s.transport
	if t == nil {
		c.open(cb)
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.onClose = func() {
		c.Open(cb)
	}
	s.mu.Unlock()

	if err := t.Close(); err != nil {
		c.logger.Debug("transport close", "error", err)
	}
}

// retry schedules a reconnect for the owner unless a deliberate close is
// in progress.
func (c *Connection) retry() {
	s := c.sock
	s.mu.Lock()
	if c.cloned || s.closing {
		s.mu.Unlock()
		return
	}
	timeout := c.timeout
	s.mu.Unlock()

	c.metrics.ReconnectScheduled()
	c.logger.Info("scheduling reconnect", "timeout", timeout)
	time.AfterFunc(timeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closing || c.sock != s {
			return
		}
		c.open(nil)
	})
}

// detach moves c off a socket it shares with other handles onto a fresh
// socket it owns. The first remaining handle becomes the old socket's owner
// and takes over the channels c created. Caller holds the old sock.mu.
func (c *Connection) detach(n *notifications) (successor *Connection) {
	s := c.sock
	rest := make([]*Connection, 0, len(s.subscribers)-1)
	for _, h := range s.subscribers {
		if h != c {
			rest = append(rest, h)
		}
	}
	s.subscribers = rest
	successor = rest[0]
	successor.cloned = false
	successor.base = nil
	for _, h := range rest[1:] {
		h.base = successor
		for _, ch := range h.channels {
			if ch.conn == c {
				ch.conn = successor
			}
		}
	}
	for _, ch := range successor.channels {
		if ch.conn == c {
			ch.conn = successor
		}
	}

	if c.state == StateConnected {
		c.metrics.Connected(-1)
	}
	c.state = StateDisconnected
	c.socketID = ""
	c.channels = make(map[string]*Channel)
	c.cloned = false
	c.base = nil
	c.sock = &socket{subscribers: []*Connection{c}}
	n.trigger(c.events, EventDisconnect)

	if s.transport == nil && !s.closing {
		n.add(successor.retry)
	}
	return successor
}

// Reconfigure points the handle at a new app key or server. When the
// identity is unchanged only cb runs. Otherwise the handle is registered
// under the new key and its transport reopened with cb as continuation.
// A handle sharing its transport with others leaves it for one of its own,
// and the remaining handles keep the old transport. Reconfigure must not
// run concurrently with other calls on the same handle.
func (c *Connection) Reconfigure(appKey string, cfg Config, cb func()) {
	s := c.sock
	s.mu.Lock()
	if cfg.Logger == nil {
		cfg.Logger = c.rootLogger
	}
	if cfg.Dialer == nil {
		cfg.Dialer = c.dialer
	}
	if cfg.Metrics == nil {
		cfg.Metrics = c.metrics
	}
	s.mu.Unlock()

	cfg.applyDefaults()
	if c.IsValid(appKey, cfg.BaseURL) {
		if cb != nil {
			cb()
		}
		return
	}

	s.mu.Lock()
	oldKey := c.appKey
	var n notifications
	var successor *Connection
	if len(s.subscribers) > 1 {
		successor = c.detach(&n)
	}
	c.configure(appKey, cfg)
	c.dialer = cfg.Dialer
	c.metrics = cfg.Metrics
	s.mu.Unlock()

	n.run()
	if successor != nil {
		c.logger.Info("detached from shared transport", "successor", successor.ID())
	}
	c.logger.Info("reconfigured", "previous_app_key", oldKey, "url", c.URL())
	c.registry.move(oldKey, appKey, c, successor)
	c.restart(cb)
}

// IsValid reports whether the handle already targets appKey on baseURL.
func (c *Connection) IsValid(appKey, baseURL string) bool {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	return c.appKey == appKey && c.baseURL == baseURL
}

// Send emits a channel-less event.
func (c *Connection) Send(name string, data any, opts ...SendOption) error {
	return c.SendChannel(name, data, "", opts...)
}

// SendChannel emits an event on channel.
func (c *Connection) SendChannel(name string, data any, channel string, opts ...SendOption) error {
	o := newSendOptions(opts)
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	return c.sendFrame(name, channel, data, o.echo, o.persist)
}

// sendFrame writes a frame on the shared transport. Caller holds sock.mu.
func (c *Connection) sendFrame(name, channel string, data any, echo, persist bool) error {
	raw, err := protocol.Encode(name, channel, data, echo, persist)
	if err != nil {
		return err
	}
	t := c.sock.transport
	if t == nil {
		return fmt.Errorf("send %s: %w", name, transport.ErrNotConnected)
	}
	if err := t.Send(raw); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	c.metrics.FrameSent(name)
	c.logger.Debug("sent frame", "event", name, "channel", channel)
	return nil
}

// Subscribe requests membership of a channel. An existing entry is returned
// unchanged unless force is set. Private-class channels are authorized
// first and their subscribe frame is sent once the token arrives. cb is
// bound once to the channel's subscribe event.
func (c *Connection) Subscribe(name string, force bool, cb event.Listener) (*Channel, error) {
	s := c.sock
	s.mu.Lock()
	var n notifications
	ch, err := c.subscribe(name, force, cb, &n)
	s.mu.Unlock()

	n.run()
	return ch, err
}

func (c *Connection) subscribe(name string, force bool, cb event.Listener, n *notifications) (*Channel, error) {
	if ch, ok := c.channels[name]; ok && !force {
		if cb != nil {
			if ch.subscribed {
				data := ch.data
				n.add(func() { cb(EventSubscribe, data) })
			} else {
				ch.events.Once(EventSubscribe, cb)
			}
		}
		return ch, nil
	}

	if c.base != nil && !force {
		if ch, ok := c.base.channels[name]; ok {
			c.channels[name] = ch
			if !ch.subscribed {
				// the server's confirmation reaches this handle too
				if cb != nil {
					ch.events.Once(EventSubscribe, cb)
				}
				return ch, nil
			}
			go c.confirmAdopted(c.sock, name, ch, cb)
			return ch, nil
		}
	}

	if protocol.IsPrivate(name) {
		if c.authorizer == nil {
			return nil, ErrNoAuthEndpoint
		}
		go c.authorize(c.authorizer, c.authTimeout, c.socketID, name)
	} else {
		err := c.sendFrame(protocol.EventSubscribe, "", protocol.SubscribeData{Channel: name}, false, true)
		if err != nil {
			return nil, err
		}
	}

	ch := newChannel(c, name)
	c.channels[name] = ch
	if cb != nil {
		ch.events.Once(EventSubscribe, cb)
	}
	return ch, nil
}

// confirmAdopted replays, for this handle only, the subscribe confirmation
// of a confirmed channel adopted from the base handle.
func (c *Connection) confirmAdopted(s *socket, name string, ch *Channel, cb event.Listener) {
	s.mu.Lock()
	if c.sock != s || c.base == nil || c.channels[name] != ch {
		s.mu.Unlock()
		return
	}
	var n notifications
	data := ch.data
	for _, alias := range protocol.Aliases(data) {
		a, ok := c.base.channels[alias]
		if _, mine := c.channels[alias]; !ok || mine {
			continue
		}
		c.channels[alias] = a
		n.trigger(c.events, EventSubscribe, alias, a.data)
	}
	if cb != nil {
		n.add(func() { cb(EventSubscribe, data) })
	}
	n.trigger(c.events, EventSubscribe, name, data)
	s.mu.Unlock()

	n.run()
}

// authorize fetches a channel token and sends the authenticated subscribe
// frame. Failures abandon the subscription.
func (c *Connection) authorize(authz Authorizer, timeout time.Duration, socketID, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := authz.Authorize(ctx, socketID, name)
	if err == nil && (result == nil || result.Auth == "") {
		err = ErrEmptyAuth
	}
	if err != nil {
		c.logger.Warn("channel authorization failed", "channel", name, "error", err)
		c.metrics.AuthFailed()
		return
	}

	s := c.sock
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.socketID != socketID {
		c.logger.Debug("dropping stale channel authorization", "channel", name)
		return
	}
	data := protocol.SubscribeData{
		Channel:     name,
		Auth:        result.Auth,
		ChannelData: result.ChannelData,
	}
	if err := c.sendFrame(protocol.EventSubscribe, "", data, false, true); err != nil {
		c.logger.Warn("private subscribe failed", "channel", name, "error", err)
	}
}

// Unsubscribe asks the server to end membership of a channel. Unknown
// channels return nil without sending anything. The channel leaves the
// handle's map on confirmation, when cb runs.
func (c *Connection) Unsubscribe(name string, cb event.Listener) (*Channel, error) {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()

	ch, ok := c.channels[name]
	if !ok {
		return nil, nil
	}
	err := c.sendFrame(protocol.EventUnsubscribe, "", protocol.UnsubscribeData{Channel: name}, false, true)
	if err != nil {
		return nil, err
	}
	if cb != nil {
		ch.events.Once(EventUnsubscribe, cb)
	}
	return ch, nil
}

// Latest requests the most recent stored messages of a channel. Unknown
// peer channels are created on demand, other unknown channels return nil.
// A count <= 0 requests DefaultLatestCount messages.
func (c *Connection) Latest(name string, skip, count int, cb event.Listener) (*Channel, error) {
	if count <= 0 {
		count = DefaultLatestCount
	}
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()

	ch, ok := c.channels[name]
	if !ok {
		if !protocol.IsPeer(name) {
			return nil, nil
		}
		ch = c.ensureChannel(name)
	}
	data := protocol.LatestData{Channel: name, Skip: skip, Count: count}
	if err := c.sendFrame(protocol.EventLatest, "", data, false, true); err != nil {
		return nil, err
	}
	if cb != nil {
		ch.events.Once(EventLatest, cb)
	}
	return ch, nil
}

// Invalidate drops the named channels from the local map without telling
// the server. With no names every channel is dropped.
func (c *Connection) Invalidate(names ...string) {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()

	if len(names) == 0 {
		c.channels = make(map[string]*Channel)
		return
	}
	for _, name := range names {
		delete(c.channels, name)
	}
}

// ensureChannel returns the named channel, creating it if needed. Caller
// holds sock.mu.
func (c *Connection) ensureChannel(name string) *Channel {
	if ch, ok := c.channels[name]; ok {
		return ch
	}
	ch := newChannel(c, name)
	c.channels[name] = ch
	return ch
}

// handleFrame applies an inbound frame to this handle. Caller holds sock.mu.
func (c *Connection) handleFrame(frame protocol.Frame, n *notifications) {
	if c.state == StateDisconnected {
		if frame.Event == protocol.EventConnectionEstablished {
			c.onConnect(protocol.SocketID(protocol.Payload(frame.Data)), n)
		}
		return
	}

	var ch *Channel
	if frame.Channel != "" {
		var ok bool
		ch, ok = c.channels[frame.Channel]
		if !ok {
			if !protocol.IsPeer(frame.Channel) {
				c.logger.Debug("dropping frame for unknown channel", "event", frame.Event, "channel", frame.Channel)
				c.metrics.FrameDropped("unknown_channel")
				return
			}
			ch = c.ensureChannel(frame.Channel)
		}
	}

	switch frame.Event {
	case protocol.EventSubscriptionSucceeded:
		c.onSubscribe(frame.Channel, protocol.Payload(frame.Data), n)
	case protocol.EventUnsubscriptionSucceeded:
		c.onUnsubscribe(frame.Channel, protocol.Payload(frame.Data), n)
	case protocol.EventLatestReply:
		c.onLatest(frame.Channel, protocol.Payload(frame.Data), n)
	case protocol.EventMemberAdded:
		n.trigger(c.events, EventMemberAdded, frame.Channel, protocol.Payload(frame.Member))
	case protocol.EventMemberRemoved:
		n.trigger(c.events, EventMemberRemoved, frame.Channel, protocol.Payload(frame.Member))
	}

	n.trigger(c.events, frame.Event, frame.Data, frame.Channel, frame.Mid, frame.Timestamp)
	if ch != nil {
		ch.setMessage(frame.Event, frame.Data, frame.Mid, frame.Timestamp, n)
	}
}

func (c *Connection) onConnect(socketID string, n *notifications) {
	c.socketID = socketID
	c.state = StateConnected
	c.metrics.Connected(1)
	c.logger.Info("connected", "socket_id", socketID)
	n.trigger(c.events, EventConnect)
}

func (c *Connection) onDisconnect(n *notifications) {
	if c.state == StateConnected {
		c.metrics.Connected(-1)
	}
	c.socketID = ""
	c.channels = make(map[string]*Channel)
	c.state = StateDisconnected
	n.trigger(c.events, EventDisconnect)
	n.add(c.retry)
}

func (c *Connection) onSubscribe(name string, payload json.RawMessage, n *notifications) {
	ch, ok := c.channels[name]
	if !ok {
		return
	}
	ch.setSubscribed(c, payload, n)
	n.trigger(c.events, EventSubscribe, name, payload)
}

func (c *Connection) onUnsubscribe(name string, payload json.RawMessage, n *notifications) {
	ch, ok := c.channels[name]
	if !ok {
		return
	}
	delete(c.channels, name)
	ch.setUnsubscribed(c, payload, n)
	n.trigger(c.events, EventUnsubscribe, name, payload)
}

func (c *Connection) onLatest(name string, payload json.RawMessage, n *notifications) {
	ch, ok := c.channels[name]
	if !ok {
		return
	}
	ch.setLatest(payload, n)
	n.trigger(c.events, EventLatest, name, payload)
}

// Bind registers a persistent listener for a connection event.
func (c *Connection) Bind(name string, listener event.Listener) *event.Binding {
	return c.events.Bind(name, listener, false)
}

// Once registers a listener removed after its first invocation.
func (c *Connection) Once(name string, listener event.Listener) *event.Binding {
	return c.events.Once(name, listener)
}

// Unbind removes a binding returned by Bind or Once.
func (c *Connection) Unbind(name string, b *event.Binding) {
	c.events.Unbind(name, b)
}

// Trigger invokes the listeners bound to name.
func (c *Connection) Trigger(name string, args ...any) {
	c.events.Trigger(name, args...)
}

// Login opens a web API session with the configured app credentials.
func (c *Connection) Login(ctx context.Context) error {
	return c.API().Login(ctx, c.appID, c.appSecret)
}

// RegisterWebPush registers a browser push subscription for event.
func (c *Connection) RegisterWebPush(ctx context.Context, sub api.PushSubscription, name string) error {
	return c.API().RegisterWebPush(ctx, sub, name)
}

// UnregisterWebPush removes a browser push subscription for event.
func (c *Connection) UnregisterWebPush(ctx context.Context, sub api.PushSubscription, name string) error {
	return c.API().UnregisterWebPush(ctx, sub, name)
}

// API returns the web API client for the handle's server.
func (c *Connection) API() *api.Client {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	return c.client
}

func (c *Connection) ID() string { return c.id.String() }

func (c *Connection) AppKey() string {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	return c.appKey
}

func (c *Connection) BaseURL() string {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	return c.baseURL
}

func (c *Connection) URL() string {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	return c.url
}

func (c *Connection) Timeout() time.Duration {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	return c.timeout
}

func (c *Connection) State() State {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	return c.state
}

func (c *Connection) SocketID() string {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	return c.socketID
}

// Channel returns the named channel, or nil.
func (c *Connection) Channel(name string) *Channel {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	return c.channels[name]
}

// Channels returns the names of the channels in the handle's map, sorted.
func (c *Connection) Channels() []string {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cloned reports whether the handle shares another handle's transport.
func (c *Connection) Cloned() bool {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	return c.cloned
}

// Base returns the handle this one was cloned from, or nil.
func (c *Connection) Base() *Connection {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	return c.base
}
