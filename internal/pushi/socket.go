package pushi

import (
	"sync"

	"github.com/hivesolutions/pushi-go/internal/event"
	"github.com/hivesolutions/pushi-go/internal/protocol"
	"github.com/hivesolutions/pushi-go/internal/transport"
)

// socket is the state shared by every handle multiplexed over one transport.
type socket struct {
	mu          sync.Mutex
	subscribers []*Connection // owner first
	transport   transport.Transport
	closing     bool   // deliberate close in progress, suppresses retries
	onOpen      func() // fired on the first open, frame or close
	onClose     func() // fired when the transport closes
}

// takeOpen returns and clears the pending open continuation. Caller holds mu.
func (s *socket) takeOpen() func() {
	cb := s.onOpen
	s.onOpen = nil
	return cb
}

// takeClose returns and clears the pending close continuation. Caller holds mu.
func (s *socket) takeClose() func() {
	cb := s.onClose
	s.onClose = nil
	return cb
}

func (s *socket) owner() *Connection {
	return s.subscribers[0]
}

// notifications collects listener invocations produced while the socket
// lock is held. They run in order once it is released. One notifications
// value spans one inbound frame across every handle of the socket, so a
// Channel shared by several handles is updated once per frame.
type notifications struct {
	fns     []func()
	claimed map[claimKey]struct{}
}

type claimKey struct {
	ch   *Channel
	kind string
}

func (n *notifications) trigger(d *event.Dispatcher, name string, args ...any) {
	n.fns = append(n.fns, func() {
		d.Trigger(name, args...)
	})
}

func (n *notifications) add(fn func()) {
	if fn != nil {
		n.fns = append(n.fns, fn)
	}
}

// claim reports whether ch has not yet been updated for kind in this batch.
func (n *notifications) claim(ch *Channel, kind string) bool {
	key := claimKey{ch: ch, kind: kind}
	if _, ok := n.claimed[key]; ok {
		return false
	}
	if n.claimed == nil {
		n.claimed = make(map[claimKey]struct{})
	}
	n.claimed[key] = struct{}{}
	return true
}

func (n *notifications) run() {
	for _, fn := range n.fns {
		fn()
	}
}

// socketHandler receives the callbacks of one transport. Callbacks from a
// transport that is no longer the socket's current one are ignored.
type socketHandler struct {
	s *socket
	t transport.Transport
}

func (h *socketHandler) current() bool {
	return h.t != nil && h.s.transport == h.t
}

func (h *socketHandler) OnOpen() {
	s := h.s
	s.mu.Lock()
	if !h.current() {
		s.mu.Unlock()
		return
	}
	owner := s.owner()
	cb := s.takeOpen()
	s.mu.Unlock()

	owner.logger.Debug("transport open", "url", owner.url)
	if cb != nil {
		cb()
	}
}

func (h *socketHandler) OnMessage(raw []byte) {
	s := h.s
	s.mu.Lock()
	if !h.current() {
		s.mu.Unlock()
		return
	}
	owner := s.owner()

	var n notifications
	frame, err := protocol.Decode(raw)
	if err != nil {
		owner.logger.Debug("dropping undecodable frame", "error", err)
		owner.metrics.FrameDropped("decode")
	} else {
		owner.metrics.FrameReceived(frame.Event)
		subscribers := append([]*Connection(nil), s.subscribers...)
		for _, c := range subscribers {
			c.handleFrame(frame, &n)
		}
	}
	n.add(s.takeOpen())
	s.mu.Unlock()

	n.run()
}

func (h *socketHandler) OnClose(err error) {
	s := h.s
	s.mu.Lock()
	if !h.current() {
		s.mu.Unlock()
		return
	}
	s.transport = nil
	owner := s.owner()
	if err != nil {
		owner.logger.Warn("transport closed", "error", err)
	} else {
		owner.logger.Info("transport closed")
	}

	var n notifications
	subscribers := append([]*Connection(nil), s.subscribers...)
	for _, c := range subscribers {
		c.onDisconnect(&n)
	}
	n.add(s.takeClose())
	n.add(s.takeOpen())
	s.mu.Unlock()

	n.run()
}
