package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "pushi"

// Collector groups the client metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	opens          prometheus.Counter
	reconnects     prometheus.Counter
	authFailures   prometheus.Counter
	connected      prometheus.Gauge
}

// New creates the collectors and registers them with registry.
func New(registry prometheus.Registerer) *Collector {
	c := &Collector{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "frames_received_total",
			Help:      "Total number of inbound frames by event class",
		}, []string{"class"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "frames_sent_total",
			Help:      "Total number of outbound frames by event class",
		}, []string{"class"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "frames_dropped_total",
			Help:      "Total number of inbound frames dropped before dispatch",
		}, []string{"reason"}),
		opens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "transport",
			Name:      "opens_total",
			Help:      "Total number of transports opened",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "transport",
			Name:      "reconnects_total",
			Help:      "Total number of scheduled reconnect attempts",
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "auth_failures_total",
			Help:      "Total number of abandoned private channel subscriptions",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "connected_handles",
			Help:      "Number of handles currently in connected state",
		}),
	}
	registry.MustRegister(
		c.framesReceived,
		c.framesSent,
		c.framesDropped,
		c.opens,
		c.reconnects,
		c.authFailures,
		c.connected,
	)
	return c
}

// Class reduces an event name to a bounded label value.
func Class(event string) string {
	switch {
	case strings.HasPrefix(event, "pusher_internal:"):
		return "internal"
	case strings.HasPrefix(event, "pusher:"):
		return "protocol"
	default:
		return "application"
	}
}

// FrameReceived counts one inbound frame.
func (c *Collector) FrameReceived(event string) {
	if c == nil {
		return
	}
	c.framesReceived.WithLabelValues(Class(event)).Inc()
}

// FrameSent counts one outbound frame.
func (c *Collector) FrameSent(event string) {
	if c == nil {
		return
	}
	c.framesSent.WithLabelValues(Class(event)).Inc()
}

// FrameDropped counts one dropped inbound frame.
func (c *Collector) FrameDropped(reason string) {
	if c == nil {
		return
	}
	c.framesDropped.WithLabelValues(reason).Inc()
}

// TransportOpened counts one transport open.
func (c *Collector) TransportOpened() {
	if c == nil {
		return
	}
	c.opens.Inc()
}

// ReconnectScheduled counts one scheduled reconnect.
func (c *Collector) ReconnectScheduled() {
	if c == nil {
		return
	}
	c.reconnects.Inc()
}

// AuthFailed counts one abandoned authorization.
func (c *Collector) AuthFailed() {
	if c == nil {
		return
	}
	c.authFailures.Inc()
}

// Connected adjusts the connected handles gauge.
func (c *Collector) Connected(delta float64) {
	if c == nil {
		return
	}
	c.connected.Add(delta)
}
