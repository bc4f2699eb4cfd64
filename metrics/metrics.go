// Package metrics collects the Prometheus instrumentation a Server exposes,
// grounded on the teacher pack's internal/metrics package (balookrd's
// h3ws2h1ws-proxy): package-level collectors registered into a private
// registry rather than the global default one, since this is a library
// meant to be embedded rather than a standalone binary.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric a Server updates. Construct one with New
// and pass it to (*sio.Server) via WithMetrics; a nil *Collectors is valid
// everywhere it's read and simply records nothing.
type Collectors struct {
	Registry *prometheus.Registry

	OpenSessions    *prometheus.GaugeVec
	PacketsSent     *prometheus.CounterVec
	PacketsReceived *prometheus.CounterVec
	BroadcastFanOut prometheus.Histogram
	AckTimeouts     prometheus.Counter
	Upgrades        *prometheus.CounterVec
	Disconnects     *prometheus.CounterVec
}

// New builds a Collectors registered into a fresh prometheus.Registry.
func New() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		OpenSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sio_open_sessions",
			Help: "Number of currently open Engine.IO sessions, by transport.",
		}, []string{"transport"}),
		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sio_packets_sent_total",
			Help: "Engine.IO packets written to a transport, by packet type.",
		}, []string{"type"}),
		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sio_packets_received_total",
			Help: "Engine.IO packets read from a transport, by packet type.",
		}, []string{"type"}),
		BroadcastFanOut: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sio_broadcast_fanout_size",
			Help:    "Number of sockets a single broadcast reached.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		AckTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sio_ack_timeouts_total",
			Help: "Individual EmitWithAck recipients that timed out before acking.",
		}),
		Upgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sio_transport_upgrades_total",
			Help: "Polling-to-WebSocket upgrade attempts, by outcome.",
		}, []string{"outcome"}),
		Disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sio_disconnects_total",
			Help: "Session closes, by reason.",
		}, []string{"reason"}),
	}
	c.Registry.MustRegister(
		c.OpenSessions, c.PacketsSent, c.PacketsReceived,
		c.BroadcastFanOut, c.AckTimeouts, c.Upgrades, c.Disconnects,
	)
	return c
}

// SessionOpened records a newly opened Engine.IO session on the given
// transport, e.g. "polling" or "websocket". Safe on a nil receiver.
func (c *Collectors) SessionOpened(transport string) {
	if c == nil {
		return
	}
	c.OpenSessions.WithLabelValues(transport).Inc()
}

// SessionClosed records a session close with reason, e.g.
// string(sioerr.ReasonTransportClose), on the transport it closed on. Safe
// on a nil receiver.
func (c *Collectors) SessionClosed(transport, reason string) {
	if c == nil {
		return
	}
	c.OpenSessions.WithLabelValues(transport).Dec()
	c.Disconnects.WithLabelValues(reason).Inc()
}

// PacketSent records an outbound Engine.IO packet by its type name, e.g.
// "message" or "ping". Safe on a nil receiver.
func (c *Collectors) PacketSent(kind string) {
	if c == nil {
		return
	}
	c.PacketsSent.WithLabelValues(kind).Inc()
}

// PacketReceived records an inbound Engine.IO packet by its type name.
// Safe on a nil receiver.
func (c *Collectors) PacketReceived(kind string) {
	if c == nil {
		return
	}
	c.PacketsReceived.WithLabelValues(kind).Inc()
}

// BroadcastFanOutObserve records how many sockets a single broadcast
// reached. Safe on a nil receiver.
func (c *Collectors) BroadcastFanOutObserve(n int) {
	if c == nil {
		return
	}
	c.BroadcastFanOut.Observe(float64(n))
}

// AckTimedOut records one EmitWithAck recipient whose ack did not arrive
// before its timeout. Safe on a nil receiver.
func (c *Collectors) AckTimedOut() {
	if c == nil {
		return
	}
	c.AckTimeouts.Inc()
}

// SessionTransportChanged moves the open-sessions gauge from one transport
// label to another without touching the disconnect counters, for a session
// that upgraded in place rather than closing. Safe on a nil receiver.
func (c *Collectors) SessionTransportChanged(from, to string) {
	if c == nil {
		return
	}
	c.OpenSessions.WithLabelValues(from).Dec()
	c.OpenSessions.WithLabelValues(to).Inc()
}

// Upgrade records a polling-to-WebSocket upgrade attempt's outcome, e.g.
// "committed" or "aborted". Safe on a nil receiver.
func (c *Collectors) Upgrade(outcome string) {
	if c == nil {
		return
	}
	c.Upgrades.WithLabelValues(outcome).Inc()
}
