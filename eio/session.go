package eio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/brightloom/sio/eio/packet"
	"github.com/brightloom/sio/internal/xlog"
	"github.com/brightloom/sio/internal/xtimer"
	"github.com/brightloom/sio/sioerr"
)

var sessionLog = xlog.New("engine:socket")

// ReadyState mirrors the teacher's socket readyState string, kept as a typed
// constant set instead of a bare string per spec.md §3.
type ReadyState int32

const (
	StateOpening ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Kind identifies which low-level transport currently serves a Session.
type Kind int32

const (
	KindPolling Kind = iota
	KindWebSocket
)

func (k Kind) String() string {
	if k == KindWebSocket {
		return "websocket"
	}
	return "polling"
}

// Session is one Engine.IO connection: a protocol state machine sitting on
// top of a polling or WebSocket transport, grounded on the teacher's
// servers/engine/socket.go. Unlike the teacher's version, a Session never
// talks to net/http directly — the transport handlers in this package drive
// it through Send/Drain/OnPacket, which keeps the state machine testable
// without an httptest server.
type Session struct {
	ID       string
	Protocol int // 3 or 4, from the EIO query parameter

	cfg Config

	mu         sync.Mutex
	readyState ReadyState
	kind       Kind
	remoteAddr string

	writeBuffer []*packet.Packet

	upgrading atomic.Bool
	upgraded  atomic.Bool

	// pollLock is the single-consumer token guarding delivery to a polling
	// GET. Exactly one goroutine may hold it at a time; a second
	// concurrent poll is rejected with sioerr.ErrMultipleHTTPPolling
	// instead of racing the first for the write buffer (spec.md §6,
	// property 4).
	pollLock int32

	// notify wakes a blocked poll/writer pump when a packet is enqueued.
	notify chan struct{}

	pingTimer   *xtimer.Timer
	pongTimer   *xtimer.Timer
	closeOnce   sync.Once
	closed      atomic.Bool
	onClose   func(reason sioerr.DisconnectReason)
	onMessage func(*packet.Packet)
}

// SetMessageHandler registers the callback invoked for every inbound
// Message packet, regardless of which transport decoded it. Package sio
// uses this to feed decoded Socket.IO packets into a Client.
func (s *Session) SetMessageHandler(fn func(*packet.Packet)) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

func (s *Session) deliverInbound(p *packet.Packet) {
	s.mu.Lock()
	fn := s.onMessage
	s.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// NewSession constructs a Session in the "opening" state. The caller
// transitions it to open once the handshake Open packet has been written
// (see Engine.handshakePolling and Engine.handshakeWebSocket).
func NewSession(id string, protocol int, kind Kind, remoteAddr string, cfg Config) *Session {
	s := &Session{
		ID:         id,
		Protocol:   protocol,
		cfg:        cfg,
		readyState: StateOpening,
		kind:       kind,
		remoteAddr: remoteAddr,
		notify:     make(chan struct{}, 1),
	}
	cfg.Metrics.SessionOpened(kind.String())
	return s
}

func (s *Session) ReadyState() ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyState
}

func (s *Session) setReadyState(state ReadyState) {
	s.mu.Lock()
	s.readyState = state
	s.mu.Unlock()
}

func (s *Session) Kind() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

func (s *Session) setKind(k Kind) {
	s.mu.Lock()
	s.kind = k
	s.mu.Unlock()
}

func (s *Session) Upgraded() bool  { return s.upgraded.Load() }
func (s *Session) Upgrading() bool { return s.upgrading.Load() }
func (s *Session) IsClosed() bool  { return s.closed.Load() }

// OnClose registers the callback invoked once, exactly once, when the
// session transitions to closed (either end).
func (s *Session) OnClose(fn func(reason sioerr.DisconnectReason)) {
	s.mu.Lock()
	s.onClose = fn
	s.mu.Unlock()
}

// Send enqueues a packet for delivery to the client. It never blocks: if the
// session is already closed the packet is dropped and sioerr.ErrClosed is
// returned; if the outbound queue is already at Config.OutboundQueueSize,
// the packet is dropped and sioerr.ErrBufferFull is returned (spec.md §5 —
// a Session stops reading from a saturated client rather than growing its
// buffer unbounded).
func (s *Session) Send(p *packet.Packet) error {
	s.mu.Lock()
	if s.readyState == StateClosed {
		s.mu.Unlock()
		return sioerr.ErrClosed
	}
	if s.cfg.OutboundQueueSize > 0 && len(s.writeBuffer) >= s.cfg.OutboundQueueSize {
		s.mu.Unlock()
		return sioerr.ErrBufferFull
	}
	s.writeBuffer = append(s.writeBuffer, p)
	s.mu.Unlock()
	s.cfg.Metrics.PacketSent(p.Type.String())
	s.wake()
	return nil
}

func (s *Session) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Pending reports whether there is buffered output waiting to be flushed.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writeBuffer) > 0
}

// Drain removes and returns every currently buffered packet.
func (s *Session) Drain() []*packet.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writeBuffer) == 0 {
		return nil
	}
	out := s.writeBuffer
	s.writeBuffer = nil
	return out
}

// NotifyChannel exposes the wake channel so a long-poll handler can block
// until a packet arrives (or the request's own deadline/context fires)
// without spinning.
func (s *Session) NotifyChannel() <-chan struct{} {
	return s.notify
}

// AcquireReceiver claims the single-consumer polling lock. release must be
// called exactly once when the caller is done reading the write buffer. A
// second concurrent acquire attempt returns ok=false instead of blocking,
// matching the teacher's "overlap" detection in transports/polling.go
// (onPollRequest) that guards against MultipleHttpPollingError.
func (s *Session) AcquireReceiver() (release func(), ok bool) {
	if !atomic.CompareAndSwapInt32(&s.pollLock, 0, 1) {
		return nil, false
	}
	return func() { atomic.StoreInt32(&s.pollLock, 0) }, true
}

// AwaitReceiver blocks until the single-consumer polling lock is free, then
// immediately releases it. It never hands the lock to a caller's own
// use — it only proves that whichever poll currently held it has finished
// draining the write buffer, which is what the upgrade handshake needs
// before it flips the session's transport kind (spec.md §4.4.1 S5->S6): a
// poll still parked mid-drain must not race the new transport's pumps.
func (s *Session) AwaitReceiver() {
	for {
		if release, ok := s.AcquireReceiver(); ok {
			release()
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// SpawnHeartbeat starts the ping/pong heartbeat loop: the server pings on
// PingInterval and expects a Pong within PingTimeout, mirroring the
// teacher's schedulePing/resetPingTimeout pair.
func (s *Session) SpawnHeartbeat() {
	s.pingTimer = xtimer.After(s.cfg.PingInterval, s.sendPing)
}

func (s *Session) sendPing() {
	if s.IsClosed() {
		return
	}
	if err := s.Send(&packet.Packet{Type: packet.Ping}); err != nil {
		return
	}
	s.resetPingTimeout()
	s.pingTimer = xtimer.After(s.cfg.PingInterval, s.sendPing)
}

// resetPingTimeout arms (or re-arms) the pong deadline. Protocol 3 clients
// only reset their own ping-timeout clock when they next ping, so the
// server must wait out a full PingInterval+PingTimeout before declaring
// them gone; protocol 4 clients are expected to pong within PingTimeout of
// each ping, so that alone is the deadline (spec.md §4.2).
func (s *Session) resetPingTimeout() {
	if s.pongTimer != nil {
		s.pongTimer.Stop()
	}
	d := s.cfg.PingTimeout
	if s.Protocol == 3 {
		d = s.cfg.PingInterval + s.cfg.PingTimeout
	}
	s.pongTimer = xtimer.After(d, func() {
		sessionLog.Debug("session %s heartbeat timeout", s.ID)
		s.Close(sioerr.ReasonHeartbeatTimeout)
	})
}

// OnPacket dispatches an inbound packet decoded by a transport handler.
func (s *Session) OnPacket(p *packet.Packet) {
	if s.IsClosed() {
		return
	}
	s.cfg.Metrics.PacketReceived(p.Type.String())
	switch p.Type {
	case packet.Pong:
		s.resetPingTimeout()
	case packet.Close:
		s.Close(sioerr.ReasonTransportClose)
	}
}

// Close transitions the session to closed, stops heartbeat timers, and
// invokes the registered close callback exactly once.
func (s *Session) Close(reason sioerr.DisconnectReason) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.setReadyState(StateClosed)
		s.cfg.Metrics.SessionClosed(s.Kind().String(), string(reason))
		if s.pingTimer != nil {
			s.pingTimer.Stop()
		}
		if s.pongTimer != nil {
			s.pongTimer.Stop()
		}
		s.mu.Lock()
		cb := s.onClose
		s.mu.Unlock()
		if cb != nil {
			cb(reason)
		}
		s.wake()
	})
}

// BeginUpgrade marks the session as attempting an upgrade to a new
// transport kind; EndUpgrade(true) commits it, EndUpgrade(false) aborts.
func (s *Session) BeginUpgrade() bool {
	return s.upgrading.CompareAndSwap(false, true)
}

func (s *Session) EndUpgrade(commit bool, newKind Kind) {
	if commit {
		s.setKind(newKind)
		s.upgraded.Store(true)
	}
	s.upgrading.Store(false)
}
