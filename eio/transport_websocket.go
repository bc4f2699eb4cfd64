package eio

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/brightloom/sio/eio/packet"
	"github.com/brightloom/sio/sioerr"
)

// upgrader is shared across handshake and probe upgrades; CheckOrigin is
// left permissive here since CORS policy belongs in front of this package
// (see sio.Server.Handler, which wraps ServeHTTP), mirroring the teacher's
// own "verified in *server.Verify()" comment at the same call site.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handshakeWebSocket establishes a brand-new Session directly over
// WebSocket (no prior polling transport), grounded on the teacher's
// server.onWebSocket path taken when the request carries no "sid".
func (e *Engine) handshakeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		engineLog.Debug("websocket upgrade failed: %s", err)
		return
	}
	conn.SetReadLimit(e.cfg.MaxHTTPBufferSize)

	protocol := protocolVersion(r)
	id, err := newSessionID()
	if err != nil {
		conn.Close()
		return
	}
	sess := NewSession(id, protocol, KindWebSocket, r.RemoteAddr, e.cfg)
	e.sessions.Store(id, sess)
	sess.OnClose(func(sioerr.DisconnectReason) {
		e.sessions.Delete(id)
		conn.Close()
	})

	upgrades := []string{}
	open := packet.OpenPacket{
		SID:          id,
		Upgrades:     upgrades,
		PingInterval: e.cfg.PingInterval.Milliseconds(),
		PingTimeout:  e.cfg.PingTimeout.Milliseconds(),
		MaxPayload:   e.cfg.MaxHTTPBufferSize,
	}
	data, err := json.Marshal(open)
	if err != nil {
		conn.Close()
		return
	}
	codec := codecFor(protocol)
	if err := writeWSPacket(conn, codec, &packet.Packet{Type: packet.Open, Data: data}); err != nil {
		conn.Close()
		return
	}

	sess.setReadyState(StateOpen)
	if e.onOpen != nil {
		e.onOpen(sess)
	}
	sess.SpawnHeartbeat()

	go runWebSocketWriter(sess, conn, codec)
	runWebSocketReader(sess, conn, codec)
}

// serveWebSocket handles subsequent frames on a session whose active
// transport is already WebSocket (only reachable once a pump goroutine
// already owns the connection, so this path only fires for a reconnect
// attempt, which is rejected).
func (e *Engine) serveWebSocket(w http.ResponseWriter, r *http.Request, sess *Session) {
	abort(w, http.StatusBadRequest, errBadRequest)
}

// serveUpgradeProbe runs the polling->WebSocket upgrade probe sequence
// (spec.md §4.4.1): the client opens a second, parallel WebSocket carrying a
// Ping("probe"); the server answers Pong("probe"); the client then sends an
// Upgrade packet to commit, at which point this connection becomes the
// session's transport and polling is retired. Grounded on the teacher's
// socket.MaybeUpgrade state machine.
func (e *Engine) serveUpgradeProbe(w http.ResponseWriter, r *http.Request, sess *Session) {
	if !sess.BeginUpgrade() {
		abort(w, http.StatusBadRequest, errBadRequest)
		return
	}

	// Protocol 4 clients go idle on the polling transport as soon as they
	// open the probe, so the server wakes any in-flight poll with a Noop
	// right away; protocol 3 clients keep polling until the probe lands,
	// so its Noop is deferred until after the probe completes, below.
	if sess.Protocol != 3 {
		_ = sess.Send(&packet.Packet{Type: packet.Noop})
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sess.EndUpgrade(false, 0)
		e.cfg.Metrics.Upgrade("aborted")
		return
	}
	conn.SetReadLimit(e.cfg.MaxHTTPBufferSize)
	codec := codecFor(sess.Protocol)

	mt, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		sess.EndUpgrade(false, 0)
		e.cfg.Metrics.Upgrade("aborted")
		return
	}
	probe, err := codec.DecodePacket(data, mt == websocket.BinaryMessage)
	if err != nil || probe.Type != packet.Ping || string(probe.Data) != packet.ProbePayload {
		conn.Close()
		sess.EndUpgrade(false, 0)
		e.cfg.Metrics.Upgrade("aborted")
		return
	}
	if err := writeWSPacket(conn, codec, &packet.Packet{Type: packet.Pong, Data: []byte(packet.ProbePayload)}); err != nil {
		conn.Close()
		sess.EndUpgrade(false, 0)
		e.cfg.Metrics.Upgrade("aborted")
		return
	}

	if sess.Protocol == 3 {
		_ = sess.Send(&packet.Packet{Type: packet.Noop})
	}

	mt, data, err = conn.ReadMessage()
	if err != nil {
		conn.Close()
		sess.EndUpgrade(false, 0)
		e.cfg.Metrics.Upgrade("aborted")
		return
	}
	commit, err := codec.DecodePacket(data, mt == websocket.BinaryMessage)
	if err != nil || commit.Type != packet.Upgrade {
		conn.Close()
		sess.EndUpgrade(false, 0)
		e.cfg.Metrics.Upgrade("aborted")
		return
	}

	// Make sure no poll is still mid-drain before the transport kind flips,
	// so it can't race the pumps about to start on this connection.
	sess.AwaitReceiver()

	oldKind := sess.Kind().String()
	sess.EndUpgrade(true, KindWebSocket)
	e.cfg.Metrics.SessionTransportChanged(oldKind, sess.Kind().String())
	e.cfg.Metrics.Upgrade("committed")
	sess.OnClose(func(sioerr.DisconnectReason) { conn.Close() })

	go runWebSocketWriter(sess, conn, codec)
	runWebSocketReader(sess, conn, codec)
}

func writeWSPacket(conn *websocket.Conn, codec packet.Codec, p *packet.Packet) error {
	data, isBinary, err := codec.EncodePacket(p, true)
	if err != nil {
		return err
	}
	mt := websocket.TextMessage
	if isBinary {
		mt = websocket.BinaryMessage
	}
	return conn.WriteMessage(mt, data)
}

// runWebSocketWriter drains a session's outbound queue onto conn until the
// session closes, grounded on the teacher's transports/websocket.go send
// loop.
func runWebSocketWriter(sess *Session, conn *websocket.Conn, codec packet.Codec) {
	for {
		if sess.IsClosed() {
			return
		}
		if !sess.Pending() {
			select {
			case <-sess.NotifyChannel():
			}
		}
		if sess.IsClosed() && !sess.Pending() {
			return
		}
		for _, p := range sess.Drain() {
			switch p.Type {
			case packet.Noop:
				// Only meaningful to a parked poll; a WebSocket pump has
				// nothing to wake, so it's dropped.
			case packet.Close:
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			default:
				if err := writeWSPacket(conn, codec, p); err != nil {
					sess.Close(sioerr.ReasonTransportError)
					return
				}
			}
		}
	}
}

// runWebSocketReader pumps inbound frames off conn until it closes or
// errors, grounded on the teacher's transports/websocket.go message loop.
func runWebSocketReader(sess *Session, conn *websocket.Conn, codec packet.Codec) {
	defer sess.Close(sioerr.ReasonTransportClose)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.CloseMessage {
			return
		}
		p, err := codec.DecodePacket(data, mt == websocket.BinaryMessage)
		if err != nil {
			sess.Close(sioerr.ReasonPacketParsingError)
			return
		}
		sess.OnPacket(p)
		if p.Type == packet.Message {
			sess.deliverInbound(p)
		}
	}
}
