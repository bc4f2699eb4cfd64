package eio

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/brightloom/sio/eio/packet"
	"github.com/brightloom/sio/sioerr"
)

// codecFor returns the packet codec matching a session's negotiated
// protocol revision.
func codecFor(protocol int) packet.Codec {
	if protocol == 3 {
		return packet.V3
	}
	return packet.V4
}

// handshakePolling creates a new Session on an initial long-polling GET and
// writes the Open packet, grounded on the teacher's server.Handshake /
// HandleRequest.
func (e *Engine) handshakePolling(w http.ResponseWriter, r *http.Request) {
	protocol := protocolVersion(r)
	id, err := newSessionID()
	if err != nil {
		abort(w, http.StatusInternalServerError, errBadRequest)
		return
	}
	sess := NewSession(id, protocol, KindPolling, r.RemoteAddr, e.cfg)
	e.sessions.Store(id, sess)
	sess.OnClose(func(sioerr.DisconnectReason) { e.sessions.Delete(id) })

	upgrades := []string{}
	if e.cfg.AllowUpgrades {
		upgrades = append(upgrades, "websocket")
	}
	open := packet.OpenPacket{
		SID:          id,
		Upgrades:     upgrades,
		PingInterval: e.cfg.PingInterval.Milliseconds(),
		PingTimeout:  e.cfg.PingTimeout.Milliseconds(),
		MaxPayload:   e.cfg.MaxHTTPBufferSize,
	}
	data, err := json.Marshal(open)
	if err != nil {
		abort(w, http.StatusInternalServerError, errBadRequest)
		return
	}
	_ = sess.Send(&packet.Packet{Type: packet.Open, Data: data})

	sess.setReadyState(StateOpen)
	if e.onOpen != nil {
		e.onOpen(sess)
	}
	sess.SpawnHeartbeat()

	e.flushPolling(w, sess)
}

// servePolling handles a GET (long-poll read) or POST (client write)
// against an existing session, grounded on the teacher's
// transports/polling.go onPollRequest/onDataRequest.
func (e *Engine) servePolling(w http.ResponseWriter, r *http.Request, sess *Session) {
	switch r.Method {
	case http.MethodGet:
		e.pollOnce(w, r, sess)
	case http.MethodPost:
		e.postOnce(w, r, sess)
	default:
		abort(w, http.StatusBadRequest, errBadRequest)
	}
}

func (e *Engine) pollOnce(w http.ResponseWriter, r *http.Request, sess *Session) {
	release, ok := sess.AcquireReceiver()
	if !ok {
		engineLog.Debug("session %s: overlapping poll request", sess.ID)
		sess.Close(sioerr.ReasonMultipleHTTPPolling)
		abort(w, http.StatusBadRequest, errBadRequest)
		return
	}
	defer release()

	if !sess.Pending() && !sess.IsClosed() {
		select {
		case <-sess.NotifyChannel():
		case <-r.Context().Done():
			return
		}
	}
	if sess.IsClosed() && !sess.Pending() {
		abort(w, http.StatusBadRequest, errBadRequest)
		return
	}

	// Already holding the receiver lock acquired above — write the drained
	// packets directly rather than through flushPolling, which acquires its
	// own and would otherwise find it already held and flush nothing.
	e.writePayload(w, sess.Protocol, sess.Drain())
}

func (e *Engine) postOnce(w http.ResponseWriter, r *http.Request, sess *Session) {
	body, err := io.ReadAll(io.LimitReader(r.Body, e.cfg.MaxHTTPBufferSize+1))
	if err != nil {
		abort(w, http.StatusBadRequest, errBadRequest)
		return
	}

	var (
		packets []*packet.Packet
		decErr  error
	)
	if sess.Protocol == 3 {
		binaryFramed := strings.Contains(r.Header.Get("Content-Type"), "application/octet-stream")
		packets, decErr = packet.V3.DecodePayload(body, binaryFramed, e.cfg.MaxHTTPBufferSize)
	} else {
		packets, decErr = packet.V4.DecodePayload(body, e.cfg.MaxHTTPBufferSize)
	}
	if decErr != nil {
		sess.Close(sioerr.ReasonPacketParsingError)
		if packet.IsPayloadTooLarge(decErr) {
			abort(w, http.StatusRequestEntityTooLarge, errBadRequest)
		} else {
			abort(w, http.StatusBadRequest, errBadRequest)
		}
		return
	}
	for _, p := range packets {
		if p.Type == packet.Close {
			// Wake any poll parked on this session so it returns the Noop
			// instead of hanging until its own request context ends.
			_ = sess.Send(&packet.Packet{Type: packet.Noop})
		}
		sess.OnPacket(p)
		if p.Type == packet.Message {
			sess.deliverInbound(p)
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// flushPolling writes whatever is currently queued (at minimum the Open
// packet from handshakePolling) as the handshake's HTTP response body. The
// caller must already hold (or be establishing) the session; it acquires
// the receiver lock itself.
func (e *Engine) flushPolling(w http.ResponseWriter, sess *Session) {
	release, ok := sess.AcquireReceiver()
	if !ok {
		e.writePayload(w, sess.Protocol, nil)
		return
	}
	defer release()
	e.writePayload(w, sess.Protocol, sess.Drain())
}

func (e *Engine) writePayload(w http.ResponseWriter, protocol int, packets []*packet.Packet) {
	var (
		data      []byte
		hasBinary bool
		err       error
	)
	if protocol == 3 {
		data, hasBinary, err = packet.V3.EncodePayload(packets, false)
	} else {
		data, hasBinary, err = packet.V4.EncodePayload(packets)
	}
	if err != nil {
		abort(w, http.StatusInternalServerError, errBadRequest)
		return
	}
	if hasBinary {
		w.Header().Set("Content-Type", "application/octet-stream")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func protocolVersion(r *http.Request) int {
	if r.URL.Query().Get("EIO") == "3" {
		return 3
	}
	return 4
}
