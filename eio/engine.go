// Package eio implements the server side of the Engine.IO transport layer:
// session lifecycle, the polling/WebSocket transports, and the
// polling-to-WebSocket upgrade handshake, grounded on the teacher's
// servers/engine package (github.com/zishang520/socket.io/servers/engine).
package eio

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/brightloom/sio/internal/xlog"
	"github.com/brightloom/sio/internal/xtypes"
)

var engineLog = xlog.New("engine")

// codeMessage mirrors the teacher's types.CodeMessage: a stable numeric
// error code plus a human string, written back to the client as JSON on a
// handshake/poll failure (spec.md §4.3).
type codeMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var (
	errUnknownTransport = codeMessage{0, "Transport unknown"}
	errUnknownSID       = codeMessage{1, "Session ID unknown"}
	errBadHandshake     = codeMessage{2, "Bad handshake method"}
	errBadRequest       = codeMessage{3, "Bad request"}
)

// OpenHandler is invoked once per new Session, after the handshake Open
// packet has been produced and before any inbound packet is processed. On
// polling the Open packet is still queued when it runs; on a direct
// WebSocket handshake it has already been written to the client. Engine.IO
// itself has no notion of namespaces or events; this hook is how package sio
// attaches per-connection behavior without eio depending on sio.
type OpenHandler func(*Session)

// Engine is the Engine.IO server: it accepts the HTTP requests routed to it,
// creates and looks up Sessions by id, and dispatches each request to the
// polling or WebSocket transport handler. It is the direct analogue of the
// teacher's BaseServer + server (Handshake/HandleRequest/HandleUpgrade),
// collapsed into one concrete type since this module has no need for the
// teacher's prototype-based interface rewriting.
type Engine struct {
	cfg      Config
	sessions *xtypes.Map[string, *Session]
	onOpen   OpenHandler
}

// New creates an Engine. onOpen, if non-nil, runs for every newly
// established Session, as described on OpenHandler.
func New(cfg Config, onOpen OpenHandler) *Engine {
	return &Engine{
		cfg:      cfg,
		sessions: xtypes.NewMap[string, *Session](),
		onOpen:   onOpen,
	}
}

// Session looks up a currently open session by id.
func (e *Engine) Session(id string) (*Session, bool) {
	return e.sessions.Load(id)
}

// ClientsCount reports the number of currently tracked sessions.
func (e *Engine) ClientsCount() int {
	return e.sessions.Len()
}

func newSessionID() (string, error) {
	// 20 random bytes, base64url-encoded without padding, per spec.md §3 —
	// deliberately simpler than the teacher's utils.Base64Id (18 random
	// bytes plus an 8-byte sequence counter), since this module has no
	// equivalent need to keep ids monotonically sortable.
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ServeHTTP dispatches a request to the handshake, polling, or WebSocket
// upgrade path depending on the "sid" and "transport" query parameters and
// the request's Upgrade header, mirroring the teacher's server.ServeHTTP /
// HandleRequest / HandleUpgrade trio.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	transportName := q.Get("transport")
	sid := q.Get("sid")

	if sid != "" {
		sess, ok := e.sessions.Load(sid)
		if !ok {
			engineLog.Debug("unknown sid %q", sid)
			abort(w, http.StatusBadRequest, errUnknownSID)
			return
		}
		e.handleExisting(w, r, sess, transportName)
		return
	}

	if transportName != "polling" && transportName != "websocket" {
		engineLog.Debug("unknown transport %q", transportName)
		abort(w, http.StatusBadRequest, errUnknownTransport)
		return
	}

	if isWebSocketUpgrade(r) {
		if transportName != "websocket" {
			abort(w, http.StatusBadRequest, errBadRequest)
			return
		}
		e.handshakeWebSocket(w, r)
		return
	}

	if r.Method != http.MethodGet {
		abort(w, http.StatusBadRequest, errBadHandshake)
		return
	}
	e.handshakePolling(w, r)
}

func (e *Engine) handleExisting(w http.ResponseWriter, r *http.Request, sess *Session, transportName string) {
	switch sess.Kind() {
	case KindWebSocket:
		if isWebSocketUpgrade(r) {
			e.serveWebSocket(w, r, sess)
			return
		}
		abort(w, http.StatusBadRequest, errBadRequest)
	case KindPolling:
		if isWebSocketUpgrade(r) && transportName == "websocket" && e.cfg.AllowUpgrades {
			e.serveUpgradeProbe(w, r, sess)
			return
		}
		e.servePolling(w, r, sess)
	}
}

func abort(w http.ResponseWriter, status int, cm codeMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(encodeCodeMessage(cm))
}

func encodeCodeMessage(cm codeMessage) []byte {
	return []byte(`{"code":` + strconv.Itoa(cm.Code) + `,"message":"` + cm.Message + `"}`)
}

func isWebSocketUpgrade(r *http.Request) bool {
	return r.Header.Get("Upgrade") == "websocket" || r.Header.Get("Upgrade") == "Websocket"
}
