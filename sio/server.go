// Package sio implements the Socket.IO multiplexing and broadcast layer on
// top of package eio: namespaces, rooms, the broadcast operator pipeline,
// and ack aggregation, grounded on the teacher's servers/socket package.
package sio

import (
	"net/http"
	"sync"

	"github.com/brightloom/sio/eio"
	"github.com/brightloom/sio/internal/xlog"
	"github.com/brightloom/sio/metrics"
)

var serverLog = xlog.New("socket:server")

// Server is the top-level Socket.IO server: it owns an eio.Engine and a set
// of Namespaces, creating a Client for every new Engine.IO session,
// grounded on the teacher's servers/socket/server.go.
type Server struct {
	engine  *eio.Engine
	metrics *metrics.Collectors

	// useMsgpack selects the msgpack wire codec (socket.io-msgpack-parser
	// parity) instead of the default JSON+placeholder one for every Client
	// created from here on. Set via UseMsgpackParser before traffic arrives;
	// it is not safe to flip once sessions are connected.
	useMsgpack bool

	mu         sync.RWMutex
	namespaces map[string]*Namespace
}

// New constructs a Server with the given Engine.IO configuration. opts
// apply to the underlying eio.Engine; use WithPath/WithPingInterval/etc.
// from package eio. Pass eio.WithMetrics(metrics.New()) to also instrument
// broadcast fan-out and ack timeouts on the returned Server.
func New(opts ...eio.Option) *Server {
	cfg := eio.NewConfig(opts...)
	s := &Server{namespaces: make(map[string]*Namespace), metrics: cfg.Metrics}
	s.engine = eio.New(cfg, s.onEngineOpen)
	s.namespace("/")
	return s
}

// UseMsgpackParser switches every Client created after this call to the
// msgpack wire encoding (sio/parser.MsgpackCodec) instead of the default
// JSON+placeholder one, matching the teacher's socket.io-msgpack-parser
// opt-in. Call it immediately after New, before the server starts serving.
func (s *Server) UseMsgpackParser() { s.useMsgpack = true }

func (s *Server) onEngineOpen(sess *eio.Session) {
	newClient(s, sess)
	serverLog.Debug("session %s opened", sess.ID)
}

// Of returns (creating if necessary) the Namespace at path, e.g. "/admin".
func (s *Server) Of(path string) *Namespace {
	if path == "" {
		path = "/"
	}
	return s.namespace(path)
}

func (s *Server) namespace(name string) *Namespace {
	s.mu.RLock()
	n, ok := s.namespaces[name]
	s.mu.RUnlock()
	if ok {
		return n
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.namespaces[name]; ok {
		return n
	}
	n = newNamespace(name, s)
	s.namespaces[name] = n
	return n
}

// Handler returns the http.Handler the application mounts at the Engine.IO
// path (spec.md §6); CORS and auth middleware belong in front of it.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.engine.ServeHTTP)
}

// Engine exposes the underlying Engine.IO server, e.g. for ClientsCount.
func (s *Server) Engine() *eio.Engine { return s.engine }

// On registers a connection handler for the default namespace, mirroring
// the teacher's Server.On("connection", ...) shortcut.
func (s *Server) On(evt string, fn func(*Socket)) {
	if evt != "connection" && evt != "connect" {
		return
	}
	s.namespace("/").OnConnection(fn)
}
