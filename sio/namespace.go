package sio

import (
	"sync/atomic"

	"github.com/brightloom/sio/internal/xlog"
	"github.com/brightloom/sio/internal/xtypes"
	"github.com/brightloom/sio/sio/parser"
)

var nspLog = xlog.New("socket:namespace")

// reservedEvents are event names an application may not Emit directly; they
// are owned by the protocol itself, grounded on the teacher's
// SOCKET_RESERVED_EVENTS set.
var reservedEvents = xtypes.NewSet(
	"connect", "connect_error", "disconnect", "disconnecting", "newListener", "removeListener",
)

// ConnectionHandler runs once per socket that successfully joins a
// Namespace.
type ConnectionHandler func(*Socket)

// Namespace is a named partition of a Server's sockets, each with its own
// room set via its own Adapter, grounded on the teacher's
// servers/socket/namespace.go.
type Namespace struct {
	name    string
	server  *Server
	adapter Adapter
	sockets *xtypes.Map[SocketID, *Socket]

	ids atomic.Int64

	onConnection ConnectionHandler
}

func newNamespace(name string, server *Server) *Namespace {
	n := &Namespace{
		name:    name,
		server:  server,
		sockets: xtypes.NewMap[SocketID, *Socket](),
	}
	n.adapter = newLocalAdapter(n)
	return n
}

// Name returns the namespace's path, e.g. "/" or "/admin".
func (n *Namespace) Name() string { return n.name }

// Adapter returns the namespace's room/broadcast adapter.
func (n *Namespace) Adapter() Adapter { return n.adapter }

// OnConnection registers the handler run for every socket that joins.
func (n *Namespace) OnConnection(fn ConnectionHandler) { n.onConnection = fn }

func (n *Namespace) nextID() int64 { return n.ids.Add(1) }

func (n *Namespace) addSocket(s *Socket) {
	n.sockets.Store(s.ID, s)
	n.adapter.AddAll(s.ID, []Room{Room(s.ID)})
}

func (n *Namespace) removeSocket(s *Socket) {
	n.sockets.Delete(s.ID)
	n.adapter.DelAll(s.ID)
}

// Socket looks up a currently connected socket by id.
func (n *Namespace) Socket(id SocketID) (*Socket, bool) {
	return n.sockets.Load(id)
}

// Len reports how many sockets are currently connected to this namespace.
func (n *Namespace) Len() int { return n.sockets.Len() }

// To returns a BroadcastOperator targeting the given room(s).
func (n *Namespace) To(rooms ...any) *BroadcastOperator { return newOperator(n).To(rooms...) }

// In is an alias of To, matching the teacher's naming.
func (n *Namespace) In(rooms ...any) *BroadcastOperator { return n.To(rooms...) }

// Except returns a BroadcastOperator excluding the given room(s).
func (n *Namespace) Except(rooms ...any) *BroadcastOperator { return newOperator(n).Except(rooms...) }

// Within returns a BroadcastOperator targeting the given room(s) without
// setting the Broadcast flag (spec.md §4.6 "within"); irrelevant at the
// namespace level since there is no emitting socket to exclude, but kept
// for interface parity with Socket.Within.
func (n *Namespace) Within(rooms ...any) *BroadcastOperator { return newOperator(n).Within(rooms...) }

// Emit broadcasts an event to every connected socket in the namespace.
func (n *Namespace) Emit(evt string, args ...any) error { return newOperator(n).Emit(evt, args...) }

func (n *Namespace) onConnect(s *Socket) {
	n.addSocket(s)
	if n.onConnection != nil {
		n.onConnection(s)
	}
}

func (n *Namespace) handlePacket(cl *Client, p *parser.Packet) {
	switch p.Type {
	case parser.Connect:
		id := SocketID(newSocketID())
		s := newSocket(id, n, cl)
		cl.attach(n.name, s)
		n.onConnect(s)
		ack := &parser.Packet{Type: parser.Connect, Nsp: n.name, Data: map[string]any{"sid": string(id)}}
		_ = s.deliver(ack)
	case parser.Disconnect:
		if s, ok := cl.socketFor(n.name); ok {
			s.Disconnect(false)
			cl.detach(n.name)
		}
	default:
		if s, ok := cl.socketFor(n.name); ok {
			s.dispatchInbound(p)
		} else {
			nspLog.Debug("packet for %s with no connected socket", n.name)
		}
	}
}
