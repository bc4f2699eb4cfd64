package sio

import (
	"sync/atomic"

	"github.com/brightloom/sio/internal/xtimer"
	"github.com/brightloom/sio/internal/xtypes"
	"github.com/brightloom/sio/sio/parser"
	"github.com/brightloom/sio/sioerr"
)

// Socket is the application-facing handle for one namespace connection,
// grounded on the teacher's servers/socket/socket.go. Unlike the teacher's
// Socket, this one holds no direct reference to the low-level transport:
// all outbound traffic goes through its Client, which multiplexes every
// namespace a given Engine.IO session has joined onto one underlying
// eio.Session.
type Socket struct {
	ID  SocketID
	nsp *Namespace
	cl  *Client

	emitter     *xtypes.EventEmitter
	rooms       *xtypes.Set[Room]
	pendingAcks *xtypes.Map[int64, Ack]

	connected atomic.Bool

	// Data is arbitrary per-connection state an application can attach in
	// its connection handler (spec.md §3's Socket.Data), e.g. the result of
	// an auth lookup.
	Data any
}

func newSocket(id SocketID, nsp *Namespace, cl *Client) *Socket {
	s := &Socket{
		ID:          id,
		nsp:         nsp,
		cl:          cl,
		emitter:     xtypes.NewEventEmitter(),
		rooms:       xtypes.NewSet[Room](),
		pendingAcks: xtypes.NewMap[int64, Ack](),
	}
	s.connected.Store(true)
	s.rooms.Add(Room(id))
	return s
}

// Connected reports whether the socket is still attached (not yet
// disconnected).
func (s *Socket) Connected() bool { return s.connected.Load() }

// Namespace returns the namespace this socket belongs to.
func (s *Socket) Namespace() *Namespace { return s.nsp }

// On registers fn to run for every inbound event named evt.
func (s *Socket) On(evt string, fn func(args ...any)) {
	s.emitter.On(evt, fn)
}

// Once registers fn to run once for the next inbound event named evt.
func (s *Socket) Once(evt string, fn func(args ...any)) {
	s.emitter.Once(evt, fn)
}

// Rooms returns the rooms this socket currently belongs to, including its
// own SocketID room.
func (s *Socket) Rooms() []Room {
	return s.rooms.Keys()
}

// Join adds the socket to each of rooms.
func (s *Socket) Join(rooms ...Room) {
	s.rooms.Add(rooms...)
	s.nsp.adapter.AddAll(s.ID, rooms)
}

// Leave removes the socket from room.
func (s *Socket) Leave(room Room) {
	if room == Room(s.ID) {
		return
	}
	s.rooms.Delete(room)
	s.nsp.adapter.Del(s.ID, room)
}

// To returns a BroadcastOperator targeting room(s); since To sets the
// Broadcast flag (spec.md §4.6), the emitting socket is excluded from the
// result — "everyone in this room except me".
func (s *Socket) To(rooms ...any) *BroadcastOperator {
	return newSocketOperator(s.nsp, s.ID).To(rooms...)
}

// In is an alias of To.
func (s *Socket) In(rooms ...any) *BroadcastOperator { return s.To(rooms...) }

// Within returns a BroadcastOperator targeting room(s) without setting the
// Broadcast flag, so the emitting socket remains included if it belongs to
// one of rooms (spec.md §4.6 `within`) — "everyone in this room, me too".
func (s *Socket) Within(rooms ...any) *BroadcastOperator {
	return newSocketOperator(s.nsp, s.ID).Within(rooms...)
}

// Except returns a BroadcastOperator excluding room(s); like To, this sets
// the Broadcast flag and so also excludes the emitting socket itself.
func (s *Socket) Except(rooms ...any) *BroadcastOperator {
	return newSocketOperator(s.nsp, s.ID).Except(rooms...)
}

// Emit sends an event to the client. If the last element of args is a
// func(responses []any, err error) — an Ack — the packet carries an id and
// the callback fires when the client acknowledges it, or with
// sioerr.ErrAckTimeout once DefaultAckTimeout elapses without a response.
func (s *Socket) Emit(evt string, args ...any) error {
	if reservedEvents.Has(evt) {
		return sioerr.ErrBadPacket
	}
	data := append([]any{evt}, args...)

	var ack Ack
	if len(data) > 0 {
		switch cb := data[len(data)-1].(type) {
		case Ack:
			ack = cb
		case func([]any, error):
			ack = cb
		}
		if ack != nil {
			data = data[:len(data)-1]
		}
	}

	p := &parser.Packet{Type: parser.Event, Nsp: s.nsp.Name(), Data: data}
	if ack != nil {
		id := s.nsp.nextID()
		p.ID = &id
		s.pendingAcks.Store(id, ack)
		xtimer.After(DefaultAckTimeout, func() {
			if cb, ok := s.pendingAcks.LoadAndDelete(id); ok {
				cb(nil, sioerr.ErrAckTimeout)
			}
		})
	}
	return s.deliver(p)
}

// deliver encodes p and writes it (plus any binary attachments) to the
// client over this socket's Client/eio.Session.
func (s *Socket) deliver(p *parser.Packet) error {
	return s.cl.sendPacket(p)
}

func (s *Socket) registerAck(id int64, ack Ack) {
	s.pendingAcks.Store(id, ack)
}

// dispatchInbound handles a decoded Packet addressed to this socket's
// namespace: EVENT invokes the matching On listener (appending an ack
// callback as the final argument when the packet carries an id); ACK
// resolves a pending Emit-with-ack.
func (s *Socket) dispatchInbound(p *parser.Packet) {
	switch p.Type {
	case parser.Event, parser.BinaryEvent:
		args, _ := p.Data.([]any)
		if len(args) == 0 {
			return
		}
		evt, _ := args[0].(string)
		rest := args[1:]
		if p.ID != nil {
			id := *p.ID
			rest = append(append([]any{}, rest...), func(responses ...any) {
				ackPacket := &parser.Packet{Type: parser.Ack, Nsp: s.nsp.Name(), ID: &id, Data: responses}
				_ = s.deliver(ackPacket)
			})
		}
		s.emitter.Emit(evt, rest...)
	case parser.Ack, parser.BinaryAck:
		if p.ID == nil {
			return
		}
		if ack, ok := s.pendingAcks.LoadAndDelete(*p.ID); ok {
			args, _ := p.Data.([]any)
			ack(args, nil)
		}
	}
}

// Disconnect closes the socket. When closeTransport is true the underlying
// Engine.IO session (and every other namespace multiplexed on it) is also
// torn down; otherwise only this namespace connection ends.
func (s *Socket) Disconnect(closeTransport bool) *Socket {
	if !s.connected.CompareAndSwap(true, false) {
		return s
	}
	s.nsp.removeSocket(s)
	s.emitter.Emit("disconnect", string(sioerr.ReasonServerDisconnect))
	if closeTransport {
		s.cl.close(sioerr.ReasonServerDisconnect)
	} else {
		_ = s.deliver(&parser.Packet{Type: parser.Disconnect, Nsp: s.nsp.Name()})
	}
	return s
}
