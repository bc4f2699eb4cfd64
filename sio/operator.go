package sio

import (
	"time"

	"github.com/brightloom/sio/sio/parser"
	"github.com/brightloom/sio/sioerr"
)

// DefaultAckTimeout bounds how long EmitWithAck waits for any one targeted
// socket to respond when the caller hasn't set Timeout explicitly.
const DefaultAckTimeout = 5 * time.Second

// BroadcastOperator is the fluent builder applications chain off Namespace/
// Socket.To to select recipients and modifiers before a terminal operation
// (Emit, EmitWithAck, FetchSockets, …), grounded on the teacher's
// servers/socket/broadcast-operator.go. Every chaining method returns a new
// BroadcastOperator (copy-on-write), so a partially built chain can be
// safely reused and branched.
type BroadcastOperator struct {
	nsp    *Namespace
	sid    *SocketID
	rooms  []Room
	except []Room
	flags  BroadcastFlags
	bin    [][]byte
}

// newOperator builds a namespace/server-scoped operator with no emitting
// socket to exclude.
func newOperator(nsp *Namespace) *BroadcastOperator {
	return &BroadcastOperator{nsp: nsp}
}

// newSocketOperator builds an operator scoped to a single emitting socket,
// so that To/Except (which set the Broadcast flag, spec.md §4.6) exclude it
// from the resolved selection while Within does not.
func newSocketOperator(nsp *Namespace, sid SocketID) *BroadcastOperator {
	return &BroadcastOperator{nsp: nsp, sid: &sid}
}

func (b *BroadcastOperator) clone() *BroadcastOperator {
	cp := *b
	cp.rooms = append([]Room(nil), b.rooms...)
	cp.except = append([]Room(nil), b.except...)
	cp.bin = append([][]byte(nil), b.bin...)
	return &cp
}

// To adds room(s) to the selection and sets the Broadcast flag, so the
// emitting socket (if any) is excluded from the result — "everyone in this
// room except me" when called off a Socket (spec.md §4.6 `to`).
func (b *BroadcastOperator) To(rooms ...any) *BroadcastOperator {
	cp := b.clone()
	cp.rooms = append(cp.rooms, RoomsOf(rooms...)...)
	cp.flags.Broadcast = true
	return cp
}

// In is an alias of To.
func (b *BroadcastOperator) In(rooms ...any) *BroadcastOperator { return b.To(rooms...) }

// Within adds room(s) to the selection without setting the Broadcast flag,
// so the emitting socket remains included if it belongs to the room
// (spec.md §4.6 `within`) — unlike To, this is how a socket broadcasts to a
// room including itself.
func (b *BroadcastOperator) Within(rooms ...any) *BroadcastOperator {
	cp := b.clone()
	cp.rooms = append(cp.rooms, RoomsOf(rooms...)...)
	return cp
}

// Except excludes room(s) from the selection and sets the Broadcast flag
// (spec.md §4.6 `except`).
func (b *BroadcastOperator) Except(rooms ...any) *BroadcastOperator {
	cp := b.clone()
	cp.except = append(cp.except, RoomsOf(rooms...)...)
	cp.flags.Broadcast = true
	return cp
}

// Broadcast sets the Broadcast flag on its own, with no room changes
// (spec.md §4.6 `broadcast()`), excluding the emitting socket from
// whatever selection is otherwise in effect.
func (b *BroadcastOperator) Broadcast() *BroadcastOperator {
	cp := b.clone()
	cp.flags.Broadcast = true
	return cp
}

// Compress sets whether the transport should attempt to compress the
// payload. Carried as a flag for adapter parity with the teacher; this
// module's transports never compress (spec.md Non-goals), so it is a no-op
// beyond being visible to a custom Adapter.
func (b *BroadcastOperator) Compress(compress bool) *BroadcastOperator {
	cp := b.clone()
	cp.flags.Compress = &compress
	return cp
}

// Volatile marks the emission as droppable if the recipient isn't ready.
func (b *BroadcastOperator) Volatile() *BroadcastOperator {
	cp := b.clone()
	cp.flags.Volatile = true
	return cp
}

// Local restricts the emission to sockets on this process (always true here
// since no distributed adapter is wired in, but kept for interface parity).
func (b *BroadcastOperator) Local() *BroadcastOperator {
	cp := b.clone()
	cp.flags.Local = true
	return cp
}

// Timeout sets how long EmitWithAck waits for any one targeted socket to
// respond, independently of every other targeted socket.
func (b *BroadcastOperator) Timeout(d time.Duration) *BroadcastOperator {
	cp := b.clone()
	cp.flags.Timeout = &d
	return cp
}

// Bin stashes raw binary attachments to be carried by the next Emit/
// EmitWithAck call, grounded on the teacher's Compress/Volatile copy-on-
// write chaining style applied to the protocol's bin(payloads) hook.
func (b *BroadcastOperator) Bin(payloads ...[]byte) *BroadcastOperator {
	cp := b.clone()
	cp.bin = append(cp.bin, payloads...)
	return cp
}

func (b *BroadcastOperator) options() *BroadcastOptions {
	return &BroadcastOptions{SID: b.sid, Rooms: b.rooms, Except: b.except, Flags: &b.flags}
}

func (b *BroadcastOperator) buildData(evt string, args []any) []any {
	data := append([]any{evt}, args...)
	for _, buf := range b.bin {
		data = append(data, buf)
	}
	return data
}

// Emit broadcasts an event to every socket this operator selects. Delivery
// is best-effort (spec.md §7): a per-socket send failure doesn't stop the
// rest of the fan-out, but every failure is returned aggregated in a
// *sioerr.BroadcastError.
func (b *BroadcastOperator) Emit(evt string, args ...any) error {
	if reservedEvents.Has(evt) {
		return sioerr.ErrBadPacket
	}
	p := &parser.Packet{Type: parser.Event, Data: b.buildData(evt, args)}
	return b.nsp.adapter.Broadcast(p, b.options())
}

// AckResult is one element of the stream EmitWithAck returns: the response
// from SocketID, or Err set to sioerr.ErrAckTimeout if that socket's own
// deadline elapsed first (spec.md §4.5 "stream<Result<Ack, AckError>>").
type AckResult struct {
	SocketID SocketID
	Response []any
	Err      error
}

// EmitWithAck broadcasts evt to every socket this operator selects and
// returns a channel yielding exactly one AckResult per selected socket, as
// each one arrives or times out independently of the others (spec.md §4.5,
// scenario S6: two recipients, one answers before its deadline, one
// doesn't — the stream yields one Ok and one Err(Timeout), not a single
// aggregated outcome). The channel is closed once every slot has resolved.
func (b *BroadcastOperator) EmitWithAck(evt string, args ...any) (<-chan AckResult, error) {
	if reservedEvents.Has(evt) {
		return nil, sioerr.ErrBadPacket
	}
	p := &parser.Packet{Type: parser.Event, Data: b.buildData(evt, args)}
	timeout := DefaultAckTimeout
	if b.flags.Timeout != nil {
		timeout = *b.flags.Timeout
	}
	selected := b.nsp.adapter.BroadcastWithAck(p, b.options(), timeout)
	return b.instrument(selected), nil
}

// instrument wraps the adapter's raw per-socket ack stream so the fan-out
// size and any per-slot timeouts are recorded on the server's metrics,
// without the Adapter interface itself needing to know about *metrics.Collectors.
func (b *BroadcastOperator) instrument(in <-chan AckResult) <-chan AckResult {
	out := make(chan AckResult)
	go func() {
		defer close(out)
		count := 0
		for r := range in {
			count++
			if r.Err != nil {
				b.nsp.server.metrics.AckTimedOut()
			}
			out <- r
		}
		b.nsp.server.metrics.BroadcastFanOutObserve(count)
	}()
	return out
}

// FetchSockets returns every Socket this operator currently selects.
func (b *BroadcastOperator) FetchSockets() []*Socket {
	return b.nsp.adapter.FetchSockets(b.options())
}

// SocketsJoin makes every selected socket join room(s).
func (b *BroadcastOperator) SocketsJoin(rooms ...any) {
	b.nsp.adapter.AddSockets(b.options(), RoomsOf(rooms...))
}

// SocketsLeave makes every selected socket leave room(s).
func (b *BroadcastOperator) SocketsLeave(rooms ...any) {
	b.nsp.adapter.DelSockets(b.options(), RoomsOf(rooms...))
}

// DisconnectSockets disconnects every selected socket.
func (b *BroadcastOperator) DisconnectSockets(closeTransport bool) {
	b.nsp.adapter.DisconnectSockets(b.options(), closeTransport)
}
