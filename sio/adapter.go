package sio

import (
	"sync"
	"time"

	"github.com/brightloom/sio/internal/xtimer"
	"github.com/brightloom/sio/internal/xtypes"
	"github.com/brightloom/sio/sio/parser"
	"github.com/brightloom/sio/sioerr"
)

// Adapter owns room membership for one Namespace and fans a packet out to
// the sockets a BroadcastOptions selects. It is an exported interface,
// satisfied here only by the in-process implementation below, but shaped —
// per the teacher's adapters/redis package — so a distributed adapter could
// satisfy it without Namespace or BroadcastOperator changing; this module
// does not ship one (explicit non-goal).
type Adapter interface {
	AddAll(id SocketID, rooms []Room)
	Del(id SocketID, room Room)
	DelAll(id SocketID)

	Broadcast(p *parser.Packet, opts *BroadcastOptions) error
	BroadcastWithAck(p *parser.Packet, opts *BroadcastOptions, timeout time.Duration) <-chan AckResult

	Sockets(rooms []Room) []SocketID
	SocketRooms(id SocketID) []Room

	FetchSockets(opts *BroadcastOptions) []*Socket
	AddSockets(opts *BroadcastOptions, rooms []Room)
	DelSockets(opts *BroadcastOptions, rooms []Room)
	DisconnectSockets(opts *BroadcastOptions, closeTransport bool)

	ServerSideEmit(data []any) error
}

// localAdapter is the single-process Adapter, grounded on the teacher's
// servers/socket/adapter.go: a room->set<id> map and its inverse,
// id->set<room>, both guarded by xtypes.Map/Set rather than a bespoke mutex.
type localAdapter struct {
	nsp   *Namespace
	rooms *xtypes.Map[Room, *xtypes.Set[SocketID]]
	sids  *xtypes.Map[SocketID, *xtypes.Set[Room]]
}

func newLocalAdapter(nsp *Namespace) *localAdapter {
	return &localAdapter{
		nsp:   nsp,
		rooms: xtypes.NewMap[Room, *xtypes.Set[SocketID]](),
		sids:  xtypes.NewMap[SocketID, *xtypes.Set[Room]](),
	}
}

func (a *localAdapter) AddAll(id SocketID, rooms []Room) {
	set, _ := a.sids.LoadOrStore(id, xtypes.NewSet[Room]())
	for _, room := range rooms {
		set.Add(room)
		ids, _ := a.rooms.LoadOrStore(room, xtypes.NewSet[SocketID]())
		ids.Add(id)
	}
}

func (a *localAdapter) Del(id SocketID, room Room) {
	if set, ok := a.sids.Load(id); ok {
		set.Delete(room)
	}
	a.delFromRoom(room, id)
}

func (a *localAdapter) delFromRoom(room Room, id SocketID) {
	if ids, ok := a.rooms.Load(room); ok {
		ids.Delete(id)
		if ids.Len() == 0 {
			a.rooms.Delete(room)
		}
	}
}

func (a *localAdapter) DelAll(id SocketID) {
	if set, ok := a.sids.Load(id); ok {
		for _, room := range set.Keys() {
			a.delFromRoom(room, id)
		}
		a.sids.Delete(id)
	}
}

// Broadcast fans p out to every socket opts selects. Delivery is
// best-effort: a per-socket send failure never aborts the rest of the
// fan-out (spec.md §7 propagation policy), but every failure is collected
// into a *sioerr.BroadcastError so the caller can inspect or errors.Is
// against individual recipients.
func (a *localAdapter) Broadcast(p *parser.Packet, opts *BroadcastOptions) error {
	p.Nsp = a.nsp.Name()
	var sendErrors []sioerr.SendError
	a.apply(opts, func(s *Socket) {
		if err := s.deliver(p); err != nil {
			sendErrors = append(sendErrors, sioerr.SendError{SocketID: string(s.ID), Err: err})
		}
	})
	if len(sendErrors) == 0 {
		return nil
	}
	return &sioerr.BroadcastError{SendErrors: sendErrors}
}

// BroadcastWithAck fans p out to every socket opts selects, assigning one
// shared ack id to the packet but a separate timeout slot per recipient
// (spec.md §4.5: "return a stream that yields one element per registered
// session as acks arrive"). Each selected socket gets its own timer; a
// socket that acks before its own deadline yields an Ok AckResult, one that
// doesn't yields Err(sioerr.ErrAckTimeout) — independently of any other
// selected socket, which is what lets a partial-response scenario (some
// acks land, others time out) surface faithfully instead of collapsing
// into one aggregated outcome.
func (a *localAdapter) BroadcastWithAck(p *parser.Packet, opts *BroadcastOptions, timeout time.Duration) <-chan AckResult {
	p.Nsp = a.nsp.Name()
	id := a.nsp.nextID()
	p.ID = &id

	var sockets []*Socket
	a.apply(opts, func(s *Socket) { sockets = append(sockets, s) })

	out := make(chan AckResult, len(sockets))
	if len(sockets) == 0 {
		close(out)
		return out
	}

	var wg sync.WaitGroup
	wg.Add(len(sockets))
	for _, s := range sockets {
		s := s
		var once sync.Once
		resolve := func(resp []any, err error) {
			once.Do(func() {
				out <- AckResult{SocketID: s.ID, Response: resp, Err: err}
				wg.Done()
			})
		}
		timer := xtimer.After(timeout, func() { resolve(nil, sioerr.ErrAckTimeout) })
		s.registerAck(id, func(resp []any, err error) {
			timer.Stop()
			resolve(resp, err)
		})
		s.deliver(p)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (a *localAdapter) Sockets(rooms []Room) []SocketID {
	var out []SocketID
	a.apply(&BroadcastOptions{Rooms: rooms}, func(s *Socket) {
		out = append(out, s.ID)
	})
	return out
}

func (a *localAdapter) SocketRooms(id SocketID) []Room {
	set, ok := a.sids.Load(id)
	if !ok {
		return nil
	}
	return set.Keys()
}

func (a *localAdapter) FetchSockets(opts *BroadcastOptions) []*Socket {
	var out []*Socket
	a.apply(opts, func(s *Socket) { out = append(out, s) })
	return out
}

func (a *localAdapter) AddSockets(opts *BroadcastOptions, rooms []Room) {
	a.apply(opts, func(s *Socket) { s.Join(rooms...) })
}

func (a *localAdapter) DelSockets(opts *BroadcastOptions, rooms []Room) {
	a.apply(opts, func(s *Socket) {
		for _, room := range rooms {
			s.Leave(room)
		}
	})
}

func (a *localAdapter) DisconnectSockets(opts *BroadcastOptions, closeTransport bool) {
	a.apply(opts, func(s *Socket) { s.Disconnect(closeTransport) })
}

func (a *localAdapter) ServerSideEmit(data []any) error {
	return sioerr.ErrNoServerSideEmit
}

func (a *localAdapter) apply(opts *BroadcastOptions, callback func(*Socket)) {
	if opts == nil {
		opts = &BroadcastOptions{}
	}
	except := a.computeExceptSids(opts.Except)
	if opts.Flags != nil && opts.Flags.Broadcast && opts.SID != nil {
		except.Add(*opts.SID)
	}

	if len(opts.Rooms) > 0 {
		seen := xtypes.NewSet[SocketID]()
		for _, room := range opts.Rooms {
			ids, ok := a.rooms.Load(room)
			if !ok {
				continue
			}
			for _, id := range ids.Keys() {
				if seen.Has(id) || except.Has(id) {
					continue
				}
				if s, ok := a.nsp.sockets.Load(id); ok {
					callback(s)
					seen.Add(id)
				}
			}
		}
		return
	}

	a.sids.Range(func(id SocketID, _ *xtypes.Set[Room]) bool {
		if except.Has(id) {
			return true
		}
		if s, ok := a.nsp.sockets.Load(id); ok {
			callback(s)
		}
		return true
	})
}

func (a *localAdapter) computeExceptSids(exceptRooms []Room) *xtypes.Set[SocketID] {
	except := xtypes.NewSet[SocketID]()
	for _, room := range exceptRooms {
		if ids, ok := a.rooms.Load(room); ok {
			except.Add(ids.Keys()...)
		}
	}
	return except
}
