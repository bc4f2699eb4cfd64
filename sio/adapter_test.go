package sio

import (
	"errors"
	"sort"
	"testing"

	"github.com/brightloom/sio/eio"
	"github.com/brightloom/sio/sio/parser"
	"github.com/brightloom/sio/sioerr"
)

func newTestNamespace() *Namespace {
	return newNamespace("/", &Server{namespaces: map[string]*Namespace{}})
}

// newTestClient builds a Client backed by a real (but otherwise unattached)
// eio.Session, so a Socket can safely deliver() packets through it without a
// live HTTP/WebSocket transport on the other end.
func newTestClient() *Client {
	sess := eio.NewSession(newSocketID(), 4, eio.KindPolling, "", eio.DefaultConfig())
	return &Client{server: &Server{}, session: sess, sockets: map[string]*Socket{}}
}

func connectSocket(n *Namespace, cl *Client) *Socket {
	s := newSocket(SocketID(newSocketID()), n, cl)
	n.addSocket(s)
	return s
}

func sortedIDs(ids []SocketID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	sort.Strings(out)
	return out
}

func TestAdapterSelfRoomRegisteredOnConnect(t *testing.T) {
	n := newTestNamespace()
	s := connectSocket(n, newTestClient())

	got := n.adapter.Sockets([]Room{Room(s.ID)})
	if len(got) != 1 || got[0] != s.ID {
		t.Fatalf("Sockets(own room) = %v, want [%s]", got, s.ID)
	}
}

func TestAdapterRoomJoinLeave(t *testing.T) {
	n := newTestNamespace()
	a := connectSocket(n, newTestClient())
	b := connectSocket(n, newTestClient())

	a.Join("lobby")
	b.Join("lobby")

	got := sortedIDs(n.adapter.Sockets([]Room{"lobby"}))
	want := sortedIDs([]SocketID{a.ID, b.ID})
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Sockets(lobby) = %v, want %v", got, want)
	}

	a.Leave("lobby")
	got = n.adapter.Sockets([]Room{"lobby"})
	if len(got) != 1 || got[0] != b.ID {
		t.Fatalf("after Leave, Sockets(lobby) = %v, want [%s]", got, b.ID)
	}
}

func TestAdapterDelAllRemovesFromEveryRoom(t *testing.T) {
	n := newTestNamespace()
	a := connectSocket(n, newTestClient())
	a.Join("r1", "r2")

	n.adapter.DelAll(a.ID)

	if got := n.adapter.Sockets([]Room{"r1"}); len(got) != 0 {
		t.Fatalf("Sockets(r1) after DelAll = %v, want empty", got)
	}
	if got := n.adapter.Sockets([]Room{"r2"}); len(got) != 0 {
		t.Fatalf("Sockets(r2) after DelAll = %v, want empty", got)
	}
	if got := n.adapter.SocketRooms(a.ID); got != nil {
		t.Fatalf("SocketRooms after DelAll = %v, want nil", got)
	}
}

func TestAdapterExceptExcludesSocket(t *testing.T) {
	n := newTestNamespace()
	a := connectSocket(n, newTestClient())
	b := connectSocket(n, newTestClient())
	a.Join("room")
	b.Join("room")

	var reached []SocketID
	n.adapter.(*localAdapter).apply(&BroadcastOptions{
		Rooms:  []Room{"room"},
		Except: []Room{Room(a.ID)},
	}, func(s *Socket) { reached = append(reached, s.ID) })

	if len(reached) != 1 || reached[0] != b.ID {
		t.Fatalf("apply with Except = %v, want [%s]", reached, b.ID)
	}
}

// TestAdapterBroadcastCollectsPerSocketFailures exercises the best-effort
// fan-out policy (spec.md §7): one socket's closed session must not abort
// delivery to the rest, and the failure must surface as a BroadcastError
// the caller can inspect.
func TestAdapterBroadcastCollectsPerSocketFailures(t *testing.T) {
	n := newTestNamespace()
	dead := newTestClient()
	a := connectSocket(n, dead)
	b := connectSocket(n, newTestClient())
	dead.session.Close(sioerr.ReasonForcedClose)

	err := n.adapter.Broadcast(&parser.Packet{Type: parser.Event, Data: []any{"x"}}, &BroadcastOptions{})

	var bErr *sioerr.BroadcastError
	if !errors.As(err, &bErr) {
		t.Fatalf("Broadcast error = %v, want *sioerr.BroadcastError", err)
	}
	if len(bErr.SendErrors) != 1 || bErr.SendErrors[0].SocketID != string(a.ID) {
		t.Fatalf("SendErrors = %v, want exactly one entry for %s", bErr.SendErrors, a.ID)
	}
	if !errors.Is(err, sioerr.ErrClosed) {
		t.Fatalf("errors.Is(err, ErrClosed) = false, want true")
	}
	_ = b
}
