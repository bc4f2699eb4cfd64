package sio

import (
	"errors"
	"testing"
	"time"

	"github.com/brightloom/sio/sioerr"
)

func newOperatorTestNamespace() (*Namespace, *Client) {
	n := newTestNamespace()
	cl := newTestClient()
	return n, cl
}

func TestBroadcastOperatorToAndExceptChainCopyOnWrite(t *testing.T) {
	n, cl := newOperatorTestNamespace()
	a := connectSocket(n, cl)

	base := n.To("room-a")
	withExcept := base.Except(Room(a.ID))

	if len(base.except) != 0 {
		t.Fatal("Except should not mutate the operator it was called on")
	}
	if len(withExcept.except) != 1 || withExcept.except[0] != Room(a.ID) {
		t.Fatalf("withExcept.except = %v, want [%s]", withExcept.except, a.ID)
	}
	if len(withExcept.rooms) != 1 || withExcept.rooms[0] != "room-a" {
		t.Fatalf("chained operator lost its room selection: %v", withExcept.rooms)
	}
}

func TestBroadcastOperatorBinStashesAttachments(t *testing.T) {
	n, _ := newOperatorTestNamespace()
	op := n.To("x").Bin([]byte{1, 2, 3})
	if len(op.bin) != 1 {
		t.Fatalf("Bin did not stash the payload, got %d pending", len(op.bin))
	}
}

func TestBroadcastOperatorEmitRejectsReservedEvent(t *testing.T) {
	n, _ := newOperatorTestNamespace()
	if err := n.To("x").Emit("connect"); err == nil {
		t.Fatal("Emit of a reserved event name should fail")
	}
}

func TestBroadcastOperatorFetchSocketsHonorsRoomSelection(t *testing.T) {
	n, cl := newOperatorTestNamespace()
	a := connectSocket(n, cl)
	connectSocket(n, cl)
	a.Join("selected")

	got := n.To("selected").FetchSockets()
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("FetchSockets(selected) = %v, want [%s]", got, a.ID)
	}
}

// TestSocketToExcludesEmitterWithinIncludesIt exercises spec.md §4.6's
// distinction between `to` (sets Broadcast, so the resolution subtracts the
// emitting socket) and `within` (leaves it in).
func TestSocketToExcludesEmitterWithinIncludesIt(t *testing.T) {
	n, cl := newOperatorTestNamespace()
	a := connectSocket(n, cl)
	b := connectSocket(n, cl)
	a.Join("room")
	b.Join("room")

	to := sortedIDs(fetchIDs(a.To("room").FetchSockets()))
	if len(to) != 1 || to[0] != string(b.ID) {
		t.Fatalf("a.To(\"room\") = %v, want only [%s] (emitter excluded)", to, b.ID)
	}

	within := sortedIDs(fetchIDs(a.Within("room").FetchSockets()))
	want := sortedIDs([]SocketID{a.ID, b.ID})
	if len(within) != 2 || within[0] != want[0] || within[1] != want[1] {
		t.Fatalf("a.Within(\"room\") = %v, want %v (emitter included)", within, want)
	}
}

func fetchIDs(sockets []*Socket) []SocketID {
	out := make([]SocketID, len(sockets))
	for i, s := range sockets {
		out[i] = s.ID
	}
	return out
}

// TestBroadcastOperatorEmitWithAckYieldsIndependentPerSocketResults is
// scenario S6 from spec.md §8: two recipients, only one acknowledges before
// the shared Timeout elapses. The stream must yield one Ok result and one
// independent Err(Timeout) result, not a single aggregated outcome.
func TestBroadcastOperatorEmitWithAckYieldsIndependentPerSocketResults(t *testing.T) {
	n, cl := newOperatorTestNamespace()
	a := connectSocket(n, cl)
	b := connectSocket(n, cl)

	stream, err := n.To(Room(a.ID), Room(b.ID)).Timeout(100 * time.Millisecond).EmitWithAck("ping")
	if err != nil {
		t.Fatalf("EmitWithAck: %v", err)
	}

	// Only socket a acknowledges; b is left to time out.
	a.pendingAcks.Range(func(id int64, ack Ack) bool {
		ack([]any{"a"}, nil)
		return true
	})

	results := map[SocketID]AckResult{}
	for i := 0; i < 2; i++ {
		select {
		case r, ok := <-stream:
			if !ok {
				t.Fatal("stream closed before yielding both results")
			}
			results[r.SocketID] = r
		case <-time.After(time.Second):
			t.Fatal("ack stream never yielded both results")
		}
	}
	if _, stillOpen := <-stream; stillOpen {
		t.Fatal("stream should close after exactly one result per selected socket")
	}

	got, ok := results[a.ID]
	if !ok || got.Err != nil || len(got.Response) != 1 || got.Response[0] != "a" {
		t.Fatalf("result for a = %+v, want Ok([\"a\"])", got)
	}
	got, ok = results[b.ID]
	if !ok || !errors.Is(got.Err, sioerr.ErrAckTimeout) {
		t.Fatalf("result for b = %+v, want Err(ErrAckTimeout)", got)
	}
}

func TestBroadcastOperatorEmitWithAckTimesOutWithoutResponses(t *testing.T) {
	n, cl := newOperatorTestNamespace()
	connectSocket(n, cl)

	stream, err := newOperator(n).Timeout(20 * time.Millisecond).EmitWithAck("ping")
	if err != nil {
		t.Fatalf("EmitWithAck: %v", err)
	}

	select {
	case r, ok := <-stream:
		if !ok {
			t.Fatal("stream closed with no result")
		}
		if !errors.Is(r.Err, sioerr.ErrAckTimeout) {
			t.Fatalf("result = %+v, want Err(ErrAckTimeout)", r)
		}
	case <-time.After(time.Second):
		t.Fatal("ack stream never timed out")
	}
}
