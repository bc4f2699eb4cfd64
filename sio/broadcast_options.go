package sio

import "time"

// Ack is the callback a single-recipient Emit-with-ack caller receives once
// that one socket has responded (or its own ack wait times out), grounded
// on the teacher's servers/socket.Ack function type.
type Ack func(responses []any, err error)

// BroadcastFlags are the per-call modifiers accumulated by chaining
// BroadcastOperator methods (spec.md §4.6), grounded on the teacher's
// servers/socket/socket-types.go BroadcastFlags.
type BroadcastFlags struct {
	// Broadcast, when set together with Options.SID, excludes the emitting
	// socket from the resolved selection (spec.md §4.6 resolution step 3).
	// to(rooms) and except(rooms) set it; within(rooms) deliberately does
	// not, so the emitter remains included.
	Broadcast bool
	Volatile  bool
	Local     bool
	Compress  *bool
	Timeout   *time.Duration
}

// BroadcastOptions selects which sockets a broadcast reaches (spec.md §4.5
// resolve(opts)): every socket in any of Rooms, minus every socket in any
// of Except, minus SID itself if Flags.Broadcast is set. An empty Rooms set
// means "every socket in the namespace." SID identifies the emitting socket
// so `Broadcast` semantics can exclude it; nil for namespace/server-level
// operators that have no single emitting socket.
type BroadcastOptions struct {
	SID    *SocketID
	Rooms  []Room
	Except []Room
	Flags  *BroadcastFlags
}
