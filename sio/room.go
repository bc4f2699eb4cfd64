package sio

// Room is an arbitrary string label sockets join/leave within a Namespace.
// Every socket also auto-joins a Room equal to its own SocketID, which is
// how To(socket.ID) addresses a single connection (spec.md §4.5).
type Room string

// SocketID uniquely identifies a Socket within its Namespace.
type SocketID string

// RoomsOf normalizes the many shapes an application might pass as a room
// argument (spec.md §9 design note on room-parameter polymorphism) into a
// single []Room, accepting string, Room, []string, []Room, or any mix of
// those passed as variadic arguments.
func RoomsOf(v ...any) []Room {
	out := make([]Room, 0, len(v))
	for _, item := range v {
		switch val := item.(type) {
		case Room:
			out = append(out, val)
		case string:
			out = append(out, Room(val))
		case []Room:
			out = append(out, val...)
		case []string:
			for _, s := range val {
				out = append(out, Room(s))
			}
		}
	}
	return out
}
