// Package parser implements the Socket.IO wire packet: its JSON encoding,
// the binary-attachment deconstruction/reconstruction that lets a single
// event carry []byte payloads, and an alternate MessagePack encoding,
// grounded on the teacher's parsers/socket/parser package.
package parser

// PacketType is the Socket.IO packet type, the first digit after the
// Engine.IO message type digit on the wire (spec.md §4.2).
type PacketType int

const (
	Connect PacketType = iota
	Disconnect
	Event
	Ack
	ConnectError
	BinaryEvent
	BinaryAck
)

func (t PacketType) Valid() bool { return t >= Connect && t <= BinaryAck }

func (t PacketType) String() string {
	switch t {
	case Connect:
		return "CONNECT"
	case Disconnect:
		return "DISCONNECT"
	case Event:
		return "EVENT"
	case Ack:
		return "ACK"
	case ConnectError:
		return "CONNECT_ERROR"
	case BinaryEvent:
		return "BINARY_EVENT"
	case BinaryAck:
		return "BINARY_ACK"
	default:
		return "UNKNOWN"
	}
}

// Packet is one Socket.IO frame, after the Engine.IO envelope has been
// stripped. Data holds whatever was attached to Emit (typically a slice of
// arguments for Event/Ack packets); it is []byte payloads inside Data that
// DeconstructPacket pulls out into separate attachment buffers.
type Packet struct {
	Type        PacketType `json:"type" msgpack:"type"`
	Nsp         string     `json:"nsp" msgpack:"nsp"`
	Data        any        `json:"data,omitempty" msgpack:"data,omitempty"`
	ID          *int64     `json:"id,omitempty" msgpack:"id,omitempty"`
	Attachments int        `json:"attachments,omitempty" msgpack:"attachments,omitempty"`
}
