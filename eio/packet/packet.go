// Package packet defines the Engine.IO wire packet and its V3/V4 codecs
// (spec.md §4.1), grounded on the teacher's parsers/engine/packet and
// parsers/engine/parser packages.
package packet

// Type is the single-digit Engine.IO packet type, per the protocol's wire
// prefix byte (e.g. '0' for Open, '4' for Message).
type Type byte

const (
	Open    Type = '0'
	Close   Type = '1'
	Ping    Type = '2'
	Pong    Type = '3'
	Message Type = '4'
	Upgrade Type = '5'
	Noop    Type = '6'
)

func (t Type) Valid() bool {
	switch t {
	case Open, Close, Ping, Pong, Message, Upgrade, Noop:
		return true
	default:
		return false
	}
}

func (t Type) String() string {
	switch t {
	case Open:
		return "open"
	case Close:
		return "close"
	case Ping:
		return "ping"
	case Pong:
		return "pong"
	case Message:
		return "message"
	case Upgrade:
		return "upgrade"
	case Noop:
		return "noop"
	default:
		return "unknown"
	}
}

// ProbePayload is the fixed payload that distinguishes a probe Ping/Pong
// (used during the polling→WebSocket upgrade handshake, spec.md §4.4.1)
// from a regular heartbeat Ping/Pong.
const ProbePayload = "probe"

// Packet is a single Engine.IO frame. Binary reports whether Data should be
// transported as a raw binary frame (WebSocket binary frame, or base64 /
// length-prefixed binary envelope on polling) rather than as UTF-8 text
// appended to the type digit. Only Message packets are ever Binary.
type Packet struct {
	Type   Type
	Data   []byte
	Binary bool
}

// NewMessage builds a text Message packet.
func NewMessage(data string) *Packet {
	return &Packet{Type: Message, Data: []byte(data)}
}

// NewBinary builds a binary Message packet.
func NewBinary(data []byte) *Packet {
	return &Packet{Type: Message, Data: data, Binary: true}
}

// OpenPacket is the JSON body of the Open packet (spec.md §3).
type OpenPacket struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload"`
}
