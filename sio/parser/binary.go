package parser

// Placeholder replaces a []byte value inside Packet.Data when a packet is
// deconstructed for binary transport: the client reassembles it from the
// Num-th attachment frame that follows, per the Socket.IO binary protocol
// (spec.md §4.2), grounded on the teacher's parsers/socket/parser/binary.go.
type Placeholder struct {
	Placeholder bool `json:"_placeholder"`
	Num         int  `json:"num"`
}

// IsBinary reports whether v is itself a raw binary payload.
func IsBinary(v any) bool {
	_, ok := v.([]byte)
	return ok
}

// HasBinary reports whether v, or anything reachable inside it through
// slices/maps, is a []byte.
func HasBinary(v any) bool {
	switch val := v.(type) {
	case []byte:
		return true
	case []any:
		for _, e := range val {
			if HasBinary(e) {
				return true
			}
		}
	case map[string]any:
		for _, e := range val {
			if HasBinary(e) {
				return true
			}
		}
	}
	return false
}

// DeconstructPacket extracts every []byte reachable from p.Data, replacing
// each with a Placeholder, and switches the packet's type to its binary
// counterpart (Event -> BinaryEvent, Ack -> BinaryAck). The original packet
// is left untouched; the returned one is ready for the JSON text encoder,
// with buffers sent as separate attachment frames immediately
// after it.
func DeconstructPacket(p *Packet) (*Packet, [][]byte) {
	var buffers [][]byte
	data := deconstructData(p.Data, &buffers)

	out := *p
	out.Data = data
	out.Attachments = len(buffers)
	switch p.Type {
	case Event:
		out.Type = BinaryEvent
	case Ack:
		out.Type = BinaryAck
	}
	return &out, buffers
}

func deconstructData(v any, buffers *[][]byte) any {
	switch val := v.(type) {
	case []byte:
		num := len(*buffers)
		*buffers = append(*buffers, val)
		return Placeholder{Placeholder: true, Num: num}
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deconstructData(e, buffers)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = deconstructData(e, buffers)
		}
		return out
	default:
		return v
	}
}

// ReconstructPacket is the inverse of DeconstructPacket: it walks p.Data
// substituting each Placeholder for the matching buffer and restores the
// packet's non-binary type.
func ReconstructPacket(p *Packet, buffers [][]byte) *Packet {
	out := *p
	out.Data = reconstructData(p.Data, buffers)
	out.Attachments = 0
	switch p.Type {
	case BinaryEvent:
		out.Type = Event
	case BinaryAck:
		out.Type = Ack
	}
	return &out
}

func reconstructData(v any, buffers [][]byte) any {
	switch val := v.(type) {
	case Placeholder:
		if val.Num >= 0 && val.Num < len(buffers) {
			return buffers[val.Num]
		}
		return nil
	case map[string]any:
		if ph, ok := parsePlaceholder(val); ok {
			if ph.Num >= 0 && ph.Num < len(buffers) {
				return buffers[ph.Num]
			}
			return nil
		}
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = reconstructData(e, buffers)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = reconstructData(e, buffers)
		}
		return out
	default:
		return v
	}
}

// parsePlaceholder recognizes a placeholder that has round-tripped through
// JSON and come back as a generic map instead of a Placeholder value.
func parsePlaceholder(m map[string]any) (Placeholder, bool) {
	flag, ok := m["_placeholder"].(bool)
	if !ok || !flag {
		return Placeholder{}, false
	}
	switch n := m["num"].(type) {
	case float64:
		return Placeholder{Placeholder: true, Num: int(n)}, true
	case int:
		return Placeholder{Placeholder: true, Num: n}, true
	default:
		return Placeholder{}, false
	}
}
