package packet

import (
	"bytes"
	"encoding/base64"
	"errors"
)

// codecV4 implements the Engine.IO protocol v4 wire format (used by
// Engine.IO v4 / Socket.IO v3+ clients), grounded on the teacher's
// parsers/engine/parser/parser-v4.go.
type codecV4 struct{}

// V4 is the protocol-4 packet codec.
var V4 = codecV4{}

func (codecV4) Protocol() int { return 4 }

// EncodePacket returns the wire bytes for p and whether they must be sent
// as a raw binary frame (only possible when supportsBinary is true and p is
// a binary Message packet).
func (codecV4) EncodePacket(p *Packet, supportsBinary bool) ([]byte, bool, error) {
	if !p.Binary {
		buf := make([]byte, 0, len(p.Data)+1)
		buf = append(buf, byte(p.Type))
		buf = append(buf, p.Data...)
		return buf, false, nil
	}
	if supportsBinary {
		return p.Data, true, nil
	}
	// only 'message' packets carry binary, so no type digit is needed: the
	// leading 'b' alone distinguishes it from a text packet.
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(p.Data))+1)
	encoded[0] = 'b'
	base64.StdEncoding.Encode(encoded[1:], p.Data)
	return encoded, false, nil
}

// DecodePacket decodes a single V4 frame. isBinaryFrame indicates the frame
// arrived as a raw binary WebSocket frame (as opposed to polling text).
func (codecV4) DecodePacket(data []byte, isBinaryFrame bool) (*Packet, error) {
	if isBinaryFrame {
		return &Packet{Type: Message, Data: append([]byte(nil), data...), Binary: true}, nil
	}
	if len(data) == 0 {
		return nil, errors.New("empty packet")
	}
	if data[0] == 'b' {
		decoded, err := base64.StdEncoding.DecodeString(string(data[1:]))
		if err != nil {
			return nil, err
		}
		return &Packet{Type: Message, Data: decoded, Binary: true}, nil
	}
	t := Type(data[0])
	if !t.Valid() {
		return nil, errors.New("unknown packet type")
	}
	return &Packet{Type: t, Data: append([]byte(nil), data[1:]...)}, nil
}

const separator = 0x1E

// EncodePayload batches packets into a single V4 polling payload: each
// packet's text encoding joined by the ASCII record separator (spec.md
// §4.1). Binary packets are always base64'd in payload form, so
// hasBinary reports whether the caller should use the octet-stream
// content type even though the body itself is ASCII.
func (codecV4) EncodePayload(packets []*Packet) (data []byte, hasBinary bool, err error) {
	var buf bytes.Buffer
	for i, p := range packets {
		if i > 0 {
			buf.WriteByte(separator)
		}
		enc, _, err := V4.EncodePacket(p, false)
		if err != nil {
			return nil, false, err
		}
		buf.Write(enc)
		if p.Binary {
			hasBinary = true
		}
	}
	return buf.Bytes(), hasBinary, nil
}

// DecodePayload splits a V4 polling payload back into packets, bounding the
// amount of input it will scan by maxPayload (spec.md §4.1 decoder).
func (codecV4) DecodePayload(data []byte, maxPayload int64) ([]*Packet, error) {
	if maxPayload > 0 && int64(len(data)) > maxPayload {
		return nil, errPayloadTooLarge
	}
	if len(data) == 0 {
		return nil, nil
	}
	packets := make([]*Packet, 0, 4)
	for _, chunk := range bytes.Split(data, []byte{separator}) {
		if len(chunk) == 0 {
			continue
		}
		p, err := V4.DecodePacket(chunk, false)
		if err != nil {
			return packets, err
		}
		packets = append(packets, p)
	}
	return packets, nil
}
