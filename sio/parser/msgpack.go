package parser

import "github.com/vmihailenco/msgpack/v5"

// MsgpackCodec is the alternate Socket.IO wire format used by clients that
// opt into socket.io-msgpack-parser instead of the default text+placeholder
// encoding. Because msgpack has a native binary type, a packet's []byte
// payloads travel inline in a single frame; there is no attachment-frame
// dance and no DeconstructPacket step, which is why this codec is a
// standalone pair of functions rather than sharing Encoder/Decoder. Grounded
// on the teacher's go.mod dependency on vmihailenco/msgpack/v5 (also used by
// internal/xtypes for its Set marshaling).
type MsgpackCodec struct{}

// Encode serializes p, including any []byte in p.Data, as a single msgpack
// frame.
func (MsgpackCodec) Encode(p *Packet) ([]byte, error) {
	return msgpack.Marshal(p)
}

// Decode parses a single msgpack frame produced by Encode.
func (MsgpackCodec) Decode(data []byte) (*Packet, error) {
	var p Packet
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
