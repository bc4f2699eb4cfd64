package packet

import "errors"

// errPayloadTooLarge is returned as-is by DecodePayload; callers in package
// eio recognise it with IsPayloadTooLarge. packet itself stays free of a
// dependency on sioerr so it can be reused (and tested) standalone.
var errPayloadTooLarge = errors.New("engine.io: payload exceeds max_payload")

// IsPayloadTooLarge reports whether err is the payload-too-large sentinel
// produced by DecodePayload.
func IsPayloadTooLarge(err error) bool {
	return errors.Is(err, errPayloadTooLarge)
}

// Codec encodes and decodes Engine.IO packets and polling payload batches
// for one protocol revision (v3 or v4).
type Codec interface {
	Protocol() int
	EncodePacket(p *Packet, supportsBinary bool) (data []byte, isBinaryFrame bool, err error)
	DecodePacket(data []byte, isBinaryFrame bool) (*Packet, error)
}
