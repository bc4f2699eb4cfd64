package parser

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Encoder turns a Packet into wire frames: one text frame, plus one binary
// frame per attachment when the packet carries []byte data. Grounded on the
// teacher's parsers/socket/parser/encoder.go.
type Encoder struct{}

// Encode returns the text header frame and any binary attachment frames
// that must follow it, in order.
func (Encoder) Encode(p *Packet) (header string, attachments [][]byte) {
	if HasBinary(p.Data) {
		bp, buffers := DeconstructPacket(p)
		return encodeAsString(bp), buffers
	}
	return encodeAsString(p), nil
}

// encodeAsString renders "<type><attachments>-<nsp>,<id><json>" per
// spec.md §4.2, omitting each optional segment when absent.
func encodeAsString(p *Packet) string {
	var b strings.Builder
	b.WriteByte(byte('0' + int(p.Type)))

	if p.Type == BinaryEvent || p.Type == BinaryAck {
		b.WriteString(strconv.Itoa(p.Attachments))
		b.WriteByte('-')
	}

	if p.Nsp != "" && p.Nsp != "/" {
		b.WriteString(p.Nsp)
		b.WriteByte(',')
	}

	if p.ID != nil {
		b.WriteString(strconv.FormatInt(*p.ID, 10))
	}

	if p.Data != nil {
		data, err := json.Marshal(p.Data)
		if err == nil {
			b.Write(data)
		}
	}

	return b.String()
}
