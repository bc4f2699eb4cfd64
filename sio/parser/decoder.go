package parser

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Decoder reassembles Packets from text header frames and the binary
// attachment frames that follow a BinaryEvent/BinaryAck header, grounded on
// the teacher's parsers/socket/parser/decoder.go. A Decoder is stateful
// across exactly one in-flight binary packet; it must not be shared between
// connections.
type Decoder struct {
	pending     *Packet
	buffers     [][]byte
	reconstruct func(*Packet, [][]byte) *Packet
}

// NewDecoder returns a ready-to-use Decoder.
func NewDecoder() *Decoder {
	return &Decoder{reconstruct: ReconstructPacket}
}

// AddString feeds a text header frame. It returns a completed Packet
// immediately unless the header announces attachments, in which case the
// Decoder waits for that many AddBinary calls before returning one.
func (d *Decoder) AddString(header string) (*Packet, error) {
	if d.pending != nil {
		return nil, errors.New("socket.io: text frame received while binary attachments are pending")
	}
	p, err := decodeString(header)
	if err != nil {
		return nil, err
	}
	if p.Type != BinaryEvent && p.Type != BinaryAck {
		return p, nil
	}
	if p.Attachments == 0 {
		return d.reconstruct(p, nil), nil
	}
	d.pending = p
	d.buffers = nil
	return nil, nil
}

// AddBinary feeds one attachment frame. It returns the completed Packet
// once every announced attachment has arrived.
func (d *Decoder) AddBinary(buf []byte) (*Packet, error) {
	if d.pending == nil {
		return nil, errors.New("socket.io: binary frame received with no pending packet")
	}
	d.buffers = append(d.buffers, buf)
	if len(d.buffers) < d.pending.Attachments {
		return nil, nil
	}
	p := d.reconstruct(d.pending, d.buffers)
	d.pending = nil
	d.buffers = nil
	return p, nil
}

func decodeString(s string) (*Packet, error) {
	if len(s) == 0 {
		return nil, errors.New("socket.io: empty packet")
	}
	i := 0
	typeDigit := s[i] - '0'
	if typeDigit > byte(BinaryAck) {
		return nil, errors.New("socket.io: unknown packet type")
	}
	p := &Packet{Type: PacketType(typeDigit), Nsp: "/"}
	i++

	if p.Type == BinaryEvent || p.Type == BinaryAck {
		dash := strings.IndexByte(s[i:], '-')
		if dash < 0 {
			return nil, errors.New("socket.io: missing attachment count")
		}
		n, err := strconv.Atoi(s[i : i+dash])
		if err != nil {
			return nil, err
		}
		p.Attachments = n
		i += dash + 1
	}

	if i < len(s) && s[i] == '/' {
		if comma := strings.IndexByte(s[i:], ','); comma >= 0 {
			p.Nsp = s[i : i+comma]
			i += comma + 1
		} else {
			p.Nsp = s[i:]
			return p, nil
		}
	}

	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > start {
		id, err := strconv.ParseInt(s[start:i], 10, 64)
		if err != nil {
			return nil, err
		}
		p.ID = &id
	}

	if i < len(s) {
		var data any
		if err := json.Unmarshal([]byte(s[i:]), &data); err != nil {
			return nil, err
		}
		p.Data = data
	}

	return p, nil
}
