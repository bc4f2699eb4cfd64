package sio

import (
	"crypto/rand"
	"encoding/base64"
	"sync"

	"github.com/brightloom/sio/eio"
	eiopacket "github.com/brightloom/sio/eio/packet"
	"github.com/brightloom/sio/internal/xlog"
	"github.com/brightloom/sio/sio/parser"
	"github.com/brightloom/sio/sioerr"
)

var clientLog = xlog.New("socket:client")

func newSocketID() string {
	buf := make([]byte, 15)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Client multiplexes every Namespace a single Engine.IO session has
// connected to, grounded on the teacher's servers/socket/client.go. Exactly
// one Client exists per eio.Session.
type Client struct {
	server  *Server
	session *eio.Session

	decoder *parser.Decoder

	mu       sync.Mutex
	sockets  map[string]*Socket
	nspOrder []string
}

func newClient(server *Server, session *eio.Session) *Client {
	cl := &Client{
		server:  server,
		session: session,
		decoder: parser.NewDecoder(),
		sockets: make(map[string]*Socket),
	}
	session.SetMessageHandler(cl.onEngineMessage)
	session.OnClose(cl.onSessionClose)
	return cl
}

func (cl *Client) onEngineMessage(ep *eiopacket.Packet) {
	var (
		p   *parser.Packet
		err error
	)
	switch {
	case cl.server.useMsgpack:
		p, err = parser.MsgpackCodec{}.Decode(ep.Data)
	case ep.Binary:
		p, err = cl.decoder.AddBinary(ep.Data)
	default:
		p, err = cl.decoder.AddString(string(ep.Data))
	}
	if err != nil {
		clientLog.Debug("client %s: decode error: %s", cl.session.ID, err)
		return
	}
	if p == nil {
		return
	}
	nsp := p.Nsp
	if nsp == "" {
		nsp = "/"
	}
	cl.server.namespace(nsp).handlePacket(cl, p)
}

func (cl *Client) onSessionClose(reason sioerr.DisconnectReason) {
	cl.mu.Lock()
	sockets := make([]*Socket, 0, len(cl.sockets))
	for _, s := range cl.sockets {
		sockets = append(sockets, s)
	}
	cl.mu.Unlock()
	for _, s := range sockets {
		s.Disconnect(false)
	}
}

func (cl *Client) attach(nsp string, s *Socket) {
	cl.mu.Lock()
	cl.sockets[nsp] = s
	cl.nspOrder = append(cl.nspOrder, nsp)
	cl.mu.Unlock()
}

func (cl *Client) detach(nsp string) {
	cl.mu.Lock()
	delete(cl.sockets, nsp)
	cl.mu.Unlock()
}

func (cl *Client) socketFor(nsp string) (*Socket, bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	s, ok := cl.sockets[nsp]
	return s, ok
}

// sendPacket encodes p and writes it to the underlying Engine.IO session,
// using the msgpack codec (a single binary frame) if UseMsgpackParser was
// set, otherwise the default JSON header plus any split-out binary
// attachment frames.
func (cl *Client) sendPacket(p *parser.Packet) error {
	if cl.server.useMsgpack {
		buf, err := parser.MsgpackCodec{}.Encode(p)
		if err != nil {
			return err
		}
		return cl.session.Send(eiopacket.NewBinary(buf))
	}

	header, attachments := parser.Encoder{}.Encode(p)
	if err := cl.session.Send(eiopacket.NewMessage(header)); err != nil {
		return err
	}
	for _, a := range attachments {
		if err := cl.session.Send(eiopacket.NewBinary(a)); err != nil {
			return err
		}
	}
	return nil
}

func (cl *Client) close(reason sioerr.DisconnectReason) {
	_ = cl.session.Send(&eiopacket.Packet{Type: eiopacket.Close})
	cl.session.Close(reason)
}
