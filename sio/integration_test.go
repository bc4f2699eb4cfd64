package sio

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brightloom/sio/eio"
)

func startTestServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	s := New(eio.WithPingInterval(time.Hour), eio.WithPingTimeout(time.Hour))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, s
}

func engineHandshake(t *testing.T, baseURL string) string {
	t.Helper()
	resp, err := http.Get(baseURL + "/?EIO=4&transport=polling")
	if err != nil {
		t.Fatalf("handshake GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	const marker = `"sid":"`
	i := strings.Index(string(body), marker)
	if i < 0 {
		t.Fatalf("no sid in open packet: %q", body)
	}
	rest := string(body)[i+len(marker):]
	return rest[:strings.Index(rest, `"`)]
}

func pollingPOST(t *testing.T, baseURL, sid, body string) {
	t.Helper()
	resp, err := http.Post(baseURL+"/?EIO=4&transport=polling&sid="+sid, "text/plain", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST status = %d: %s", resp.StatusCode, b)
	}
}

func pollingGET(t *testing.T, baseURL, sid string) string {
	t.Helper()
	resp, err := http.Get(baseURL + "/?EIO=4&transport=polling&sid=" + sid)
	if err != nil {
		t.Fatalf("poll GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

// pollingGETWithTimeout polls with a bounded context instead of blocking
// forever, for asserting that nothing was delivered within the window.
func pollingGETWithTimeout(t *testing.T, baseURL, sid string, timeout time.Duration) (body string, delivered bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/?EIO=4&transport=polling&sid="+sid, nil)
	if err != nil {
		t.Fatalf("build GET: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return string(data), true
}

// TestServerHandshakeAndConnectAck drives a full Engine.IO handshake
// followed by a Socket.IO CONNECT on the default namespace, and checks that
// the server replies with a CONNECT ack carrying a Socket.IO-level sid
// distinct from the Engine.IO session id.
func TestServerHandshakeAndConnectAck(t *testing.T) {
	srv, s := startTestServer(t)

	var connected *Socket
	s.On("connection", func(sock *Socket) { connected = sock })

	sid := engineHandshake(t, srv.URL)
	pollingPOST(t, srv.URL, sid, "40")

	got := pollingGET(t, srv.URL, sid)
	if !strings.HasPrefix(got, "40{") {
		t.Fatalf("poll body = %q, want a Socket.IO CONNECT ack (leading \"40{\")", got)
	}
	if !strings.Contains(got, `"sid"`) {
		t.Fatalf("CONNECT ack missing sid: %q", got)
	}
	if connected == nil {
		t.Fatal("connection handler was never invoked")
	}
}

// TestServerBroadcastReachesPolledSocket drives a connect, then has the
// server Emit an event to the namespace; the client observes it on its next
// long-poll GET.
func TestServerBroadcastReachesPolledSocket(t *testing.T) {
	srv, s := startTestServer(t)

	connected := make(chan *Socket, 1)
	s.On("connection", func(sock *Socket) { connected <- sock })

	sid := engineHandshake(t, srv.URL)
	pollingPOST(t, srv.URL, sid, "40")
	_ = pollingGET(t, srv.URL, sid) // drain the CONNECT ack

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("connection handler was never invoked")
	}

	if err := s.Of("/").Emit("greet", "hello"); err != nil {
		t.Fatalf("Namespace.Emit: %v", err)
	}

	got := pollingGET(t, srv.URL, sid)
	if !strings.Contains(got, "greet") || !strings.Contains(got, "hello") {
		t.Fatalf("poll body = %q, want it to contain the broadcast event", got)
	}
}

// TestServerRoomBroadcastOnlyReachesRoomMembers is scenario S5 from spec.md
// §8: three sockets, two rooms — A and B join r1, C joins r2 — and a
// To(r1) emit from A reaches only B (A is the emitter, excluded by To; C
// never joined r1).
func TestServerRoomBroadcastOnlyReachesRoomMembers(t *testing.T) {
	srv, s := startTestServer(t)

	connected := make(chan *Socket, 3)
	s.On("connection", func(sock *Socket) { connected <- sock })

	sidA := engineHandshake(t, srv.URL)
	pollingPOST(t, srv.URL, sidA, "40")
	_ = pollingGET(t, srv.URL, sidA) // drain the CONNECT ack

	sidB := engineHandshake(t, srv.URL)
	pollingPOST(t, srv.URL, sidB, "40")
	_ = pollingGET(t, srv.URL, sidB)

	sidC := engineHandshake(t, srv.URL)
	pollingPOST(t, srv.URL, sidC, "40")
	_ = pollingGET(t, srv.URL, sidC)

	var a, b, c *Socket
	for i := 0; i < 3; i++ {
		select {
		case sock := <-connected:
			switch sock.cl.session.ID {
			case sidA:
				a = sock
			case sidB:
				b = sock
			case sidC:
				c = sock
			}
		case <-time.After(time.Second):
			t.Fatal("not all three connections were observed")
		}
	}
	if a == nil || b == nil || c == nil {
		t.Fatal("failed to identify all three sockets by their engine sid")
	}

	a.Join("r1")
	b.Join("r1")
	c.Join("r2")

	if err := a.To("r1").Emit("x", float64(1)); err != nil {
		t.Fatalf("To(r1).Emit: %v", err)
	}

	gotB := pollingGET(t, srv.URL, sidB)
	if !strings.Contains(gotB, `"x"`) || !strings.Contains(gotB, "1") {
		t.Fatalf("B poll body = %q, want it to contain the room emit", gotB)
	}

	if _, delivered := pollingGETWithTimeout(t, srv.URL, sidC, 150*time.Millisecond); delivered {
		t.Fatal("C should not have received the room-scoped emit (not a member of r1)")
	}
}
