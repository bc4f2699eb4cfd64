package eio

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brightloom/sio/eio/packet"
)

func startTestEngine(t *testing.T, onOpen OpenHandler) (*httptest.Server, *Engine) {
	t.Helper()
	cfg := testConfig()
	cfg.PingInterval = time.Hour
	cfg.PingTimeout = time.Hour
	e := New(cfg, onOpen)
	srv := httptest.NewServer(http.HandlerFunc(e.ServeHTTP))
	t.Cleanup(srv.Close)
	return srv, e
}

// extractSID pulls "sid" out of an Engine.IO v4 Open packet body, e.g.
// `0{"sid":"abc",...}`.
func extractSID(t *testing.T, body string) string {
	t.Helper()
	const marker = `"sid":"`
	i := strings.Index(body, marker)
	if i < 0 {
		t.Fatalf("no sid in open packet: %q", body)
	}
	rest := body[i+len(marker):]
	j := strings.Index(rest, `"`)
	if j < 0 {
		t.Fatalf("malformed sid in open packet: %q", body)
	}
	return rest[:j]
}

// TestPollingHandshakeOpensSession exercises S1 from spec.md §8: a fresh GET
// with no sid returns an Open packet carrying a new session id.
func TestPollingHandshakeOpensSession(t *testing.T) {
	srv, e := startTestEngine(t, nil)

	resp, err := http.Get(srv.URL + "/?EIO=4&transport=polling")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", resp.StatusCode, body)
	}
	if !strings.HasPrefix(string(body), "0{") {
		t.Fatalf("body = %q, want an Open packet (leading '0{')", body)
	}
	sid := extractSID(t, string(body))
	if e.ClientsCount() != 1 {
		t.Fatalf("ClientsCount() = %d, want 1", e.ClientsCount())
	}
	if _, ok := e.Session(sid); !ok {
		t.Fatalf("session %s not registered on the engine", sid)
	}
}

// TestPollingPostThenGetDeliversMessage exercises S2: a POSTed Message
// packet reaches the session's message handler.
func TestPollingPostThenGetDeliversMessage(t *testing.T) {
	received := make(chan string, 1)
	srv, _ := startTestEngine(t, func(s *Session) {
		s.SetMessageHandler(func(p *packet.Packet) { received <- string(p.Data) })
	})

	resp, err := http.Get(srv.URL + "/?EIO=4&transport=polling")
	if err != nil {
		t.Fatalf("handshake GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	sid := extractSID(t, string(body))

	postResp, err := http.Post(srv.URL+"/?EIO=4&transport=polling&sid="+sid, "text/plain", strings.NewReader("4hello"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	postBody, _ := io.ReadAll(postResp.Body)
	postResp.Body.Close()
	if postResp.StatusCode != http.StatusOK || string(postBody) != "ok" {
		t.Fatalf("POST response = %d %q, want 200 %q", postResp.StatusCode, postBody, "ok")
	}

	select {
	case got := <-received:
		if got != "hello" {
			t.Fatalf("message handler got %q, want %q", got, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("POSTed message never reached the session's message handler")
	}
}

// TestPollingOverlappingPollClosesSessionWithMultipleHTTPPollingError
// exercises S3: a second GET against a sid whose first GET is still parked
// is rejected immediately, and the protocol violation closes the session
// out from under the first (now-stranded) poll too.
func TestPollingOverlappingPollClosesSessionWithMultipleHTTPPollingError(t *testing.T) {
	srv, e := startTestEngine(t, nil)

	resp, err := http.Get(srv.URL + "/?EIO=4&transport=polling")
	if err != nil {
		t.Fatalf("handshake GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	sid := extractSID(t, string(body))

	firstDone := make(chan *http.Response, 1)
	go func() {
		r, err := http.Get(srv.URL + "/?EIO=4&transport=polling&sid=" + sid)
		if err != nil {
			t.Error(err)
			return
		}
		firstDone <- r
	}()
	// Give the first GET time to park on the session before the second
	// one races it for the receiver lock.
	time.Sleep(50 * time.Millisecond)

	secondResp, err := http.Get(srv.URL + "/?EIO=4&transport=polling&sid=" + sid)
	if err != nil {
		t.Fatalf("second GET: %v", err)
	}
	defer secondResp.Body.Close()
	if secondResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("overlapping poll status = %d, want 400", secondResp.StatusCode)
	}

	select {
	case first := <-firstDone:
		defer first.Body.Close()
		if first.StatusCode != http.StatusBadRequest {
			t.Fatalf("parked poll, after being overtaken, status = %d, want 400", first.StatusCode)
		}
	case <-time.After(time.Second):
		t.Fatal("parked poll never returned after the overlap closed its session")
	}

	if _, ok := e.Session(sid); ok {
		t.Fatal("session should be closed (and dropped) after an overlapping poll")
	}
}

// TestWebSocketUpgradeCommitsAndWakesParkedPoll exercises S4: a client opens
// a probe WebSocket alongside an established polling session, completes the
// Ping(probe)/Pong(probe)/Upgrade handshake, and the session ends up served
// over WebSocket — with any poll still parked on the old transport woken by
// a Noop rather than left hanging.
func TestWebSocketUpgradeCommitsAndWakesParkedPoll(t *testing.T) {
	srv, e := startTestEngine(t, nil)

	resp, err := http.Get(srv.URL + "/?EIO=4&transport=polling")
	if err != nil {
		t.Fatalf("handshake GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	sid := extractSID(t, string(body))

	pollDone := make(chan *http.Response, 1)
	go func() {
		r, err := http.Get(srv.URL + "/?EIO=4&transport=polling&sid=" + sid)
		if err != nil {
			t.Error(err)
			return
		}
		pollDone <- r
	}()
	time.Sleep(50 * time.Millisecond)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?EIO=4&transport=websocket&sid=" + sid
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial probe: %v", err)
	}
	defer conn.Close()

	select {
	case r := <-pollDone:
		defer r.Body.Close()
		pollBody, _ := io.ReadAll(r.Body)
		if r.StatusCode != http.StatusOK || string(pollBody) != "6" {
			t.Fatalf("parked poll = %d %q, want 200 %q (Noop)", r.StatusCode, pollBody, "6")
		}
	case <-time.After(time.Second):
		t.Fatal("parked poll was never woken by the upgrade probe's Noop")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("2probe")); err != nil {
		t.Fatalf("write probe ping: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read probe pong: %v", err)
	}
	if string(msg) != "3probe" {
		t.Fatalf("probe response = %q, want %q", msg, "3probe")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("5")); err != nil {
		t.Fatalf("write upgrade commit: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		sess, ok := e.Session(sid)
		if !ok {
			t.Fatal("session vanished during upgrade")
		}
		if sess.Kind() == KindWebSocket {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session never committed to WebSocket")
		}
		time.Sleep(time.Millisecond)
	}

	sess, _ := e.Session(sid)
	if err := sess.Send(&packet.Packet{Type: packet.Message, Data: []byte("hi")}); err != nil {
		t.Fatalf("Send after upgrade: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read post-upgrade message: %v", err)
	}
	if string(msg) != "4hi" {
		t.Fatalf("post-upgrade message = %q, want %q", msg, "4hi")
	}
}
