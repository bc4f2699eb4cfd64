package parser

import (
	"reflect"
	"testing"
)

func int64p(v int64) *int64 { return &v }

func TestEncodeDecodeEventRoundTrip(t *testing.T) {
	p := &Packet{Type: Event, Nsp: "/chat", Data: []any{"message", "hello"}, ID: int64p(7)}
	enc := Encoder{}
	header, attachments := enc.Encode(p)
	if attachments != nil {
		t.Fatalf("non-binary packet should produce no attachments, got %d", len(attachments))
	}

	got, err := decodeString(header)
	if err != nil {
		t.Fatalf("decodeString: %v", err)
	}
	if got.Type != Event || got.Nsp != "/chat" || got.ID == nil || *got.ID != 7 {
		t.Fatalf("decoded packet mismatch: %+v", got)
	}
}

func TestEncodeDecodeDefaultNamespace(t *testing.T) {
	p := &Packet{Type: Connect, Nsp: "/"}
	header, _ := Encoder{}.Encode(p)
	if header != "0" {
		t.Fatalf("default-namespace header = %q, want %q", header, "0")
	}
	got, err := decodeString(header)
	if err != nil {
		t.Fatalf("decodeString: %v", err)
	}
	if got.Nsp != "/" {
		t.Fatalf("Nsp = %q, want %q", got.Nsp, "/")
	}
}

func TestBinaryEventRoundTripThroughDecoder(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	p := &Packet{Type: Event, Nsp: "/", Data: []any{"upload", payload}}

	header, attachments := Encoder{}.Encode(p)
	if len(attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(attachments))
	}

	dec := NewDecoder()
	completed, err := dec.AddString(header)
	if err != nil {
		t.Fatalf("AddString: %v", err)
	}
	if completed != nil {
		t.Fatal("packet should not complete before attachments arrive")
	}

	completed, err = dec.AddBinary(attachments[0])
	if err != nil {
		t.Fatalf("AddBinary: %v", err)
	}
	if completed == nil {
		t.Fatal("packet should complete once its one attachment arrives")
	}
	if completed.Type != Event {
		t.Fatalf("reconstructed type = %v, want Event", completed.Type)
	}
	args, ok := completed.Data.([]any)
	if !ok || len(args) != 2 {
		t.Fatalf("reconstructed data shape unexpected: %#v", completed.Data)
	}
	got, ok := args[1].([]byte)
	if !ok || !reflect.DeepEqual(got, payload) {
		t.Fatalf("reconstructed payload = %#v, want %#v", args[1], payload)
	}
}

func TestHasBinaryNested(t *testing.T) {
	if !HasBinary(map[string]any{"a": []any{1, []byte("x")}}) {
		t.Fatal("nested []byte should be detected")
	}
	if HasBinary([]any{"plain", 1, map[string]any{"a": 1}}) {
		t.Fatal("non-binary structure should not be detected as binary")
	}
}

func TestMsgpackCodecRoundTrip(t *testing.T) {
	p := &Packet{Type: Event, Nsp: "/", Data: []any{"greet", []byte("hi")}, ID: int64p(3)}
	codec := MsgpackCodec{}
	data, err := codec.Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != Event || got.ID == nil || *got.ID != 3 {
		t.Fatalf("decoded packet mismatch: %+v", got)
	}
}
