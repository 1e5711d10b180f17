package scnet

import (
	"bytes"
	"testing"

	"github.com/mohsenil85/imbolc-engine/pkg/control"
)

func TestEncodeDecodeMessage_RoundTrips(t *testing.T) {
	t.Parallel()
	msg := control.Message{
		Address: "/s_new",
		Args: []control.Atom{
			control.String("imbolc_osc"),
			control.Int(10),
			control.Float(440.5),
			control.Blob([]byte{1, 2, 3}),
		},
	}

	encoded, err := encodeMessage(msg)
	if err != nil {
		t.Fatalf("encodeMessage: %v", err)
	}

	decoded, err := decodeMessage(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("decodeMessage: %v", err)
	}
	if decoded.Address != msg.Address {
		t.Errorf("address = %q, want %q", decoded.Address, msg.Address)
	}
	if len(decoded.Args) != len(msg.Args) {
		t.Fatalf("got %d args, want %d", len(decoded.Args), len(msg.Args))
	}
	if decoded.Args[0].S != "imbolc_osc" {
		t.Errorf("arg0 = %+v, want string imbolc_osc", decoded.Args[0])
	}
	if decoded.Args[1].I != 10 {
		t.Errorf("arg1 = %+v, want int 10", decoded.Args[1])
	}
	if decoded.Args[2].F != 440.5 {
		t.Errorf("arg2 = %+v, want float 440.5", decoded.Args[2])
	}
	if !bytes.Equal(decoded.Args[3].B, []byte{1, 2, 3}) {
		t.Errorf("arg3 = %+v, want blob [1 2 3]", decoded.Args[3])
	}
}

func TestDecodeMessage_NoArgs(t *testing.T) {
	t.Parallel()
	msg := control.Message{Address: "/status"}
	encoded, err := encodeMessage(msg)
	if err != nil {
		t.Fatalf("encodeMessage: %v", err)
	}
	decoded, err := decodeMessage(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("decodeMessage: %v", err)
	}
	if decoded.Address != "/status" || len(decoded.Args) != 0 {
		t.Errorf("got %+v, want empty-arg /status message", decoded)
	}
}

func TestDecodeMessage_TruncatedInputErrors(t *testing.T) {
	t.Parallel()
	encoded, err := encodeMessage(control.Message{Address: "/s_new", Args: []control.Atom{control.Int(1)}})
	if err != nil {
		t.Fatalf("encodeMessage: %v", err)
	}
	_, err = decodeMessage(bytes.NewReader(encoded[:len(encoded)-2]))
	if err == nil {
		t.Fatal("expected an error decoding truncated input")
	}
}

func TestReadAtom_UnknownKindErrors(t *testing.T) {
	t.Parallel()
	_, err := readAtom(bytes.NewReader([]byte{99}))
	if err == nil {
		t.Fatal("expected an error for an unknown atom kind")
	}
}
