package netmsg

import (
	"bytes"
	"errors"
	"testing"
)

type testKind uint32

const (
	kindA testKind = iota
	kindB
)

func TestPushPopRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		push func(*Message[testKind])
		pop  func(*testing.T, *Message[testKind])
	}{
		{
			name: "int32",
			push: func(m *Message[testKind]) { Push(m, int32(7)) },
			pop: func(t *testing.T, m *Message[testKind]) {
				var v int32
				if err := Pop(m, &v); err != nil {
					t.Fatalf("Pop failed: %v", err)
				}
				if v != 7 {
					t.Errorf("got %d, want 7", v)
				}
			},
		},
		{
			name: "bool",
			push: func(m *Message[testKind]) { Push(m, true) },
			pop: func(t *testing.T, m *Message[testKind]) {
				var v bool
				if err := Pop(m, &v); err != nil {
					t.Fatalf("Pop failed: %v", err)
				}
				if !v {
					t.Errorf("got false, want true")
				}
			},
		},
		{
			name: "fixed array of floats",
			push: func(m *Message[testKind]) { Push(m, [3]float32{1.5, -2.25, 3}) },
			pop: func(t *testing.T, m *Message[testKind]) {
				var v [3]float32
				if err := Pop(m, &v); err != nil {
					t.Fatalf("Pop failed: %v", err)
				}
				want := [3]float32{1.5, -2.25, 3}
				if v != want {
					t.Errorf("got %v, want %v", v, want)
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := New(kindA)
			tc.push(msg)
			if int(msg.Header.Size) != HeaderSize[testKind]()+len(msg.Body) {
				t.Fatalf("header size %d does not track header+body", msg.Header.Size)
			}
			tc.pop(t, msg)
			if len(msg.Body) != 0 {
				t.Errorf("body not drained: %v", msg.Body)
			}
			if int(msg.Header.Size) != HeaderSize[testKind]() {
				t.Errorf("header size not resynced after Pop: %d", msg.Header.Size)
			}
		})
	}
}

func TestPushPopStackOrder(t *testing.T) {
	// Pop must unwind in the reverse order values were Push-ed.
	msg := New(kindB)
	Push(msg, int32(1))
	Push(msg, int32(2))
	Push(msg, int32(3))

	var v int32
	for _, want := range []int32{3, 2, 1} {
		if err := Pop(msg, &v); err != nil {
			t.Fatalf("Pop failed: %v", err)
		}
		if v != want {
			t.Errorf("got %d, want %d", v, want)
		}
	}
}

func TestPopUnderflow(t *testing.T) {
	msg := New(kindA)
	Push(msg, int16(1))

	var v int64
	err := Pop(msg, &v)
	if err == nil {
		t.Fatal("expected ErrDecodeUnderflow, got nil")
	}
	if !errors.Is(err, ErrDecodeUnderflow) {
		t.Errorf("got %v, want ErrDecodeUnderflow", err)
	}
	// A failed Pop must not mutate the body.
	if len(msg.Body) != 2 {
		t.Errorf("body mutated by failed Pop: %v", msg.Body)
	}
}

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	h := MessageHeader[testKind]{Kind: kindB, Size: 42}
	encoded := encodeHeader(h)
	if len(encoded) != HeaderSize[testKind]() {
		t.Fatalf("encoded header length %d != HeaderSize %d", len(encoded), HeaderSize[testKind]())
	}

	decoded, err := decodeHeader[testKind](encoded)
	if err != nil {
		t.Fatalf("decodeHeader failed: %v", err)
	}
	if decoded != h {
		t.Errorf("got %+v, want %+v", decoded, h)
	}
}

func TestNewMessageHasEmptyBody(t *testing.T) {
	msg := New(kindA)
	if msg.Header.Kind != kindA {
		t.Errorf("got kind %v, want kindA", msg.Header.Kind)
	}
	if len(msg.Body) != 0 {
		t.Errorf("new message should have empty body, got %v", msg.Body)
	}
	if int(msg.Header.Size) != HeaderSize[testKind]() {
		t.Errorf("new message size should equal header size, got %d", msg.Header.Size)
	}
}

func TestPushAppendsRawBytes(t *testing.T) {
	msg := New(kindA)
	Push(msg, uint8(0xAB))
	if !bytes.Equal(msg.Body, []byte{0xAB}) {
		t.Errorf("got body %v, want [0xAB]", msg.Body)
	}
}

func TestPushPanicsOnUnsupportedType(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic pushing an unsupported type")
		}
	}()
	msg := New(kindA)
	Push(msg, "not fixed size")
}
