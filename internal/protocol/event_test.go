package protocol

import (
	"errors"
	"testing"
)

func TestEncodeProducesWireFrames(t *testing.T) {
	data, err := Encode(PageChanged(3))
	if err != nil {
		t.Fatalf("encode page changed failed: %v", err)
	}
	if string(data) != `{"event":"page-flip","page":3}` {
		t.Fatalf("unexpected page-flip frame %s", data)
	}
	data, err = Encode(ResetToStart())
	if err != nil {
		t.Fatalf("encode reset failed: %v", err)
	}
	if string(data) != `{"event":"reset-page"}` {
		t.Fatalf("unexpected reset-page frame %s", data)
	}
}

func TestEncodeZeroPageKeepsPageField(t *testing.T) {
	data, err := Encode(PageChanged(0))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if string(data) != `{"event":"page-flip","page":0}` {
		t.Fatalf("expected page 0 to be encoded, got %s", data)
	}
}

func TestEncodeRejectsNegativePage(t *testing.T) {
	if _, err := Encode(PageChanged(-1)); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame, got %v", err)
	}
}

func TestDecodeAcceptsValidFrames(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"page-flip","page":12}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if ev != PageChanged(12) {
		t.Fatalf("expected PageChanged(12), got %s", ev)
	}
	ev, err = Decode([]byte(`{"event":"reset-page"}`))
	if err != nil {
		t.Fatalf("decode reset failed: %v", err)
	}
	if ev.Kind != KindResetToStart {
		t.Fatalf("expected reset, got %s", ev)
	}
}

func TestDecodeRejectsInvalidFrames(t *testing.T) {
	cases := map[string]string{
		"not json":           `page-flip`,
		"missing event":      `{"page":1}`,
		"unknown event":      `{"event":"zoom","page":1}`,
		"negative page":      `{"event":"page-flip","page":-1}`,
		"fractional page":    `{"event":"page-flip","page":1.5}`,
		"string page":        `{"event":"page-flip","page":"2"}`,
		"flip without page":  `{"event":"page-flip"}`,
		"reset with payload": `{"event":"reset-page","page":4}`,
	}
	for name, raw := range cases {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrInvalidFrame) {
			t.Fatalf("%s: expected ErrInvalidFrame, got %v", name, err)
		}
	}
}
