package protocol

import (
	"errors"
	"testing"
)

func TestDecodeRoutesByType(t *testing.T) {
	v, err := Decode([]byte(`{"type":"MULTI_BLOCK_CHANGE","cx":2,"cz":-1,"records":[{"x":1,"y":2,"z":3,"block":16}]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	m, ok := v.(*MultiBlockChangeMsg)
	if !ok {
		t.Fatalf("unexpected type %T", v)
	}
	if m.CX != 2 || m.CZ != -1 || len(m.Records) != 1 || m.Records[0].Block != 16 {
		t.Fatalf("decoded %+v", m)
	}

	v, err = Decode([]byte(`{"type":"POSITION","x":1.5,"y":70,"z":-2,"yaw":45}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p := v.(*PositionMsg); p.X != 1.5 || p.Yaw != 45 {
		t.Fatalf("decoded %+v", p)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"WAT"}`)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if _, err := Decode([]byte(`{"type":"HELLO","protocol_version":"7.0"}`)); !errors.Is(err, ErrVersion) {
		t.Fatalf("expected ErrVersion, got %v", err)
	}
	if _, err := Decode([]byte(`{`)); err == nil {
		t.Fatalf("expected syntax error")
	}
	if _, err := Decode([]byte(`{"type":"BLOCK_CHANGE","x":"a"}`)); err == nil {
		t.Fatalf("expected field error")
	}
}

func TestCompatible(t *testing.T) {
	for v, want := range map[string]bool{"": true, "0.1": true, "0.9": true, "1.0": false} {
		if got := Compatible(v); got != want {
			t.Fatalf("Compatible(%q)=%v want %v", v, got, want)
		}
	}
}
