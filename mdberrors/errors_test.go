package mdberrors

import (
	"errors"
	"testing"
)

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	e := Connection("dialing host", cause)
	if !errors.Is(e, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	if e.SQLState != "08000" {
		t.Fatalf("SQLState = %q", e.SQLState)
	}
}

func TestConnectionFatalSetsMustReconnect(t *testing.T) {
	e := ConnectionFatal("socket write failed", nil)
	if !e.MustReconnect {
		t.Error("expected MustReconnect true")
	}
	if e.Kind != KindConnection {
		t.Fatalf("Kind = %v", e.Kind)
	}
}

func TestPacketTooBig(t *testing.T) {
	e := PacketTooBig(16777216, true)
	if !e.MustReconnect {
		t.Error("expected MustReconnect true when write pointer already advanced")
	}
	e2 := PacketTooBig(16777216, false)
	if e2.MustReconnect {
		t.Error("expected MustReconnect false when safe to retry")
	}
}

func TestCannotDecodeMessage(t *testing.T) {
	e := CannotDecode("BLOB", "string")
	want := "Data type BLOB cannot be decoded as string"
	if e.Message != want {
		t.Fatalf("Message = %q, want %q", e.Message, want)
	}
	if e.Kind != KindProtocolData {
		t.Fatalf("Kind = %v", e.Kind)
	}
}

func TestServerDefaultsSQLStateWhenMalformed(t *testing.T) {
	e := Server("", 1064, "syntax error")
	if e.SQLState != "HY000" {
		t.Fatalf("SQLState = %q, want fallback HY000", e.SQLState)
	}
	e2 := Server("42000", 1064, "syntax error")
	if e2.SQLState != "42000" {
		t.Fatalf("SQLState = %q", e2.SQLState)
	}
}

func TestIsFatalCodes(t *testing.T) {
	for _, code := range []uint16{1927, 2013, 2006, 1053, 1158, 1159, 1160, 1161} {
		if !IsFatal(code) {
			t.Errorf("expected code %d to be fatal", code)
		}
	}
	if IsFatal(1062) { // ER_DUP_ENTRY
		t.Error("ER_DUP_ENTRY should not be fatal")
	}
}
