package mdbtxlog

import (
	"testing"

	"github.com/dbbouncer/mdbclient/mdbmessage"
)

func TestRecordIgnoresNonRedoable(t *testing.T) {
	s := New(10)
	s.Record(mdbmessage.Ping{})
	s.Record(mdbmessage.Quit{})
	if s.Len() != 0 {
		t.Fatalf("expected 0 redoable messages recorded, got %d", s.Len())
	}
}

func TestRecordKeepsRedoable(t *testing.T) {
	s := New(10)
	s.Record(mdbmessage.Query{SQL: "INSERT INTO t VALUES (1)"})
	s.Record(mdbmessage.Query{SQL: "INSERT INTO t VALUES (2)"})
	if s.Len() != 2 {
		t.Fatalf("Len() = %d", s.Len())
	}
	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() returned %d", len(entries))
	}
}

func TestOverflowClearsBufferAndFlipsCanReplay(t *testing.T) {
	s := New(2)
	s.Record(mdbmessage.Query{SQL: "a"})
	s.Record(mdbmessage.Query{SQL: "b"})
	s.Record(mdbmessage.Query{SQL: "c"}) // exceeds maxEntries=2

	if s.CanReplay() {
		t.Fatal("expected CanReplay false after overflow")
	}
	if s.Len() != 0 {
		t.Fatalf("expected buffer cleared on overflow, got %d entries", s.Len())
	}
}

func TestClearResetsOverflowAndEntries(t *testing.T) {
	s := New(1)
	s.Record(mdbmessage.Query{SQL: "a"})
	s.Record(mdbmessage.Query{SQL: "b"}) // overflow
	s.Clear()
	if !s.CanReplay() {
		t.Fatal("expected CanReplay true after Clear")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty after Clear, got %d", s.Len())
	}
}

func TestDefaultMaxBufferedUsedWhenNonPositive(t *testing.T) {
	s := New(0)
	if s.maxEntries != DefaultMaxBuffered {
		t.Fatalf("maxEntries = %d, want %d", s.maxEntries, DefaultMaxBuffered)
	}
}
