package mdbmessage

import (
	"bytes"
	"testing"

	"github.com/dbbouncer/mdbclient/mdbbuffer"
)

func encode(m Message) []byte {
	w := mdbbuffer.NewWriter()
	m.Encode(w)
	return w.Bytes()
}

func TestQueryEncode(t *testing.T) {
	got := encode(Query{SQL: "SELECT 1"})
	want := append([]byte{ComQuery}, []byte("SELECT 1")...)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if !(Query{SQL: "x"}).Redoable() {
		t.Error("Query should be redoable")
	}
}

func TestPingAndQuitNotRedoable(t *testing.T) {
	if (Ping{}).Redoable() || (Quit{}).Redoable() {
		t.Error("Ping/Quit must not be redoable")
	}
	if encode(Ping{})[0] != ComPing {
		t.Error("wrong ping command byte")
	}
	if encode(Quit{})[0] != ComQuit {
		t.Error("wrong quit command byte")
	}
}

func TestStmtCloseEncode(t *testing.T) {
	got := encode(StmtClose{StatementID: 7})
	if got[0] != ComStmtClose {
		t.Fatalf("wrong command byte %x", got[0])
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 bytes, got %d", len(got))
	}
}

func TestDescriptionTruncatesLongSQL(t *testing.T) {
	long := string(make([]byte, 200))
	d := Query{SQL: long}.Description()
	if len(d) > len("query: ")+83 {
		t.Fatalf("description not truncated, len=%d", len(d))
	}
}

func TestSetOptionEncodesEnableFlag(t *testing.T) {
	en := encode(SetOption{Enable: true})
	dis := encode(SetOption{Enable: false})
	if en[1] != 0 || en[2] != 0 {
		t.Fatalf("enable should encode as 0: % x", en[1:])
	}
	if dis[1] != 1 || dis[2] != 0 {
		t.Fatalf("disable should encode as 1: % x", dis[1:])
	}
}
