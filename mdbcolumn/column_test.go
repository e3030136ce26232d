package mdbcolumn

import (
	"testing"

	"github.com/dbbouncer/mdbclient/mdbbuffer"
)

func encodeColumnDef(name, table string, charset uint16, length uint32, typ Type, flags Flags, decimals uint8) []byte {
	w := mdbbuffer.NewWriter()
	w.WriteLengthEncodedString([]byte("def"))
	w.WriteLengthEncodedString([]byte("testdb"))
	w.WriteLengthEncodedString([]byte(table))
	w.WriteLengthEncodedString([]byte(table))
	w.WriteLengthEncodedString([]byte(name))
	w.WriteLengthEncodedString([]byte(name))
	w.WriteLengthEncodedInt(0x0c)
	w.WriteUint16(charset)
	w.WriteUint32(length)
	w.WriteByte(byte(typ))
	w.WriteUint16(uint16(flags))
	w.WriteByte(decimals)
	w.WriteUint16(0) // filler
	return w.Bytes()
}

func TestParseColumnDefinition(t *testing.T) {
	payload := encodeColumnDef("id", "users", 63, 11, TypeLong, FlagNotNull|FlagPrimaryKey|FlagUnsigned, 0)
	d, err := Parse(payload)
	if err != nil {
		t.Fatal(err)
	}
	if d.Name() != "id" {
		t.Fatalf("Name() = %q", d.Name())
	}
	if d.Table() != "users" || d.OrgTable() != "users" {
		t.Fatalf("table mismatch: %q %q", d.Table(), d.OrgTable())
	}
	if d.Type != TypeLong {
		t.Fatalf("Type = %v", d.Type)
	}
	if !d.IsUnsigned() {
		t.Error("expected unsigned flag")
	}
	if !d.IsBinary() {
		t.Error("expected binary charset (63) to report IsBinary true")
	}
	if !d.MatchesLabel("ID") {
		t.Error("MatchesLabel should be case-insensitive")
	}
}

func TestTypeStringKnownAndUnknown(t *testing.T) {
	if TypeVarchar.String() != "VARCHAR" {
		t.Fatalf("got %q", TypeVarchar.String())
	}
	if Type(0x99).String() != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for unmapped type")
	}
}

func TestFlagsHas(t *testing.T) {
	f := FlagNotNull | FlagAutoIncrement
	if !f.Has(FlagAutoIncrement) {
		t.Error("expected FlagAutoIncrement set")
	}
	if f.Has(FlagBlob) {
		t.Error("FlagBlob should not be set")
	}
}
