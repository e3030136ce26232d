package mdbtype

import (
	"testing"
	"time"

	"github.com/dbbouncer/mdbclient/mdbcolumn"
)

func intCol() *mdbcolumn.Definition { return &mdbcolumn.Definition{Type: mdbcolumn.TypeLong} }
func unsignedIntCol() *mdbcolumn.Definition {
	return &mdbcolumn.Definition{Type: mdbcolumn.TypeLongLong, Flags: mdbcolumn.FlagUnsigned}
}
func stringCol() *mdbcolumn.Definition { return &mdbcolumn.Definition{Type: mdbcolumn.TypeVarchar} }
func timeCol(t mdbcolumn.Type) *mdbcolumn.Definition { return &mdbcolumn.Definition{Type: t} }

func TestDecodeInt64Basic(t *testing.T) {
	v, _, err := DecodeInt64(intCol(), "42", true)
	if err != nil || v != 42 {
		t.Fatalf("v=%d err=%v", v, err)
	}
}

func TestDecodeInt64RejectsNonNumericColumn(t *testing.T) {
	if _, _, err := DecodeInt64(stringCol(), "42", true); err == nil {
		t.Fatal("expected cannotDecode for non-numeric source type")
	}
}

func TestDecodeInt64LargeUnsigned(t *testing.T) {
	// value exceeds int64 range as a plain negative-looking parse, but
	// fits as unsigned.
	v, _, err := DecodeInt64(unsignedIntCol(), "18446744073709551615", true)
	if err != nil {
		t.Fatal(err)
	}
	if uint64(v) != 18446744073709551615 {
		t.Fatalf("got %d", v)
	}
}

func TestDecodeInt32OverflowFails(t *testing.T) {
	if _, err := DecodeInt32(intCol(), "99999999999"); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestDecodeBoolNonZero(t *testing.T) {
	b, err := DecodeBool(intCol(), "5")
	if err != nil || !b {
		t.Fatalf("b=%v err=%v", b, err)
	}
	b, err = DecodeBool(intCol(), "0")
	if err != nil || b {
		t.Fatalf("b=%v err=%v", b, err)
	}
}

func TestDecodeBytesOnlyForBlobLikeTypes(t *testing.T) {
	if _, err := DecodeBytes(&mdbcolumn.Definition{Type: mdbcolumn.TypeBlob}, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeBytes(intCol(), []byte("x")); err == nil {
		t.Fatal("expected cannotDecode for INTEGER as byte[]")
	}
}

func TestDecodeURLRejectsNonStringColumn(t *testing.T) {
	if _, err := DecodeURL(intCol(), "http://example.com"); err == nil {
		t.Fatal("expected cannotDecode for non-string column")
	}
	u, err := DecodeURL(stringCol(), "http://example.com/path")
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "example.com" {
		t.Fatalf("got host %q", u.Host)
	}
}

func TestDecodeTimeDatetimeWithFraction(t *testing.T) {
	col := timeCol(mdbcolumn.TypeDatetime)
	tm, err := DecodeTime(col, "2024-01-15 10:30:00.500000", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if tm.Year() != 2024 || tm.Month() != time.January || tm.Day() != 15 {
		t.Fatalf("got %v", tm)
	}
	if tm.Nanosecond() == 0 {
		t.Fatal("expected fractional seconds applied")
	}
}

func TestDecodeDurationNegativeBeyond24h(t *testing.T) {
	d, err := DecodeDuration(timeCol(mdbcolumn.TypeTime), "-30:15:05")
	if err != nil {
		t.Fatal(err)
	}
	want := -(30*time.Hour + 15*time.Minute + 5*time.Second)
	if d != want {
		t.Fatalf("got %v want %v", d, want)
	}
}

func TestEncodeTextLiteralEscapesQuotes(t *testing.T) {
	got, err := EncodeTextLiteral("O'Brien")
	if err != nil {
		t.Fatal(err)
	}
	if got != "'O''Brien'" {
		t.Fatalf("got %q", got)
	}
}

func TestEncodeTextLiteralNilIsNULL(t *testing.T) {
	got, err := EncodeTextLiteral(nil)
	if err != nil || got != "NULL" {
		t.Fatalf("got %q err=%v", got, err)
	}
}

func TestEncodeTextLiteralUnsupportedType(t *testing.T) {
	type custom struct{}
	if _, err := EncodeTextLiteral(custom{}); err == nil {
		t.Fatal("expected FeatureNotSupported error for an unhandled Go type")
	}
}

func TestBinaryParamCodeSignedness(t *testing.T) {
	typ, unsigned, err := BinaryParamCode(uint32(5))
	if err != nil || typ != mdbcolumn.TypeLong || !unsigned {
		t.Fatalf("typ=%v unsigned=%v err=%v", typ, unsigned, err)
	}
	typ, unsigned, err = BinaryParamCode(int32(5))
	if err != nil || typ != mdbcolumn.TypeLong || unsigned {
		t.Fatalf("typ=%v unsigned=%v err=%v", typ, unsigned, err)
	}
}
