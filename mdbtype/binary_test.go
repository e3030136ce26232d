package mdbtype

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/dbbouncer/mdbclient/mdbbuffer"
	"github.com/dbbouncer/mdbclient/mdbcolumn"
)

func TestEncodeDecodeBinaryDatetimeRoundTrip(t *testing.T) {
	w := mdbbuffer.NewWriter()
	tm := time.Date(2024, 3, 15, 14, 30, 45, 123000000, time.UTC)
	if err := EncodeBinaryParam(w, tm); err != nil {
		t.Fatal(err)
	}
	r := mdbbuffer.NewReader(w.Bytes())
	got, err := DecodeBinaryDatetime(r, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(tm) {
		t.Fatalf("got %v want %v", got, tm)
	}
}

func TestEncodeDecodeBinaryDatetimeDateOnly(t *testing.T) {
	w := mdbbuffer.NewWriter()
	tm := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	EncodeBinaryParam(w, tm)
	if w.Bytes()[0] != 4 {
		t.Fatalf("expected length-prefix 4 for date-only value, got %d", w.Bytes()[0])
	}
	r := mdbbuffer.NewReader(w.Bytes())
	got, err := DecodeBinaryDatetime(r, time.UTC)
	if err != nil || !got.Equal(tm) {
		t.Fatalf("got %v err=%v", got, err)
	}
}

func TestEncodeDecodeBinaryDurationRoundTrip(t *testing.T) {
	w := mdbbuffer.NewWriter()
	d := -(26*time.Hour + 5*time.Minute + 30*time.Second + 250*time.Microsecond)
	encodeBinaryDuration(w, d)
	r := mdbbuffer.NewReader(w.Bytes())
	got, err := DecodeBinaryDuration(r)
	if err != nil {
		t.Fatal(err)
	}
	if got != d {
		t.Fatalf("got %v want %v", got, d)
	}
}

func TestEncodeDecodeBinaryDurationZero(t *testing.T) {
	w := mdbbuffer.NewWriter()
	encodeBinaryDuration(w, 0)
	if w.Bytes()[0] != 0 {
		t.Fatal("expected zero-length prefix for zero duration")
	}
	r := mdbbuffer.NewReader(w.Bytes())
	got, err := DecodeBinaryDuration(r)
	if err != nil || got != 0 {
		t.Fatalf("got %v err=%v", got, err)
	}
}

func TestEncodeBinaryParamNumerics(t *testing.T) {
	w := mdbbuffer.NewWriter()
	if err := EncodeBinaryParam(w, float64(3.5)); err != nil {
		t.Fatal(err)
	}
	bits := binary.LittleEndian.Uint64(w.Bytes())
	if math.Float64frombits(bits) != 3.5 {
		t.Fatalf("got %v", math.Float64frombits(bits))
	}
}

func TestDecodeGeometryPoint(t *testing.T) {
	raw := make([]byte, 4+1+4+16)
	binary.LittleEndian.PutUint32(raw[0:4], 4326)
	raw[4] = 1 // little endian WKB
	binary.LittleEndian.PutUint32(raw[5:9], 1) // wkbPoint
	binary.LittleEndian.PutUint64(raw[9:17], math.Float64bits(12.5))
	binary.LittleEndian.PutUint64(raw[17:25], math.Float64bits(-3.25))

	col := &mdbcolumn.Definition{Type: mdbcolumn.TypeGeometry}
	g, err := DecodeGeometry(col, raw)
	if err != nil {
		t.Fatal(err)
	}
	if g.SRID != 4326 || g.Point.X != 12.5 || g.Point.Y != -3.25 {
		t.Fatalf("got %+v", g)
	}
}

func TestDecodeGeometryRejectsNonGeometryColumn(t *testing.T) {
	col := &mdbcolumn.Definition{Type: mdbcolumn.TypeLong}
	if _, err := DecodeGeometry(col, make([]byte, 25)); err == nil {
		t.Fatal("expected cannotDecode for non-geometry column")
	}
}

func TestDecodeGeometryRejectsShortWKB(t *testing.T) {
	col := &mdbcolumn.Definition{Type: mdbcolumn.TypeGeometry}
	if _, err := DecodeGeometry(col, make([]byte, 10)); err == nil {
		t.Fatal("expected error for undersized WKB payload")
	}
}
