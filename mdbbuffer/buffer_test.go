package mdbbuffer

import (
	"bytes"
	"testing"
)

func TestLengthEncodedIntRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 250, 251, 65535, 65536, 16777215, 16777216, 1 << 40}
	for _, v := range cases {
		w := NewWriter()
		w.WriteLengthEncodedInt(v)
		if got := w.Len(); got != LengthEncodedIntSize(v) {
			t.Fatalf("LengthEncodedIntSize(%d) = %d, wrote %d bytes", v, LengthEncodedIntSize(v), got)
		}
		r := NewReader(w.Bytes())
		got, isNull, err := r.ReadLengthEncodedInt()
		if err != nil {
			t.Fatalf("v=%d: %v", v, err)
		}
		if isNull {
			t.Fatalf("v=%d: unexpectedly null", v)
		}
		if got != v {
			t.Fatalf("v=%d: round-tripped as %d", v, got)
		}
	}
}

func TestLengthEncodedIntNull(t *testing.T) {
	r := NewReader([]byte{NullLength})
	_, isNull, err := r.ReadLengthEncodedInt()
	if err != nil {
		t.Fatal(err)
	}
	if !isNull {
		t.Fatal("expected isNull true for 0xfb prefix")
	}
}

func TestLengthEncodedString(t *testing.T) {
	w := NewWriter()
	w.WriteLengthEncodedString([]byte("hello world"))
	r := NewReader(w.Bytes())
	got, isNull, err := r.ReadLengthEncodedString()
	if err != nil || isNull {
		t.Fatalf("got=%q isNull=%v err=%v", got, isNull, err)
	}
	if !bytes.Equal(got, []byte("hello world")) {
		t.Fatalf("got %q", got)
	}
	if r.Len() != 0 {
		t.Fatalf("expected reader exhausted, %d bytes left", r.Len())
	}
}

func TestNullTerminatedString(t *testing.T) {
	w := NewWriter()
	w.WriteNullTerminatedString("root")
	w.WriteByte(0xAA)
	r := NewReader(w.Bytes())
	got, err := r.ReadNullTerminatedString()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "root" {
		t.Fatalf("got %q", got)
	}
	b, err := r.ReadByte()
	if err != nil || b != 0xAA {
		t.Fatalf("trailing byte mismatch: %v %v", b, err)
	}
}

func TestFixedLengthIntRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteUint16(0xBEEF)
	w.WriteUint32(0xDEADBEEF)
	w.WriteUint64(0x0102030405060708)
	r := NewReader(w.Bytes())
	if v, err := r.ReadUint16(); err != nil || v != 0xBEEF {
		t.Fatalf("uint16: %d %v", v, err)
	}
	if v, err := r.ReadUint32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("uint32: %d %v", v, err)
	}
	if v, err := r.ReadUint64(); err != nil || v != 0x0102030405060708 {
		t.Fatalf("uint64: %d %v", v, err)
	}
}

func TestReaderNeedErrorsOnShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.ReadFixedLengthInt(4); err == nil {
		t.Fatal("expected error reading past end of buffer")
	}
}

func TestMarkAndInsertLengthEncodedIntAtMark(t *testing.T) {
	w := NewWriter()
	w.WriteByte(0xFF) // header before the block
	w.Mark()
	w.WriteBytes([]byte("attr1attr2"))
	w.InsertLengthEncodedIntAtMark()

	r := NewReader(w.Bytes())
	if b, _ := r.ReadByte(); b != 0xFF {
		t.Fatal("leading byte corrupted")
	}
	n, isNull, err := r.ReadLengthEncodedInt()
	if err != nil || isNull {
		t.Fatalf("n=%d isNull=%v err=%v", n, isNull, err)
	}
	if n != 10 {
		t.Fatalf("expected length 10, got %d", n)
	}
	rest, err := r.ReadBytes(10)
	if err != nil || string(rest) != "attr1attr2" {
		t.Fatalf("rest=%q err=%v", rest, err)
	}
}

func TestResetMarkDiscardsWrites(t *testing.T) {
	w := NewWriter()
	w.WriteByte(0x01)
	w.Mark()
	w.WriteBytes([]byte("discard me"))
	w.ResetMark()
	if w.Len() != 1 {
		t.Fatalf("expected length 1 after ResetMark, got %d", w.Len())
	}
}
