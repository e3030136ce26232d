package mdbpacket

import (
	"bytes"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	r := NewReader(&buf)

	payloads := [][]byte{
		[]byte("short"),
		{},
		bytes.Repeat([]byte{0x42}, 1000),
	}
	for _, p := range payloads {
		if err := w.WritePacket(p); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for i, want := range payloads {
		got, err := r.ReadPacket()
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if !bytes.Equal(got, want) && !(len(got) == 0 && len(want) == 0) {
			t.Fatalf("packet %d: got %d bytes, want %d", i, len(got), len(want))
		}
	}
}

func TestContinuationFrameReassembly(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	payload := bytes.Repeat([]byte{0x07}, MaxPayload+500)
	if err := w.WritePacket(payload); err != nil {
		t.Fatal(err)
	}

	r := NewReader(&buf)
	got, err := r.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("reassembled length %d, want %d", len(got), len(payload))
	}
	// Sequence should have advanced by 2 (one full frame + one partial).
	if r.Sequence() != 2 {
		t.Fatalf("sequence = %d, want 2", r.Sequence())
	}
}

func TestExactMultipleOfMaxPayloadAppendsEmptyFrame(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	payload := bytes.Repeat([]byte{0x01}, MaxPayload)
	if err := w.WritePacket(payload); err != nil {
		t.Fatal(err)
	}
	if w.Sequence() != 2 {
		t.Fatalf("writer sequence = %d, want 2 (data frame + empty final frame)", w.Sequence())
	}

	r := NewReader(&buf)
	got, err := r.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %d bytes, want %d", len(got), len(payload))
	}
}

func TestSequenceDesyncIsFatal(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x01, 0x00, 0x00, 0x05, 0xAA}) // length 1, seq 5 (unexpected), payload 0xAA
	r := NewReader(&buf)
	if _, err := r.ReadPacket(); err == nil {
		t.Fatal("expected sequence desync error")
	}
}

func TestResetSequence(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WritePacket([]byte("a"))
	w.WritePacket([]byte("b"))
	if w.Sequence() != 2 {
		t.Fatalf("sequence = %d, want 2", w.Sequence())
	}
	w.ResetSequence()
	if w.Sequence() != 0 {
		t.Fatalf("sequence after reset = %d, want 0", w.Sequence())
	}
}

func TestMaxAllowedPacketExceeded(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.SetMaxAllowedPacket(10)
	if err := w.WritePacket(bytes.Repeat([]byte{0}, 20)); err == nil {
		t.Fatal("expected packet-too-big error")
	}
}

func TestCompressedRoundTripSmallAndLarge(t *testing.T) {
	var wire bytes.Buffer
	cw := NewCompressedWriter(&wire)

	small := []byte("ping")
	large := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)

	if _, err := cw.Write(small); err != nil {
		t.Fatal(err)
	}
	if _, err := cw.Write(large); err != nil {
		t.Fatal(err)
	}

	cr := NewCompressedReader(&wire)
	gotSmall := make([]byte, len(small))
	if _, err := readFull(cr, gotSmall); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotSmall, small) {
		t.Fatalf("small: got %q want %q", gotSmall, small)
	}

	gotLarge := make([]byte, len(large))
	if _, err := readFull(cr, gotLarge); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotLarge, large) {
		t.Fatalf("large: round-trip mismatch, lengths %d vs %d", len(gotLarge), len(large))
	}
}

func readFull(r *CompressedReader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
