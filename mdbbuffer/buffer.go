// Package mdbbuffer implements the MariaDB/MySQL wire encodings for
// length-encoded integers/strings and fixed-width little-endian integers,
// plus zero-copy positional reads over a packet payload (spec 4.1 "Buffer
// codec").
package mdbbuffer

import (
	"encoding/binary"
	"fmt"
)

// NullLength is the length-encoded-integer prefix byte that marks a NULL
// column value in a text-protocol row.
const NullLength = 0xfb

// Reader provides zero-copy positional reads over a packet's backing bytes.
// It never allocates on the read path except where the wire format itself
// requires materializing a new string.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for positional reading starting at offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Seek repositions the read cursor to an absolute offset.
func (r *Reader) Seek(pos int) { r.pos = pos }

// Skip advances the read cursor by n bytes.
func (r *Reader) Skip(n int) { r.pos += n }

// Bytes returns the full backing slice (for building column-definition
// offset tables that must outlive this Reader).
func (r *Reader) Bytes() []byte { return r.buf }

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("mdbbuffer: read byte past end of packet")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// PeekByte returns the next byte without advancing the cursor.
func (r *Reader) PeekByte() (byte, bool) {
	if r.pos >= len(r.buf) {
		return 0, false
	}
	return r.buf[r.pos], true
}

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("mdbbuffer: need %d bytes, have %d", n, r.Len())
	}
	return nil
}

// ReadFixedLengthInt reads an n-byte little-endian unsigned integer, n in
// {1,2,3,4,6,8}.
func (r *Reader) ReadFixedLengthInt(n int) (uint64, error) {
	if err := r.need(n); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(r.buf[r.pos+i]) << (8 * uint(i))
	}
	r.pos += n
	return v, nil
}

// ReadUint16 reads a fixed 2-byte little-endian integer.
func (r *Reader) ReadUint16() (uint16, error) {
	v, err := r.ReadFixedLengthInt(2)
	return uint16(v), err
}

// ReadUint32 reads a fixed 4-byte little-endian integer.
func (r *Reader) ReadUint32() (uint32, error) {
	v, err := r.ReadFixedLengthInt(4)
	return uint32(v), err
}

// ReadUint64 reads a fixed 8-byte little-endian integer.
func (r *Reader) ReadUint64() (uint64, error) {
	return r.ReadFixedLengthInt(8)
}

// ReadLengthEncodedInt reads a length-encoded integer: the 1-byte prefix
// selects a width of 1, 3, 4, or 9 bytes, per the protocol's lenenc-int
// format. isNull is true when the prefix is 0xfb (only meaningful when
// reading a text-protocol row cell).
func (r *Reader) ReadLengthEncodedInt() (value uint64, isNull bool, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, false, err
	}
	switch {
	case b < 0xfb:
		return uint64(b), false, nil
	case b == NullLength:
		return 0, true, nil
	case b == 0xfc:
		v, err := r.ReadFixedLengthInt(2)
		return v, false, err
	case b == 0xfd:
		v, err := r.ReadFixedLengthInt(3)
		return v, false, err
	case b == 0xfe:
		v, err := r.ReadFixedLengthInt(8)
		return v, false, err
	default:
		return 0, false, fmt.Errorf("mdbbuffer: invalid length-encoded-int prefix 0x%02x", b)
	}
}

// ReadLengthEncodedString reads a lenenc-string: a lenenc-int length prefix
// followed by that many raw bytes. The returned slice aliases the backing
// buffer (zero-copy); callers that need an owned string must copy it.
func (r *Reader) ReadLengthEncodedString() (data []byte, isNull bool, err error) {
	n, isNull, err := r.ReadLengthEncodedInt()
	if err != nil || isNull {
		return nil, isNull, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, false, err
	}
	data = r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return data, false, nil
}

// ReadNullTerminatedString reads bytes up to (excluding) the next NUL byte
// and advances past it.
func (r *Reader) ReadNullTerminatedString() ([]byte, error) {
	start := r.pos
	for r.pos < len(r.buf) && r.buf[r.pos] != 0 {
		r.pos++
	}
	if r.pos >= len(r.buf) {
		return nil, fmt.Errorf("mdbbuffer: unterminated string")
	}
	s := r.buf[start:r.pos]
	r.pos++ // skip the NUL
	return s, nil
}

// ReadRestOfPacketString returns every remaining byte as a string (used for
// ERR_Packet messages and the tail of OK_Packet session-state blocks).
func (r *Reader) ReadRestOfPacketString() []byte {
	s := r.buf[r.pos:]
	r.pos = len(r.buf)
	return s
}

// ReadBytes reads exactly n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Writer accumulates a packet payload. It is not framed — mdbpacket.Writer
// wraps a Writer's accumulated bytes with the length/sequence header.
type Writer struct {
	buf  []byte
	mark int
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// Bytes returns the accumulated payload.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Reset clears the writer for reuse.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// WriteByte appends a single byte.
func (w *Writer) WriteByte(b byte) { w.buf = append(w.buf, b) }

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteUint16 appends a fixed 2-byte little-endian integer.
func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteUint32 appends a fixed 4-byte little-endian integer.
func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteUint64 appends a fixed 8-byte little-endian integer.
func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteLengthEncodedInt appends v using the narrowest lenenc-int encoding.
func (w *Writer) WriteLengthEncodedInt(v uint64) {
	switch {
	case v < 0xfb:
		w.buf = append(w.buf, byte(v))
	case v <= 0xffff:
		w.buf = append(w.buf, 0xfc, byte(v), byte(v>>8))
	case v <= 0xffffff:
		w.buf = append(w.buf, 0xfd, byte(v), byte(v>>8), byte(v>>16))
	default:
		var b [9]byte
		b[0] = 0xfe
		binary.LittleEndian.PutUint64(b[1:], v)
		w.buf = append(w.buf, b[:]...)
	}
}

// WriteLengthEncodedString appends a lenenc-int length prefix followed by s.
func (w *Writer) WriteLengthEncodedString(s []byte) {
	w.WriteLengthEncodedInt(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteNullTerminatedString appends s followed by a NUL byte.
func (w *Writer) WriteNullTerminatedString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// Mark records the current length so a caller can rewind to it and rewrite
// a length prefix once the body is known (spec 4.1, writer's mark/resetMark
// — used by connect-attributes and prepared-parameter blocks).
func (w *Writer) Mark() { w.mark = len(w.buf) }

// SinceMark returns the number of bytes written since the last Mark.
func (w *Writer) SinceMark() int { return len(w.buf) - w.mark }

// ResetMark rewinds the buffer back to the last Mark, discarding anything
// written since.
func (w *Writer) ResetMark() { w.buf = w.buf[:w.mark] }

// InsertLengthEncodedIntAtMark splices a lenenc-int for n bytes of already-
// written body data in at the mark position, shifting the body forward.
// Used to prefix a connect-attributes block with its total length after
// the attributes have already been written.
func (w *Writer) InsertLengthEncodedIntAtMark() {
	body := append([]byte(nil), w.buf[w.mark:]...)
	w.buf = w.buf[:w.mark]
	w.WriteLengthEncodedInt(uint64(len(body)))
	w.buf = append(w.buf, body...)
}

// LengthEncodedIntSize returns the number of bytes WriteLengthEncodedInt
// would use to encode v — useful for pre-sizing buffers.
func LengthEncodedIntSize(v uint64) int {
	switch {
	case v < 0xfb:
		return 1
	case v <= 0xffff:
		return 3
	case v <= 0xffffff:
		return 4
	default:
		return 9
	}
}
