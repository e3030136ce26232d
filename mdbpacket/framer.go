// Package mdbpacket implements the packet framing layer: splitting a byte
// stream into protocol packets with a rolling sequence number and 3-byte
// length, reassembling packets that span multiple frames, and the optional
// zlib compression wrapper (spec 4.1 "Framer").
package mdbpacket

import (
	"bufio"
	"fmt"
	"io"

	"github.com/dbbouncer/mdbclient/mdberrors"
)

// MaxPayload is the largest single-frame payload (2^24 - 1). A payload of
// exactly this size implies a continuation frame follows with the same
// sequence+1.
const MaxPayload = 1<<24 - 1

// Reader reads framed packets off an underlying stream, reassembling
// multi-frame packets and validating the rolling sequence number. A single
// Reader is not safe for concurrent use; callers serialize through the
// Session's lock (spec 5).
type Reader struct {
	src universalReader
	seq uint8

	maxAllowedPacket int
}

type universalReader interface {
	io.Reader
	io.ByteReader
}

// NewReader wraps r with read-ahead buffering (bufio) to reduce syscalls
// while still letting ReadPacket report exact packet boundaries.
func NewReader(r io.Reader) *Reader {
	return &Reader{src: bufio.NewReaderSize(r, 16*1024), maxAllowedPacket: 1 << 30}
}

// SetMaxAllowedPacket bounds the logical (reassembled) packet size; a
// larger incoming packet is reported as a distinguishable "packet too big"
// error rather than silently allocated.
func (r *Reader) SetMaxAllowedPacket(n int) { r.maxAllowedPacket = n }

// ResetSequence resets the rolling sequence counter to 0, called at the
// start of each new command cycle (spec 3, "Packet").
func (r *Reader) ResetSequence() { r.seq = 0 }

// Sequence returns the next expected sequence number.
func (r *Reader) Sequence() uint8 { return r.seq }

// SetSequence forces the next expected sequence number, used when a
// higher layer (e.g. an AuthSwitch exchange) needs to resynchronize.
func (r *Reader) SetSequence(seq uint8) { r.seq = seq }

// ReadPacket reads one logical packet (reassembling 0xFFFFFF continuation
// frames) and returns its payload. A sequence mismatch is fatal protocol desync (spec 4.1).
func (r *Reader) ReadPacket() ([]byte, error) {
	var payload []byte
	for {
		var hdr [4]byte
		if _, err := io.ReadFull(r.src, hdr[:]); err != nil {
			return nil, mdberrors.ConnectionFatal("reading packet header", err)
		}
		length := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16
		seq := hdr[3]
		if seq != r.seq {
			return nil, mdberrors.ConnectionFatal(
				fmt.Sprintf("packet sequence desync: expected %d, got %d", r.seq, seq), nil)
		}
		r.seq++

		if len(payload)+length > r.maxAllowedPacket {
			return nil, mdberrors.PacketTooBig(r.maxAllowedPacket, false)
		}

		frame := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(r.src, frame); err != nil {
				return nil, mdberrors.ConnectionFatal("reading packet payload", err)
			}
		}
		payload = append(payload, frame...)

		if length < MaxPayload {
			return payload, nil
		}
		// length == MaxPayload: a continuation packet follows, even if its
		// payload turns out to be empty (exact-multiple case).
	}
}

// Writer accumulates and frames outgoing packets, splitting any payload
// at or above MaxPayload into continuation frames, and appending an empty
// final frame when the payload length is an exact multiple of MaxPayload
// (spec 4.1, "flush").
type Writer struct {
	dst io.Writer
	seq uint8

	maxAllowedPacket int
}

// NewWriter wraps dst for framed packet writes.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{dst: dst, maxAllowedPacket: 1 << 30}
}

// SetMaxAllowedPacket bounds a single logical command (spec 4.1).
func (w *Writer) SetMaxAllowedPacket(n int) { w.maxAllowedPacket = n }

// ResetSequence resets the rolling sequence counter, mirroring Reader.
func (w *Writer) ResetSequence() { w.seq = 0 }

// Sequence returns the next sequence number to be written.
func (w *Writer) Sequence() uint8 { return w.seq }

// SetSequence forces the next sequence number to write.
func (w *Writer) SetSequence(seq uint8) { w.seq = seq }

// WritePacket frames and writes payload, splitting it across as many
// MaxPayload-sized frames as needed.
func (w *Writer) WritePacket(payload []byte) error {
	if len(payload) > w.maxAllowedPacket {
		return mdberrors.PacketTooBig(w.maxAllowedPacket, true)
	}

	for {
		n := len(payload)
		if n > MaxPayload {
			n = MaxPayload
		}
		var hdr [4]byte
		hdr[0] = byte(n)
		hdr[1] = byte(n >> 8)
		hdr[2] = byte(n >> 16)
		hdr[3] = w.seq
		w.seq++

		if _, err := w.dst.Write(hdr[:]); err != nil {
			return mdberrors.ConnectionFatal("writing packet header", err)
		}
		if n > 0 {
			if _, err := w.dst.Write(payload[:n]); err != nil {
				return mdberrors.ConnectionFatal("writing packet payload", err)
			}
		}
		payload = payload[n:]

		if n < MaxPayload {
			return nil
		}
		if len(payload) == 0 {
			// Exact multiple of MaxPayload: an empty final frame signals
			// end-of-packet to the peer.
			var empty [4]byte
			empty[3] = w.seq
			w.seq++
			if _, err := w.dst.Write(empty[:]); err != nil {
				return mdberrors.ConnectionFatal("writing final empty frame", err)
			}
			return nil
		}
	}
}
