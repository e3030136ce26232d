package mdbpacket

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/dbbouncer/mdbclient/mdberrors"
)

// compressThreshold mirrors the reference drivers: payloads smaller than
// this are sent uncompressed (comp_len is the raw length, uncomp_len
// field 0) since DEFLATE overhead would dominate.
const compressThreshold = 50

// CompressedReader unwraps the CLIENT_COMPRESS framing described in spec
// 4.1: [comp_len:3 LE][comp_seq:1][uncomp_len:3 LE][deflate_payload]. It
// sits between the raw socket and a mdbpacket.Reader, so the protocol
// sequence (tracked separately by Reader) is untouched by this layer.
type CompressedReader struct {
	src io.Reader
	seq uint8

	pending *bytes.Reader
}

// NewCompressedReader wraps src, decompressing each compression-frame on
// demand as the protocol layer reads through it.
func NewCompressedReader(src io.Reader) *CompressedReader {
	return &CompressedReader{src: src}
}

func (c *CompressedReader) Read(p []byte) (int, error) {
	for c.pending == nil || c.pending.Len() == 0 {
		if err := c.fill(); err != nil {
			return 0, err
		}
	}
	return c.pending.Read(p)
}

func (c *CompressedReader) fill() error {
	var hdr [7]byte
	if _, err := io.ReadFull(c.src, hdr[:]); err != nil {
		return mdberrors.ConnectionFatal("reading compressed frame header", err)
	}
	compLen := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16
	seq := hdr[3]
	uncompLen := int(hdr[4]) | int(hdr[5])<<8 | int(hdr[6])<<16
	if seq != c.seq {
		return mdberrors.ConnectionFatal("compressed frame sequence desync", nil)
	}
	c.seq++

	body := make([]byte, compLen)
	if compLen > 0 {
		if _, err := io.ReadFull(c.src, body); err != nil {
			return mdberrors.ConnectionFatal("reading compressed frame body", err)
		}
	}

	if uncompLen == 0 {
		// Not compressed: body is the raw payload.
		c.pending = bytes.NewReader(body)
		return nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return mdberrors.ConnectionFatal("opening deflate stream", err)
	}
	defer zr.Close()
	out := make([]byte, 0, uncompLen)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, zr); err != nil {
		return mdberrors.ConnectionFatal("inflating compressed frame", err)
	}
	c.pending = bytes.NewReader(buf.Bytes())
	return nil
}

// CompressedWriter wraps outgoing protocol bytes in the CLIENT_COMPRESS
// framing. Each Write call is framed as one compression frame;
// mdbpacket.Writer.WritePacket issues two Writes per packet frame (the
// 4-byte header, then the payload), so each becomes its own compression
// frame.
type CompressedWriter struct {
	dst io.Writer
	seq uint8
}

// NewCompressedWriter wraps dst with its own independent sequence counter
// (spec 4.1: "Compression carries its own sequence counter independent of
// the protocol sequence").
func NewCompressedWriter(dst io.Writer) *CompressedWriter {
	return &CompressedWriter{dst: dst}
}

func (c *CompressedWriter) Write(p []byte) (int, error) {
	if len(p) < compressThreshold {
		if err := c.writeFrame(p, 0); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(p); err != nil {
		zw.Close()
		return 0, mdberrors.ConnectionFatal("deflating frame", err)
	}
	if err := zw.Close(); err != nil {
		return 0, mdberrors.ConnectionFatal("closing deflate stream", err)
	}
	if err := c.writeFrame(buf.Bytes(), len(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *CompressedWriter) writeFrame(payload []byte, uncompLen int) error {
	compLen := len(payload)
	var hdr [7]byte
	hdr[0] = byte(compLen)
	hdr[1] = byte(compLen >> 8)
	hdr[2] = byte(compLen >> 16)
	hdr[3] = c.seq
	c.seq++
	hdr[4] = byte(uncompLen)
	hdr[5] = byte(uncompLen >> 8)
	hdr[6] = byte(uncompLen >> 16)

	if _, err := c.dst.Write(hdr[:]); err != nil {
		return mdberrors.ConnectionFatal("writing compressed frame header", err)
	}
	if len(payload) > 0 {
		if _, err := c.dst.Write(payload); err != nil {
			return mdberrors.ConnectionFatal("writing compressed frame body", err)
		}
	}
	return nil
}
