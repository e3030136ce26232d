package mdbsession

import (
	"io"

	"github.com/dbbouncer/mdbclient/mdbpacket"
)

// newReaderAt builds a packet Reader over r, resuming at sequence seq —
// used when swapping the underlying stream (TLS upgrade, compression
// wrapper) mid-handshake without resetting the protocol sequence.
func newReaderAt(r io.Reader, seq uint8) *mdbpacket.Reader {
	pr := mdbpacket.NewReader(r)
	pr.SetSequence(seq)
	return pr
}

func newWriterAt(w io.Writer, seq uint8) *mdbpacket.Writer {
	pw := mdbpacket.NewWriter(w)
	pw.SetSequence(seq)
	return pw
}

func newCompressedReaderAdapter(r io.Reader) io.Reader {
	return mdbpacket.NewCompressedReader(r)
}

func newCompressedWriterAdapter(w io.Writer) io.Writer {
	return mdbpacket.NewCompressedWriter(w)
}
