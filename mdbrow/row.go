// Package mdbrow materializes a result row's cells from either the text
// or binary protocol layout, given the result set's column definitions
// (spec 4.6 "Row decoder").
package mdbrow

import (
	"strings"

	"github.com/dbbouncer/mdbclient/mdbbuffer"
	"github.com/dbbouncer/mdbclient/mdbcolumn"
	"github.com/dbbouncer/mdbclient/mdberrors"
)

// Row is a single materialized row. Cells are lazily interpreted by the
// mdbtype codecs; Row itself only knows cell boundaries and nullness.
type Row struct {
	columns []*mdbcolumn.Definition
	cells   [][]byte // nil element means SQL NULL
}

// boundsError reports an out-of-range column index or unknown label; it
// is distinct from a decode error (spec 4.6).
func boundsError(msg string) error {
	return mdberrors.ProtocolData(msg, nil)
}

// DecodeTextRow parses a Text_resultset_row packet: each cell is a
// length-encoded string, with NULL represented by the 0xfb prefix byte
// (spec 4.6).
func DecodeTextRow(payload []byte, columns []*mdbcolumn.Definition) (*Row, error) {
	r := mdbbuffer.NewReader(payload)
	cells := make([][]byte, len(columns))
	for i := range columns {
		data, isNull, err := r.ReadLengthEncodedString()
		if err != nil {
			return nil, err
		}
		if isNull {
			cells[i] = nil
			continue
		}
		cells[i] = append([]byte(nil), data...)
	}
	return &Row{columns: columns, cells: cells}, nil
}

// DecodeBinaryRow parses a Binary_resultset_row (COM_STMT_EXECUTE result):
// leading 0x00, a NULL bitmap of ceil((N+2)/8) bytes with a 2-bit offset,
// then non-null cells packed by fixed width or length-encoded string per
// column type (spec 4.6).
func DecodeBinaryRow(payload []byte, columns []*mdbcolumn.Definition) (*Row, error) {
	r := mdbbuffer.NewReader(payload)
	if _, err := r.ReadByte(); err != nil {
		return nil, err
	}
	bitmapLen := (len(columns) + 7 + 2) / 8
	bitmap, err := r.ReadBytes(bitmapLen)
	if err != nil {
		return nil, err
	}

	cells := make([][]byte, len(columns))
	for i, col := range columns {
		bytePos := (i + 2) / 8
		bitPos := uint((i + 2) % 8)
		if bitmap[bytePos]&(1<<bitPos) != 0 {
			cells[i] = nil
			continue
		}
		data, err := readBinaryCell(r, col.Type)
		if err != nil {
			return nil, err
		}
		cells[i] = data
	}
	return &Row{columns: columns, cells: cells}, nil
}

// readBinaryCell reads one non-NULL binary-protocol cell's raw bytes,
// without interpreting them; mdbtype's binary decoders take it from here.
// Temporal and string/blob types keep their natural wire shape (raw
// length-prefixed bytes for temporals, since mdbtype.DecodeBinary* takes a
// *mdbbuffer.Reader positioned at the length byte).
func readBinaryCell(r *mdbbuffer.Reader, typ mdbcolumn.Type) ([]byte, error) {
	switch typ {
	case mdbcolumn.TypeTiny:
		return r.ReadBytes(1)
	case mdbcolumn.TypeShort, mdbcolumn.TypeYear:
		return r.ReadBytes(2)
	case mdbcolumn.TypeLong, mdbcolumn.TypeInt24, mdbcolumn.TypeFloat:
		return r.ReadBytes(4)
	case mdbcolumn.TypeLongLong, mdbcolumn.TypeDouble:
		return r.ReadBytes(8)
	case mdbcolumn.TypeDate, mdbcolumn.TypeNewDate, mdbcolumn.TypeDatetime, mdbcolumn.TypeTimestamp:
		return readLengthPrefixedRaw(r)
	case mdbcolumn.TypeTime:
		return readLengthPrefixedRaw(r)
	default:
		data, _, err := r.ReadLengthEncodedString()
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), data...), nil
	}
}

// readLengthPrefixedRaw reads a variable-length temporal cell: a 1-byte
// length prefix (0, 4, 7, 8, 11, or 12) followed by that many raw bytes,
// keeping the prefix byte itself at the front so mdbtype.DecodeBinary*
// can re-read it with its own cursor.
func readLengthPrefixedRaw(r *mdbbuffer.Reader) ([]byte, error) {
	n, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	body, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(body))
	out = append(out, n)
	out = append(out, body...)
	return out, nil
}

// ColumnCount returns the number of columns in this row.
func (r *Row) ColumnCount() int { return len(r.columns) }

// IsNull reports whether the cell at idx (0-based) is SQL NULL.
func (r *Row) IsNull(idx int) (bool, error) {
	if idx < 0 || idx >= len(r.cells) {
		return false, boundsError("column index out of range")
	}
	return r.cells[idx] == nil, nil
}

// RawText returns the cell at idx as its raw (already-decoded-from-lenenc)
// bytes, suitable for passing to mdbtype text codecs as a string.
func (r *Row) RawText(idx int) ([]byte, error) {
	if idx < 0 || idx >= len(r.cells) {
		return nil, boundsError("column index out of range")
	}
	return r.cells[idx], nil
}

// Reader returns a positional reader over the raw cell bytes at idx, for
// binary-protocol decoders that parse further structure (temporal types).
func (r *Row) Reader(idx int) (*mdbbuffer.Reader, error) {
	raw, err := r.RawText(idx)
	if err != nil {
		return nil, err
	}
	return mdbbuffer.NewReader(raw), nil
}

// Column returns the column definition at idx.
func (r *Row) Column(idx int) (*mdbcolumn.Definition, error) {
	if idx < 0 || idx >= len(r.columns) {
		return nil, boundsError("column index out of range")
	}
	return r.columns[idx], nil
}

// IndexOfLabel resolves a column label to its 0-based index,
// case-insensitively, preferring the first match (spec 4.6: "by-label
// access (case-insensitive label lookup)"). useOrgName forces matching
// against the underlying (non-aliased) column name instead of the display
// alias.
func (r *Row) IndexOfLabel(label string, useOrgName bool) (int, error) {
	for i, col := range r.columns {
		name := col.Name()
		if useOrgName {
			name = col.OrgName()
		}
		if strings.EqualFold(name, label) {
			return i, nil
		}
	}
	return -1, boundsError("no such column: " + label)
}
