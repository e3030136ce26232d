// Package mdbcolumn decodes and holds column-definition metadata for a
// result set (spec 3 "ColumnDefinition").
package mdbcolumn

import (
	"strings"

	"github.com/dbbouncer/mdbclient/mdbbuffer"
)

// Type is the protocol's one-byte field-type tag (Protocol::ColumnType).
type Type uint8

const (
	TypeDecimal   Type = 0x00
	TypeTiny      Type = 0x01
	TypeShort     Type = 0x02
	TypeLong      Type = 0x03
	TypeFloat     Type = 0x04
	TypeDouble    Type = 0x05
	TypeNull      Type = 0x06
	TypeTimestamp Type = 0x07
	TypeLongLong  Type = 0x08
	TypeInt24     Type = 0x09
	TypeDate      Type = 0x0a
	TypeTime      Type = 0x0b
	TypeDatetime  Type = 0x0c
	TypeYear      Type = 0x0d
	TypeNewDate   Type = 0x0e
	TypeVarchar   Type = 0x0f
	TypeBit       Type = 0x10
	TypeJSON      Type = 0xf5
	TypeNewDecimal Type = 0xf6
	TypeEnum      Type = 0xf7
	TypeSet       Type = 0xf8
	TypeTinyBlob  Type = 0xf9
	TypeMediumBlob Type = 0xfa
	TypeLongBlob  Type = 0xfb
	TypeBlob      Type = 0xfc
	TypeVarString Type = 0xfd
	TypeString    Type = 0xfe
	TypeGeometry  Type = 0xff
)

// String returns the server-facing type name used in "Data type X cannot
// be decoded as Y" error messages (spec 4.7).
func (t Type) String() string {
	switch t {
	case TypeDecimal, TypeNewDecimal:
		return "DECIMAL"
	case TypeTiny:
		return "TINYINT"
	case TypeShort:
		return "SMALLINT"
	case TypeLong:
		return "INTEGER"
	case TypeFloat:
		return "FLOAT"
	case TypeDouble:
		return "DOUBLE"
	case TypeNull:
		return "NULL"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeLongLong:
		return "BIGINT"
	case TypeInt24:
		return "MEDIUMINT"
	case TypeDate, TypeNewDate:
		return "DATE"
	case TypeTime:
		return "TIME"
	case TypeDatetime:
		return "DATETIME"
	case TypeYear:
		return "YEAR"
	case TypeVarchar, TypeVarString:
		return "VARCHAR"
	case TypeBit:
		return "BIT"
	case TypeJSON:
		return "JSON"
	case TypeEnum:
		return "ENUM"
	case TypeSet:
		return "SET"
	case TypeTinyBlob:
		return "TINYBLOB"
	case TypeMediumBlob:
		return "MEDIUMBLOB"
	case TypeLongBlob:
		return "LONGBLOB"
	case TypeBlob:
		return "BLOB"
	case TypeString:
		return "CHAR"
	case TypeGeometry:
		return "GEOMETRY"
	default:
		return "UNKNOWN"
	}
}

// Flags mirrors the column-definition flag bitmask.
type Flags uint16

const (
	FlagNotNull     Flags = 1 << 0
	FlagPrimaryKey  Flags = 1 << 1
	FlagUniqueKey   Flags = 1 << 2
	FlagMultipleKey Flags = 1 << 3
	FlagBlob        Flags = 1 << 4
	FlagUnsigned    Flags = 1 << 5
	FlagZerofill    Flags = 1 << 6
	FlagBinary      Flags = 1 << 7
	FlagEnum        Flags = 1 << 8
	FlagAutoIncrement Flags = 1 << 9
	FlagTimestamp   Flags = 1 << 10
	FlagSet         Flags = 1 << 11
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Definition is an immutable column-definition. The raw packet bytes are
// retained and every string field is a slice into it: offsets stay valid
// for the result set's lifetime (spec 3 invariant) because Definition
// itself owns (keeps alive) raw.
type Definition struct {
	raw []byte

	catalog    []byte
	schema     []byte
	table      []byte
	orgTable   []byte
	name       []byte
	orgName    []byte

	Charset   uint16
	Length    uint32
	Type      Type
	Flags     Flags
	Decimals  uint8

	// ExtendedTypeName/ExtendedFormat are populated only when the
	// MariaDB CLIENT_EXTENDED_TYPE_INFO capability was negotiated.
	ExtendedTypeName string
	ExtendedFormat   string
}

// Parse decodes one Protocol::ColumnDefinition41 packet.
func Parse(payload []byte) (*Definition, error) {
	d := &Definition{raw: payload}
	r := mdbbuffer.NewReader(payload)

	var err error
	if d.catalog, _, err = r.ReadLengthEncodedString(); err != nil {
		return nil, err
	}
	if d.schema, _, err = r.ReadLengthEncodedString(); err != nil {
		return nil, err
	}
	if d.table, _, err = r.ReadLengthEncodedString(); err != nil {
		return nil, err
	}
	if d.orgTable, _, err = r.ReadLengthEncodedString(); err != nil {
		return nil, err
	}
	if d.name, _, err = r.ReadLengthEncodedString(); err != nil {
		return nil, err
	}
	if d.orgName, _, err = r.ReadLengthEncodedString(); err != nil {
		return nil, err
	}
	// length-of-fixed-fields lenenc-int, always 0x0c.
	if _, _, err = r.ReadLengthEncodedInt(); err != nil {
		return nil, err
	}
	charset, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	d.Charset = charset
	length, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	d.Length = length
	typ, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	d.Type = Type(typ)
	flags, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	d.Flags = Flags(flags)
	decimals, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	d.Decimals = decimals
	return d, nil
}

// Name returns the column's display name (alias), decoded as UTF-8.
func (d *Definition) Name() string { return string(d.name) }

// OrgName returns the underlying (non-aliased) column name.
func (d *Definition) OrgName() string { return string(d.orgName) }

// Table returns the display table name (alias).
func (d *Definition) Table() string { return string(d.table) }

// OrgTable returns the underlying (non-aliased) table name.
func (d *Definition) OrgTable() string { return string(d.orgTable) }

// Schema returns the column's database/schema name.
func (d *Definition) Schema() string { return string(d.schema) }

// MatchesLabel reports whether label case-insensitively matches this
// column's display name — the row decoder's by-label lookup contract
// (spec 4.6).
func (d *Definition) MatchesLabel(label string) bool {
	return strings.EqualFold(label, string(d.name))
}

// IsUnsigned reports whether the column's UNSIGNED flag is set.
func (d *Definition) IsUnsigned() bool { return d.Flags.Has(FlagUnsigned) }

// IsBinary reports whether the column carries the binary charset (63,
// "binary") or the BINARY flag — used to distinguish BLOB from TEXT.
func (d *Definition) IsBinary() bool {
	return d.Charset == 63 || d.Flags.Has(FlagBinary)
}
