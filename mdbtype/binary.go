package mdbtype

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/dbbouncer/mdbclient/mdbbuffer"
	"github.com/dbbouncer/mdbclient/mdbcolumn"
	"github.com/dbbouncer/mdbclient/mdberrors"
)

// EncodeBinaryParam appends v's COM_STMT_EXECUTE binary-protocol
// representation to w. Callers look up the wire type via BinaryParamCode
// first; v must already match that type's Go representation.
func EncodeBinaryParam(w *mdbbuffer.Writer, v any) error {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		if x {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
	case int8:
		w.WriteByte(byte(x))
	case uint8:
		w.WriteByte(x)
	case int16:
		w.WriteUint16(uint16(x))
	case uint16:
		w.WriteUint16(x)
	case int32:
		w.WriteUint32(uint32(x))
	case uint32:
		w.WriteUint32(x)
	case int:
		w.WriteUint64(uint64(int64(x)))
	case int64:
		w.WriteUint64(uint64(x))
	case uint:
		w.WriteUint64(uint64(x))
	case uint64:
		w.WriteUint64(x)
	case float32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(x))
		w.WriteBytes(b[:])
	case float64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(x))
		w.WriteBytes(b[:])
	case string:
		w.WriteLengthEncodedString([]byte(x))
	case []byte:
		w.WriteLengthEncodedString(x)
	case time.Time:
		encodeBinaryDatetime(w, x)
	case time.Duration:
		encodeBinaryDuration(w, x)
	default:
		return mdberrors.FeatureNotSupported(fmt.Sprintf("binary parameter encoding of %T", v))
	}
	return nil
}

// encodeBinaryDatetime writes Protocol::MYSQL_TYPE_DATETIME's
// variable-length binary form: a 1-byte length prefix (0, 4, 7, or 11)
// followed by year/month/day[/hour/min/sec[/microsecond]].
func encodeBinaryDatetime(w *mdbbuffer.Writer, t time.Time) {
	micro := t.Nanosecond() / 1000
	hasTime := t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || micro != 0
	if !hasTime {
		w.WriteByte(4)
		w.WriteUint16(uint16(t.Year()))
		w.WriteByte(byte(t.Month()))
		w.WriteByte(byte(t.Day()))
		return
	}
	if micro == 0 {
		w.WriteByte(7)
		w.WriteUint16(uint16(t.Year()))
		w.WriteByte(byte(t.Month()))
		w.WriteByte(byte(t.Day()))
		w.WriteByte(byte(t.Hour()))
		w.WriteByte(byte(t.Minute()))
		w.WriteByte(byte(t.Second()))
		return
	}
	w.WriteByte(11)
	w.WriteUint16(uint16(t.Year()))
	w.WriteByte(byte(t.Month()))
	w.WriteByte(byte(t.Day()))
	w.WriteByte(byte(t.Hour()))
	w.WriteByte(byte(t.Minute()))
	w.WriteByte(byte(t.Second()))
	w.WriteUint32(uint32(micro))
}

// encodeBinaryDuration writes Protocol::MYSQL_TYPE_TIME's variable-length
// binary form: 1-byte length prefix (0, 8, or 12), sign, days,
// hour/min/sec[/microsecond].
func encodeBinaryDuration(w *mdbbuffer.Writer, d time.Duration) {
	neg := d < 0
	if neg {
		d = -d
	}
	days := int64(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	h := int64(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int64(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s := int64(d / time.Second)
	d -= time.Duration(s) * time.Second
	micro := int64(d / time.Microsecond)

	if days == 0 && h == 0 && m == 0 && s == 0 && micro == 0 {
		w.WriteByte(0)
		return
	}
	if micro == 0 {
		w.WriteByte(8)
	} else {
		w.WriteByte(12)
	}
	if neg {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
	w.WriteUint32(uint32(days))
	w.WriteByte(byte(h))
	w.WriteByte(byte(m))
	w.WriteByte(byte(s))
	if micro != 0 {
		w.WriteUint32(uint32(micro))
	}
}

// DecodeBinaryDatetime reads a MYSQL_TYPE_DATETIME/TIMESTAMP/DATE binary
// row cell, per its variable-length encoding.
func DecodeBinaryDatetime(r *mdbbuffer.Reader, loc *time.Location) (time.Time, error) {
	n, err := r.ReadByte()
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	if n == 0 {
		return time.Time{}, nil
	}
	year, err := r.ReadUint16()
	if err != nil {
		return time.Time{}, err
	}
	month, err := r.ReadByte()
	if err != nil {
		return time.Time{}, err
	}
	day, err := r.ReadByte()
	if err != nil {
		return time.Time{}, err
	}
	var hour, min, sec byte
	var micro uint32
	if n >= 7 {
		if hour, err = r.ReadByte(); err != nil {
			return time.Time{}, err
		}
		if min, err = r.ReadByte(); err != nil {
			return time.Time{}, err
		}
		if sec, err = r.ReadByte(); err != nil {
			return time.Time{}, err
		}
	}
	if n >= 11 {
		if micro, err = r.ReadUint32(); err != nil {
			return time.Time{}, err
		}
	}
	return time.Date(int(year), time.Month(month), int(day), int(hour), int(min), int(sec), int(micro)*1000, loc), nil
}

// DecodeBinaryDuration reads a MYSQL_TYPE_TIME binary row cell as a
// time.Duration.
func DecodeBinaryDuration(r *mdbbuffer.Reader) (time.Duration, error) {
	n, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	sign, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	days, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	hour, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	min, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	sec, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	var micro uint32
	if n >= 12 {
		if micro, err = r.ReadUint32(); err != nil {
			return 0, err
		}
	}
	d := time.Duration(days)*24*time.Hour + time.Duration(hour)*time.Hour +
		time.Duration(min)*time.Minute + time.Duration(sec)*time.Second + time.Duration(micro)*time.Microsecond
	if sign == 1 {
		d = -d
	}
	return d, nil
}

// Point is a 2D geometry point as carried by ST_* columns.
type Point struct {
	X, Y float64
}

// Geometry decodes a MySQL GEOMETRY column: a 4-byte SRID followed by a
// standard WKB blob (spec 6: "Geometry values decode from WKB preceded by
// a 4-byte SRID"). Only the POINT WKB shape is decoded; other shapes
// report FeatureNotSupported since the adapter layer is out of scope.
type Geometry struct {
	SRID  uint32
	Point Point
}

// DecodeGeometry decodes raw into a Geometry value.
func DecodeGeometry(col *mdbcolumn.Definition, raw []byte) (Geometry, error) {
	if col.Type != mdbcolumn.TypeGeometry {
		return Geometry{}, cannotDecode(col, "Geometry")
	}
	if len(raw) < 4+1+4+16 {
		return Geometry{}, cannotDecodeValue("<short WKB>", "Geometry")
	}
	srid := binary.LittleEndian.Uint32(raw[0:4])
	byteOrder := raw[4]
	var bo binary.ByteOrder = binary.LittleEndian
	if byteOrder == 0 {
		bo = binary.BigEndian
	}
	wkbType := bo.Uint32(raw[5:9])
	if wkbType != 1 { // wkbPoint
		return Geometry{}, mdberrors.FeatureNotSupported("non-point WKB geometry decoding")
	}
	x := math.Float64frombits(bo.Uint64(raw[9:17]))
	y := math.Float64frombits(bo.Uint64(raw[17:25]))
	return Geometry{SRID: srid, Point: Point{X: x, Y: y}}, nil
}
