// Package mdbtype implements the scalar/temporal codec layer: converting
// between the wire's text and binary row encodings and Go-facing values
// (spec 4.7 "Codecs").
package mdbtype

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dbbouncer/mdbclient/mdbcolumn"
	"github.com/dbbouncer/mdbclient/mdberrors"
)

// BinaryTypeCode is the wire type code used in COM_STMT_EXECUTE's
// parameter-type block; it reuses mdbcolumn.Type's numbering.
type BinaryTypeCode = mdbcolumn.Type

// cannotDecode builds the exact "Data type X cannot be decoded as Y"
// message spec 4.7/8 mandates.
func cannotDecode(col *mdbcolumn.Definition, target string) error {
	return mdberrors.CannotDecode(col.Type.String(), target)
}

func cannotDecodeValue(value, target string) error {
	return mdberrors.CannotDecodeValue(value, target)
}

// isIntegerType reports whether t is one of the integer server types a
// numeric-target codec may decode from (spec 4.7 "set of source data-type tags it can decode
// from").
func isIntegerType(t mdbcolumn.Type) bool {
	switch t {
	case mdbcolumn.TypeTiny, mdbcolumn.TypeShort, mdbcolumn.TypeLong,
		mdbcolumn.TypeLongLong, mdbcolumn.TypeInt24, mdbcolumn.TypeYear,
		mdbcolumn.TypeBit:
		return true
	}
	return false
}

func isFloatType(t mdbcolumn.Type) bool {
	switch t {
	case mdbcolumn.TypeFloat, mdbcolumn.TypeDouble, mdbcolumn.TypeDecimal, mdbcolumn.TypeNewDecimal:
		return true
	}
	return false
}

func isNumericType(t mdbcolumn.Type) bool { return isIntegerType(t) || isFloatType(t) }

func isStringType(t mdbcolumn.Type) bool {
	switch t {
	case mdbcolumn.TypeVarchar, mdbcolumn.TypeVarString, mdbcolumn.TypeString,
		mdbcolumn.TypeEnum, mdbcolumn.TypeSet, mdbcolumn.TypeBlob,
		mdbcolumn.TypeTinyBlob, mdbcolumn.TypeMediumBlob, mdbcolumn.TypeLongBlob,
		mdbcolumn.TypeJSON, mdbcolumn.TypeDecimal, mdbcolumn.TypeNewDecimal:
		return true
	}
	return false
}

func isTemporalType(t mdbcolumn.Type) bool {
	switch t {
	case mdbcolumn.TypeDate, mdbcolumn.TypeNewDate, mdbcolumn.TypeDatetime, mdbcolumn.TypeTimestamp, mdbcolumn.TypeTime:
		return true
	}
	return false
}

// DecodeInt64 decodes a text or binary cell as a 64-bit signed integer.
// Used as the base for the byte/short/int/long accessor family (spec 8
// scenario 1).
func DecodeInt64(col *mdbcolumn.Definition, text string, isText bool) (int64, bool, error) {
	if text == "" && isText {
		// caller is responsible for distinguishing NULL from empty
		// string before calling in; here an empty string is a parse
		// failure for non-string source types.
	}
	if !isNumericType(col.Type) {
		return 0, false, cannotDecode(col, "long")
	}
	if isFloatType(col.Type) {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, false, cannotDecodeValue(text, "long")
		}
		return int64(f), false, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		if col.IsUnsigned() {
			u, uerr := strconv.ParseUint(strings.TrimSpace(text), 10, 64)
			if uerr != nil {
				return 0, false, cannotDecodeValue(text, "long")
			}
			return int64(u), false, nil
		}
		return 0, false, cannotDecodeValue(text, "long")
	}
	return v, false, nil
}

// DecodeInt32 narrows DecodeInt64's result to int32, reporting overflow as
// a decode failure (spec 4.7: "Numeric overflow ... is a decode failure").
func DecodeInt32(col *mdbcolumn.Definition, text string) (int32, error) {
	v, _, err := DecodeInt64(col, text, true)
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, cannotDecodeValue(text, "int")
	}
	return int32(v), nil
}

// DecodeInt16 narrows to int16 with overflow detection.
func DecodeInt16(col *mdbcolumn.Definition, text string) (int16, error) {
	v, _, err := DecodeInt64(col, text, true)
	if err != nil {
		return 0, err
	}
	if v < math.MinInt16 || v > math.MaxInt16 {
		return 0, cannotDecodeValue(text, "short")
	}
	return int16(v), nil
}

// DecodeInt8 narrows to int8 (byte accessor) with overflow detection.
func DecodeInt8(col *mdbcolumn.Definition, text string) (int8, error) {
	v, _, err := DecodeInt64(col, text, true)
	if err != nil {
		return 0, err
	}
	if v < math.MinInt8 || v > math.MaxInt8 {
		return 0, cannotDecodeValue(text, "byte")
	}
	return int8(v), nil
}

// DecodeFloat32 decodes a cell as float32 (spec 8 scenario 1: FLOAT
// accessors truncate, do not round, when read as integer types; the
// float/double accessors here are the terminal case).
func DecodeFloat32(col *mdbcolumn.Definition, text string) (float32, error) {
	if !isNumericType(col.Type) {
		return 0, cannotDecode(col, "float")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 32)
	if err != nil {
		return 0, cannotDecodeValue(text, "float")
	}
	return float32(f), nil
}

// DecodeFloat64 decodes a cell as float64.
func DecodeFloat64(col *mdbcolumn.Definition, text string) (float64, error) {
	if !isNumericType(col.Type) {
		return 0, cannotDecode(col, "double")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, cannotDecodeValue(text, "double")
	}
	return f, nil
}

// DecodeBool decodes any numeric cell as a boolean: any non-zero value is
// true (spec 4.7: "Boolean decoding treats any non-zero numeric as
// true.").
func DecodeBool(col *mdbcolumn.Definition, text string) (bool, error) {
	if !isNumericType(col.Type) {
		return false, cannotDecode(col, "boolean")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return false, cannotDecodeValue(text, "boolean")
	}
	return f != 0, nil
}

// DecodeString decodes a cell as a Go string; any server type whose wire
// form is textual or whose text representation is meaningful (numerics,
// temporals) can decode as string.
func DecodeString(col *mdbcolumn.Definition, text string) (string, error) {
	return text, nil
}

// DecodeBytes decodes a cell as raw bytes; meaningful for BLOB/BINARY
// columns. The caller passes the cell's raw (pre-text-decode) bytes.
func DecodeBytes(col *mdbcolumn.Definition, raw []byte) ([]byte, error) {
	switch col.Type {
	case mdbcolumn.TypeBlob, mdbcolumn.TypeTinyBlob, mdbcolumn.TypeMediumBlob,
		mdbcolumn.TypeLongBlob, mdbcolumn.TypeVarString, mdbcolumn.TypeString,
		mdbcolumn.TypeVarchar, mdbcolumn.TypeGeometry:
		return raw, nil
	default:
		return nil, cannotDecode(col, "byte[]")
	}
}

// DecodeURL parses a string column's text as a URL. It is only
// meaningful for string-typed columns; non-string types and malformed
// URL strings both fail as decode errors (spec 4.7: "URL is produced
// only from strings and fails with a syntactic error if the string does
// not parse").
func DecodeURL(col *mdbcolumn.Definition, text string) (*url.URL, error) {
	if !isStringType(col.Type) {
		return nil, cannotDecode(col, "URL")
	}
	u, err := url.Parse(text)
	if err != nil {
		return nil, cannotDecodeValue(text, "URL")
	}
	return u, nil
}

// dateLayout/datetimeLayout/timeLayout mirror the wire's text-protocol
// temporal formats.
const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
	timeLayout     = "15:04:05"
)

// DecodeTime decodes a DATE/DATETIME/TIMESTAMP/TIME cell as time.Time, in
// loc (callers pass the connection's configured timezone, "disable"
// mapping to time.Local).
func DecodeTime(col *mdbcolumn.Definition, text string, loc *time.Location) (time.Time, error) {
	if !isTemporalType(col.Type) {
		return time.Time{}, cannotDecode(col, "Timestamp")
	}
	if loc == nil {
		loc = time.Local
	}
	trimmed := text
	var fracSeconds float64
	if dot := strings.IndexByte(text, '.'); dot >= 0 {
		trimmed = text[:dot]
		fracSeconds, _ = strconv.ParseFloat("0"+text[dot:], 64)
	}

	var layout string
	switch col.Type {
	case mdbcolumn.TypeDate, mdbcolumn.TypeNewDate:
		layout = dateLayout
	case mdbcolumn.TypeTime:
		layout = timeLayout
	default:
		layout = datetimeLayout
	}
	t, err := time.ParseInLocation(layout, trimmed, loc)
	if err != nil {
		return time.Time{}, cannotDecodeValue(text, "Timestamp")
	}
	if fracSeconds > 0 {
		t = t.Add(time.Duration(fracSeconds * float64(time.Second)))
	}
	return t, nil
}

// DecodeDuration decodes a TIME cell as a time.Duration (spec 8 scenario
// 2: "getObject(1, Duration.class)"), which may exceed 24h and may be
// negative.
func DecodeDuration(col *mdbcolumn.Definition, text string) (time.Duration, error) {
	if col.Type != mdbcolumn.TypeTime {
		return 0, cannotDecode(col, "Duration")
	}
	neg := strings.HasPrefix(text, "-")
	s := strings.TrimPrefix(text, "-")
	var h, m, sec int
	var frac string
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		frac = s[dot:]
		s = s[:dot]
	}
	n, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec)
	if err != nil || n != 3 {
		return 0, cannotDecodeValue(text, "Duration")
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
	if frac != "" {
		f, _ := strconv.ParseFloat("0"+frac, 64)
		d += time.Duration(f * float64(time.Second))
	}
	if neg {
		d = -d
	}
	return d, nil
}

// EncodeTextLiteral renders v as the SQL text literal substituted into a
// client-side-rewritten query (spec 4.7: "whether it can encode as a text
// literal").
func EncodeTextLiteral(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case []byte:
		return "x'" + fmt.Sprintf("%x", x) + "'", nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x), nil
	case float32, float64:
		return fmt.Sprintf("%v", x), nil
	case time.Time:
		return "'" + x.Format(datetimeLayout+".000000") + "'", nil
	case time.Duration:
		return "'" + formatDuration(x) + "'", nil
	case *url.URL:
		return "'" + strings.ReplaceAll(x.String(), "'", "''") + "'", nil
	default:
		return "", mdberrors.FeatureNotSupported(fmt.Sprintf("text-literal encoding of %T", v))
	}
}

func formatDuration(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}
	h := int64(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int64(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s := int64(d / time.Second)
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, s)
}

// BinaryParamCode returns the wire type code to advertise for v in a
// COM_STMT_EXECUTE parameter-type block, and whether it is unsigned.
func BinaryParamCode(v any) (mdbcolumn.Type, bool, error) {
	switch v.(type) {
	case nil:
		return mdbcolumn.TypeNull, false, nil
	case string:
		return mdbcolumn.TypeVarString, false, nil
	case []byte:
		return mdbcolumn.TypeBlob, false, nil
	case bool, int8:
		return mdbcolumn.TypeTiny, false, nil
	case int16:
		return mdbcolumn.TypeShort, false, nil
	case int32:
		return mdbcolumn.TypeLong, false, nil
	case int, int64:
		return mdbcolumn.TypeLongLong, false, nil
	case uint8:
		return mdbcolumn.TypeTiny, true, nil
	case uint16:
		return mdbcolumn.TypeShort, true, nil
	case uint32:
		return mdbcolumn.TypeLong, true, nil
	case uint, uint64:
		return mdbcolumn.TypeLongLong, true, nil
	case float32:
		return mdbcolumn.TypeFloat, false, nil
	case float64:
		return mdbcolumn.TypeDouble, false, nil
	case time.Time:
		return mdbcolumn.TypeDatetime, false, nil
	case time.Duration:
		return mdbcolumn.TypeTime, false, nil
	default:
		return 0, false, mdberrors.FeatureNotSupported(fmt.Sprintf("binary parameter encoding of %T", v))
	}
}
