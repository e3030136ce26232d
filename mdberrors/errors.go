// Package mdberrors defines the stable SQLSTATE-classed error kinds the
// client surfaces (spec 7, "Error handling design").
package mdberrors

import "fmt"

// Class is a stable SQLSTATE class, e.g. "08" for connection errors.
type Class string

const (
	ClassConnection       Class = "08"
	ClassAuth             Class = "28"
	ClassProtocolData     Class = "22"
	ClassFeatureNotSupported Class = "0A"
	ClassServer           Class = "HY" // overridden per-error from the server's own SQLSTATE
	ClassInterrupted      Class = "70"
)

// Kind enumerates the error categories from spec 7.
type Kind int

const (
	KindConnection Kind = iota
	KindAuth
	KindProtocolData
	KindFeatureNotSupported
	KindServer
	KindInterrupted
)

// Error is the typed error this client returns at every boundary. It wraps
// an optional underlying cause so errors.Is/errors.As keep working.
type Error struct {
	Kind     Kind
	SQLState string // 5-character SQLSTATE, "HY000" if unknown
	Code     uint16 // server error code, 0 if not server-originated
	Message  string
	Cause    error

	// MustReconnect is set on connection errors where the socket was
	// destroyed and cannot be reused (spec 7: "must-reconnect" sub-kind
	// of packet-too-big, and fatal transport failures generally).
	MustReconnect bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s]: %v", e.Message, e.SQLState, e.Cause)
	}
	return fmt.Sprintf("%s [%s]", e.Message, e.SQLState)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, class Class, msg string, cause error) *Error {
	return &Error{Kind: kind, SQLState: string(class) + "000", Message: msg, Cause: cause}
}

// Connection builds a transport/handshake-level error.
func Connection(msg string, cause error) *Error {
	return newErr(KindConnection, ClassConnection, msg, cause)
}

// ConnectionFatal builds a transport error whose socket must be destroyed
// and cannot be salvaged by transaction replay.
func ConnectionFatal(msg string, cause error) *Error {
	e := newErr(KindConnection, ClassConnection, msg, cause)
	e.MustReconnect = true
	return e
}

// PacketTooBig reports max_allowed_packet being exceeded on write. When the
// write pointer is already past the point of no return the socket must be
// destroyed (spec 4.1).
func PacketTooBig(limit int, mustDestroy bool) *Error {
	e := newErr(KindConnection, ClassConnection, fmt.Sprintf("packet too big: exceeds max_allowed_packet (%d)", limit), nil)
	e.MustReconnect = mustDestroy
	return e
}

// Auth builds an authentication-phase error.
func Auth(msg string, cause error) *Error {
	return newErr(KindAuth, ClassAuth, msg, cause)
}

// ProtocolData builds a codec decode/encode failure.
func ProtocolData(msg string, cause error) *Error {
	return newErr(KindProtocolData, ClassProtocolData, msg, cause)
}

// CannotDecode formats the exact message spec 4.7 / 8 requires.
func CannotDecode(serverType, target string) *Error {
	return ProtocolData(fmt.Sprintf("Data type %s cannot be decoded as %s", serverType, target), nil)
}

// CannotDecodeValue formats the value-level decode failure message.
func CannotDecodeValue(value, target string) *Error {
	return ProtocolData(fmt.Sprintf("value '%s' cannot be decoded as %s", value, target), nil)
}

// FeatureNotSupported builds a "0A000" error for an intentionally
// unimplemented feature (updatable result sets, cursors, XML, RowId, Ref,
// Array).
func FeatureNotSupported(feature string) *Error {
	return newErr(KindFeatureNotSupported, ClassFeatureNotSupported, feature+" is not supported", nil)
}

// Server wraps a pass-through server ERR_Packet.
func Server(sqlState string, code uint16, message string) *Error {
	if len(sqlState) != 5 {
		sqlState = "HY000"
	}
	return &Error{Kind: KindServer, SQLState: sqlState, Code: code, Message: message}
}

// Interrupted builds a "70100" error for a waiter that was interrupted.
func Interrupted(msg string) *Error {
	e := newErr(KindInterrupted, ClassInterrupted, msg, nil)
	e.SQLState = "70100"
	return e
}

// IsFatal reports whether the server error code is in the set that forces
// the session to be destroyed rather than remaining usable (spec 4.2,
// "ERR... session remains usable unless code is in the fatal set").
func IsFatal(code uint16) bool {
	switch code {
	case 1927, // ER_CONNECTION_KILLED
		2013, // CR_SERVER_LOST
		2006, // CR_SERVER_GONE_ERROR
		1053, // ER_SERVER_SHUTDOWN
		1158, // ER_NET_READ_ERROR
		1159, // ER_NET_READ_INTERRUPTED
		1160, // ER_NET_ERROR_ON_WRITE
		1161: // ER_NET_WRITE_INTERRUPTED
		return true
	default:
		return false
	}
}
