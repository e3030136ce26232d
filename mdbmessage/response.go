package mdbmessage

import (
	"github.com/dbbouncer/mdbclient/mdbbuffer"
	"github.com/dbbouncer/mdbclient/mdberrors"
)

// Header byte values that disambiguate a server response packet (spec 4.2
// "Command cycle").
const (
	headerOK       = 0x00
	headerEOF      = 0xfe
	headerErr      = 0xff
	headerLocalInfile = 0xfb
)

// OK is Protocol::OK_Packet.
type OK struct {
	AffectedRows uint64
	LastInsertID uint64
	Status       uint16
	Warnings     uint16
	Info         string
	SessionStateChanges []byte
}

// EOF is Protocol::EOF_Packet (only sent when DEPRECATE_EOF is not
// negotiated, or when it still appears in its raw shape from older
// servers).
type EOF struct {
	Warnings uint16
	Status   uint16
}

// ErrPacket is Protocol::ERR_Packet.
type ErrPacket struct {
	Code     uint16
	SQLState string
	Message  string
}

func (e ErrPacket) AsError() *mdberrors.Error {
	return mdberrors.Server(e.SQLState, e.Code, e.Message)
}

// LocalInfileRequest is Protocol::LOCAL_INFILE_Packet.
type LocalInfileRequest struct {
	Filename string
}

// ResultSetHeader is the leading column-count packet of a result set
// response (spec 4.2: "first byte is the column count").
type ResultSetHeader struct {
	ColumnCount uint64
}

// Classify inspects the first response packet's header byte and returns
// which shape it is. capEOFDeprecated must reflect whether
// CLIENT_DEPRECATE_EOF was negotiated, since that changes how a short 0xfe
// packet is interpreted (spec 4.2).
func Classify(payload []byte, capEOFDeprecated bool) (kind string, err error) {
	if len(payload) == 0 {
		return "", mdberrors.ProtocolData("empty response packet", nil)
	}
	switch payload[0] {
	case headerOK:
		if len(payload) >= 7 {
			return "ok", nil
		}
	case headerErr:
		return "err", nil
	case headerLocalInfile:
		return "local_infile", nil
	case headerEOF:
		if capEOFDeprecated && len(payload) < 0xffffff {
			return "ok", nil
		}
		if len(payload) < 9 {
			return "eof", nil
		}
	}
	return "result_header", nil
}

// DecodeOK parses an OK_Packet (or a DEPRECATE_EOF-flavored OK with header
// 0xfe). payload is the whole packet; DecodeOK skips the header byte
// itself.
func DecodeOK(payload []byte, capSessionTrack bool) (OK, error) {
	r := mdbbuffer.NewReader(payload)
	if _, err := r.ReadByte(); err != nil {
		return OK{}, err
	}
	var ok OK
	var err error
	ok.AffectedRows, _, err = r.ReadLengthEncodedInt()
	if err != nil {
		return OK{}, err
	}
	ok.LastInsertID, _, err = r.ReadLengthEncodedInt()
	if err != nil {
		return OK{}, err
	}
	status, err := r.ReadUint16()
	if err != nil {
		return OK{}, err
	}
	ok.Status = status
	warnings, err := r.ReadUint16()
	if err != nil {
		return OK{}, err
	}
	ok.Warnings = warnings
	if capSessionTrack && uint16(ok.Status)&0x4000 != 0 && r.Len() > 0 {
		info, _, err := r.ReadLengthEncodedString()
		if err != nil {
			return OK{}, err
		}
		ok.Info = string(info)
		changes, _, err := r.ReadLengthEncodedString()
		if err != nil {
			return OK{}, err
		}
		ok.SessionStateChanges = changes
	} else if r.Len() > 0 {
		ok.Info = string(r.ReadRestOfPacketString())
	}
	return ok, nil
}

// DecodeEOF parses a Protocol::EOF_Packet.
func DecodeEOF(payload []byte) (EOF, error) {
	r := mdbbuffer.NewReader(payload)
	if _, err := r.ReadByte(); err != nil {
		return EOF{}, err
	}
	warnings, err := r.ReadUint16()
	if err != nil {
		return EOF{}, err
	}
	status, err := r.ReadUint16()
	if err != nil {
		return EOF{}, err
	}
	return EOF{Warnings: warnings, Status: status}, nil
}

// DecodeErr parses a Protocol::ERR_Packet.
func DecodeErr(payload []byte) (ErrPacket, error) {
	r := mdbbuffer.NewReader(payload)
	if _, err := r.ReadByte(); err != nil {
		return ErrPacket{}, err
	}
	code, err := r.ReadUint16()
	if err != nil {
		return ErrPacket{}, err
	}
	var sqlState string
	if b, ok := r.PeekByte(); ok && b == '#' {
		r.Skip(1)
		sb, err := r.ReadBytes(5)
		if err != nil {
			return ErrPacket{}, err
		}
		sqlState = string(sb)
	}
	msg := string(r.ReadRestOfPacketString())
	return ErrPacket{Code: code, SQLState: sqlState, Message: msg}, nil
}

// DecodeResultSetHeader parses the leading column-count packet.
func DecodeResultSetHeader(payload []byte) (ResultSetHeader, error) {
	r := mdbbuffer.NewReader(payload)
	n, _, err := r.ReadLengthEncodedInt()
	if err != nil {
		return ResultSetHeader{}, err
	}
	return ResultSetHeader{ColumnCount: n}, nil
}

// DecodeLocalInfileRequest parses a LOCAL_INFILE request packet.
func DecodeLocalInfileRequest(payload []byte) (LocalInfileRequest, error) {
	r := mdbbuffer.NewReader(payload)
	if _, err := r.ReadByte(); err != nil {
		return LocalInfileRequest{}, err
	}
	return LocalInfileRequest{Filename: string(r.ReadRestOfPacketString())}, nil
}

// PrepareOK is Protocol::COM_STMT_PREPARE_OK.
type PrepareOK struct {
	StatementID  uint32
	NumColumns   uint16
	NumParams    uint16
	WarningCount uint16
}

// DecodePrepareOK parses a COM_STMT_PREPARE_OK response header packet.
func DecodePrepareOK(payload []byte) (PrepareOK, error) {
	r := mdbbuffer.NewReader(payload)
	if _, err := r.ReadByte(); err != nil {
		return PrepareOK{}, err
	}
	id, err := r.ReadUint32()
	if err != nil {
		return PrepareOK{}, err
	}
	cols, err := r.ReadUint16()
	if err != nil {
		return PrepareOK{}, err
	}
	params, err := r.ReadUint16()
	if err != nil {
		return PrepareOK{}, err
	}
	if _, err := r.ReadByte(); err != nil { // filler
		return PrepareOK{}, err
	}
	warnings, err := r.ReadUint16()
	if err != nil {
		return PrepareOK{}, err
	}
	return PrepareOK{StatementID: id, NumColumns: cols, NumParams: params, WarningCount: warnings}, nil
}
