package mdbsession

import (
	"io"

	"github.com/dbbouncer/mdbclient/mdbbuffer"
	"github.com/dbbouncer/mdbclient/mdbcolumn"
	"github.com/dbbouncer/mdbclient/mdbcontext"
	"github.com/dbbouncer/mdbclient/mdberrors"
	"github.com/dbbouncer/mdbclient/mdbmessage"
	"github.com/dbbouncer/mdbclient/mdbrow"
)

// ResultSet is a buffered (non-streaming) query result: every row has
// already been read off the socket (spec 3 "ResultSet").
type ResultSet struct {
	Columns []*mdbcolumn.Definition
	Rows    []*mdbrow.Row

	pos int
}

// Next advances the cursor and reports whether a row is available.
func (rs *ResultSet) Next() bool {
	if rs.pos >= len(rs.Rows) {
		return false
	}
	rs.pos++
	return true
}

// Row returns the row at the current cursor position; valid only after a
// successful Next.
func (rs *ResultSet) Row() *mdbrow.Row {
	if rs.pos == 0 || rs.pos > len(rs.Rows) {
		return nil
	}
	return rs.Rows[rs.pos-1]
}

// ExecResult is the outcome of a non-result-set command (spec 3: "OK
// bearing insert-id vs empty OK" — here represented as a single tagged
// struct rather than a class hierarchy).
type ExecResult struct {
	AffectedRows uint64
	LastInsertID uint64
	Warnings     uint16
}

// resetForCommand resets the protocol sequence and flushes any
// outstanding streaming result before a new command is issued (spec 4.2
// "Command cycle": "Before any command: reset protocol sequence to 0;
// flush any outstanding streaming result").
func (s *Session) resetForCommand() error {
	if s.streaming != nil && !s.streaming.Done {
		if err := s.drainStreaming(); err != nil {
			return err
		}
	}
	s.reader.ResetSequence()
	s.writer.ResetSequence()
	return nil
}

func (s *Session) drainStreaming() error {
	for s.streaming != nil && !s.streaming.Done {
		payload, err := s.reader.ReadPacket()
		if err != nil {
			s.destroy()
			return err
		}
		kind, err := mdbmessage.Classify(payload, s.ctx.Capabilities.Has(0x1000000))
		if err != nil {
			return err
		}
		if kind == "ok" || kind == "eof" {
			s.streaming.Done = true
		}
	}
	s.streaming = nil
	return nil
}

// sendNoReply writes msg's command byte/body with no expectation of a
// response (QUIT, STMT_CLOSE).
func (s *Session) sendNoReply(msg mdbmessage.Message) error {
	w := mdbbuffer.NewWriter()
	msg.Encode(w)
	if err := s.writer.WritePacket(w.Bytes()); err != nil {
		s.destroy()
		return err
	}
	return nil
}

// send writes msg and returns the first response packet.
func (s *Session) send(msg mdbmessage.Message) ([]byte, error) {
	if err := s.resetForCommand(); err != nil {
		return nil, err
	}
	w := mdbbuffer.NewWriter()
	msg.Encode(w)
	if err := s.writer.WritePacket(w.Bytes()); err != nil {
		s.destroy()
		return nil, mdberrors.ConnectionFatal("writing "+msg.Description(), err)
	}
	payload, err := s.reader.ReadPacket()
	if err != nil {
		s.destroy()
		return nil, err
	}
	return payload, nil
}

func (s *Session) deprecateEOF() bool {
	return s.ctx.Capabilities.Has(1 << 24) // mdbcapability.DeprecateEOF
}

func (s *Session) sessionTrackEnabled() bool {
	return s.ctx.Capabilities.Has(1 << 23) // mdbcapability.SessionTrack
}

// Query executes COM_QUERY and fully buffers the result (spec 4.2
// "Command cycle").
func (s *Session) Query(sql string) (*ResultSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryLocked(mdbmessage.Query{SQL: sql})
}

func (s *Session) execSimple(sql string) (ExecResult, error) {
	res, err := s.execLocked(mdbmessage.Query{SQL: sql})
	return res, err
}

func (s *Session) queryLocked(msg mdbmessage.Message) (*ResultSet, error) {
	first, err := s.send(msg)
	if err != nil {
		return nil, err
	}
	kind, err := mdbmessage.Classify(first, s.deprecateEOF())
	if err != nil {
		return nil, err
	}
	if kind == "local_infile" {
		first, err = s.handleLocalInfile(first)
		if err != nil {
			return nil, err
		}
		kind, err = mdbmessage.Classify(first, s.deprecateEOF())
		if err != nil {
			return nil, err
		}
	}
	switch kind {
	case "ok":
		ok, err := mdbmessage.DecodeOK(first, s.sessionTrackEnabled())
		if err != nil {
			return nil, err
		}
		s.ctx.UpdateFromOK(mdbcontext.ServerStatus(ok.Status), ok.Warnings)
		s.recordIfTransaction(msg)
		return &ResultSet{}, nil
	case "err":
		ep, err := mdbmessage.DecodeErr(first)
		if err != nil {
			return nil, err
		}
		return nil, s.handleServerError(ep)
	}

	hdr, err := mdbmessage.DecodeResultSetHeader(first)
	if err != nil {
		return nil, err
	}
	columns := make([]*mdbcolumn.Definition, 0, hdr.ColumnCount)
	for i := uint64(0); i < hdr.ColumnCount; i++ {
		payload, err := s.reader.ReadPacket()
		if err != nil {
			s.destroy()
			return nil, err
		}
		col, err := mdbcolumn.Parse(payload)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	if !s.deprecateEOF() {
		if _, err := s.reader.ReadPacket(); err != nil { // column EOF
			s.destroy()
			return nil, err
		}
	}

	rs := &ResultSet{Columns: columns}
	for {
		payload, err := s.reader.ReadPacket()
		if err != nil {
			s.destroy()
			return nil, err
		}
		if len(payload) > 0 && (payload[0] == 0xfe && len(payload) < 9) {
			eof, err := mdbmessage.DecodeEOF(payload)
			if err != nil {
				return nil, err
			}
			s.ctx.UpdateFromOK(mdbcontext.ServerStatus(eof.Status), eof.Warnings)
			break
		}
		if len(payload) > 0 && payload[0] == 0xff {
			ep, err := mdbmessage.DecodeErr(payload)
			if err != nil {
				return nil, err
			}
			return nil, s.handleServerError(ep)
		}
		row, err := mdbrow.DecodeTextRow(payload, columns)
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, row)
	}
	s.recordIfTransaction(msg)
	return rs, nil
}

func (s *Session) execLocked(msg mdbmessage.Message) (ExecResult, error) {
	first, err := s.send(msg)
	if err != nil {
		return ExecResult{}, err
	}
	kind, err := mdbmessage.Classify(first, s.deprecateEOF())
	if err != nil {
		return ExecResult{}, err
	}
	if kind == "local_infile" {
		first, err = s.handleLocalInfile(first)
		if err != nil {
			return ExecResult{}, err
		}
		kind, err = mdbmessage.Classify(first, s.deprecateEOF())
		if err != nil {
			return ExecResult{}, err
		}
	}
	if kind == "err" {
		ep, err := mdbmessage.DecodeErr(first)
		if err != nil {
			return ExecResult{}, err
		}
		return ExecResult{}, s.handleServerError(ep)
	}
	ok, err := mdbmessage.DecodeOK(first, s.sessionTrackEnabled())
	if err != nil {
		return ExecResult{}, err
	}
	s.ctx.UpdateFromOK(mdbcontext.ServerStatus(ok.Status), ok.Warnings)
	s.recordIfTransaction(msg)
	return ExecResult{AffectedRows: ok.AffectedRows, LastInsertID: ok.LastInsertID, Warnings: ok.Warnings}, nil
}

// handleServerError surfaces a server ERR_Packet. The session remains
// usable unless the error code is in the fatal set (spec 4.2).
func (s *Session) handleServerError(ep mdbmessage.ErrPacket) error {
	if mdberrors.IsFatal(ep.Code) {
		s.destroy()
	}
	return ep.AsError()
}

// handleLocalInfile answers a LOCAL INFILE request (spec 4.2 "Command
// cycle": "0xFB: LOCAL INFILE request → stream local file contents back
// in packets, terminated by an empty packet, then read the OK"). It
// returns the packet that follows the stream, which per protocol is
// always an OK or ERR.
func (s *Session) handleLocalInfile(first []byte) ([]byte, error) {
	req, err := mdbmessage.DecodeLocalInfileRequest(first)
	if err != nil {
		return nil, err
	}
	if err := s.streamLocalInfile(req.Filename); err != nil {
		s.destroy()
		return nil, err
	}
	next, err := s.reader.ReadPacket()
	if err != nil {
		s.destroy()
		return nil, err
	}
	return next, nil
}

// streamLocalInfile writes filename's contents as a sequence of packets
// terminated by an empty one. With no LocalInfile handler configured the
// client declines by sending the empty packet immediately, never
// touching the local filesystem on a bare server request.
func (s *Session) streamLocalInfile(filename string) error {
	if s.cfg.LocalInfile == nil {
		return s.writer.WritePacket(nil)
	}
	r, err := s.cfg.LocalInfile(filename)
	if err != nil {
		_ = s.writer.WritePacket(nil)
		return mdberrors.ProtocolData("local infile handler rejected "+filename, err)
	}
	if closer, ok := r.(io.Closer); ok {
		defer closer.Close()
	}

	buf := make([]byte, 16*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if werr := s.writer.WritePacket(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = s.writer.WritePacket(nil)
			return mdberrors.ProtocolData("reading local infile "+filename, rerr)
		}
	}
	return s.writer.WritePacket(nil)
}

// recordIfTransaction appends msg to the redo buffer when replay is
// enabled and a transaction is currently open (spec 4.2 "Transaction
// replay": "each mutating command is additionally appended to the
// TransactionSaver if in-transaction").
func (s *Session) recordIfTransaction(msg mdbmessage.Message) {
	if !s.cfg.ReplayEnabled {
		return
	}
	if s.ctx.InTransaction() {
		s.saver.Record(msg)
	} else {
		s.saver.Clear()
	}
}

// Ping issues COM_PING, used by the pool for lightweight validation (spec
// 4.4 "isValid").
func (s *Session) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.send(mdbmessage.Ping{})
	return err
}

// InitDB issues COM_INIT_DB to switch the current database.
func (s *Session) InitDB(schema string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.execLocked(mdbmessage.InitDB{Schema: schema})
	if err == nil {
		s.ctx.Database = schema
		s.ctx.StateFlags |= mdbcontext.StateDatabase
	}
	return err
}

// ResetConnection issues COM_RESET_CONNECTION and clears the prepare
// cache and redo buffer, used by the pool's reset() between checkouts
// (spec 6 "useResetConnection").
func (s *Session) ResetConnection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.execLocked(mdbmessage.ResetConnection{})
	s.prepare.Clear()
	s.saver.Clear()
	s.ctx.StateFlags = 0
	return err
}
