package mdbsession

import (
	"github.com/dbbouncer/mdbclient/mdbbuffer"
	"github.com/dbbouncer/mdbclient/mdbcolumn"
	"github.com/dbbouncer/mdbclient/mdbcontext"
	"github.com/dbbouncer/mdbclient/mdbmessage"
	"github.com/dbbouncer/mdbclient/mdbprepare"
	"github.com/dbbouncer/mdbclient/mdbrow"
	"github.com/dbbouncer/mdbclient/mdbtype"
)

// Prepare obtains a cached or freshly-prepared statement handle for sql
// (spec 4.5 "Prepare cache").
func (s *Session) Prepare(sql string) (*mdbprepare.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.prepare.Get(sql); ok {
		return cached, nil
	}
	result, err := s.prepareOnWire(sql)
	if err != nil {
		return nil, err
	}
	return s.prepare.Put(sql, result), nil
}

func (s *Session) prepareOnWire(sql string) (*mdbprepare.Result, error) {
	first, err := s.send(mdbmessage.StmtPrepare{SQL: sql})
	if err != nil {
		return nil, err
	}
	kind, err := mdbmessage.Classify(first, s.deprecateEOF())
	if err != nil {
		return nil, err
	}
	if kind == "err" {
		ep, err := mdbmessage.DecodeErr(first)
		if err != nil {
			return nil, err
		}
		return nil, s.handleServerError(ep)
	}
	ok, err := mdbmessage.DecodePrepareOK(first)
	if err != nil {
		return nil, err
	}

	var params []*mdbcolumn.Definition
	for i := uint16(0); i < ok.NumParams; i++ {
		payload, err := s.reader.ReadPacket()
		if err != nil {
			s.destroy()
			return nil, err
		}
		col, err := mdbcolumn.Parse(payload)
		if err != nil {
			return nil, err
		}
		params = append(params, col)
	}
	if ok.NumParams > 0 && !s.deprecateEOF() {
		if _, err := s.reader.ReadPacket(); err != nil {
			s.destroy()
			return nil, err
		}
	}

	var columns []*mdbcolumn.Definition
	for i := uint16(0); i < ok.NumColumns; i++ {
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
	if ok.NumColumns > 0 && !s.deprecateEOF() {
		if _, err := s.reader.ReadPacket(); err != nil {
			s.destroy()
			return nil, err
		}
	}

	return &mdbprepare.Result{
		StatementID: ok.StatementID,
		ParamCount:  int(ok.NumParams),
		Columns:     columns,
	}, nil
}

// Execute runs a prepared statement with the given parameter values (spec
// 4.2 "Prepared statements").
func (s *Session) Execute(stmt *mdbprepare.Result, params []any, sqlForReplay string) (*ResultSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := buildStmtExecute(stmt, params, sqlForReplay)
	if err != nil {
		return nil, err
	}
	return s.executeLocked(msg)
}

func buildStmtExecute(stmt *mdbprepare.Result, params []any, sqlForReplay string) (mdbmessage.StmtExecute, error) {
	n := stmt.ParamCount
	bitmapLen := (n + 7) / 8
	nullBitmap := make([]byte, bitmapLen)
	for i, v := range params {
		if v == nil {
			nullBitmap[i/8] |= 1 << uint(i%8)
		}
	}

	typesBuf := mdbbuffer.NewWriter()
	valuesBuf := mdbbuffer.NewWriter()
	for _, v := range params {
		code, unsigned, err := mdbtype.BinaryParamCode(v)
		if err != nil {
			return mdbmessage.StmtExecute{}, err
		}
		flag := byte(0)
		if unsigned {
			flag = 0x80
		}
		typesBuf.WriteByte(byte(code))
		typesBuf.WriteByte(flag)
		if v != nil {
			if err := mdbtype.EncodeBinaryParam(valuesBuf, v); err != nil {
				return mdbmessage.StmtExecute{}, err
			}
		}
	}

	return mdbmessage.StmtExecute{
		StatementID:    stmt.StatementID,
		IterationCount: 1,
		CursorType:     0,
		NewParamsBound: len(params) > 0,
		ParamTypes:     typesBuf.Bytes(),
		ParamValues:    valuesBuf.Bytes(),
		NullBitmap:     nullBitmap,
		SQLForReplay:   sqlForReplay,
	}, nil
}

func (s *Session) executeLocked(msg mdbmessage.StmtExecute) (*ResultSet, error) {
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
		if _, err := s.reader.ReadPacket(); err != nil {
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
		if len(payload) > 0 && payload[0] == 0xfe && len(payload) < 9 {
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
		row, err := mdbrow.DecodeBinaryRow(payload, columns)
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, row)
	}
	s.recordIfTransaction(msg)
	return rs, nil
}

// CloseStatement releases a statement handle, deferring to the prepare
// cache's ref-counting (spec 4.5 "decrementUse").
func (s *Session) CloseStatement(stmt *mdbprepare.Result) {
	s.prepare.DecrementUse(stmt)
}
