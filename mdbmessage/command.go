// Package mdbmessage holds typed representations of client commands and
// server responses (spec 4.8 "Message taxonomy").
package mdbmessage

import "github.com/dbbouncer/mdbclient/mdbbuffer"

// Command byte values (spec 6).
const (
	ComQuit             byte = 0x01
	ComInitDB           byte = 0x02
	ComQuery            byte = 0x03
	ComPing             byte = 0x0e
	ComStmtPrepare      byte = 0x16
	ComStmtExecute      byte = 0x17
	ComStmtSendLongData byte = 0x18
	ComStmtClose        byte = 0x19
	ComStmtReset        byte = 0x1a
	ComSetOption        byte = 0x1b
	ComResetConnection  byte = 0x1f
)

// Message is a client command: it knows how to encode itself, its
// description (for error attachment), and whether it can be replayed
// inside a transaction redo (spec 4.8). It does not report how many
// response packets follow.
type Message interface {
	// Encode appends the command's wire payload (including the leading
	// command byte) to the buffer.
	Encode(w *mdbbuffer.Writer)

	// Description is a short human-readable label used when wrapping
	// errors raised while sending or decoding the response to this
	// command.
	Description() string

	// Redoable reports whether this message can be recorded in a
	// TransactionSaver and replayed on a new connection.
	Redoable() bool
}

// Query is COM_QUERY: execute SQL text using the text protocol.
type Query struct {
	SQL string
}

func (q Query) Encode(w *mdbbuffer.Writer) {
	w.WriteByte(ComQuery)
	w.WriteBytes([]byte(q.SQL))
}

func (q Query) Description() string { return "query: " + truncate(q.SQL) }
func (q Query) Redoable() bool      { return true }

// InitDB is COM_INIT_DB: switch the default database.
type InitDB struct {
	Schema string
}

func (c InitDB) Encode(w *mdbbuffer.Writer) {
	w.WriteByte(ComInitDB)
	w.WriteBytes([]byte(c.Schema))
}

func (c InitDB) Description() string { return "use " + c.Schema }
func (c InitDB) Redoable() bool      { return true }

// Ping is COM_PING: a no-op round trip used for pool validation.
type Ping struct{}

func (Ping) Encode(w *mdbbuffer.Writer) { w.WriteByte(ComPing) }
func (Ping) Description() string       { return "ping" }
func (Ping) Redoable() bool            { return false }

// Quit is COM_QUIT: ask the server to close the connection. No reply is
// expected.
type Quit struct{}

func (Quit) Encode(w *mdbbuffer.Writer) { w.WriteByte(ComQuit) }
func (Quit) Description() string       { return "quit" }
func (Quit) Redoable() bool            { return false }

// ResetConnection is COM_RESET_CONNECTION: reset session state (variables,
// current transaction, prepared statements) while keeping the socket.
type ResetConnection struct{}

func (ResetConnection) Encode(w *mdbbuffer.Writer) { w.WriteByte(ComResetConnection) }
func (ResetConnection) Description() string        { return "reset connection" }
func (ResetConnection) Redoable() bool             { return false }

// SetOption is COM_SET_OPTION: toggle CLIENT_MULTI_STATEMENTS at runtime.
type SetOption struct {
	Enable bool
}

func (s SetOption) Encode(w *mdbbuffer.Writer) {
	w.WriteByte(ComSetOption)
	if s.Enable {
		w.WriteUint16(0)
	} else {
		w.WriteUint16(1)
	}
}

func (s SetOption) Description() string { return "set option" }
func (s SetOption) Redoable() bool      { return false }

// StmtPrepare is COM_STMT_PREPARE.
type StmtPrepare struct {
	SQL string
}

func (p StmtPrepare) Encode(w *mdbbuffer.Writer) {
	w.WriteByte(ComStmtPrepare)
	w.WriteBytes([]byte(p.SQL))
}

func (p StmtPrepare) Description() string { return "prepare: " + truncate(p.SQL) }
func (p StmtPrepare) Redoable() bool      { return false }

// StmtExecute is COM_STMT_EXECUTE. Encoding of the NULL bitmap and bound
// parameter values is handled by the session layer, which knows the
// PrepareResult's parameter count and types; this struct only carries the
// already-encoded parameter block plus the statement id and flags so that
// a replay can re-target a freshly re-prepared statement id (spec 4.2
// "Transaction replay": "substituting new server statement ids").
type StmtExecute struct {
	StatementID    uint32
	IterationCount uint32
	CursorType     byte
	NewParamsBound bool
	ParamTypes     []byte // 2 bytes per param when NewParamsBound
	ParamValues    []byte // already-encoded values, concatenated

	NullBitmap []byte

	// SQLForReplay is retained only for diagnostics/replay re-prepare;
	// it is not sent on the wire.
	SQLForReplay string
}

func (e StmtExecute) Encode(w *mdbbuffer.Writer) {
	w.WriteByte(ComStmtExecute)
	w.WriteUint32(e.StatementID)
	w.WriteByte(e.CursorType)
	w.WriteUint32(e.IterationCount)
	if len(e.NullBitmap) > 0 {
		w.WriteBytes(e.NullBitmap)
	}
	if e.NewParamsBound {
		w.WriteByte(1)
		w.WriteBytes(e.ParamTypes)
	} else {
		w.WriteByte(0)
	}
	w.WriteBytes(e.ParamValues)
}

func (e StmtExecute) Description() string { return "execute: " + truncate(e.SQLForReplay) }
func (e StmtExecute) Redoable() bool      { return true }

// StmtSendLongData is COM_STMT_SEND_LONG_DATA: stream an oversized
// parameter value in pieces.
type StmtSendLongData struct {
	StatementID uint32
	ParamID     uint16
	Data        []byte
}

func (d StmtSendLongData) Encode(w *mdbbuffer.Writer) {
	w.WriteByte(ComStmtSendLongData)
	w.WriteUint32(d.StatementID)
	w.WriteUint16(d.ParamID)
	w.WriteBytes(d.Data)
}

func (d StmtSendLongData) Description() string { return "send long data" }
func (d StmtSendLongData) Redoable() bool      { return false }

// StmtClose is COM_STMT_CLOSE: no reply is sent by the server.
type StmtClose struct {
	StatementID uint32
}

func (c StmtClose) Encode(w *mdbbuffer.Writer) {
	w.WriteByte(ComStmtClose)
	w.WriteUint32(c.StatementID)
}

func (c StmtClose) Description() string { return "close statement" }
func (c StmtClose) Redoable() bool      { return false }

// StmtReset is COM_STMT_RESET: clear long-data buffers, reset the prepared
// statement's cursor.
type StmtReset struct {
	StatementID uint32
}

func (r StmtReset) Encode(w *mdbbuffer.Writer) {
	w.WriteByte(ComStmtReset)
	w.WriteUint32(r.StatementID)
}

func (r StmtReset) Description() string { return "reset statement" }
func (r StmtReset) Redoable() bool      { return false }

func truncate(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
