package mdbsession

import (
	"github.com/dbbouncer/mdbclient/mdberrors"
	"github.com/dbbouncer/mdbclient/mdbmessage"
)

// Replay builds a replacement Session against the same configuration and
// host, then replays every message recorded in the failed session's
// TransactionSaver in order (spec 4.2 "Transaction replay"). On success it
// returns the new Session, which the caller must use in place of the
// failed one, along with the final replayed command's result (or nil if
// the saver was empty).
func (s *Session) Replay() (*Session, *ResultSet, error) {
	if !s.saver.CanReplay() {
		return nil, nil, mdberrors.Connection("transaction cannot be replayed: redo buffer overflowed", nil)
	}
	entries := s.saver.Entries()

	replacement, err := Dial(s.cfg, s.host)
	if err != nil {
		return nil, nil, err
	}

	var last *ResultSet
	for _, msg := range entries {
		replacement.mu.Lock()
		switch m := msg.(type) {
		case mdbmessage.Query:
			last, err = replacement.queryLocked(m)
		case mdbmessage.InitDB:
			_, err = replacement.execLocked(m)
			last = &ResultSet{}
		case mdbmessage.StmtExecute:
			// Re-prepare against the replacement connection; the
			// original statement id is no longer valid (spec 4.2:
			// "re-preparing statements as needed and substituting new
			// server statement ids").
			replacement.mu.Unlock()
			stmt, perr := replacement.Prepare(m.SQLForReplay)
			if perr != nil {
				replacement.Close()
				return nil, nil, perr
			}
			replacement.mu.Lock()
			m.StatementID = stmt.StatementID
			last, err = replacement.executeLocked(m)
		default:
			err = mdberrors.Connection("non-replayable message type in redo buffer", nil)
		}
		replacement.mu.Unlock()
		if err != nil {
			replacement.Close()
			return nil, nil, err
		}
	}
	return replacement, last, nil
}

// RecoverableIOError reports whether err represents a transient I/O
// failure eligible for transaction replay, as opposed to a definitive
// server-side rejection (spec 7: "I/O failures during a read destroy the
// socket unless recoverable via transaction replay").
func RecoverableIOError(err error) bool {
	me, ok := err.(*mdberrors.Error)
	if !ok {
		return false
	}
	return me.Kind == mdberrorsKindConnection() && me.MustReconnect
}

func mdberrorsKindConnection() mdberrors.Kind { return mdberrors.KindConnection }
