// Package mdbtxlog buffers the mutating messages of an in-progress
// transaction so they can be replayed on a freshly built Session after a
// transient connection failure (spec 3 "TransactionSaver", spec 4.2
// "Transaction replay").
package mdbtxlog

import (
	"sync"

	"github.com/dbbouncer/mdbclient/mdbmessage"
)

// DefaultMaxBuffered bounds the redo buffer; exceeding it sets Overflowed
// and the Session must surface the original failure instead of attempting
// replay (spec 3: "Bounded (overflow flips a 'cannot replay' bit)").
const DefaultMaxBuffered = 1000

// Saver records redoable messages since the last commit/rollback.
type Saver struct {
	mu         sync.Mutex
	maxEntries int
	entries    []mdbmessage.Message
	overflowed bool
}

// New returns a Saver bounded to maxEntries. maxEntries <= 0 uses
// DefaultMaxBuffered.
func New(maxEntries int) *Saver {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxBuffered
	}
	return &Saver{maxEntries: maxEntries}
}

// Record appends msg if it is redoable; non-redoable messages (PING,
// QUIT, STMT_CLOSE, ...) are not part of replay and are ignored.
func (s *Saver) Record(msg mdbmessage.Message) {
	if !msg.Redoable() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overflowed {
		return
	}
	if len(s.entries) >= s.maxEntries {
		s.overflowed = true
		s.entries = nil
		return
	}
	s.entries = append(s.entries, msg)
}

// CanReplay reports whether the buffer holds a replayable log: not
// overflowed. An empty (no messages yet recorded) log is trivially
// replayable.
func (s *Saver) CanReplay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.overflowed
}

// Entries returns a snapshot of the recorded messages in commit order.
func (s *Saver) Entries() []mdbmessage.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mdbmessage.Message, len(s.entries))
	copy(out, s.entries)
	return out
}

// Clear drops all recorded messages and clears the overflow flag; called
// on successful COMMIT or ROLLBACK (spec 3: "Cleared on successful commit
// or rollback").
func (s *Saver) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.overflowed = false
}

// Len returns the number of currently buffered messages.
func (s *Saver) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
