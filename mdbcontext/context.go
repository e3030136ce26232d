// Package mdbcontext holds the per-connection, single-owner mutable state
// described in spec 3 ("Context"): negotiated capabilities, server
// identity, status bits, and the bookkeeping the session layer needs
// across commands.
package mdbcontext

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/dbbouncer/mdbclient/mdbcapability"
)

// ServerStatus mirrors Protocol::StatusFlags.
type ServerStatus uint16

const (
	StatusInTrans           ServerStatus = 0x0001
	StatusAutocommit        ServerStatus = 0x0002
	StatusMoreResultsExists ServerStatus = 0x0008
	StatusNoGoodIndexUsed   ServerStatus = 0x0010
	StatusNoIndexUsed       ServerStatus = 0x0020
	StatusCursorExists      ServerStatus = 0x0040
	StatusLastRowSent       ServerStatus = 0x0080
	StatusDBDropped         ServerStatus = 0x0100
	StatusBackslashEscapes  ServerStatus = 0x0200
	StatusMetadataChanged   ServerStatus = 0x0400
	StatusQueryWasSlow      ServerStatus = 0x0800
	StatusPSOutParams       ServerStatus = 0x1000
	StatusInTransReadonly   ServerStatus = 0x2000
	StatusSessionStateChanged ServerStatus = 0x4000

	// MariaDB-specific: set when the connected node is a secondary server
	// in a Galera cluster / replica set and writes should not be sent.
	StatusServerSessionStateAware ServerStatus = 0x8000
)

// Has reports whether a status bit is set.
func (s ServerStatus) Has(bit ServerStatus) bool { return s&bit != 0 }

// ServerVersion captures the parsed server version string.
type ServerVersion struct {
	Raw        string
	Major      int
	Minor      int
	Patch      int
	IsMariaDB  bool
}

// ParseServerVersion parses a handshake server-version string such as
// "10.11.6-MariaDB-1:10.11.6+maria~ubu2204" or "8.0.35".
func ParseServerVersion(raw string) ServerVersion {
	v := ServerVersion{Raw: raw}
	v.IsMariaDB = strings.Contains(strings.ToLower(raw), "mariadb")

	s := raw
	// MariaDB sometimes prefixes a compatibility version, e.g.
	// "5.5.5-10.11.6-MariaDB"; the real version is after the last such
	// prefix split on '-' that starts with "5.5.5-".
	if strings.HasPrefix(s, "5.5.5-") {
		s = s[len("5.5.5-"):]
	}
	var rest string
	if idx := strings.IndexAny(s, "-"); idx >= 0 {
		rest = s[idx:]
		s = s[:idx]
	}
	_ = rest
	parts := strings.SplitN(s, ".", 3)
	fmt.Sscanf(firstOr(parts, 0), "%d", &v.Major)
	fmt.Sscanf(firstOr(parts, 1), "%d", &v.Minor)
	fmt.Sscanf(digitsOnly(firstOr(parts, 2)), "%d", &v.Patch)
	return v
}

func firstOr(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

func digitsOnly(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// AtLeast reports whether the server version is >= major.minor.patch.
func (v ServerVersion) AtLeast(major, minor, patch int) bool {
	if v.Major != major {
		return v.Major > major
	}
	if v.Minor != minor {
		return v.Minor > minor
	}
	return v.Patch >= patch
}

// StateFlag tracks which pool-default session variables were changed away
// from their pooled defaults, so Pool.Return's reset() knows what to
// restore (spec 3: "state-flag bitmap").
type StateFlag uint32

const (
	StateDatabase StateFlag = 1 << iota
	StateNetworkTimeout
	StateAutocommit
	StateTransactionIsolation
	StateReadOnly
)

// Context is the single-owner per-connection state. It is not safe for
// concurrent use; the Session that owns it guarantees exclusive access via
// its own lock (spec 5).
type Context struct {
	Capabilities mdbcapability.Flags
	ServerVersion ServerVersion
	ThreadID     uint32
	Collation    uint8

	Status       ServerStatus
	WarningCount uint16

	Database              string
	TransactionIsolation  string
	StateFlags            StateFlag

	ConnectionAttributes map[string]string

	// MaxAllowedPacket and WaitTimeout are learned post-connect (spec 4.2
	// step 8) and cached on the shared HostAddress value between
	// reconnects (spec 5).
	MaxAllowedPacket int
	WaitTimeout      int

	// closed is set once the owning Session has destroyed its socket;
	// atomic because Session.Abort may run on another goroutine than the
	// one holding the request/response lock.
	closed atomic.Bool
}

// New returns a Context with protocol defaults.
func New() *Context {
	return &Context{
		Status:               StatusAutocommit,
		ConnectionAttributes: map[string]string{},
		MaxAllowedPacket:     1 << 24,
	}
}

// MarkClosed records that the underlying socket has been destroyed.
func (c *Context) MarkClosed() { c.closed.Store(true) }

// Closed reports whether the underlying socket has been destroyed.
func (c *Context) Closed() bool { return c.closed.Load() }

// UpdateFromOK applies the status/warning fields carried by an OK_Packet or
// an EOF-as-OK packet to the context (spec 4.2, command cycle).
func (c *Context) UpdateFromOK(status ServerStatus, warnings uint16) {
	c.Status = status
	c.WarningCount = warnings
}

// InTransaction reports whether the server considers a transaction open.
func (c *Context) InTransaction() bool { return c.Status.Has(StatusInTrans) }

// MoreResults reports whether more result sets follow the one just read.
func (c *Context) MoreResults() bool { return c.Status.Has(StatusMoreResultsExists) }
