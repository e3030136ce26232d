// Package mdbsession implements the Session/Client core: socket
// ownership, handshake, TLS upgrade, the command cycle, prepared
// statement execution, multi-result streaming, and transaction replay
// coordination (spec 4.2 "Session / Client").
package mdbsession

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dbbouncer/mdbclient/mdbauth"
	"github.com/dbbouncer/mdbclient/mdbcapability"
	"github.com/dbbouncer/mdbclient/mdbcontext"
	"github.com/dbbouncer/mdbclient/mdberrors"
	"github.com/dbbouncer/mdbclient/mdbmessage"
	"github.com/dbbouncer/mdbclient/mdbpacket"
	"github.com/dbbouncer/mdbclient/mdbprepare"
	"github.com/dbbouncer/mdbclient/mdbtxlog"
)

// Config holds everything needed to dial and authenticate a Session.
type Config struct {
	Network string // "tcp" or "unix"
	Address string

	Username string
	Password string
	Database string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	TLSConfig *tls.Config // nil disables SSL negotiation

	UseCompression   bool
	UseConnectAttrs  bool
	ConnectAttrs     map[string]string
	MultiStatements  bool
	SessionTrack     bool

	CredentialProvider  mdbauth.Provider
	AllowPublicKeyRetrieval bool

	PrepareCacheSize int
	ReplayEnabled    bool
	ReplayMaxBuffer  int

	Timezone string // "disable", an IANA id, or "" for server default

	// GaleraAllowedStates, when non-empty, is checked against
	// wsrep_local_state after connecting; Dial fails if the node is
	// primary but its state string isn't in the list (spec 4.2 step 8).
	GaleraAllowedStates []string

	// SessionVariables are additional `name=value` pairs folded into the
	// single post-connect SET command (spec 4.2 step 8: "user-supplied
	// session variables"). Values are written verbatim, not quoted, so
	// callers pass SQL literals (e.g. "'utf8mb4'", "1").
	SessionVariables map[string]string

	// TransactionIsolation sets transaction_isolation in the same SET
	// command when non-empty, e.g. "READ-COMMITTED" (spec 4.2 step 8).
	TransactionIsolation string

	// AssureReadOnly asserts read_only=1 in the post-connect SET command,
	// rejecting a writable node outright (spec 4.2 step 8: "read-only
	// assertion").
	AssureReadOnly bool

	// LocalInfile answers COM_QUERY's LOCAL INFILE sub-protocol (spec 4.2
	// "Command cycle": "0xFB: LOCAL INFILE request"). A nil handler
	// declines every request with an empty packet, the way drivers that
	// require explicit opt-in before touching the local filesystem do.
	LocalInfile LocalInfileHandler

	Logger *slog.Logger
}

// LocalInfileHandler opens filename for a server-initiated LOAD DATA
// LOCAL INFILE request. The returned reader is streamed back to the
// server verbatim and closed (if it implements io.Closer) once fully
// read or on error.
type LocalInfileHandler func(filename string) (io.Reader, error)

// HostState is the per-host cache of values learned at the end of a
// successful handshake, shared across reconnects to the same host (spec
// 5: "HostAddress is a shared value that caches per-host
// max_allowed_packet and wait_timeout").
type HostState struct {
	mu               sync.Mutex
	MaxAllowedPacket int
	WaitTimeout      int
}

func (h *HostState) snapshot() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.MaxAllowedPacket, h.WaitTimeout
}

func (h *HostState) update(maxAllowedPacket, waitTimeout int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if maxAllowedPacket > 0 {
		h.MaxAllowedPacket = maxAllowedPacket
	}
	if waitTimeout > 0 {
		h.WaitTimeout = waitTimeout
	}
}

// Session owns exactly one connection's socket, protocol reader/writer,
// Context, and prepare cache. It is not safe for concurrent command use;
// callers serialize through mu, which spans a whole request/response
// cycle (spec 5: "Lock-per-Session").
type Session struct {
	cfg Config
	log *slog.Logger

	mu sync.Mutex

	conn   net.Conn
	reader *mdbpacket.Reader
	writer *mdbpacket.Writer

	ctx     *mdbcontext.Context
	prepare *mdbprepare.Cache
	saver   *mdbtxlog.Saver

	host *HostState

	// streaming holds the in-progress streaming result (spec 4.2
	// "Multi-result / streaming"); nil when no streaming result is
	// outstanding. Only one may be outstanding per Session.
	streaming *StreamState

	closed bool

	// CorrelationID identifies this Session uniquely in logs and
	// introspection bean names (spec 5 "Shared resources", generalized
	// to per-session identity; SPEC_FULL.md 11).
	CorrelationID string
}

// StreamState tracks a result set whose rows are being pulled from the
// socket on demand rather than fully buffered up front.
type StreamState struct {
	Columns    int
	Done       bool
	MoreResults bool
}

// Dial opens a new Session: TCP/unix connect, protocol-10 handshake,
// capability negotiation, optional TLS upgrade, authentication, optional
// compression, and post-connect session-variable setup (spec 4.2 steps
// 1-8).
func Dial(cfg Config, host *HostState) (*Session, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if host == nil {
		host = &HostState{}
	}
	network := cfg.Network
	if network == "" {
		network = "tcp"
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.Dial(network, cfg.Address)
	if err != nil {
		return nil, mdberrors.Connection("dialing "+cfg.Address, err)
	}

	correlationID := uuid.NewString()
	s := &Session{
		cfg:           cfg,
		log:           cfg.Logger.With("component", "mdbsession", "addr", cfg.Address, "session_id", correlationID),
		CorrelationID: correlationID,
		conn:    conn,
		reader:  mdbpacket.NewReader(conn),
		writer:  mdbpacket.NewWriter(conn),
		ctx:     mdbcontext.New(),
		prepare: mdbprepare.New(cfg.PrepareCacheSize, nil),
		saver:   mdbtxlog.New(cfg.ReplayMaxBuffer),
		host:    host,
	}
	s.prepare = mdbprepare.New(cfg.PrepareCacheSize, statementCloser{s})

	if maxPkt, waitTimeout := host.snapshot(); maxPkt > 0 {
		s.ctx.MaxAllowedPacket = maxPkt
		s.reader.SetMaxAllowedPacket(maxPkt)
		s.writer.SetMaxAllowedPacket(maxPkt)
		s.ctx.WaitTimeout = waitTimeout
	}

	if err := s.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

type statementCloser struct{ s *Session }

func (c statementCloser) CloseStatement(id uint32) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.closed {
		return
	}
	_ = c.s.sendNoReply(mdbmessage.StmtClose{StatementID: id})
}

// Context exposes the session's per-connection state.
func (s *Session) Context() *mdbcontext.Context { return s.ctx }

// Closed reports whether Abort or a fatal I/O error has destroyed the
// underlying socket.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// destroy tears down the socket and marks the session unusable. Called
// holding mu.
func (s *Session) destroy() {
	if s.closed {
		return
	}
	s.closed = true
	s.ctx.MarkClosed()
	_ = s.conn.Close()
}

// Close sends QUIT best-effort and closes the socket (spec 4.2
// "Timeouts & cancel": graceful path of abort).
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	_ = s.sendNoReply(mdbmessage.Quit{})
	s.destroy()
	return nil
}

// Abort forces termination: if the request/response lock cannot be taken
// immediately (a command is in flight), dispatch KILL QUERY from a
// parallel Session; otherwise send QUIT best-effort and close (spec 4.2
// "abort(executor)").
func (s *Session) Abort(killDial func() (*Session, error)) error {
	if s.mu.TryLock() {
		defer s.mu.Unlock()
		if s.closed {
			return nil
		}
		_ = s.sendNoReply(mdbmessage.Quit{})
		s.destroy()
		return nil
	}

	if killDial == nil {
		s.forceClose()
		return nil
	}
	killer, err := killDial()
	if err != nil {
		s.forceClose()
		return err
	}
	defer killer.Close()
	threadID := s.ctx.ThreadID
	_, err = killer.Query(fmt.Sprintf("KILL QUERY %d", threadID))
	s.forceClose()
	return err
}

// Cancel sends KILL QUERY <thread-id> over a side Session opened by
// killDial, interrupting the statement currently in flight on s without
// closing s's own socket (spec 4.2 "Timeouts & cancel", spec 5
// "Cancellation": "distinct from abort, which targets the whole
// connection"). Idempotent: killing an already-finished query is a
// harmless no-op server-side. The target Session resynchronizes on its
// own: the interrupted command's in-flight read returns the server's
// "query execution was interrupted" ERR_Packet through the normal
// command path, so no extra drain step is needed here.
func (s *Session) Cancel(killDial func() (*Session, error)) error {
	if killDial == nil {
		return fmt.Errorf("mdbsession: Cancel requires a killDial func")
	}
	killer, err := killDial()
	if err != nil {
		return err
	}
	defer killer.Close()
	threadID := s.ctx.ThreadID
	_, err = killer.Query(fmt.Sprintf("KILL QUERY %d", threadID))
	return err
}

// forceClose destroys the socket without waiting for the command lock;
// used when Abort cannot take mu because a command is genuinely stuck.
func (s *Session) forceClose() {
	s.closed = true
	s.ctx.MarkClosed()
	_ = s.conn.Close()
}

// setReadDeadline applies the configured (or per-call override) read
// timeout to the underlying socket.
func (s *Session) setReadDeadline(d time.Duration) {
	if d <= 0 {
		d = s.cfg.ReadTimeout
	}
	if d > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(d))
	} else {
		_ = s.conn.SetReadDeadline(time.Time{})
	}
}

var _ io.Closer = (*Session)(nil)

// requestedCapabilities builds this client's requested capability bitmask from
// cfg, ahead of seeing what the server advertises (spec 4.2 step 3).
func (s *Session) requestedCapabilities() mdbcapability.Requested {
	return mdbcapability.Requested{
		SSL:             s.cfg.TLSConfig != nil,
		Database:        s.cfg.Database != "",
		ConnectAttrs:    s.cfg.UseConnectAttrs,
		Compress:        s.cfg.UseCompression,
		SessionTrack:    s.cfg.SessionTrack,
		MultiStatements: s.cfg.MultiStatements,
	}
}
