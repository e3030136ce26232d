package mdbsession

import (
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"

	"github.com/dbbouncer/mdbclient/mdbauth"
	"github.com/dbbouncer/mdbclient/mdbbuffer"
	"github.com/dbbouncer/mdbclient/mdbcapability"
	"github.com/dbbouncer/mdbclient/mdbcontext"
	"github.com/dbbouncer/mdbclient/mdberrors"
	"github.com/dbbouncer/mdbclient/mdbmessage"
	"github.com/dbbouncer/mdbclient/mdbrow"
)

type initialHandshake struct {
	protocolVersion byte
	serverVersion   string
	threadID        uint32
	seed            []byte
	capabilities    mdbcapability.Flags
	collation       uint8
	status          uint16
	authPluginName  string
}

func (s *Session) handshake() error {
	hs, err := s.readInitialHandshake()
	if err != nil {
		return err
	}
	if hs.protocolVersion != 10 {
		return mdberrors.ConnectionFatal(fmt.Sprintf("unsupported protocol version %d", hs.protocolVersion), nil)
	}

	s.ctx.ThreadID = hs.threadID
	s.ctx.ServerVersion = mdbcontext.ParseServerVersion(hs.serverVersion)
	s.ctx.Collation = hs.collation
	s.ctx.Status = mdbcontext.ServerStatus(hs.status)

	requested := s.requestedCapabilities().Build()
	effective := mdbcapability.Negotiate(requested, hs.capabilities)
	s.ctx.Capabilities = effective

	if effective.Has(mdbcapability.SSL) {
		if err := s.upgradeTLS(effective); err != nil {
			return err
		}
	}

	cred, err := s.resolveCredential()
	if err != nil {
		return err
	}

	pluginName := hs.authPluginName
	if cred.PluginName != "" {
		pluginName = cred.PluginName
	}
	plugin, ok := mdbauth.ByName(pluginName, s.cfg.AllowPublicKeyRetrieval)
	if !ok {
		return mdberrors.Auth("unsupported authentication plugin: "+pluginName, nil)
	}

	if err := s.sendHandshakeResponse(effective, cred, plugin, hs.seed); err != nil {
		return err
	}

	if err := s.runAuthExchange(plugin, hs.seed, cred); err != nil {
		return err
	}

	if effective.Has(mdbcapability.Compress) {
		s.enableCompression()
	}

	return s.postConnectSetup()
}

func (s *Session) readInitialHandshake() (*initialHandshake, error) {
	payload, err := s.reader.ReadPacket()
	if err != nil {
		return nil, err
	}
	r := mdbbuffer.NewReader(payload)

	protoVer, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	serverVersion, err := r.ReadNullTerminatedString()
	if err != nil {
		return nil, err
	}
	threadID, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	seed1, err := r.ReadBytes(8)
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadByte(); err != nil { // filler
		return nil, err
	}
	capLow, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	collation, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	status, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	capHigh, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	authDataLen, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	r.Skip(10) // reserved
	seed2Len := int(authDataLen) - 8
	if seed2Len < 13 {
		seed2Len = 13
	}
	seed2, err := r.ReadBytes(seed2Len)
	if err != nil {
		return nil, err
	}
	if len(seed2) > 0 && seed2[len(seed2)-1] == 0 {
		seed2 = seed2[:len(seed2)-1]
	}

	caps := mdbcapability.FromParts(capLow, capHigh)
	var pluginName string
	if caps.Has(mdbcapability.PluginAuth) {
		name, err := r.ReadNullTerminatedString()
		if err == nil {
			pluginName = string(name)
		}
	}

	return &initialHandshake{
		protocolVersion: protoVer,
		serverVersion:   string(serverVersion),
		threadID:        threadID,
		seed:            append(append([]byte(nil), seed1...), seed2...),
		capabilities:    caps,
		collation:       collation,
		status:          status,
		authPluginName:  pluginName,
	}, nil
}

// upgradeTLS sends an SSL-request packet, then rebuilds the reader/writer
// over a freshly negotiated TLS connection (spec 4.2 step 4).
func (s *Session) upgradeTLS(caps mdbcapability.Flags) error {
	w := mdbbuffer.NewWriter()
	w.WriteUint32(uint32(caps))
	w.WriteUint32(1 << 24) // max packet
	w.WriteByte(45)        // utf8mb4_general_ci
	w.WriteBytes(make([]byte, 23))
	if err := s.writer.WritePacket(w.Bytes()); err != nil {
		return err
	}

	cfg := s.cfg.TLSConfig
	tlsConn := tls.Client(s.conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return mdberrors.ConnectionFatal("TLS handshake", err)
	}
	s.conn = tlsConn
	seq := s.writer.Sequence()
	s.reader = newReaderAt(s.conn, seq)
	s.writer = newWriterAt(s.conn, seq)
	return nil
}

func (s *Session) resolveCredential() (mdbauth.Credential, error) {
	if s.cfg.CredentialProvider != nil {
		return s.cfg.CredentialProvider.Credential()
	}
	return mdbauth.Credential{Username: s.cfg.Username, Password: s.cfg.Password}, nil
}

func (s *Session) sendHandshakeResponse(caps mdbcapability.Flags, cred mdbauth.Credential, plugin mdbauth.Plugin, seed []byte) error {
	authResponse, err := computeInitialResponse(plugin, s, seed, cred)
	if err != nil {
		return err
	}

	w := mdbbuffer.NewWriter()
	w.WriteUint32(uint32(caps))
	w.WriteUint32(1 << 24)
	w.WriteByte(45)
	w.WriteBytes(make([]byte, 23))
	w.WriteNullTerminatedString(cred.Username)

	if caps.Has(mdbcapability.PluginAuthLenencClientData) {
		w.WriteLengthEncodedString(authResponse)
	} else {
		w.WriteByte(byte(len(authResponse)))
		w.WriteBytes(authResponse)
	}

	if caps.Has(mdbcapability.ConnectWithDB) {
		w.WriteNullTerminatedString(s.cfg.Database)
	}
	if caps.Has(mdbcapability.PluginAuth) {
		w.WriteNullTerminatedString(plugin.Name())
	}
	if caps.Has(mdbcapability.ConnectAttrs) {
		w.Mark()
		for k, v := range s.cfg.ConnectAttrs {
			w.WriteLengthEncodedString([]byte(k))
			w.WriteLengthEncodedString([]byte(v))
		}
		w.InsertLengthEncodedIntAtMark()
	}

	return s.writer.WritePacket(w.Bytes())
}

// computeInitialResponse runs the plugin's Authenticate step against a
// recording channel so the response bytes can be embedded directly in the
// HandshakeResponse packet (per protocol, the first auth-response travels
// inside HandshakeResponse, not as its own packet).
func computeInitialResponse(plugin mdbauth.Plugin, s *Session, seed []byte, cred mdbauth.Credential) ([]byte, error) {
	rec := &recordingChannel{session: s}
	if err := plugin.Authenticate(rec, seed, cred); err != nil {
		return nil, err
	}
	return rec.data, nil
}

type recordingChannel struct {
	session *Session
	data    []byte
}

func (c *recordingChannel) WriteAuthResponse(data []byte) error {
	c.data = data
	return nil
}

func (c *recordingChannel) TLSEnabled() bool {
	_, ok := c.session.conn.(*tls.Conn)
	return ok
}

func (c *recordingChannel) RequestPublicKey() ([]byte, error) {
	return c.session.requestServerPublicKey()
}

// liveChannel sends auth-response packets immediately, used for
// AuthMoreData continuations after the initial HandshakeResponse.
type liveChannel struct {
	session *Session
}

func (c *liveChannel) WriteAuthResponse(data []byte) error {
	return c.session.writer.WritePacket(data)
}

func (c *liveChannel) TLSEnabled() bool {
	_, ok := c.session.conn.(*tls.Conn)
	return ok
}

func (c *liveChannel) RequestPublicKey() ([]byte, error) {
	return c.session.requestServerPublicKey()
}

// requestServerPublicKey sends the caching_sha2_password 0x02
// "request public key" byte and reads back the PEM-encoded key.
func (s *Session) requestServerPublicKey() ([]byte, error) {
	if err := s.writer.WritePacket([]byte{0x02}); err != nil {
		return nil, err
	}
	payload, err := s.reader.ReadPacket()
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 && payload[0] == 0x01 {
		return payload[1:], nil
	}
	return payload, nil
}

// runAuthExchange drains AuthSwitchRequest/AuthMoreData/OK/ERR packets
// until the exchange concludes (spec 4.3).
func (s *Session) runAuthExchange(plugin mdbauth.Plugin, seed []byte, cred mdbauth.Credential) error {
	activePlugin := plugin
	for {
		payload, err := s.reader.ReadPacket()
		if err != nil {
			return err
		}
		if len(payload) == 0 {
			return mdberrors.Auth("empty auth response packet", nil)
		}
		switch payload[0] {
		case 0x00:
			return nil // OK packet; caller's Classify/DecodeOK happens post-auth setup
		case 0xff:
			ep, err := decodeAuthErr(payload)
			if err != nil {
				return err
			}
			return mdberrors.Server(ep.sqlState, ep.code, ep.message)
		case 0xfe:
			if len(payload) == 1 {
				return nil // old-style bare EOF ack
			}
			name, newSeed, err := decodeAuthSwitch(payload)
			if err != nil {
				return err
			}
			p, ok := mdbauth.ByName(name, s.cfg.AllowPublicKeyRetrieval)
			if !ok {
				return mdberrors.Auth("unsupported auth plugin on AuthSwitchRequest: "+name, nil)
			}
			activePlugin = p
			ch := &liveChannel{session: s}
			if err := activePlugin.Authenticate(ch, newSeed, cred); err != nil {
				return err
			}
		case 0x01:
			ch := &liveChannel{session: s}
			resp, err := activePlugin.Continue(ch, payload[1:], cred)
			if err != nil {
				return err
			}
			if resp != nil {
				if err := s.writer.WritePacket(resp); err != nil {
					return err
				}
			}
		default:
			return mdberrors.Auth("unexpected byte in auth exchange", nil)
		}
	}
}

type authErrPacket struct {
	code     uint16
	sqlState string
	message  string
}

func decodeAuthErr(payload []byte) (authErrPacket, error) {
	r := mdbbuffer.NewReader(payload)
	if _, err := r.ReadByte(); err != nil {
		return authErrPacket{}, err
	}
	code, err := r.ReadUint16()
	if err != nil {
		return authErrPacket{}, err
	}
	var sqlState string
	if b, ok := r.PeekByte(); ok && b == '#' {
		r.Skip(1)
		sb, err := r.ReadBytes(5)
		if err != nil {
			return authErrPacket{}, err
		}
		sqlState = string(sb)
	}
	return authErrPacket{code: code, sqlState: sqlState, message: string(r.ReadRestOfPacketString())}, nil
}

func decodeAuthSwitch(payload []byte) (name string, seed []byte, err error) {
	r := mdbbuffer.NewReader(payload)
	if _, err := r.ReadByte(); err != nil {
		return "", nil, err
	}
	n, err := r.ReadNullTerminatedString()
	if err != nil {
		return "", nil, err
	}
	seed = r.ReadRestOfPacketString()
	if len(seed) > 0 && seed[len(seed)-1] == 0 {
		seed = seed[:len(seed)-1]
	}
	return string(n), append([]byte(nil), seed...), nil
}

// enableCompression wraps the session's reader/writer in the zlib framing
// (spec 4.2 step 7). It must run after authentication completes.
func (s *Session) enableCompression() {
	// The compression layer sits below the packet framer; rebuild both
	// ends of the pipe over compressed streams while preserving the
	// current protocol sequence counters.
	readSeq := s.reader.Sequence()
	writeSeq := s.writer.Sequence()
	cr := newCompressedReaderAdapter(s.conn)
	cw := newCompressedWriterAdapter(s.conn)
	s.reader = newReaderAt(cr, readSeq)
	s.writer = newWriterAt(cw, writeSeq)
}

// postConnectSetup sets time_zone through handleTimezone, then runs the
// single SET-variable command (autocommit, sql_mode, optional
// session_track_schema, user variables, read_only, transaction_isolation),
// queries max_allowed_packet/wait_timeout on every connect and stores them
// in the host cache, and validates a configured Galera allow-list (spec
// 4.2 step 8).
func (s *Session) postConnectSetup() error {
	var sb strings.Builder
	sb.WriteString("SET autocommit=1, sql_mode=concat(@@sql_mode,',STRICT_TRANS_TABLES')")
	if s.cfg.SessionTrack {
		sb.WriteString(", session_track_schema=1")
	}
	for name, value := range s.cfg.SessionVariables {
		sb.WriteString(", ")
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(value)
	}
	if s.cfg.AssureReadOnly {
		sb.WriteString(", read_only=1")
	}
	if iso := s.cfg.TransactionIsolation; iso != "" {
		sb.WriteString(", transaction_isolation='")
		sb.WriteString(strings.ReplaceAll(iso, "'", "''"))
		sb.WriteByte('\'')
	}

	if tz := s.cfg.Timezone; tz != "" && tz != "disable" {
		if err := s.handleTimezone(tz); err != nil {
			return err
		}
	}

	if _, err := s.execSimple(sb.String()); err != nil {
		return err
	}

	maxPkt, waitTimeout, err := s.queryServerLimits()
	if err == nil {
		s.ctx.MaxAllowedPacket = maxPkt
		s.ctx.WaitTimeout = waitTimeout
		s.reader.SetMaxAllowedPacket(maxPkt)
		s.writer.SetMaxAllowedPacket(maxPkt)
		s.host.update(maxPkt, waitTimeout)
	}

	return s.checkGaleraState()
}

// checkGaleraState validates wsrep_local_state against a configured
// allow-list before the connection is handed back to the caller (spec
// 4.2 step 8: "If a Galera allow-list is configured and node is primary,
// verify wsrep_local_state ∈ allow-list"). A node reporting
// wsrep_cluster_status != "Primary" is never rejected by this check —
// the allow-list only governs primary-component nodes.
func (s *Session) checkGaleraState() error {
	if len(s.cfg.GaleraAllowedStates) == 0 {
		return nil
	}
	rs, err := s.execSimpleQuery("SHOW STATUS LIKE 'wsrep_cluster_status'")
	if err != nil || len(rs.Rows) == 0 {
		// Not a Galera node (or the variable isn't exposed); nothing to
		// validate.
		return nil
	}
	status, err := cellString(rs.Rows[0], 1)
	if err != nil || !strings.EqualFold(status, "Primary") {
		return nil
	}

	rs, err = s.execSimpleQuery("SHOW STATUS LIKE 'wsrep_local_state_comment'")
	if err != nil || len(rs.Rows) == 0 {
		return mdberrors.Connection("reading wsrep_local_state_comment", err)
	}
	state, err := cellString(rs.Rows[0], 1)
	if err != nil {
		return mdberrors.Connection("reading wsrep_local_state_comment", err)
	}
	for _, allowed := range s.cfg.GaleraAllowedStates {
		if strings.EqualFold(state, allowed) {
			return nil
		}
	}
	return mdberrors.Connection(fmt.Sprintf("Galera node state %q is not in the configured allow-list", state), nil)
}

func cellString(row *mdbrow.Row, idx int) (string, error) {
	isNull, err := row.IsNull(idx)
	if err != nil {
		return "", err
	}
	if isNull {
		return "", nil
	}
	raw, err := row.RawText(idx)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// execSimpleQuery runs sql and returns its buffered ResultSet, bypassing
// the mutual-exclusion lock already held by the caller during handshake
// (postConnectSetup runs before the Session is visible to other
// goroutines).
func (s *Session) execSimpleQuery(sql string) (*ResultSet, error) {
	return s.queryLocked(mdbmessage.Query{SQL: sql})
}

// handleTimezone sets time_zone directly, falling back to SHOW VARIABLES
// only if the server rejects the direct form. This preserves the source
// system's latent behavior noted as an open question (spec 9): the direct
// form may "succeed" against a bogus zone string MariaDB accepts without
// validation, and this client does not attempt to detect that case.
func (s *Session) handleTimezone(tz string) error {
	_, err := s.execSimple(fmt.Sprintf("SET time_zone='%s'", strings.ReplaceAll(tz, "'", "''")))
	if err == nil {
		return nil
	}
	_, fallbackErr := s.execSimple("SHOW VARIABLES LIKE 'time_zone'")
	if fallbackErr != nil {
		return fallbackErr
	}
	return nil
}

// queryServerLimits reads @@max_allowed_packet and @@wait_timeout so the
// client can cap writes and schedule sweeps correctly (spec 4.2 step 8:
// "If configured, query @@max_allowed_packet, @@wait_timeout (fall back
// to SHOW VARIABLES on Galera non-primary)"). The direct-variable form is
// tried first; on failure it falls back to SHOW VARIABLES, which every
// server variant accepts even when a non-primary Galera node rejects
// the system-variable-select form.
func (s *Session) queryServerLimits() (maxAllowedPacket int, waitTimeout int, err error) {
	if maxAllowedPacket, waitTimeout, err = s.queryServerLimitsDirect(); err == nil {
		return maxAllowedPacket, waitTimeout, nil
	}
	return s.queryServerLimitsShowVariables()
}

func (s *Session) queryServerLimitsDirect() (int, int, error) {
	rs, err := s.execSimpleQuery("SELECT @@max_allowed_packet, @@wait_timeout")
	if err != nil || len(rs.Rows) == 0 {
		return 0, 0, err
	}
	maxPkt, err := cellInt(rs.Rows[0], 0)
	if err != nil {
		return 0, 0, err
	}
	waitTimeout, err := cellInt(rs.Rows[0], 1)
	if err != nil {
		return 0, 0, err
	}
	return maxPkt, waitTimeout, nil
}

func (s *Session) queryServerLimitsShowVariables() (int, int, error) {
	maxPkt, err := s.showVariable("max_allowed_packet")
	if err != nil {
		return 0, 0, err
	}
	waitTimeout, err := s.showVariable("wait_timeout")
	if err != nil {
		return 0, 0, err
	}
	return maxPkt, waitTimeout, nil
}

func (s *Session) showVariable(name string) (int, error) {
	rs, err := s.execSimpleQuery(fmt.Sprintf("SHOW VARIABLES LIKE '%s'", name))
	if err != nil {
		return 0, err
	}
	if len(rs.Rows) == 0 {
		return 0, mdberrors.Connection("server variable "+name+" not found", nil)
	}
	return cellInt(rs.Rows[0], 1)
}

func cellInt(row *mdbrow.Row, idx int) (int, error) {
	raw, err := row.RawText(idx)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(raw))
}
