// Package mdbauth implements the client-side half of the MariaDB/MySQL
// authentication plugins, and the pluggable credential-provider
// abstraction (spec 4.3 "Authentication").
package mdbauth

import (
	"crypto/sha1" //nolint:gosec // mysql_native_password is defined in terms of SHA-1
	"crypto/sha256"
)

// Credential is the (user, password) pair a Provider yields. A Provider
// may override the plugin the client attempts first — e.g. a credential
// plugin backed by IAM/SSO tokens.
type Credential struct {
	Username   string
	Password   string
	PluginName string // empty means "use the server-advertised plugin"
}

// Provider yields credentials, possibly by an async/blocking fetch (spec
// 4.3: "a provider yields (user, password) possibly asynchronously").
type Provider interface {
	Credential() (Credential, error)
}

// StaticProvider is a Provider that always returns the same credential.
type StaticProvider struct {
	Cred Credential
}

func (p StaticProvider) Credential() (Credential, error) { return p.Cred, nil }

// Plugin is a client-side authentication plugin. Authenticate drives the
// plugin's exchange over the supplied channel; see Channel for what a
// plugin is allowed to do.
type Plugin interface {
	// Name is the protocol plugin name, e.g. "mysql_native_password".
	Name() string

	// Authenticate computes and sends the plugin's initial response given
	// the server's seed (salt) bytes. It must not itself read the
	// server's reply — the Session's auth-exchange loop does that. It
	// routes AuthMoreData back into the active plugin via Continue; an
	// AuthSwitchRequest selects the named plugin and calls its
	// Authenticate with the new seed.
	Authenticate(ch Channel, seed []byte, cred Credential) error

	// Continue handles an AuthMoreData (0x01) payload sent mid-exchange,
	// returning the plugin's next response bytes (or nil to send
	// nothing further). Plugins that never receive AuthMoreData (e.g.
	// mysql_native_password) can return nil, nil unconditionally.
	Continue(ch Channel, data []byte, cred Credential) ([]byte, error)
}

// Channel is the minimal transport surface a Plugin needs: write its
// response packet, and know whether the connection is already
// TLS-secured (several plugins branch on this).
type Channel interface {
	WriteAuthResponse(data []byte) error
	TLSEnabled() bool
	RequestPublicKey() ([]byte, error)
}

// scramble418 implements the SHA1-XOR challenge used by
// mysql_native_password: SHA1(pw) XOR SHA1(seed || SHA1(SHA1(pw))).
func scramble418(password string, seed []byte) []byte {
	if password == "" {
		return nil
	}
	pwHash := sha1.Sum([]byte(password))
	pwHashHash := sha1.Sum(pwHash[:])

	h := sha1.New()
	h.Write(seed)
	h.Write(pwHashHash[:])
	seedHash := h.Sum(nil)

	out := make([]byte, len(pwHash))
	for i := range out {
		out[i] = pwHash[i] ^ seedHash[i]
	}
	return out
}

// NativePassword implements mysql_native_password (spec 4.3).
type NativePassword struct{}

func (NativePassword) Name() string { return "mysql_native_password" }

func (NativePassword) Authenticate(ch Channel, seed []byte, cred Credential) error {
	return ch.WriteAuthResponse(scramble418(cred.Password, seed))
}

func (NativePassword) Continue(ch Channel, data []byte, cred Credential) ([]byte, error) {
	return nil, nil
}

// sha256Scramble implements caching_sha2_password's fast-path response:
// SHA256(pw) XOR SHA256(SHA256(SHA256(pw)) || seed).
func sha256Scramble(password string, seed []byte) []byte {
	if password == "" {
		return nil
	}
	pwHash := sha256.Sum256([]byte(password))
	pwHashHash := sha256.Sum256(pwHash[:])

	h := sha256.New()
	h.Write(pwHashHash[:])
	h.Write(seed)
	seedHash := h.Sum(nil)

	out := make([]byte, len(pwHash))
	for i := range out {
		out[i] = pwHash[i] ^ seedHash[i]
	}
	return out
}
