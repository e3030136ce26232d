package mdbauth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // caching_sha2_password's RSA-OAEP full-auth step is defined using SHA-1
	"crypto/x509"
	"encoding/pem"

	"github.com/dbbouncer/mdbclient/mdberrors"
)

// caching_sha2_password AuthMoreData status bytes (spec 4.3).
const (
	cachingSHA2FastAuthSuccess byte = 0x03
	cachingSHA2FullAuthRequest byte = 0x04
)

// CachingSHA2Password implements caching_sha2_password, including the
// RSA-OAEP full-auth fallback (spec 4.3, spec 8 scenario 5).
type CachingSHA2Password struct {
	// AllowPublicKeyRetrieval permits requesting the server's RSA public
	// key over an unencrypted connection (`0x02` request byte). When
	// false and the connection is not TLS-secured, full-auth fails with
	// a "RSA public key is not available client side" error (spec 8
	// scenario 5).
	AllowPublicKeyRetrieval bool

	// seed is retained between Authenticate and Continue since the
	// full-auth RSA path needs the original 20-byte seed again.
	seed []byte
}

func (p *CachingSHA2Password) Name() string { return "caching_sha2_password" }

func (p *CachingSHA2Password) Authenticate(ch Channel, seed []byte, cred Credential) error {
	p.seed = append([]byte(nil), seed...)
	return ch.WriteAuthResponse(sha256Scramble(cred.Password, seed))
}

func (p *CachingSHA2Password) Continue(ch Channel, data []byte, cred Credential) ([]byte, error) {
	if len(data) == 0 {
		return nil, mdberrors.Auth("empty caching_sha2_password AuthMoreData", nil)
	}
	switch data[0] {
	case cachingSHA2FastAuthSuccess:
		// The next packet the session reads will be the OK; nothing
		// further to send.
		return nil, nil
	case cachingSHA2FullAuthRequest:
		return p.fullAuth(ch, cred)
	default:
		return nil, mdberrors.Auth("unexpected caching_sha2_password status byte", nil)
	}
}

func (p *CachingSHA2Password) fullAuth(ch Channel, cred Credential) ([]byte, error) {
	if ch.TLSEnabled() {
		pw := append([]byte(cred.Password), 0)
		if err := ch.WriteAuthResponse(pw); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if !p.AllowPublicKeyRetrieval {
		return nil, mdberrors.Auth("RSA public key is not available client side", nil)
	}

	keyPEM, err := ch.RequestPublicKey()
	if err != nil {
		return nil, mdberrors.Auth("fetching server RSA public key", err)
	}
	pub, err := parseRSAPublicKey(keyPEM)
	if err != nil {
		return nil, mdberrors.Auth("parsing server RSA public key", err)
	}

	xored := xorWithSeed([]byte(cred.Password+"\x00"), p.seed)
	encrypted, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, xored, nil)
	if err != nil {
		return nil, mdberrors.Auth("RSA-OAEP encrypting password", err)
	}
	if err := ch.WriteAuthResponse(encrypted); err != nil {
		return nil, err
	}
	return nil, nil
}

func parseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	var der []byte
	if block != nil {
		der = block.Bytes
	} else {
		der = data
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, mdberrors.Auth("server RSA key is not an RSA public key", nil)
	}
	return rsaPub, nil
}

// xorWithSeed XORs data with a repeating seed, per caching_sha2_password's
// full-auth RSA pre-encryption step (spec 4.3).
func xorWithSeed(data, seed []byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ seed[i%len(seed)]
	}
	return out
}
