package mdbauth

import (
	"crypto/sha512"

	"filippo.io/edwards25519"

	"github.com/dbbouncer/mdbclient/mdberrors"
)

// Ed25519Password implements client_ed25519 (spec 4.3): SHA-512(pw) →
// clamped scalar az; nonce = SHA-512(az[32:64] || seed); R = nonce·B, A =
// az·B; h = reduce(SHA-512(R || A || seed)); S = h·az + nonce (mod L).
// Response is R || S (64 bytes).
type Ed25519Password struct{}

func (Ed25519Password) Name() string { return "client_ed25519" }

func (Ed25519Password) Authenticate(ch Channel, seed []byte, cred Credential) error {
	resp, err := ed25519Scramble(cred.Password, seed)
	if err != nil {
		return mdberrors.Auth("computing client_ed25519 response", err)
	}
	return ch.WriteAuthResponse(resp)
}

func (Ed25519Password) Continue(ch Channel, data []byte, cred Credential) ([]byte, error) {
	return nil, nil
}

func ed25519Scramble(password string, seed []byte) ([]byte, error) {
	digest := sha512.Sum512([]byte(password))
	azBytes := clampScalarBytes(digest[:32])

	az, err := new(edwards25519.Scalar).SetBytesWithClamping(digest[:32])
	if err != nil {
		return nil, err
	}

	nonceInput := append(append([]byte(nil), digest[32:64]...), seed...)
	nonceDigest := sha512.Sum512(nonceInput)
	nonce, err := new(edwards25519.Scalar).SetUniformBytes(nonceDigest[:])
	if err != nil {
		return nil, err
	}

	basepoint := edwards25519.NewGeneratorPoint()
	R := new(edwards25519.Point).ScalarMult(nonce, basepoint)
	A := new(edwards25519.Point).ScalarMult(az, basepoint)

	hInput := append(append(append([]byte(nil), R.Bytes()...), A.Bytes()...), seed...)
	hDigest := sha512.Sum512(hInput)
	h, err := new(edwards25519.Scalar).SetUniformBytes(hDigest[:])
	if err != nil {
		return nil, err
	}

	s := new(edwards25519.Scalar).MultiplyAdd(h, az, nonce)

	out := make([]byte, 0, 64)
	out = append(out, R.Bytes()...)
	out = append(out, s.Bytes()...)
	_ = azBytes
	return out, nil
}

// clampScalarBytes applies the standard Ed25519 clamping bit operations,
// kept as a separate helper for clarity even though
// Scalar.SetBytesWithClamping performs the same clamping internally.
func clampScalarBytes(b []byte) []byte {
	out := append([]byte(nil), b...)
	out[0] &= 248
	out[31] &= 127
	out[31] |= 64
	return out
}
