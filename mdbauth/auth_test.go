package mdbauth

import (
	"bytes"
	"crypto/sha1"
	"testing"
)

type fakeChannel struct {
	tls       bool
	responses [][]byte
	pubKey    []byte
}

func (f *fakeChannel) WriteAuthResponse(data []byte) error {
	f.responses = append(f.responses, append([]byte(nil), data...))
	return nil
}
func (f *fakeChannel) TLSEnabled() bool { return f.tls }
func (f *fakeChannel) RequestPublicKey() ([]byte, error) { return f.pubKey, nil }

func TestNativePasswordScramble(t *testing.T) {
	seed := []byte("01234567890123456789")
	ch := &fakeChannel{}
	if err := (NativePassword{}).Authenticate(ch, seed, Credential{Password: "secret"}); err != nil {
		t.Fatal(err)
	}
	if len(ch.responses) != 1 || len(ch.responses[0]) != sha1.Size {
		t.Fatalf("expected one %d-byte response, got %v", sha1.Size, ch.responses)
	}
	// Deterministic given the same password and seed.
	ch2 := &fakeChannel{}
	NativePassword{}.Authenticate(ch2, seed, Credential{Password: "secret"})
	if !bytes.Equal(ch.responses[0], ch2.responses[0]) {
		t.Fatal("scramble should be deterministic for the same password/seed")
	}
}

func TestNativePasswordEmptyPassword(t *testing.T) {
	ch := &fakeChannel{}
	if err := (NativePassword{}).Authenticate(ch, []byte("seedseedseedseedseed"), Credential{Password: ""}); err != nil {
		t.Fatal(err)
	}
	if len(ch.responses[0]) != 0 {
		t.Fatalf("expected empty response for empty password, got %d bytes", len(ch.responses[0]))
	}
}

func TestClearPasswordRequiresTLS(t *testing.T) {
	ch := &fakeChannel{tls: false}
	if err := (ClearPassword{}).Authenticate(ch, nil, Credential{Password: "x"}); err == nil {
		t.Fatal("expected error without TLS")
	}
	ch2 := &fakeChannel{tls: true}
	if err := (ClearPassword{}).Authenticate(ch2, nil, Credential{Password: "x"}); err != nil {
		t.Fatal(err)
	}
	want := append([]byte("x"), 0)
	if !bytes.Equal(ch2.responses[0], want) {
		t.Fatalf("got %v want %v", ch2.responses[0], want)
	}
}

func TestCachingSHA2FastAuthSuccessSendsNothingFurther(t *testing.T) {
	p := &CachingSHA2Password{}
	ch := &fakeChannel{}
	if err := p.Authenticate(ch, []byte("seedseedseedseedseed"), Credential{Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	resp, err := p.Continue(ch, []byte{cachingSHA2FastAuthSuccess}, Credential{Password: "pw"})
	if err != nil || resp != nil {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
}

func TestCachingSHA2FullAuthOverTLSSendsClearPassword(t *testing.T) {
	p := &CachingSHA2Password{}
	ch := &fakeChannel{tls: true}
	p.Authenticate(ch, []byte("seedseedseedseedseed"), Credential{Password: "pw"})
	_, err := p.Continue(ch, []byte{cachingSHA2FullAuthRequest}, Credential{Password: "pw"})
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte("pw"), 0)
	if !bytes.Equal(ch.responses[1], want) {
		t.Fatalf("got %v want %v", ch.responses[1], want)
	}
}

func TestCachingSHA2FullAuthWithoutTLSOrKeyRetrievalFails(t *testing.T) {
	p := &CachingSHA2Password{AllowPublicKeyRetrieval: false}
	ch := &fakeChannel{tls: false}
	p.Authenticate(ch, []byte("seedseedseedseedseed"), Credential{Password: "pw"})
	_, err := p.Continue(ch, []byte{cachingSHA2FullAuthRequest}, Credential{Password: "pw"})
	if err == nil {
		t.Fatal("expected error when RSA key retrieval is disallowed over plaintext")
	}
}

func TestEd25519ScrambleProducesSixtyFourBytes(t *testing.T) {
	seed := []byte("0123456789012345678901234567890123456789012345678901234567890123")
	resp, err := ed25519Scramble("password", seed[:32])
	if err != nil {
		t.Fatal(err)
	}
	if len(resp) != 64 {
		t.Fatalf("expected 64-byte response, got %d", len(resp))
	}
}

func TestByNameResolvesKnownPlugins(t *testing.T) {
	for _, name := range []string{"mysql_native_password", "caching_sha2_password", "client_ed25519", "mysql_clear_password"} {
		p, ok := ByName(name, false)
		if !ok || p.Name() != name {
			t.Fatalf("ByName(%q) = %v, %v", name, p, ok)
		}
	}
	if _, ok := ByName("not_a_real_plugin", false); ok {
		t.Fatal("expected unknown plugin to resolve false")
	}
}
