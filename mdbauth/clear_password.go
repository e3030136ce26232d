package mdbauth

import "github.com/dbbouncer/mdbclient/mdberrors"

// ClearPassword implements mysql_clear_password: sends the password
// verbatim plus a NUL terminator. Requires an already-TLS-secured
// connection (spec 4.3); Authenticate refuses otherwise rather than leak
// the password in the clear.
type ClearPassword struct{}

func (ClearPassword) Name() string { return "mysql_clear_password" }

func (ClearPassword) Authenticate(ch Channel, seed []byte, cred Credential) error {
	if !ch.TLSEnabled() {
		return mdberrors.Auth("mysql_clear_password requires a TLS-secured connection", nil)
	}
	resp := append([]byte(cred.Password), 0)
	return ch.WriteAuthResponse(resp)
}

func (ClearPassword) Continue(ch Channel, data []byte, cred Credential) ([]byte, error) {
	return nil, nil
}

// ByName resolves a plugin by its protocol name, as routed by
// AuthSwitchRequest (spec 4.3: "The runtime routes AuthSwitch by name.").
func ByName(name string, allowPublicKeyRetrieval bool) (Plugin, bool) {
	switch name {
	case "mysql_native_password":
		return NativePassword{}, true
	case "caching_sha2_password":
		return &CachingSHA2Password{AllowPublicKeyRetrieval: allowPublicKeyRetrieval}, true
	case "client_ed25519":
		return Ed25519Password{}, true
	case "mysql_clear_password":
		return ClearPassword{}, true
	default:
		return nil, false
	}
}
