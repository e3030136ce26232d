package mdbconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/dbbouncer/mdbclient/mdbpool"
	"github.com/dbbouncer/mdbclient/mdbsession"
)

// BuildTLSConfig translates the TLS policy's SSLMode into a *tls.Config,
// or nil for SSLDisable (spec 6 "SSL mode (disable|trust|verify-ca|verify-full)").
func (t TLSPolicy) BuildTLSConfig() (*tls.Config, error) {
	switch t.Mode {
	case "", SSLDisable:
		return nil, nil
	case SSLTrust:
		return &tls.Config{InsecureSkipVerify: true}, nil
	case SSLVerifyCA, SSLVerifyFull:
		cfg := &tls.Config{}
		if t.Mode == SSLVerifyCA {
			// verify-ca checks the chain but not the server hostname.
			cfg.InsecureSkipVerify = true
			cfg.VerifyPeerCertificate = verifyChainOnly
		}
		if t.TrustStoreFile != "" {
			pem, err := os.ReadFile(t.TrustStoreFile)
			if err != nil {
				return nil, fmt.Errorf("mdbconfig: reading trust_store_file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("mdbconfig: no certificates found in %s", t.TrustStoreFile)
			}
			cfg.RootCAs = pool
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("mdbconfig: unknown tls mode %q", t.Mode)
	}
}

// verifyChainOnly re-implements chain verification without hostname
// checking for verify-ca, since InsecureSkipVerify disables both.
func verifyChainOnly(certs [][]byte, _ [][]*x509.Certificate) error {
	if len(certs) == 0 {
		return fmt.Errorf("mdbconfig: server presented no certificates")
	}
	leaf, err := x509.ParseCertificate(certs[0])
	if err != nil {
		return err
	}
	intermediates := x509.NewCertPool()
	for _, raw := range certs[1:] {
		if c, err := x509.ParseCertificate(raw); err == nil {
			intermediates.AddCert(c)
		}
	}
	_, err = leaf.Verify(x509.VerifyOptions{Intermediates: intermediates})
	return err
}

// ApplySession merges the policy's session-level knobs onto base,
// leaving base's connection target (Network/Address/Username/Password/
// Database) untouched — those come from the caller's DialConfig, not
// the YAML file (spec.md section 1: URL/DSN parsing is out of scope).
func (p *Policy) ApplySession(base mdbsession.Config) (mdbsession.Config, error) {
	tlsCfg, err := p.TLS.BuildTLSConfig()
	if err != nil {
		return base, err
	}
	base.TLSConfig = tlsCfg
	base.ConnectTimeout = orDuration(base.ConnectTimeout, p.Pool.ConnectTimeout)
	base.ReadTimeout = orDuration(base.ReadTimeout, p.Pool.SocketTimeout)
	base.PrepareCacheSize = orInt(base.PrepareCacheSize, p.Session.PrepareCacheSize)
	base.ReplayEnabled = base.ReplayEnabled || p.Session.ServerPrepStmtRedo
	base.ReplayMaxBuffer = orInt(base.ReplayMaxBuffer, p.Session.ReplayMaxBuffer)
	base.Timezone = orString(base.Timezone, p.Session.Timezone)
	base.AllowPublicKeyRetrieval = base.AllowPublicKeyRetrieval || p.TLS.AllowPublicKeyRetrieval
	if len(base.GaleraAllowedStates) == 0 {
		base.GaleraAllowedStates = p.Session.GaleraAllowedStates
	}
	if len(base.SessionVariables) == 0 {
		base.SessionVariables = p.Session.SessionVariables
	}
	base.AssureReadOnly = base.AssureReadOnly || p.Session.AssureReadOnly
	base.TransactionIsolation = orString(base.TransactionIsolation, p.Session.TransactionIsolation)
	return base, nil
}

// ApplyPool merges the policy's pool-sizing knobs onto base.
func (p *Policy) ApplyPool(base mdbpool.Config) mdbpool.Config {
	base.Tag = orString(base.Tag, p.Pool.Name)
	base.MinPoolSize = orInt(base.MinPoolSize, p.Pool.MinPoolSize)
	base.MaxPoolSize = orInt(base.MaxPoolSize, p.Pool.MaxPoolSize)
	base.MaxIdleTime = orDuration(base.MaxIdleTime, p.Pool.MaxIdleTime)
	base.ConnectTimeout = orDuration(base.ConnectTimeout, p.Pool.ConnectTimeout)
	base.PoolValidMinDelay = orDuration(base.PoolValidMinDelay, p.Pool.PoolValidMinDelay)
	base.SweepInterval = orDuration(base.SweepInterval, p.Pool.SweepInterval)
	return base
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func orString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v != 0 {
		return v
	}
	return fallback
}
