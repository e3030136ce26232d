// Package mdbconfig loads the YAML pool/TLS policy file this client
// reads at startup, with ${VAR} environment substitution and an
// fsnotify-backed hot-reload watcher (SPEC_FULL.md section 10
// "Configuration"). Per-target connection details (host, credentials)
// are out of scope here — spec.md section 1 excludes URL/DSN parsing,
// so callers build an mdbsession.Config/mdbpool.Config directly and
// this package only supplies the policy knobs that would otherwise be
// duplicated across every pool.
package mdbconfig

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// SSLMode mirrors spec 6 "Configuration": disable|trust|verify-ca|verify-full.
type SSLMode string

const (
	SSLDisable    SSLMode = "disable"
	SSLTrust      SSLMode = "trust"
	SSLVerifyCA   SSLMode = "verify-ca"
	SSLVerifyFull SSLMode = "verify-full"
)

// PoolPolicy holds the pool-sizing and timing knobs from spec 6
// (max/min pool size, max idle time, connect/socket timeout, pool name).
type PoolPolicy struct {
	Name              string        `yaml:"name"`
	MinPoolSize       int           `yaml:"min_pool_size"`
	MaxPoolSize       int           `yaml:"max_pool_size"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	SocketTimeout     time.Duration `yaml:"socket_timeout"`
	PoolValidMinDelay time.Duration `yaml:"pool_valid_min_delay"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	RegisterBeans     bool          `yaml:"register_pool_instrumentation"`
}

// TLSPolicy holds the SSL knobs from spec 6.
type TLSPolicy struct {
	Mode                    SSLMode `yaml:"mode"`
	TrustStoreFile          string  `yaml:"trust_store_file"`
	RSAPublicKeyFile        string  `yaml:"rsa_public_key_file"`
	AllowPublicKeyRetrieval bool    `yaml:"allow_public_key_retrieval"`
}

// SessionPolicy holds the remaining per-spec-6 options that belong on
// every Session this client dials, not just the pool.
type SessionPolicy struct {
	UseServerPrepStmts bool              `yaml:"use_server_prep_stmts"`
	PrepareCacheSize   int               `yaml:"prepare_cache_size"`
	ServerPrepStmtRedo bool              `yaml:"server_prep_stmt_redo"`
	ReplayMaxBuffer    int               `yaml:"replay_max_buffer"`
	Timezone           string            `yaml:"timezone"` // "disable" | IANA id | "" = server default
	SessionVariables   map[string]string `yaml:"session_variables"`
	CredentialPlugin   string            `yaml:"credential_plugin"`
	GaleraAllowedStates []string         `yaml:"galera_allowed_states"`
	AssureReadOnly     bool              `yaml:"assure_read_only"`
	TransactionIsolation string          `yaml:"transaction_isolation"`
	YearIsDateType     bool              `yaml:"year_is_date_type"`
	DefaultFetchSize   int               `yaml:"default_fetch_size"`
	UseResetConnection bool              `yaml:"use_reset_connection"`
}

// Policy is the top-level document this package loads.
type Policy struct {
	Pool    PoolPolicy    `yaml:"pool"`
	TLS     TLSPolicy     `yaml:"tls"`
	Session SessionPolicy `yaml:"session"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(name)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML policy file with ${VAR} substitution,
// exactly as the teacher's config loader does (internal/config.Load).
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mdbconfig: reading %s: %w", path, err)
	}
	data = substituteEnvVars(data)

	p := &Policy{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("mdbconfig: parsing %s: %w", path, err)
	}
	if err := validate(p); err != nil {
		return nil, fmt.Errorf("mdbconfig: validating %s: %w", path, err)
	}
	applyDefaults(p)
	return p, nil
}

func validate(p *Policy) error {
	switch p.TLS.Mode {
	case "", SSLDisable, SSLTrust, SSLVerifyCA, SSLVerifyFull:
	default:
		return fmt.Errorf("tls.mode %q is not one of disable|trust|verify-ca|verify-full", p.TLS.Mode)
	}
	if p.Pool.MinPoolSize < 0 || p.Pool.MaxPoolSize < 0 {
		return fmt.Errorf("pool sizes must be non-negative")
	}
	if p.Pool.MaxPoolSize > 0 && p.Pool.MinPoolSize > p.Pool.MaxPoolSize {
		return fmt.Errorf("pool.min_pool_size (%d) exceeds pool.max_pool_size (%d)", p.Pool.MinPoolSize, p.Pool.MaxPoolSize)
	}
	return nil
}

func applyDefaults(p *Policy) {
	if p.Pool.MinPoolSize == 0 {
		p.Pool.MinPoolSize = 2
	}
	if p.Pool.MaxPoolSize == 0 {
		p.Pool.MaxPoolSize = 8
	}
	if p.Pool.MaxIdleTime == 0 {
		p.Pool.MaxIdleTime = 30 * time.Minute
	}
	if p.Pool.ConnectTimeout == 0 {
		p.Pool.ConnectTimeout = 30 * time.Second
	}
	if p.TLS.Mode == "" {
		p.TLS.Mode = SSLDisable
	}
	if p.Session.PrepareCacheSize == 0 {
		p.Session.PrepareCacheSize = 250
	}
}

// Watcher watches the policy file for changes and invokes callback with
// the freshly reloaded Policy, modeled on internal/config.Watcher
// (debounced fsnotify, reload-on-failure logs and keeps the old policy).
type Watcher struct {
	path     string
	callback func(*Policy)
	log      *slog.Logger
	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher starts watching path for writes/creates and reloading.
func NewWatcher(path string, callback func(*Policy), log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("mdbconfig: creating watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("mdbconfig: watching %s: %w", path, err)
	}

	w := &Watcher{
		path:     path,
		callback: callback,
		log:      log.With("component", "mdbconfig"),
		fsw:      fsw,
		stopCh:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, w.reload)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "err", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, err := Load(w.path)
	if err != nil {
		w.log.Warn("hot-reload failed, keeping previous policy", "err", err)
		return
	}
	w.log.Info("policy reloaded", "path", w.path)
	w.callback(p)
}

// Stop stops the watcher goroutine and closes the underlying fsnotify
// watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.fsw.Close()
}
