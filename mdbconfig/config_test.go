package mdbconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempPolicy(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempPolicy(t, "pool:\n  name: mypool\n")
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Pool.MinPoolSize != 2 || p.Pool.MaxPoolSize != 8 {
		t.Fatalf("got %+v", p.Pool)
	}
	if p.TLS.Mode != SSLDisable {
		t.Fatalf("TLS.Mode = %q", p.TLS.Mode)
	}
	if p.Session.PrepareCacheSize != 250 {
		t.Fatalf("PrepareCacheSize = %d", p.Session.PrepareCacheSize)
	}
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	os.Setenv("MDBCONFIG_TEST_POOL_NAME", "from-env")
	defer os.Unsetenv("MDBCONFIG_TEST_POOL_NAME")
	path := writeTempPolicy(t, "pool:\n  name: ${MDBCONFIG_TEST_POOL_NAME}\n")
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Pool.Name != "from-env" {
		t.Fatalf("Pool.Name = %q", p.Pool.Name)
	}
}

func TestLoadRejectsInvalidTLSMode(t *testing.T) {
	path := writeTempPolicy(t, "tls:\n  mode: bogus\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for invalid tls.mode")
	}
}

func TestLoadRejectsMinExceedingMax(t *testing.T) {
	path := writeTempPolicy(t, "pool:\n  min_pool_size: 10\n  max_pool_size: 5\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error when min_pool_size exceeds max_pool_size")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/path/policy.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeTempPolicy(t, "pool:\n  name: original\n")
	reloaded := make(chan *Policy, 1)
	w, err := NewWatcher(path, func(p *Policy) { reloaded <- p }, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("pool:\n  name: updated\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-reloaded:
		if p.Pool.Name != "updated" {
			t.Fatalf("got %q", p.Pool.Name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for hot-reload callback")
	}
}
