package mdbpool

import "testing"

func idleConfig(tag string) Config {
	return Config{Tag: tag, MaxPoolSize: 5}
}

func TestGetOrCreateReturnsSameInstance(t *testing.T) {
	r := NewRegistry()
	p1 := r.GetOrCreate("a", idleConfig("a"))
	p2 := r.GetOrCreate("a", idleConfig("a"))
	if p1 != p2 {
		t.Fatal("expected the same Pool instance for the same key")
	}
	defer r.CloseAll()
}

func TestGetOrCreateSuppliesDefaultScheduler(t *testing.T) {
	r := NewRegistry()
	p := r.GetOrCreate("b", idleConfig("b"))
	defer r.CloseAll()
	if p.cfg.Scheduler == nil {
		t.Fatal("expected Registry to wire the default shared scheduler")
	}
}

func TestGetAndLen(t *testing.T) {
	r := NewRegistry()
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
	r.GetOrCreate("c", idleConfig("c"))
	defer r.CloseAll()

	if r.Len() != 1 {
		t.Fatalf("Len() = %d", r.Len())
	}
	if _, ok := r.Get("c"); !ok {
		t.Fatal("expected Get to find the registered pool")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected Get to miss for an unregistered key")
	}
}

func TestRemoveUnregistersAndCloses(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("d", idleConfig("d"))
	if err := r.Remove("d"); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Get("d"); ok {
		t.Fatal("expected pool to be unregistered after Remove")
	}
	if err := r.Remove("d"); err == nil {
		t.Fatal("expected error removing an already-removed key")
	}
}

func TestCloseAllDrainsEveryPool(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("e", idleConfig("e"))
	r.GetOrCreate("f", idleConfig("f"))
	errs := r.CloseAll()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if r.Len() != 0 {
		t.Fatalf("expected registry empty after CloseAll, got %d", r.Len())
	}
}

func TestAllStatsReflectsRegisteredPools(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("g", idleConfig("g"))
	defer r.CloseAll()
	stats := r.AllStats()
	if _, ok := stats["g"]; !ok {
		t.Fatal("expected stats entry for registered pool")
	}
}
