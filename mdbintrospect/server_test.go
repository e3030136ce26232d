package mdbintrospect

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/dbbouncer/mdbclient/mdbmetrics"
	"github.com/dbbouncer/mdbclient/mdbpool"
	"github.com/dbbouncer/mdbclient/mdbsession"
)

// newTestServer wires the handlers the same way Start does, without
// actually binding a listener (spec 4.4 "JMX-style instrumentation").
func newTestServer(registry *mdbpool.Registry) (*Server, *mux.Router) {
	s := New(registry, mdbmetrics.New(), nil)

	r := mux.NewRouter()
	r.HandleFunc("/pools", s.listPools).Methods(http.MethodGet)
	r.HandleFunc("/pools/{tag}", s.poolBean).Methods(http.MethodGet)
	r.HandleFunc("/pools/{tag}/stats", s.poolStats).Methods(http.MethodGet)
	r.HandleFunc("/status", s.status).Methods(http.MethodGet)
	return s, r
}

func TestStatusReportsPoolCount(t *testing.T) {
	registry := mdbpool.NewRegistry()
	registry.GetOrCreate("p1", mdbpool.Config{
		Session:     mdbsession.Config{Network: "unix", Address: "/nonexistent.sock"},
		MinPoolSize: 0, MaxPoolSize: 1,
	})
	_, r := newTestServer(registry)
	t.Cleanup(func() { registry.CloseAll() })

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if int(body["pools"].(float64)) != 1 {
		t.Errorf("pools = %v, want 1", body["pools"])
	}
}

func TestPoolBeanNotFound(t *testing.T) {
	registry := mdbpool.NewRegistry()
	_, r := newTestServer(registry)

	req := httptest.NewRequest(http.MethodGet, "/pools/missing", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status code = %d, want 404", rr.Code)
	}
}

func TestListPoolsReturnsStatsKeyedByTag(t *testing.T) {
	registry := mdbpool.NewRegistry()
	registry.GetOrCreate("p1", mdbpool.Config{
		Session:     mdbsession.Config{Network: "unix", Address: "/nonexistent.sock"},
		MinPoolSize: 0, MaxPoolSize: 1,
	})
	t.Cleanup(func() { registry.CloseAll() })
	_, r := newTestServer(registry)

	req := httptest.NewRequest(http.MethodGet, "/pools", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	var stats map[string]mdbpool.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := stats["p1"]; !ok {
		t.Errorf("expected pool %q in response, got %v", "p1", stats)
	}
}
