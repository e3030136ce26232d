// Package mdbintrospect exposes each pool's JMX-style instrumentation
// beans (spec 4.4 "Pool", "JMX-style instrumentation") over HTTP,
// modeled on the teacher's internal/api/server.go gorilla/mux REST
// server but narrowed to read-only pool introspection: this is a client
// library, not a multi-tenant proxy, so there is no tenant CRUD surface
// to keep.
package mdbintrospect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dbbouncer/mdbclient/mdbmetrics"
	"github.com/dbbouncer/mdbclient/mdbpool"
)

// Server is the HTTP introspection server: one JSON bean endpoint per
// registered pool, plus a Prometheus /metrics endpoint.
type Server struct {
	registry  *mdbpool.Registry
	metrics   *mdbmetrics.Collector
	log       *slog.Logger
	startTime time.Time
	http      *http.Server
}

// New builds a Server reading beans from registry and exposing
// collector's Prometheus registry at /metrics.
func New(registry *mdbpool.Registry, collector *mdbmetrics.Collector, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		registry:  registry,
		metrics:   collector,
		log:       log.With("component", "mdbintrospect"),
		startTime: time.Now(),
	}
}

// Start begins serving on addr (e.g. "127.0.0.1:8080").
func (s *Server) Start(addr string) error {
	r := mux.NewRouter()
	r.HandleFunc("/pools", s.listPools).Methods(http.MethodGet)
	r.HandleFunc("/pools/{tag}", s.poolBean).Methods(http.MethodGet)
	r.HandleFunc("/pools/{tag}/stats", s.poolStats).Methods(http.MethodGet)
	r.HandleFunc("/status", s.status).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.log.Info("introspection server starting", "addr", addr)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("introspection server error", "err", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) listPools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.AllStats())
}

func (s *Server) poolBean(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]
	p, ok := s.registry.Get(tag)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("no pool registered as %q", tag)})
		return
	}
	writeJSON(w, http.StatusOK, p.Stats())
}

func (s *Server) poolStats(w http.ResponseWriter, r *http.Request) {
	s.poolBean(w, r)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"pools":          s.registry.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
