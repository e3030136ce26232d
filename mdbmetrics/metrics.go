// Package mdbmetrics exposes the library's pool/session/auth
// instrumentation as Prometheus metrics (spec 4.4 "JMX-style
// instrumentation", realized here as Prometheus rather than JMX — this
// client has no JVM to register beans against).
package mdbmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every metric this client registers. Safe to construct
// more than once (e.g. in tests) since each Collector owns an independent
// prometheus.Registry.
type Collector struct {
	Registry *prometheus.Registry

	connectionsIdle    *prometheus.GaugeVec
	connectionsTotal   *prometheus.GaugeVec
	connectionsPending *prometheus.GaugeVec
	poolExhaustedTotal *prometheus.CounterVec

	queryDuration   *prometheus.HistogramVec
	acquireDuration *prometheus.HistogramVec

	authAttemptsTotal  *prometheus.CounterVec
	authFailuresTotal  *prometheus.CounterVec
	replayAttemptsTotal *prometheus.CounterVec
	replaySuccessTotal  *prometheus.CounterVec

	prepareCacheSize *prometheus.GaugeVec
	prepareCacheHits *prometheus.CounterVec
}

// New creates and registers every metric against a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsIdle: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mdbclient_pool_connections_idle",
				Help: "Number of idle connections per pool.",
			},
			[]string{"pool"},
		),
		connectionsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mdbclient_pool_connections_total",
				Help: "Total number of connections (idle + in use) per pool.",
			},
			[]string{"pool"},
		),
		connectionsPending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mdbclient_pool_acquire_pending",
				Help: "Number of goroutines currently waiting on Pool.Acquire.",
			},
			[]string{"pool"},
		),
		poolExhaustedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdbclient_pool_exhausted_total",
				Help: "Number of times Acquire found the pool at max_pool_size.",
			},
			[]string{"pool"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mdbclient_query_duration_seconds",
				Help:    "Duration of a command round trip, from write to final response packet.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"pool"},
		),
		acquireDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mdbclient_pool_acquire_duration_seconds",
				Help:    "Duration of Pool.Acquire calls.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
			},
			[]string{"pool"},
		),
		authAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdbclient_auth_attempts_total",
				Help: "Authentication attempts by plugin.",
			},
			[]string{"plugin"},
		),
		authFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdbclient_auth_failures_total",
				Help: "Authentication failures by plugin.",
			},
			[]string{"plugin"},
		),
		replayAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdbclient_transaction_replay_attempts_total",
				Help: "Transaction replay attempts after a transient connection failure.",
			},
			[]string{"pool"},
		),
		replaySuccessTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdbclient_transaction_replay_success_total",
				Help: "Transaction replay attempts that completed without error.",
			},
			[]string{"pool"},
		),
		prepareCacheSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mdbclient_prepare_cache_entries",
				Help: "Number of entries currently held in a session's prepare cache.",
			},
			[]string{"pool"},
		),
		prepareCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdbclient_prepare_cache_hits_total",
				Help: "Prepare cache hits by pool.",
			},
			[]string{"pool"},
		),
	}

	reg.MustRegister(
		c.connectionsIdle, c.connectionsTotal, c.connectionsPending, c.poolExhaustedTotal,
		c.queryDuration, c.acquireDuration,
		c.authAttemptsTotal, c.authFailuresTotal,
		c.replayAttemptsTotal, c.replaySuccessTotal,
		c.prepareCacheSize, c.prepareCacheHits,
	)
	return c
}

// ObservePoolStats records a point-in-time snapshot of a pool's gauges.
func (c *Collector) ObservePoolStats(pool string, idle, total, pending int) {
	c.connectionsIdle.WithLabelValues(pool).Set(float64(idle))
	c.connectionsTotal.WithLabelValues(pool).Set(float64(total))
	c.connectionsPending.WithLabelValues(pool).Set(float64(pending))
}

// PoolExhausted increments the exhaustion counter for pool.
func (c *Collector) PoolExhausted(pool string) {
	c.poolExhaustedTotal.WithLabelValues(pool).Inc()
}

// QueryDuration records a command round trip.
func (c *Collector) QueryDuration(pool string, d time.Duration) {
	c.queryDuration.WithLabelValues(pool).Observe(d.Seconds())
}

// AcquireDuration records an Acquire call's latency.
func (c *Collector) AcquireDuration(pool string, d time.Duration) {
	c.acquireDuration.WithLabelValues(pool).Observe(d.Seconds())
}

// AuthAttempt records an authentication attempt and, if it failed,
// increments the failure counter too.
func (c *Collector) AuthAttempt(plugin string, succeeded bool) {
	c.authAttemptsTotal.WithLabelValues(plugin).Inc()
	if !succeeded {
		c.authFailuresTotal.WithLabelValues(plugin).Inc()
	}
}

// ReplayAttempt records a transaction-replay attempt and its outcome.
func (c *Collector) ReplayAttempt(pool string, succeeded bool) {
	c.replayAttemptsTotal.WithLabelValues(pool).Inc()
	if succeeded {
		c.replaySuccessTotal.WithLabelValues(pool).Inc()
	}
}

// ObservePrepareCache records a prepare cache's current size and a hit.
func (c *Collector) ObservePrepareCache(pool string, size int, hit bool) {
	c.prepareCacheSize.WithLabelValues(pool).Set(float64(size))
	if hit {
		c.prepareCacheHits.WithLabelValues(pool).Inc()
	}
}
