// Package mdbpool implements the bounded connection pool: idle LIFO,
// async fill, idle eviction sweeper, validation, and JMX-style
// instrumentation (spec 4.4 "Pool"), generalized from a per-tenant pool
// into a single-target pool a client library embeds directly.
package mdbpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dbbouncer/mdbclient/mdbmetrics"
	"github.com/dbbouncer/mdbclient/mdbsession"
)

// State is the pool's lifecycle state (spec 4.4: "States: OK, CLOSING").
type State int

const (
	StateOK State = iota
	StateClosing
)

// Stats mirrors the pool's JMX-style instrumentation beans (spec 4.4,
// surfaced over HTTP by mdbintrospect and as Prometheus gauges by
// mdbmetrics).
type Stats struct {
	Tag             string
	Idle            int
	Total           int
	Pending         int
	MinPoolSize     int
	MaxPoolSize     int
	ExhaustedTotal  int64
}

// Config configures a Pool.
type Config struct {
	Tag string

	Session mdbsession.Config

	MinPoolSize int
	MaxPoolSize int

	MaxIdleTime    time.Duration
	ConnectTimeout time.Duration

	// PoolValidMinDelay bounds how long an idle connection may go
	// without validation before Acquire pings it (spec 4.4 step 2).
	PoolValidMinDelay time.Duration

	SweepInterval time.Duration

	// Scheduler is the shared scheduled executor that drives this pool's
	// sweeper (spec 5 "Shared resources"). Registry.GetOrCreate supplies
	// its process-wide default; a Pool embedded directly by a caller
	// without going through a Registry leaves this nil and falls back to
	// running its own private ticker.
	Scheduler *Scheduler

	// Metrics, when set, receives the pool's JMX-style instrumentation as
	// Prometheus observations (spec 4.4 "instrumentation", realized per
	// SPEC_FULL.md 11 as mdbmetrics rather than JMX beans). Nil disables
	// metrics recording.
	Metrics *mdbmetrics.Collector

	Logger *slog.Logger
}

// idleConn wraps a pooled Session with bookkeeping for validation/sweep.
type idleConn struct {
	sess     *mdbsession.Session
	lastUsed time.Time
	created  time.Time
}

// Pool is a single-target connection pool (spec 4.4).
type Pool struct {
	cfg Config
	log *slog.Logger

	host *mdbsession.HostState

	mu    sync.Mutex
	cond  *sync.Cond
	state State

	idle    []*idleConn
	total   int
	pending int

	exhausted int64

	appendCh chan struct{}
	stopCh   chan struct{}
	sweepStop chan struct{}
}

// New constructs a Pool and starts its background appender and sweeper
// (spec 4.4: "single-worker appender", "periodic idle sweeper").
func New(cfg Config) *Pool {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tag == "" {
		cfg.Tag = "pool-" + uuid.NewString()
	}
	if cfg.PoolValidMinDelay <= 0 {
		cfg.PoolValidMinDelay = 500 * time.Millisecond
	}
	if cfg.SweepInterval <= 0 {
		if cfg.MaxIdleTime > 0 {
			cfg.SweepInterval = cfg.MaxIdleTime / 2
		} else {
			cfg.SweepInterval = 30 * time.Second
		}
	}

	p := &Pool{
		cfg:       cfg,
		log:       cfg.Logger.With("component", "mdbpool", "tag", cfg.Tag),
		host:      &mdbsession.HostState{},
		appendCh:  make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		sweepStop: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	go p.appenderLoop()
	if cfg.Scheduler != nil {
		cfg.Scheduler.Register(p)
	} else {
		go p.sweepLoop()
	}

	p.requestRefill()
	return p
}

// observeStats pushes a point-in-time snapshot of the pool's gauges to the
// configured mdbmetrics.Collector, if any.
func (p *Pool) observeStats() {
	if p.cfg.Metrics == nil {
		return
	}
	p.mu.Lock()
	idle, total, pending := len(p.idle), p.total, p.pending
	p.mu.Unlock()
	p.cfg.Metrics.ObservePoolStats(p.cfg.Tag, idle, total, pending)
}

// requestRefill wakes the single appender goroutine, coalescing repeated
// requests (spec 4.4: "at most one appender task running").
func (p *Pool) requestRefill() {
	select {
	case p.appendCh <- struct{}{}:
	default:
	}
}

func (p *Pool) appenderLoop() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.appendCh:
			p.fill()
		}
	}
}

// fill opens new Sessions while total < min (or pending waiters exist) and
// total < max (spec 4.4 "Refill").
func (p *Pool) fill() {
	for {
		p.mu.Lock()
		if p.state != StateOK {
			p.mu.Unlock()
			return
		}
		need := p.total < p.cfg.MinPoolSize || p.pending > 0
		if !need || p.total >= p.cfg.MaxPoolSize {
			p.mu.Unlock()
			return
		}
		p.total++
		p.mu.Unlock()

		sess, err := mdbsession.Dial(p.cfg.Session, p.host)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			p.log.Warn("refill dial failed", "err", err)
			return
		}

		p.mu.Lock()
		if p.state != StateOK {
			p.mu.Unlock()
			sess.Close()
			return
		}
		p.idle = append(p.idle, &idleConn{sess: sess, lastUsed: time.Now(), created: time.Now()})
		p.cond.Broadcast()
		p.mu.Unlock()
		p.observeStats()
	}
}

// Acquire returns a Session from the idle pool or opens a new one,
// blocking up to ConnectTimeout (spec 4.4 "Acquire").
func (p *Pool) Acquire(ctx context.Context) (sess *mdbsession.Session, err error) {
	start := time.Now()
	defer func() {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.AcquireDuration(p.cfg.Tag, time.Since(start))
		}
		p.observeStats()
	}()

	deadline := time.Now().Add(p.cfg.ConnectTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	p.mu.Lock()
	p.pending++
	defer func() {
		p.mu.Lock()
		p.pending--
		p.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			p.mu.Unlock()
			return nil, ctx.Err()
		default:
		}

		if p.state != StateOK {
			p.mu.Unlock()
			return nil, fmt.Errorf("mdbpool: pool %q is closing", p.cfg.Tag)
		}

		for len(p.idle) > 0 {
			ic := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]

			if ic.sess.Closed() {
				p.total--
				p.requestRefill()
				continue
			}
			if time.Since(ic.lastUsed) > p.cfg.PoolValidMinDelay {
				if err := ic.sess.Ping(); err != nil {
					p.total--
					p.mu.Unlock()
					ic.sess.Close()
					p.requestRefill()
					p.mu.Lock()
					continue
				}
			}
			p.mu.Unlock()
			return ic.sess, nil
		}

		if p.total < p.cfg.MaxPoolSize {
			p.total++
			p.mu.Unlock()
			sess, err := mdbsession.Dial(p.cfg.Session, p.host)
			if err != nil {
				p.mu.Lock()
				p.total--
				p.mu.Unlock()
				return nil, fmt.Errorf("mdbpool: dialing %q: %w", p.cfg.Tag, err)
			}
			return sess, nil
		}

		p.exhausted++
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.PoolExhausted(p.cfg.Tag)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.mu.Unlock()
			return nil, fmt.Errorf("mdbpool: no connection available within %s for pool %q", p.cfg.ConnectTimeout, p.cfg.Tag)
		}
		timer := time.AfterFunc(remaining, func() { p.cond.Broadcast() })
		p.cond.Wait()
		timer.Stop()
	}
}

// Return gives sess back to the idle pool after resetting its session
// state, or closes it if the pool is CLOSING (spec 4.4: "close listener
// returns the Session to idle (after calling reset()) unless the pool is
// CLOSING").
func (p *Pool) Return(sess *mdbsession.Session) {
	if sess.Closed() {
		p.mu.Lock()
		p.total--
		p.mu.Unlock()
		p.requestRefill()
		return
	}

	if err := sess.ResetConnection(); err != nil {
		p.mu.Lock()
		p.total--
		p.mu.Unlock()
		sess.Close()
		p.requestRefill()
		return
	}

	p.mu.Lock()
	if p.state != StateOK {
		p.mu.Unlock()
		sess.Close()
		return
	}
	p.idle = append(p.idle, &idleConn{sess: sess, lastUsed: time.Now()})
	p.cond.Broadcast()
	p.mu.Unlock()
}

// CrossCredentialAcquire opens a one-off Session with credentials that
// differ from the pool's defaults; it is never added to the idle pool
// (spec 4.4 "Cross-credential acquire").
func (p *Pool) CrossCredentialAcquire(ctx context.Context, username, password string) (*mdbsession.Session, error) {
	cfg := p.cfg.Session
	cfg.Username = username
	cfg.Password = password
	return mdbsession.Dial(cfg, p.host)
}

func (p *Pool) sweepLoop() {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.sweepStop:
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// Sweep releases idle connections past their lifetime (spec 4.4
// "Sweeper"). Called periodically either by the pool's own ticker or,
// when registered with a Scheduler, by the shared sweep goroutine.
func (p *Pool) Sweep() {
	p.mu.Lock()
	kept := p.idle[:0]
	var released []*idleConn
	for _, ic := range p.idle {
		age := time.Since(ic.lastUsed)
		waitTimeout := time.Duration(ic.sess.Context().WaitTimeout) * time.Second
		expiredByServer := waitTimeout > 0 && age > waitTimeout-45*time.Second
		expiredByMaxIdle := p.cfg.MaxIdleTime > 0 && age > p.cfg.MaxIdleTime && p.total > p.cfg.MinPoolSize
		if expiredByServer || expiredByMaxIdle {
			released = append(released, ic)
			p.total--
			continue
		}
		kept = append(kept, ic)
	}
	p.idle = kept
	p.mu.Unlock()

	for _, ic := range released {
		ic.sess.Close()
	}
	if len(released) > 0 {
		p.requestRefill()
	}
}

// Close transitions the pool to CLOSING and drains idle connections, with
// a 10-second grace period before force-closing the remainder (spec 4.4
// "Close").
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.state == StateClosing {
		p.mu.Unlock()
		return nil
	}
	p.state = StateClosing
	p.pending = 0
	idle := p.idle
	p.idle = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	close(p.stopCh)
	if p.cfg.Scheduler != nil {
		p.cfg.Scheduler.Unregister(p)
	} else {
		close(p.sweepStop)
	}

	done := make(chan struct{})
	go func() {
		for _, ic := range idle {
			ic.sess.Close()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
	}
	return nil
}

// Stats returns a snapshot of the pool's instrumentation beans.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Tag:            p.cfg.Tag,
		Idle:           len(p.idle),
		Total:          p.total,
		Pending:        p.pending,
		MinPoolSize:    p.cfg.MinPoolSize,
		MaxPoolSize:    p.cfg.MaxPoolSize,
		ExhaustedTotal: p.exhausted,
	}
}
