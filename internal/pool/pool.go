// Package pool implements the generic bounded connection pool substrate
// used by every backing-store client in the cluster monitor: the Rule
// Store, Event Store, and TS Store all lease handles from one of these
// instead of opening connections ad hoc.
//
// The pool is generic over the connection type so the same maintenance,
// acquire/release, and statistics machinery serves both the relational
// driver and the time-series driver instead of duplicating a
// reconnect-loop per store.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/clustermon/clustermon/internal/apierr"
	"github.com/clustermon/clustermon/pkg/config"
	"github.com/clustermon/clustermon/pkg/logger"
)

// Conn is the minimal capability a pooled connection must offer: a health
// probe and a way to close it. Stores layer their own query methods on top
// of the concrete connection type handed back by Acquire.
type Conn interface {
	Ping(ctx context.Context) error
	Close() error
}

// Opener creates one new, live connection.
type Opener[C Conn] func(ctx context.Context) (C, error)

// Prober runs the configured health-check sentinel against a connection.
// Defaults to conn.Ping when not supplied via WithProber.
type Prober[C Conn] func(ctx context.Context, conn C) error

// entry wraps a live connection with the bookkeeping attributes from the
// pool-managed-connection data model (spec §3): created_at, last_used_at,
// use_count, broken.
type entry[C Conn] struct {
	conn      C
	createdAt time.Time
	lastUsed  time.Time
	useCount  int64
	broken    bool
}

// Handle is the leased connection returned by Acquire. Callers read Conn()
// and must call Release exactly once down every exit path.
type Handle[C Conn] struct {
	pool  *Pool[C]
	entry *entry[C]
}

// Conn returns the underlying connection.
func (h *Handle[C]) Conn() C { return h.entry.conn }

// Release returns the handle to the pool. broken must be true if the
// caller observed the connection to be unusable; the pool discards it
// and opens a replacement instead of recycling it (spec §4.1 "release").
func (h *Handle[C]) Release(broken bool) {
	h.pool.release(h.entry, broken)
}

// Stats mirrors the counters exposed by stats() (spec §4.1).
type Stats struct {
	Total          int
	Active         int
	Idle           int
	PendingWaiters int
	CreatedTotal   int64
	DestroyedTotal int64
	AverageWaitMs  float64
}

const maxOpenRetries = 3

// Pool is a bounded, health-checked, FIFO-fair set of live connections.
type Pool[C Conn] struct {
	name   string
	opener Opener[C]
	prober Prober[C]
	log    *logger.Logger

	cfgMu sync.RWMutex
	cfg   config.PoolConfig

	mu       sync.Mutex
	idle     []*entry[C]
	active   int
	total    int
	waiters  []chan *entry[C]
	shutdown bool
	started  bool

	createdTotal   atomic.Int64
	destroyedTotal atomic.Int64
	waitSamples    atomic.Int64
	waitTotalMs    atomic.Int64

	reconnectLimiter *rate.Limiter

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a pool. Start must be called before Acquire will succeed;
// acquiring from an un-started or shut-down pool fails with
// CodePoolUnavailable.
func New[C Conn](name string, cfg config.PoolConfig, opener Opener[C], log *logger.Logger) *Pool[C] {
	return &Pool[C]{
		name:   name,
		opener: opener,
		prober: func(ctx context.Context, conn C) error { return conn.Ping(ctx) },
		log:    log,
		cfg:    cfg,
		// Reconnect attempts after a broken connection are paced at up to
		// 5/s with a burst of the pool's max size, so a backend outage
		// doesn't turn every release into a dial storm (SPEC_FULL §4.1.1).
		reconnectLimiter: rate.NewLimiter(rate.Limit(5), max(cfg.MaxConnections, 1)),
	}
}

// WithProber overrides the health-check sentinel run against idle
// connections, e.g. executing the configured health_check_query instead
// of a bare protocol ping.
func (p *Pool[C]) WithProber(prober Prober[C]) *Pool[C] {
	p.prober = prober
	return p
}

// Start eagerly opens InitialConnections connections and launches the
// maintenance worker. Failing to open the initial set is non-fatal; the
// pool just starts smaller and grows lazily on Acquire.
func (p *Pool[C]) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	cfg := p.config()
	for i := 0; i < cfg.InitialConnections; i++ {
		e, err := p.open(ctx)
		if err != nil {
			p.log.WithField("pool", p.name).WithField("error", err).Warn("initial connection open failed")
			continue
		}
		p.mu.Lock()
		p.idle = append(p.idle, e)
		p.total++
		p.mu.Unlock()
	}

	p.wg.Add(1)
	go p.maintain()

	return nil
}

func (p *Pool[C]) config() config.PoolConfig {
	p.cfgMu.RLock()
	defer p.cfgMu.RUnlock()
	return p.cfg
}

// UpdateConfig swaps the pool's tunables in. Existing connections are left
// alone; the new limits apply to subsequent acquire/maintenance decisions.
func (p *Pool[C]) UpdateConfig(cfg config.PoolConfig) {
	p.cfgMu.Lock()
	p.cfg = cfg
	p.cfgMu.Unlock()
}

func (p *Pool[C]) open(ctx context.Context) (*entry[C], error) {
	var lastErr error
	for attempt := 0; attempt < maxOpenRetries; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, p.config().ConnectionTimeout)
		conn, err := p.opener(cctx)
		cancel()
		if err == nil {
			now := time.Now()
			p.createdTotal.Add(1)
			return &entry[C]{conn: conn, createdAt: now, lastUsed: now}, nil
		}
		lastErr = err
		if attempt < maxOpenRetries-1 {
			time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
		}
	}
	return nil, apierr.Wrap(apierr.CodeTransientBackend, "open connection failed", lastErr)
}

// Acquire leases a connection, blocking (up to AcquireTimeout) for one to
// become idle or for room to open a new one, FIFO-fair among waiters
// (spec §4.1 "acquire").
func (p *Pool[C]) Acquire(ctx context.Context) (*Handle[C], error) {
	cfg := p.config()
	start := time.Now()

	p.mu.Lock()
	if !p.started || p.shutdown {
		p.mu.Unlock()
		return nil, apierr.New(apierr.CodePoolUnavailable, p.name+" pool not available")
	}

	if n := len(p.idle); n > 0 {
		e := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.active++
		p.mu.Unlock()
		return p.finishAcquire(e, start), nil
	}

	if p.total < cfg.MaxConnections {
		p.total++
		p.mu.Unlock()
		e, err := p.open(ctx)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			return nil, err
		}
		p.mu.Lock()
		p.active++
		p.mu.Unlock()
		return p.finishAcquire(e, start), nil
	}

	// Pool is at capacity: join the FIFO waiter queue.
	ch := make(chan *entry[C], 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	timeout := cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e, ok := <-ch:
		if !ok || e == nil {
			return nil, apierr.New(apierr.CodeShutdownInProgress, p.name+" pool shut down while waiting")
		}
		return p.finishAcquire(e, start), nil
	case <-timer.C:
		p.removeWaiter(ch)
		return nil, apierr.New(apierr.CodePoolExhausted, p.name+" pool acquire timed out")
	case <-ctx.Done():
		p.removeWaiter(ch)
		return nil, ctx.Err()
	}
}

func (p *Pool[C]) finishAcquire(e *entry[C], start time.Time) *Handle[C] {
	e.lastUsed = time.Now()
	e.useCount++
	p.waitSamples.Add(1)
	p.waitTotalMs.Add(time.Since(start).Milliseconds())
	return &Handle[C]{pool: p, entry: e}
}

func (p *Pool[C]) removeWaiter(ch chan *entry[C]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// release returns a connection to the pool, handing it directly to the
// oldest waiter if one exists, or discarding it and notifying a waiter
// to open fresh if broken is true.
func (p *Pool[C]) release(e *entry[C], broken bool) {
	p.mu.Lock()

	if p.shutdown {
		p.active--
		p.mu.Unlock()
		_ = e.conn.Close()
		p.destroyedTotal.Add(1)
		return
	}

	if broken {
		e.broken = true
		p.active--
		p.total--
		p.mu.Unlock()
		_ = e.conn.Close()
		p.destroyedTotal.Add(1)
		p.replaceBroken()
		return
	}

	if n := len(p.waiters); n > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		ch <- e
		return
	}

	p.active--
	p.idle = append(p.idle, e)
	p.mu.Unlock()
}

// replaceBroken opens a replacement connection for a discarded broken one,
// rate-limited so a run of failures doesn't hammer the backend, and hands
// it to a waiter if one is queued.
func (p *Pool[C]) replaceBroken() {
	if !p.config().AutoReconnect {
		return
	}
	if !p.reconnectLimiter.Allow() {
		return
	}
	go func() {
		p.mu.Lock()
		if p.shutdown || p.total >= p.config().MaxConnections {
			p.mu.Unlock()
			return
		}
		p.total++
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), p.config().ConnectionTimeout)
		defer cancel()
		e, err := p.open(ctx)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			p.log.WithField("pool", p.name).WithField("error", err).Warn("reconnect after broken handle failed")
			return
		}

		p.mu.Lock()
		if n := len(p.waiters); n > 0 {
			ch := p.waiters[0]
			p.waiters = p.waiters[1:]
			p.active++
			p.mu.Unlock()
			ch <- e
			return
		}
		p.idle = append(p.idle, e)
		p.mu.Unlock()
	}()
}

// Stats reports current counters (spec §4.1 "stats").
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	samples := p.waitSamples.Load()
	var avg float64
	if samples > 0 {
		avg = float64(p.waitTotalMs.Load()) / float64(samples)
	}

	return Stats{
		Total:          p.total,
		Active:         p.active,
		Idle:           len(p.idle),
		PendingWaiters: len(p.waiters),
		CreatedTotal:   p.createdTotal.Load(),
		DestroyedTotal: p.destroyedTotal.Load(),
		AverageWaitMs:  avg,
	}
}

// Shutdown stops the maintenance worker, fails every pending waiter, and
// closes all idle connections. Active (leased) connections are closed as
// they are released. Safe to call more than once.
func (p *Pool[C]) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil
	}
	p.shutdown = true
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	stopCh := p.stopCh
	p.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	for _, e := range idle {
		_ = e.conn.Close()
		p.destroyedTotal.Add(1)
	}

	if stopCh != nil {
		close(stopCh)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// maintain runs the health-check and idle/lifetime reaping loop: a single
// goroutine periodically walks the idle set, evicting and replacing
// connections that fail a ping, have sat idle past IdleTimeout, or have
// lived past MaxLifetime.
func (p *Pool[C]) maintain() {
	defer p.wg.Done()

	interval := p.config().HealthCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reap()
		}
	}
}

func (p *Pool[C]) reap() {
	cfg := p.config()
	now := time.Now()

	p.mu.Lock()
	var keep, evict []*entry[C]
	for _, e := range p.idle {
		idleFor := now.Sub(e.lastUsed)
		aliveFor := now.Sub(e.createdAt)
		if cfg.IdleTimeout > 0 && idleFor > cfg.IdleTimeout {
			evict = append(evict, e)
			continue
		}
		if cfg.MaxLifetime > 0 && aliveFor > cfg.MaxLifetime {
			evict = append(evict, e)
			continue
		}
		keep = append(keep, e)
	}
	p.idle = keep
	p.total -= len(evict)
	p.mu.Unlock()

	for _, e := range evict {
		_ = e.conn.Close()
		p.destroyedTotal.Add(1)
	}

	// Health-check the survivors; a failed ping evicts and triggers a
	// rate-limited replacement via the same path a broken release uses.
	p.mu.Lock()
	candidates := append([]*entry[C]{}, p.idle...)
	p.mu.Unlock()

	for _, e := range candidates {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
		err := p.prober(ctx, e.conn)
		cancel()
		if err == nil {
			continue
		}

		p.mu.Lock()
		for i, c := range p.idle {
			if c == e {
				p.idle = append(p.idle[:i], p.idle[i+1:]...)
				p.total--
				break
			}
		}
		p.mu.Unlock()
		_ = e.conn.Close()
		p.destroyedTotal.Add(1)
		p.replaceBroken()
	}

	if len(evict) > 0 || len(candidates) > 0 {
		p.refillToMin()
	}
}

// refillToMin tops the pool back up to MinConnections after reaping, so a
// quiet pool doesn't drift down to zero idle connections and force every
// subsequent Acquire to pay dial latency.
func (p *Pool[C]) refillToMin() {
	cfg := p.config()
	p.mu.Lock()
	deficit := cfg.MinConnections - p.total
	if deficit > 0 {
		p.total += deficit
	}
	p.mu.Unlock()
	if deficit <= 0 {
		return
	}
	for i := 0; i < deficit; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
		e, err := p.open(ctx)
		cancel()
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			continue
		}
		p.mu.Lock()
		p.idle = append(p.idle, e)
		p.mu.Unlock()
	}
}

// WithConn acquires a connection, invokes fn, and releases it on every
// exit path — marking it broken if fn returns an *apierr.Error with
// CodeTransientBackend (wrapped errors are not inspected). This is the
// idiomatic Go replacement for a
// scoped acquire/release pair.
func WithConn[C Conn](ctx context.Context, p *Pool[C], fn func(C) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	broken := false
	defer func() { h.Release(broken) }()

	if err := fn(h.Conn()); err != nil {
		if apiErr, ok := err.(*apierr.Error); ok && apiErr.Code == apierr.CodeTransientBackend {
			broken = true
		}
		return err
	}
	return nil
}
