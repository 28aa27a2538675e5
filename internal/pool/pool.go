// Package pool implements the bounded connection pool engine: non-blocking
// acquire/release, TTL and soft-max eviction, and warm-up to the configured
// minimum.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crtsh/mod-pgconn/internal/backend"
	"github.com/crtsh/mod-pgconn/internal/domain"
	"github.com/crtsh/mod-pgconn/internal/metrics"
	"github.com/crtsh/mod-pgconn/pkg/logging"
)

const defaultSweepInterval = 30 * time.Second

// Pool owns the bounded set of connections for one named configuration.
// The idle set and counters form a single critical section guarded by mu;
// connect and close I/O happens outside it.
type Pool struct {
	cfg     *domain.PoolConfig
	life    *lifecycle
	logger  *logging.Logger
	metrics *metrics.Collector
	catalog domain.Catalog

	sweepInterval time.Duration

	mu         sync.Mutex
	idle       []*Conn // oldest first; Acquire pops from the end
	checkedOut map[*Conn]struct{}
	live       int // idle + checked out, including reserved slots
	closed     bool

	// Snapshot of len(checkedOut) readable without the lock, so that
	// Availability never blocks behind a mutating operation.
	checkedOutCount atomic.Int64

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Options configures a pool beyond its PoolConfig.
type Options struct {
	Backend       backend.Backend
	Catalog       domain.Catalog     // opaque blob from the catalog provider, may be nil
	SweepInterval time.Duration      // 0 means the default
	Logger        *logging.Logger    // nil means no logging
	Metrics       *metrics.Collector // nil disables instrumentation
}

// New creates a pool for an already-validated configuration. Connections are
// not opened until Start.
func New(cfg *domain.PoolConfig, opts Options) *Pool {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	interval := opts.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	return &Pool{
		cfg: cfg,
		life: &lifecycle{
			backend: opts.Backend,
			cfg:     cfg,
			logger:  logger.With("pool", cfg.Name),
			metrics: opts.Metrics,
		},
		logger:        logger.With("pool", cfg.Name),
		metrics:       opts.Metrics,
		catalog:       opts.Catalog,
		sweepInterval: interval,
		checkedOut:    make(map[*Conn]struct{}),
	}
}

// Name returns the pool's configured name.
func (p *Pool) Name() string {
	return p.cfg.Name
}

// Config returns the pool's configuration record.
func (p *Pool) Config() *domain.PoolConfig {
	return p.cfg
}

// Catalog returns the opaque catalog blob attached at registration time, or
// nil if none was configured.
func (p *Pool) Catalog() domain.Catalog {
	return p.catalog
}

// Start warms the pool up to its configured minimum and launches the
// background sweep. It fails if any warm connection cannot be opened.
func (p *Pool) Start(ctx context.Context) error {
	if err := p.topUp(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return domain.ErrPoolClosed
	}
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("pool %q: sweeper already running", p.cfg.Name)
	}
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.running = true
	p.mu.Unlock()

	go p.sweepLoop(ctx)
	return nil
}

// Acquire hands out a live, validated connection, or fails immediately:
// there is no queueing or waiting for capacity.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	start := time.Now()
	conn, err := p.acquire(ctx)
	if p.metrics != nil {
		p.metrics.AcquireDuration.WithLabelValues(p.cfg.Name).Observe(time.Since(start).Seconds())
		p.metrics.AcquisitionsTotal.WithLabelValues(p.cfg.Name, acquireResult(err)).Inc()
	}
	return conn, err
}

func acquireResult(err error) string {
	switch {
	case err == nil:
		return "acquired"
	case errors.Is(err, domain.ErrPoolExhausted):
		return "exhausted"
	case errors.Is(err, domain.ErrPoolClosed):
		return "closed"
	default:
		return "open_failed"
	}
}

func (p *Pool) acquire(ctx context.Context) (*Conn, error) {
	for {
		candidate, expired, err := p.takeSlot()

		for _, c := range expired {
			p.life.close(ctx, c)
			if p.metrics != nil {
				p.metrics.EvictionsTotal.WithLabelValues(p.cfg.Name, "ttl").Inc()
			}
		}
		if err != nil {
			return nil, err
		}

		if candidate != nil {
			if p.life.validate(ctx, candidate) {
				return candidate, nil
			}
			// Failed its health check plus one reset: discard it and retry
			// as if it had never existed.
			p.life.close(ctx, candidate)
			p.forget(candidate)
			continue
		}

		// A slot was reserved for us; connect without holding the lock so a
		// slow connect does not stall other acquire/release calls.
		conn, err := p.life.open(ctx)
		if err != nil {
			p.unreserve()
			return nil, err
		}
		if !p.commit(conn) {
			// The pool was destroyed while we were connecting.
			p.life.close(ctx, conn)
			return nil, domain.ErrPoolClosed
		}
		return conn, nil
	}
}

// takeSlot pops a usable idle connection, or reserves capacity for a new
// one, under the pool lock. Expired idle connections are handed back for
// closing outside the lock. When the candidate is non-nil it has already
// been marked checked out.
func (p *Pool) takeSlot() (candidate *Conn, expired []*Conn, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, nil, domain.ErrPoolClosed
	}

	for len(p.idle) > 0 {
		c := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if c.expired(p.cfg.IdleTTL) {
			expired = append(expired, c)
			p.live--
			continue
		}
		p.checkedOut[c] = struct{}{}
		p.checkedOutCount.Add(1)
		return c, expired, nil
	}

	if p.live < p.cfg.HardMax {
		p.live++ // reserved; committed or rolled back by the caller
		return nil, expired, nil
	}

	return nil, expired, domain.ErrPoolExhausted
}

// forget removes a discarded connection from the checked-out set. If Close
// already drained the set, the counters belong to Close and stay untouched.
func (p *Pool) forget(c *Conn) {
	p.mu.Lock()
	if _, ok := p.checkedOut[c]; ok {
		delete(p.checkedOut, c)
		p.checkedOutCount.Add(-1)
		p.live--
	}
	p.mu.Unlock()
}

// unreserve rolls back a slot reservation after a failed open. Once the pool
// is closed the counters have been zeroed wholesale and the reservation no
// longer exists.
func (p *Pool) unreserve() {
	p.mu.Lock()
	if !p.closed {
		p.live--
	}
	p.mu.Unlock()
}

// commit marks a freshly opened connection as checked out. It reports false
// if the pool was destroyed while the connection was being opened; the
// reservation is then already gone with the rest of the counters.
func (p *Pool) commit(c *Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.checkedOut[c] = struct{}{}
	p.checkedOutCount.Add(1)
	return true
}

// Release returns a checked-out connection to the idle set. It performs no
// health check; the next acquirer re-validates. Its age is not refreshed.
func (p *Pool) Release(conn *Conn) error {
	if conn == nil {
		return domain.ErrNothingToRelease
	}

	p.mu.Lock()
	if _, ok := p.checkedOut[conn]; !ok {
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.ReleasesTotal.WithLabelValues(p.cfg.Name, "rejected").Inc()
		}
		return domain.ErrNothingToRelease
	}
	delete(p.checkedOut, conn)
	p.checkedOutCount.Add(-1)

	if p.closed {
		// Lost the shutdown race: the pool no longer keeps connections.
		p.live--
		p.mu.Unlock()
		p.life.close(context.Background(), conn)
		return nil
	}

	p.idle = append(p.idle, conn)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.ReleasesTotal.WithLabelValues(p.cfg.Name, "released").Inc()
	}
	return nil
}

// Stats returns a snapshot of the pool's state.
func (p *Pool) Stats() *domain.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &domain.PoolStats{
		Name:       p.cfg.Name,
		Idle:       len(p.idle),
		CheckedOut: len(p.checkedOut),
		Live:       p.live,
		MinIdle:    p.cfg.MinIdle,
		SoftMax:    p.cfg.SoftMax,
		HardMax:    p.cfg.HardMax,
	}
}

// Availability returns the percentage (0..100) of hard-max capacity not
// currently checked out. It reads a snapshot and never blocks behind
// acquire/release.
func (p *Pool) Availability() int {
	return domain.AvailabilityPercent(p.cfg.HardMax, int(p.checkedOutCount.Load()))
}

// Close destroys the pool: every live connection, idle or checked out, is
// closed, and further acquisitions fail. Safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	running := p.running
	p.running = false
	p.mu.Unlock()

	if running {
		close(p.stopCh)
		<-p.doneCh
	}

	p.mu.Lock()
	conns := make([]*Conn, 0, len(p.idle)+len(p.checkedOut))
	conns = append(conns, p.idle...)
	for c := range p.checkedOut {
		conns = append(conns, c)
	}
	p.idle = nil
	p.checkedOut = make(map[*Conn]struct{})
	p.live = 0
	p.checkedOutCount.Store(0)
	p.mu.Unlock()

	ctx := context.Background()
	for _, c := range conns {
		p.life.close(ctx, c)
	}

	p.logger.Info("Pool destroyed", "closedConnections", len(conns))
	return nil
}

// sweepLoop periodically evicts over-age and excess idle connections and
// tops the idle set back up to the configured minimum.
func (p *Pool) sweepLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep runs one eviction-and-warm-up cycle. It is also what the background
// loop runs on every tick.
func (p *Pool) Sweep(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	var evictTTL, evictExcess []*Conn
	kept := make([]*Conn, 0, len(p.idle))
	for _, c := range p.idle {
		if c.expired(p.cfg.IdleTTL) {
			evictTTL = append(evictTTL, c)
			p.live--
		} else {
			kept = append(kept, c)
		}
	}
	// Idle connections beyond the soft maximum are evicted even before
	// their TTL expires, oldest first.
	for len(kept) > p.cfg.SoftMax {
		evictExcess = append(evictExcess, kept[0])
		kept = kept[1:]
		p.live--
	}
	p.idle = kept
	p.mu.Unlock()

	for _, c := range evictTTL {
		p.life.close(ctx, c)
		if p.metrics != nil {
			p.metrics.EvictionsTotal.WithLabelValues(p.cfg.Name, "ttl").Inc()
		}
	}
	for _, c := range evictExcess {
		p.life.close(ctx, c)
		if p.metrics != nil {
			p.metrics.EvictionsTotal.WithLabelValues(p.cfg.Name, "soft_max").Inc()
		}
	}
	if n := len(evictTTL) + len(evictExcess); n > 0 {
		p.logger.Info("Evicted idle connections", "ttl", len(evictTTL), "softMax", len(evictExcess))
	}

	if err := p.topUp(ctx); err != nil {
		p.logger.Warn("Failed to warm pool", "error", err)
	}
}

// topUp opens connections until the idle set reaches the configured
// minimum, bounded by the hard maximum. Each slot is reserved under the
// lock and connected without it.
func (p *Pool) topUp(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.closed || len(p.idle) >= p.cfg.MinIdle || p.live >= p.cfg.HardMax {
			p.mu.Unlock()
			return nil
		}
		p.live++
		p.mu.Unlock()

		conn, err := p.life.open(ctx)
		if err != nil {
			p.unreserve()
			return err
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.life.close(ctx, conn)
			return nil
		}
		if len(p.idle) >= p.cfg.MinIdle {
			// Another filler got there first; drop the extra connection.
			p.live--
			p.mu.Unlock()
			p.life.close(ctx, conn)
			return nil
		}
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
	}
}
