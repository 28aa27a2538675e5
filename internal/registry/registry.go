// Package registry maintains the named set of connection pools. Names are
// matched case-insensitively, and each name maps to exactly one pool for the
// registry's lifetime.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crtsh/mod-pgconn/internal/backend"
	"github.com/crtsh/mod-pgconn/internal/domain"
	"github.com/crtsh/mod-pgconn/internal/metrics"
	"github.com/crtsh/mod-pgconn/internal/pool"
	"github.com/crtsh/mod-pgconn/pkg/logging"
)

// CatalogProvider builds the catalog blob attached to a pool whose
// configuration asks for catalog caching. It typically opens its own
// short-lived connection to the pool's target.
type CatalogProvider func(ctx context.Context, cfg *domain.PoolConfig) (domain.Catalog, error)

// Registry is the process-wide directory of pools.
type Registry struct {
	backend       backend.Backend
	provider      CatalogProvider
	sweepInterval time.Duration
	logger        *logging.Logger
	metrics       *metrics.Collector

	mu    sync.RWMutex
	pools map[string]*pool.Pool // keyed by lower-cased name
}

// Options configures a registry.
type Options struct {
	Backend         backend.Backend
	CatalogProvider CatalogProvider // nil if no provider is loaded
	SweepInterval   time.Duration
	Logger          *logging.Logger
	Metrics         *metrics.Collector
}

// New creates an empty registry.
func New(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		backend:       opts.Backend,
		provider:      opts.CatalogProvider,
		sweepInterval: opts.SweepInterval,
		logger:        logger.With("component", "registry"),
		metrics:       opts.Metrics,
		pools:         make(map[string]*pool.Pool),
	}
}

// Register validates the configuration, creates and starts a pool for it,
// and binds it to its name. Registration is all-or-nothing: a pool that
// cannot warm up, or a required catalog that cannot be built, leaves the
// registry unchanged.
func (r *Registry) Register(ctx context.Context, cfg *domain.PoolConfig) (*pool.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	key := strings.ToLower(cfg.Name)

	r.mu.RLock()
	_, exists := r.pools[key]
	r.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateName, cfg.Name)
	}

	var catalog domain.Catalog
	if cfg.CatalogWanted() {
		if r.provider == nil {
			return nil, fmt.Errorf("%w: pool %q has catalogCache=%s", domain.ErrCatalogProviderMissing, cfg.Name, cfg.CatalogCache)
		}
		var err error
		catalog, err = r.provider(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("build catalog for pool %q: %w", cfg.Name, err)
		}
	}

	p := pool.New(cfg, pool.Options{
		Backend:       r.backend,
		Catalog:       catalog,
		SweepInterval: r.sweepInterval,
		Logger:        r.logger,
		Metrics:       r.metrics,
	})
	if err := p.Start(ctx); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("start pool %q: %w", cfg.Name, err)
	}

	r.mu.Lock()
	if _, exists := r.pools[key]; exists {
		r.mu.Unlock()
		_ = p.Close()
		return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateName, cfg.Name)
	}
	r.pools[key] = p
	r.mu.Unlock()

	r.logger.Info("Registered pool",
		"pool", cfg.Name,
		"minIdle", cfg.MinIdle,
		"softMax", cfg.SoftMax,
		"hardMax", cfg.HardMax,
		"idleTTL", cfg.IdleTTL,
		"catalogCache", string(cfg.CatalogCache))
	return p, nil
}

// Lookup finds a pool by name, ignoring case.
func (r *Registry) Lookup(name string) (*pool.Pool, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", domain.ErrPoolNotFound)
	}

	r.mu.RLock()
	p, ok := r.pools[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrPoolNotFound, name)
	}
	return p, nil
}

// Availability reports the named pool's availability percentage. An unknown
// name reports 0, so load-balancer probes never error on a pool that has
// not come up.
func (r *Registry) Availability(name string) int {
	p, err := r.Lookup(name)
	if err != nil {
		return 0
	}
	return p.Availability()
}

// Names returns the configured (original-case) pool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.pools))
	for _, p := range r.pools {
		names = append(names, p.Name())
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Stats returns snapshots for every registered pool, sorted by name.
func (r *Registry) Stats() []*domain.PoolStats {
	r.mu.RLock()
	stats := make([]*domain.PoolStats, 0, len(r.pools))
	for _, p := range r.pools {
		stats = append(stats, p.Stats())
	}
	r.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Destroy removes the named pool from the registry and closes all of its
// connections, including checked-out ones.
func (r *Registry) Destroy(name string) error {
	key := strings.ToLower(name)

	r.mu.Lock()
	p, ok := r.pools[key]
	if ok {
		delete(r.pools, key)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrPoolNotFound, name)
	}

	r.logger.Info("Destroying pool", "pool", p.Name())
	return p.Close()
}

// CloseAll destroys every pool. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	pools := make([]*pool.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.pools = make(map[string]*pool.Pool)
	r.mu.Unlock()

	for _, p := range pools {
		if err := p.Close(); err != nil {
			r.logger.Warn("Error closing pool", "pool", p.Name(), "error", err)
		}
	}
	r.logger.Info("All pools closed", "count", len(pools))
}
