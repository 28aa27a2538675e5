package domain

import (
	"fmt"
	"strings"
	"time"
)

// CatalogCacheMode controls whether a catalog blob is fetched and cached for
// a pool at registration time.
type CatalogCacheMode string

const (
	CatalogDisabled CatalogCacheMode = "disabled"
	CatalogEnabled  CatalogCacheMode = "enabled"
	CatalogRequired CatalogCacheMode = "required"
)

// Catalog is an opaque blob attached to a pool at registration time by an
// external provider. The pool manager stores and exposes it but never
// interprets it.
type Catalog any

// PoolConfig is the validated configuration a pool is constructed from.
// It is immutable after registration.
type PoolConfig struct {
	// Name identifies the pool. Lookup is case-insensitive.
	Name string

	// ConnTarget is the backend connection string (e.g. a libpq conninfo).
	ConnTarget string

	// MinIdle is the number of warm connections the sweep keeps open.
	MinIdle int

	// SoftMax caps how many idle connections are retained; idle connections
	// beyond it are evicted by the sweep even before their TTL expires.
	SoftMax int

	// HardMax is the absolute cap on live connections (idle + checked out).
	HardMax int

	// IdleTTL is the maximum age of an idle connection before it is evicted
	// rather than reused. Age is measured from creation, not last use.
	// Zero means connections never expire.
	IdleTTL time.Duration

	// TraceDir, when set, enables per-connection protocol tracing to files
	// in this directory.
	TraceDir string

	// CatalogCache selects whether the registry fetches a catalog blob for
	// this pool at registration time.
	CatalogCache CatalogCacheMode
}

// Validate checks the size bounds and catalog mode. The bounds check
// (minIdle <= softMax <= hardMax, hardMax >= 1) rejects configurations the
// pool engine cannot honor.
func (c *PoolConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("pool name must not be empty")
	}
	if c.HardMax < 1 {
		return fmt.Errorf("pool %q: hard max must be at least 1, got %d", c.Name, c.HardMax)
	}
	if c.MinIdle < 0 {
		return fmt.Errorf("pool %q: min idle must not be negative, got %d", c.Name, c.MinIdle)
	}
	if c.SoftMax < 0 {
		return fmt.Errorf("pool %q: soft max must not be negative, got %d", c.Name, c.SoftMax)
	}
	if c.MinIdle > c.SoftMax {
		return fmt.Errorf("pool %q: min idle (%d) exceeds soft max (%d)", c.Name, c.MinIdle, c.SoftMax)
	}
	if c.SoftMax > c.HardMax {
		return fmt.Errorf("pool %q: soft max (%d) exceeds hard max (%d)", c.Name, c.SoftMax, c.HardMax)
	}
	if c.IdleTTL < 0 {
		return fmt.Errorf("pool %q: idle TTL must not be negative", c.Name)
	}
	switch c.CatalogCache {
	case "", CatalogDisabled, CatalogEnabled, CatalogRequired:
	default:
		return fmt.Errorf("pool %q: unknown catalog cache mode %q", c.Name, c.CatalogCache)
	}
	return nil
}

// CatalogWanted reports whether a catalog blob should be fetched for this
// pool at registration time.
func (c *PoolConfig) CatalogWanted() bool {
	return c.CatalogCache == CatalogEnabled || c.CatalogCache == CatalogRequired
}
