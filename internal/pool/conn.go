package pool

import (
	"os"
	"sync"
	"time"

	"github.com/crtsh/mod-pgconn/internal/backend"
)

// Conn is one pooled connection. It is exclusively owned by the pool while
// idle and by exactly one caller while checked out; it is never shared.
type Conn struct {
	id        string
	backend   backend.Conn
	createdAt time.Time
	traceFile *os.File
	closeOnce sync.Once
}

// ID returns the backend-assigned connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// Age returns the time elapsed since the connection was opened. TTL
// eviction compares against this, not against last use.
func (c *Conn) Age() time.Duration {
	return time.Since(c.createdAt)
}

// Backend exposes the underlying backend connection so callers can use it
// while checked out.
func (c *Conn) Backend() backend.Conn {
	return c.backend
}

// expired reports whether the connection has outlived ttl. A zero ttl
// disables expiry.
func (c *Conn) expired(ttl time.Duration) bool {
	return ttl > 0 && c.Age() > ttl
}
