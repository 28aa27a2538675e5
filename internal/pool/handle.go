package pool

import (
	"context"

	"github.com/crtsh/mod-pgconn/internal/domain"
)

// Handle is a caller-side slot for at most one checked-out connection. It
// prevents a caller from holding an undisclosed number of connections
// through one handle: a second Acquire without an intervening Release fails.
//
// A Handle belongs to a single caller and is not safe for concurrent use.
type Handle struct {
	pool *Pool
	conn *Conn
}

// Handle creates an empty handle bound to this pool.
func (p *Pool) Handle() *Handle {
	return &Handle{pool: p}
}

// Acquire checks a connection out of the pool into this handle.
func (h *Handle) Acquire(ctx context.Context) (*Conn, error) {
	if h.conn != nil {
		return nil, domain.ErrAlreadyAcquired
	}
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	h.conn = conn
	return conn, nil
}

// Release returns the held connection to the pool. The handle is emptied
// even if the pool rejects the connection (e.g. after a shutdown race).
func (h *Handle) Release() error {
	if h.conn == nil {
		return domain.ErrNothingToRelease
	}
	conn := h.conn
	h.conn = nil
	return h.pool.Release(conn)
}

// Conn returns the currently held connection, or nil.
func (h *Handle) Conn() *Conn {
	return h.conn
}
