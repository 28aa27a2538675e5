// Package backend supplies the connection primitives the pool engine builds
// on: connect, health check, reset and disconnect.
// Implementations: PostgreSQL via pgconn (production), mocks (tests).
package backend

import (
	"context"
	"io"
)

// Backend opens connections to one class of resource.
type Backend interface {
	// Connect opens a new connection to the given target. The target format
	// is backend-specific (a libpq conninfo string for PostgreSQL).
	Connect(ctx context.Context, target string) (Conn, error)
}

// Conn is one open backend connection.
type Conn interface {
	// ID returns the backend-assigned identifier for this connection
	// (the server-side process ID for PostgreSQL).
	ID() string

	// Ping checks liveness. A nil error means the connection is healthy.
	Ping(ctx context.Context) error

	// Reset reconnects in place, reusing the original connection settings.
	Reset(ctx context.Context) error

	// Close terminates the connection.
	Close(ctx context.Context) error
}

// Tracer is implemented by connections that can mirror their protocol
// traffic to a writer.
type Tracer interface {
	// StartTrace mirrors every protocol byte exchanged on the connection to w
	// until StopTrace is called or the connection closes.
	StartTrace(w io.Writer)

	// StopTrace disables tracing.
	StopTrace()
}
