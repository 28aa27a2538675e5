package domain

import "errors"

var (
	// ErrDuplicateName is returned when registering a pool whose name collides
	// (case-insensitively) with an existing pool.
	ErrDuplicateName = errors.New("duplicate pool name")

	// ErrPoolNotFound is returned when no pool with the requested name exists.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrAlreadyAcquired is returned when a handle that already holds a
	// connection attempts a second acquisition before releasing the first.
	ErrAlreadyAcquired = errors.New("connection already acquired")

	// ErrPoolExhausted is returned when every connection up to the hard
	// maximum is checked out and no idle connection is available.
	ErrPoolExhausted = errors.New("pool exhausted: all connections in use")

	// ErrConnectionOpenFailed is returned when a new connection could not be
	// opened, including failures to set up its trace file.
	ErrConnectionOpenFailed = errors.New("failed to open connection")

	// ErrNothingToRelease is returned when releasing a connection that is not
	// currently checked out of the pool.
	ErrNothingToRelease = errors.New("nothing to release")

	// ErrPoolClosed is returned when acquiring from a pool that has been
	// destroyed.
	ErrPoolClosed = errors.New("pool closed")

	// ErrCatalogProviderMissing is returned at registration time when a pool
	// enables the catalog cache but no catalog provider is configured.
	ErrCatalogProviderMissing = errors.New("catalog cache enabled but no catalog provider configured")
)
