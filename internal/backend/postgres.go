package backend

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/crtsh/mod-pgconn/internal/domain"
)

// Postgres implements Backend on top of pgconn, the low-level PostgreSQL
// connection package.
type Postgres struct{}

// NewPostgres creates a PostgreSQL backend.
func NewPostgres() *Postgres {
	return &Postgres{}
}

// Connect opens a connection using a libpq-style conninfo string or URL.
func (b *Postgres) Connect(ctx context.Context, target string) (Conn, error) {
	cfg, err := pgconn.ParseConfig(target)
	if err != nil {
		return nil, fmt.Errorf("parse conninfo: %w", err)
	}
	pg, err := pgconn.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &postgresConn{cfg: cfg, conn: pg}, nil
}

// postgresConn wraps one *pgconn.PgConn. It keeps the parsed config so that
// Reset can reconnect with the original settings.
type postgresConn struct {
	cfg  *pgconn.Config
	conn *pgconn.PgConn
}

// ID returns the server-assigned backend process ID. Note that a Reset
// yields a new backend process and therefore a new ID.
func (c *postgresConn) ID() string {
	return strconv.FormatUint(uint64(c.conn.PID()), 10)
}

func (c *postgresConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Reset closes the current connection and reconnects in place.
func (c *postgresConn) Reset(ctx context.Context) error {
	_ = c.conn.Close(ctx)
	pg, err := pgconn.ConnectConfig(ctx, c.cfg)
	if err != nil {
		return err
	}
	c.conn = pg
	return nil
}

func (c *postgresConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// StartTrace mirrors the wire protocol to w, in the same spirit as libpq's
// PQtrace.
func (c *postgresConn) StartTrace(w io.Writer) {
	c.conn.Frontend().Trace(w, pgproto3.TracerOptions{})
}

func (c *postgresConn) StopTrace() {
	c.conn.Frontend().Untrace()
}

// PgConn exposes the underlying connection for callers that need to run
// queries on an acquired connection.
func (c *postgresConn) PgConn() *pgconn.PgConn {
	return c.conn
}

var (
	_ Conn   = (*postgresConn)(nil)
	_ Tracer = (*postgresConn)(nil)
)

// ProcDetails describes one server-side function, as cached by the catalog
// provider.
type ProcDetails struct {
	Schema     string `json:"schema"`
	Name       string `json:"name"`
	NumArgs    int    `json:"num_args"`
	ReturnsSet bool   `json:"returns_set"`
}

// ProcCatalog maps "schema.name" to function details.
type ProcCatalog map[string]ProcDetails

const procCatalogQuery = `SELECT n.nspname, p.proname, p.pronargs, p.proretset
	FROM pg_catalog.pg_proc p
	JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
	WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')`

// ProcCatalogProvider fetches the function catalog for a pool's target
// database. It opens a dedicated short-lived connection; the pool's own
// connections are not involved.
func ProcCatalogProvider(ctx context.Context, cfg *domain.PoolConfig) (domain.Catalog, error) {
	conn, err := pgconn.Connect(ctx, cfg.ConnTarget)
	if err != nil {
		return nil, fmt.Errorf("catalog connect: %w", err)
	}
	defer conn.Close(ctx)

	results, err := conn.Exec(ctx, procCatalogQuery).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("catalog query: %w", err)
	}
	if len(results) == 0 {
		return ProcCatalog{}, nil
	}
	return buildProcCatalog(results[0].Rows)
}

// buildProcCatalog converts raw result rows (nspname, proname, pronargs,
// proretset) into a ProcCatalog.
func buildProcCatalog(rows [][][]byte) (ProcCatalog, error) {
	catalog := make(ProcCatalog, len(rows))
	for _, row := range rows {
		if len(row) != 4 {
			return nil, fmt.Errorf("catalog row has %d columns, want 4", len(row))
		}
		numArgs, err := strconv.Atoi(string(row[2]))
		if err != nil {
			return nil, fmt.Errorf("catalog pronargs %q: %w", row[2], err)
		}
		details := ProcDetails{
			Schema:     string(row[0]),
			Name:       string(row[1]),
			NumArgs:    numArgs,
			ReturnsSet: string(row[3]) == "t",
		}
		catalog[details.Schema+"."+details.Name] = details
	}
	return catalog, nil
}
