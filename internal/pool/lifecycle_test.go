package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/crtsh/mod-pgconn/internal/backend"
	"github.com/crtsh/mod-pgconn/internal/domain"
	"github.com/crtsh/mod-pgconn/pkg/logging"
)

// traceConn wraps mockConn and records trace attachment.
type traceConn struct {
	mockConn
	traceMu  sync.Mutex
	tracing  bool
	attached int
}

func (c *traceConn) StartTrace(w io.Writer) {
	c.traceMu.Lock()
	defer c.traceMu.Unlock()
	c.tracing = true
	c.attached++
}

func (c *traceConn) StopTrace() {
	c.traceMu.Lock()
	defer c.traceMu.Unlock()
	c.tracing = false
}

// traceBackend hands out traceConns with predictable IDs.
type traceBackend struct {
	mu    sync.Mutex
	next  int
	conns []*traceConn
}

func (b *traceBackend) Connect(ctx context.Context, target string) (backend.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	c := &traceConn{mockConn: mockConn{id: fmt.Sprintf("%d", b.next)}}
	b.conns = append(b.conns, c)
	return c, nil
}

func newTestLifecycle(cfg *domain.PoolConfig, b backend.Backend) *lifecycle {
	return &lifecycle{
		backend: b,
		cfg:     cfg,
		logger:  logging.Nop(),
	}
}

func TestLifecycle_OpenCreatesTraceFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig("traced", 0, 1, 1)
	cfg.TraceDir = dir
	b := &traceBackend{}
	l := newTestLifecycle(cfg, b)

	conn, err := l.open(context.Background())
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}

	want := filepath.Join(dir, fmt.Sprintf("%d_1.trc", os.Getpid()))
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("trace file %s not created: %v", want, err)
	}
	if !b.conns[0].tracing {
		t.Error("tracing not attached to the connection")
	}

	l.close(context.Background(), conn)
	if b.conns[0].tracing {
		t.Error("tracing still attached after close")
	}
	if !b.conns[0].isClosed() {
		t.Error("backend connection not closed")
	}
}

func TestLifecycle_OpenFailsWhenTraceDirMissing(t *testing.T) {
	cfg := testConfig("traced", 0, 1, 1)
	cfg.TraceDir = filepath.Join(t.TempDir(), "does-not-exist")
	b := &traceBackend{}
	l := newTestLifecycle(cfg, b)

	if _, err := l.open(context.Background()); !errors.Is(err, domain.ErrConnectionOpenFailed) {
		t.Fatalf("open() = %v, want ErrConnectionOpenFailed", err)
	}
	// A connection that cannot be fully configured must not leak.
	if !b.conns[0].isClosed() {
		t.Error("backend connection not closed after trace setup failure")
	}
}

func TestLifecycle_OpenFailsWhenBackendCannotTrace(t *testing.T) {
	cfg := testConfig("traced", 0, 1, 1)
	cfg.TraceDir = t.TempDir()
	b := &mockBackend{} // mockConn supports tracing, so use a bare wrapper
	l := newTestLifecycle(cfg, &untraceableBackend{inner: b})

	if _, err := l.open(context.Background()); !errors.Is(err, domain.ErrConnectionOpenFailed) {
		t.Fatalf("open() = %v, want ErrConnectionOpenFailed", err)
	}
}

// untraceableBackend strips the tracing capability from connections.
type untraceableBackend struct {
	inner backend.Backend
}

type untraceableConn struct {
	backend.Conn
}

func (b *untraceableBackend) Connect(ctx context.Context, target string) (backend.Conn, error) {
	c, err := b.inner.Connect(ctx, target)
	if err != nil {
		return nil, err
	}
	return &untraceableConn{Conn: c}, nil
}

func TestLifecycle_ResetReattachesTrace(t *testing.T) {
	cfg := testConfig("traced", 0, 1, 1)
	cfg.TraceDir = t.TempDir()
	b := &traceBackend{}
	l := newTestLifecycle(cfg, b)
	ctx := context.Background()

	conn, err := l.open(ctx)
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}

	mc := b.conns[0]
	mc.mu.Lock()
	mc.pingErr = errors.New("connection lost")
	mc.healthyAfterReset = true
	mc.mu.Unlock()

	if !l.validate(ctx, conn) {
		t.Fatal("validate() = false, want recovery via reset")
	}

	mc.traceMu.Lock()
	attached := mc.attached
	mc.traceMu.Unlock()
	if attached != 2 {
		t.Errorf("trace attached %d times, want 2 (open and after reset)", attached)
	}

	l.close(ctx, conn)
}
