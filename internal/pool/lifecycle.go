package pool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/crtsh/mod-pgconn/internal/backend"
	"github.com/crtsh/mod-pgconn/internal/domain"
	"github.com/crtsh/mod-pgconn/internal/metrics"
	"github.com/crtsh/mod-pgconn/pkg/logging"
)

// lifecycle turns the backend primitives (connect, ping, reset, close) into
// the guarantees the pool needs: tracing attached at open, the
// check-reset-recheck policy on acquisition, and idempotent teardown.
type lifecycle struct {
	backend backend.Backend
	cfg     *domain.PoolConfig
	logger  *logging.Logger
	metrics *metrics.Collector
}

// open connects to the backend and, if tracing is configured, creates and
// attaches the trace file. A connection that cannot be fully configured is
// closed and not returned.
func (l *lifecycle) open(ctx context.Context) (*Conn, error) {
	start := time.Now()
	bc, err := l.backend.Connect(ctx, l.cfg.ConnTarget)
	if l.metrics != nil {
		l.metrics.ConnectDuration.WithLabelValues(l.cfg.Name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if l.metrics != nil {
			l.metrics.OpensTotal.WithLabelValues(l.cfg.Name, "failure").Inc()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionOpenFailed, err)
	}

	conn := &Conn{
		id:        bc.ID(),
		backend:   bc,
		createdAt: time.Now(),
	}

	if l.cfg.TraceDir != "" {
		if err := l.startTracing(conn); err != nil {
			_ = bc.Close(ctx)
			if l.metrics != nil {
				l.metrics.OpensTotal.WithLabelValues(l.cfg.Name, "failure").Inc()
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrConnectionOpenFailed, err)
		}
	}

	if l.metrics != nil {
		l.metrics.OpensTotal.WithLabelValues(l.cfg.Name, "success").Inc()
	}
	l.logger.Debug("Opened connection", "connID", conn.id)
	return conn, nil
}

// startTracing creates the trace file, named by process ID and the
// backend-assigned connection identifier, and attaches it to the connection.
func (l *lifecycle) startTracing(c *Conn) error {
	tracer, ok := c.backend.(backend.Tracer)
	if !ok {
		return fmt.Errorf("backend connection does not support tracing")
	}

	name := fmt.Sprintf("%d_%s.trc", os.Getpid(), c.backend.ID())
	f, err := os.Create(filepath.Join(l.cfg.TraceDir, name))
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}

	tracer.StartTrace(f)
	c.traceFile = f
	return nil
}

// validate reports whether the connection is usable. When the health check
// fails it attempts exactly one in-place reset and re-checks once; a
// connection that is still unhealthy must be discarded by the caller.
func (l *lifecycle) validate(ctx context.Context, c *Conn) bool {
	start := time.Now()
	err := c.backend.Ping(ctx)
	if l.metrics != nil {
		l.metrics.HealthCheckDuration.WithLabelValues(l.cfg.Name).Observe(time.Since(start).Seconds())
	}
	if err == nil {
		return true
	}

	l.logger.Warn("Connection failed health check, resetting", "connID", c.id, "error", err)
	if resetErr := c.backend.Reset(ctx); resetErr != nil {
		if l.metrics != nil {
			l.metrics.ResetsTotal.WithLabelValues(l.cfg.Name, "failure").Inc()
		}
		return false
	}

	// A reset replaces the underlying handle, so tracing has to be
	// re-attached to keep mirroring this connection's traffic.
	if c.traceFile != nil {
		if tracer, ok := c.backend.(backend.Tracer); ok {
			tracer.StartTrace(c.traceFile)
		}
	}

	if err := c.backend.Ping(ctx); err != nil {
		if l.metrics != nil {
			l.metrics.ResetsTotal.WithLabelValues(l.cfg.Name, "failure").Inc()
		}
		return false
	}

	if l.metrics != nil {
		l.metrics.ResetsTotal.WithLabelValues(l.cfg.Name, "success").Inc()
	}
	l.logger.Info("Connection reset succeeded", "connID", c.id)
	return true
}

// close tears a connection down: tracing disabled, backend handle closed,
// trace file closed. Closing an already-closed connection is a no-op.
func (l *lifecycle) close(ctx context.Context, c *Conn) {
	c.closeOnce.Do(func() {
		if c.traceFile != nil {
			if tracer, ok := c.backend.(backend.Tracer); ok {
				tracer.StopTrace()
			}
		}
		if err := c.backend.Close(ctx); err != nil {
			l.logger.Warn("Error closing connection", "connID", c.id, "error", err)
		}
		if c.traceFile != nil {
			_ = c.traceFile.Close()
		}
	})
}
