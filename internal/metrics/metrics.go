// Package metrics provides Prometheus instrumentation for the pool manager.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	// In-process operations (acquire fast path, health checks)
	fastBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0}

	// Operations that open network connections
	connectBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}
)

// Collector holds all Prometheus metrics for the pool manager.
type Collector struct {
	// Gauges - current per-pool state
	PoolIdle         *prometheus.GaugeVec
	PoolCheckedOut   *prometheus.GaugeVec
	PoolLive         *prometheus.GaugeVec
	PoolHardMax      *prometheus.GaugeVec
	PoolAvailability *prometheus.GaugeVec

	// Counters - cumulative events
	AcquisitionsTotal *prometheus.CounterVec
	ReleasesTotal     *prometheus.CounterVec
	OpensTotal        *prometheus.CounterVec
	ResetsTotal       *prometheus.CounterVec
	EvictionsTotal    *prometheus.CounterVec

	// Histograms - latency distributions
	AcquireDuration     *prometheus.HistogramVec
	ConnectDuration     *prometheus.HistogramVec
	HealthCheckDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewCollector creates a new metrics collector with all metrics registered.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		// Gauges
		PoolIdle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pgconn",
			Subsystem: "pool",
			Name:      "idle_connections",
			Help:      "Number of idle connections available in the pool",
		}, []string{"pool"}),
		PoolCheckedOut: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pgconn",
			Subsystem: "pool",
			Name:      "checked_out_connections",
			Help:      "Number of connections currently held by callers",
		}, []string{"pool"}),
		PoolLive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pgconn",
			Subsystem: "pool",
			Name:      "live_connections",
			Help:      "Total live connections (idle plus checked out)",
		}, []string{"pool"}),
		PoolHardMax: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pgconn",
			Subsystem: "pool",
			Name:      "hard_max",
			Help:      "Hard cap on live connections from configuration",
		}, []string{"pool"}),
		PoolAvailability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pgconn",
			Subsystem: "pool",
			Name:      "availability_percent",
			Help:      "Percentage of hard-max capacity not currently checked out",
		}, []string{"pool"}),

		// Counters
		AcquisitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgconn",
			Name:      "acquisitions_total",
			Help:      "Total number of connection acquisition attempts",
		}, []string{"pool", "result"}),
		ReleasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgconn",
			Name:      "releases_total",
			Help:      "Total number of connection releases",
		}, []string{"pool", "result"}),
		OpensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgconn",
			Name:      "opens_total",
			Help:      "Total number of connection open attempts",
		}, []string{"pool", "result"}),
		ResetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgconn",
			Name:      "resets_total",
			Help:      "Total number of in-place connection resets",
		}, []string{"pool", "result"}),
		EvictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgconn",
			Name:      "evictions_total",
			Help:      "Total number of connections evicted from the idle set",
		}, []string{"pool", "reason"}),

		// Histograms
		AcquireDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pgconn",
			Name:      "acquire_duration_seconds",
			Help:      "End-to-end acquisition latency in seconds",
			Buckets:   connectBuckets,
		}, []string{"pool"}),
		ConnectDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pgconn",
			Name:      "connect_duration_seconds",
			Help:      "Time to open a new backend connection in seconds",
			Buckets:   connectBuckets,
		}, []string{"pool"}),
		HealthCheckDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pgconn",
			Name:      "health_check_duration_seconds",
			Help:      "Single health check latency in seconds",
			Buckets:   fastBuckets,
		}, []string{"pool"}),

		registry: reg,
	}

	// Register all metrics
	reg.MustRegister(
		// Gauges
		c.PoolIdle,
		c.PoolCheckedOut,
		c.PoolLive,
		c.PoolHardMax,
		c.PoolAvailability,
		// Counters
		c.AcquisitionsTotal,
		c.ReleasesTotal,
		c.OpensTotal,
		c.ResetsTotal,
		c.EvictionsTotal,
		// Histograms
		c.AcquireDuration,
		c.ConnectDuration,
		c.HealthCheckDuration,
	)

	return c
}

// Handler returns an HTTP handler for the metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
