// Package api exposes the admin HTTP surface: pool stats, availability
// probes, pool teardown, and Prometheus metrics.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crtsh/mod-pgconn/internal/domain"
	"github.com/crtsh/mod-pgconn/internal/metrics"
	"github.com/crtsh/mod-pgconn/internal/registry"
	"github.com/crtsh/mod-pgconn/pkg/logging"
)

// ErrorResponse is the JSON body returned on request failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Handler holds the HTTP handlers and dependencies.
type Handler struct {
	registry *registry.Registry
	metrics  *metrics.Collector
	apiKey   string
	logger   *logging.Logger
}

// NewHandler creates a new API handler.
func NewHandler(reg *registry.Registry, collector *metrics.Collector, apiKey string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{
		registry: reg,
		metrics:  collector,
		apiKey:   apiKey,
		logger:   logger.With("component", "api"),
	}
}

// Router returns the configured Gin router.
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// Health and availability probes are unauthenticated so load balancers
	// can poll them.
	r.GET("/health", h.health)

	v1 := r.Group("/api/v1")
	{
		pools := v1.Group("/pools")
		{
			pools.GET("", h.listPools)
			pools.GET("/:name", h.poolStats)
			pools.GET("/:name/availability", h.poolAvailability)
			pools.DELETE("/:name", APIKeyAuth(h.apiKey), h.destroyPool)
		}
	}

	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	return r
}

// health returns a simple health check response.
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"pools":  len(h.registry.Names()),
	})
}

// listPools returns a stats snapshot for every registered pool.
func (h *Handler) listPools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"pools": h.registry.Stats(),
	})
}

// poolStats returns a stats snapshot for one pool.
func (h *Handler) poolStats(c *gin.Context) {
	p, err := h.registry.Lookup(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "POOL_NOT_FOUND",
		})
		return
	}

	stats := p.Stats()
	c.JSON(http.StatusOK, gin.H{
		"pool":         stats,
		"availability": stats.Availability(),
	})
}

// poolAvailability returns the percentage of hard-max capacity not checked
// out. An unknown pool reports 0 rather than an error so probes treat it as
// a drained target.
func (h *Handler) poolAvailability(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":         c.Param("name"),
		"availability": h.registry.Availability(c.Param("name")),
	})
}

// destroyPool removes a pool and closes all of its connections.
func (h *Handler) destroyPool(c *gin.Context) {
	name := c.Param("name")
	if err := h.registry.Destroy(name); err != nil {
		if errors.Is(err, domain.ErrPoolNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: err.Error(),
				Code:  "POOL_NOT_FOUND",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	h.logger.Info("Pool destroyed via API", "pool", name)
	c.Status(http.StatusNoContent)
}
