// Package v1 implements the JSON endpoints under /api/v1.
package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
	"github.com/tphakala/soilnet-go/internal/classifier"
	"github.com/tphakala/soilnet-go/internal/datastore"
	"github.com/tphakala/soilnet-go/internal/export"
	"github.com/tphakala/soilnet-go/internal/logger"
	"github.com/tphakala/soilnet-go/internal/observability/metrics"
	"github.com/tphakala/soilnet-go/internal/scan"
	"github.com/tphakala/soilnet-go/internal/stats"
)

// ScanService is the part of scan.Service the API needs.
type ScanService interface {
	Scan(ctx context.Context, req scan.Request) (*scan.Result, error)
	History() ([]datastore.Record, error)
	Get(id string) (datastore.Record, error)
	Statistics(now time.Time) (stats.Statistics, error)
	AttachLocation(id string, loc datastore.Location) (datastore.Record, error)
	MarkSynced(id, remoteURL string) (datastore.Record, error)
	Delete(id string) error
	ExportRows() ([]export.Row, error)
	ModelState() classifier.State
	ModelInfo() (classifier.ModelInfo, bool)
}

// Controller manages the API routes and handlers.
type Controller struct {
	Echo    *echo.Echo
	Group   *echo.Group
	Service ScanService

	build     *buildinfo.Context
	metrics   *metrics.HTTPMetrics
	log       logger.Logger
	now       func() time.Time
	startTime time.Time
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithBuildInfo sets the version reported by the health endpoint.
func WithBuildInfo(b *buildinfo.Context) Option {
	return func(c *Controller) {
		c.build = b
	}
}

// WithMetrics records upload sizes in m.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithClock replaces time.Now for statistics and export names.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithLogger replaces the module logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// New creates the controller and registers its routes on e.
func New(e *echo.Echo, svc ScanService, opts ...Option) *Controller {
	c := &Controller{
		Echo:      e,
		Group:     e.Group("/api/v1"),
		Service:   svc,
		now:       time.Now,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = GetLogger()
	}
	c.initRoutes()
	return c
}

// initRoutes registers all API endpoints.
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	c.Group.POST("/scans", c.CreateScan)
	c.Group.GET("/scans", c.ListScans)
	c.Group.GET("/scans/:id", c.GetScan)
	c.Group.PUT("/scans/:id/location", c.UpdateLocation)
	c.Group.POST("/scans/:id/synced", c.MarkSynced)
	c.Group.DELETE("/scans/:id", c.DeleteScan)

	c.Group.GET("/stats", c.GetStatistics)
	c.Group.GET("/export", c.Export)
}

// HealthResponse reports the service and model state.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	BuildDate     string  `json:"build_date"`
	ModelState    string  `json:"model_state"`
	ModelVersion  string  `json:"model_version,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Timestamp     string  `json:"timestamp"`
}

// HealthCheck handles GET /api/v1/health. A failed model load makes the
// service unhealthy; a model still loading does not.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	state := c.Service.ModelState()
	resp := HealthResponse{
		Status:        "healthy",
		Version:       c.build.Version(),
		BuildDate:     c.build.BuildDate(),
		ModelState:    state.String(),
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Timestamp:     c.now().Format(time.RFC3339),
	}
	if info, ok := c.Service.ModelInfo(); ok {
		resp.ModelVersion = info.Version
	}

	code := http.StatusOK
	switch state {
	case classifier.StateFailed:
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case classifier.StateLoading, classifier.StateUnloaded:
		resp.Status = "starting"
	}
	return ctx.JSON(code, resp)
}
