package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	mw "github.com/tphakala/soilnet-go/internal/api/middleware"
	v1 "github.com/tphakala/soilnet-go/internal/api/v1"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
	"github.com/tphakala/soilnet-go/internal/logger"
	"github.com/tphakala/soilnet-go/internal/observability"
	"github.com/tphakala/soilnet-go/internal/observability/metrics"
)

// Server is the soilnet HTTP server.
type Server struct {
	echo   *echo.Echo
	config *Config
	log    logger.Logger

	service v1.ScanService
	metrics *observability.Metrics
	build   *buildinfo.Context

	apiController *v1.Controller
	startTime     time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithService sets the scan service behind the API. Required.
func WithService(svc v1.ScanService) ServerOption {
	return func(s *Server) {
		s.service = svc
	}
}

// WithMetrics enables request metrics and, when configured, /metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithBuildInfo sets the version reported by health checks.
func WithBuildInfo(b *buildinfo.Context) ServerOption {
	return func(s *Server) {
		s.build = b
	}
}

// WithLogger replaces the module logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// New creates a server. Routes are registered but nothing listens until Run.
func New(config *Config, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.service == nil {
		return nil, fmt.Errorf("scan service is required")
	}
	if s.log == nil {
		s.log = GetLogger()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("listen", config.Listen),
		logger.Int("upload_limit_mb", config.MaxUploadMB),
		logger.Bool("metrics", config.Metrics && s.metrics != nil))
	return s, nil
}

func (s *Server) setupMiddleware() {
	var httpMetrics *metrics.HTTPMetrics
	if s.metrics != nil {
		httpMetrics = s.metrics.HTTP
	}

	security := mw.DefaultSecurityConfig()
	security.AllowedOrigins = s.config.AllowedOrigins

	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLogger(s.log, httpMetrics))
	s.echo.Use(mw.NewCORS(security))
	s.echo.Use(mw.NewBodyLimit(s.config.MaxUploadMB))
	s.echo.Use(mw.NewGzip())
	s.echo.Use(mw.NewSecureHeaders(security))
}

func (s *Server) setupRoutes() {
	opts := []v1.Option{v1.WithBuildInfo(s.build), v1.WithLogger(s.log.Module("v1"))}
	if s.metrics != nil {
		opts = append(opts, v1.WithMetrics(s.metrics.HTTP))
	}
	s.apiController = v1.New(s.echo, s.service, opts...)

	if s.config.Metrics && s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server starting", logger.String("listen", s.config.Listen))
		if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutdown signal received, stopping HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("HTTP server stopped", logger.Duration("uptime", time.Since(s.startTime)))
	return <-errCh
}
