package analysis

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/soilnet-go/internal/api"
	"github.com/tphakala/soilnet-go/internal/logger"
	"github.com/tphakala/soilnet-go/internal/observability"
)

// Serve runs the HTTP API until ctx is cancelled. The model keeps loading
// in the background; until it is ready scans answer 503 and health reports
// "starting". When webserver.metricslisten is set the metrics are also
// served on that address.
func Serve(ctx context.Context, rt *Runtime, cfg *api.Config) error {
	if cfg == nil {
		cfg = api.ConfigFromSettings(rt.Settings)
	}
	srv, err := api.New(cfg,
		api.WithService(rt.Service),
		api.WithMetrics(rt.Metrics),
		api.WithBuildInfo(rt.Build))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if addr := rt.Settings.WebServer.MetricsListen; addr != "" {
		endpoint, err := observability.NewEndpoint(addr, rt.Metrics)
		if err != nil {
			return err
		}
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	GetLogger().Info("serving soil classification API",
		logger.String("listen", cfg.Listen),
		logger.String("model_state", rt.Service.ModelState().String()))
	g.Go(func() error { return srv.Run(gctx) })

	return g.Wait()
}
