// Package analysis wires configuration into a running classifier, result
// store and scan service, and drives them from the command line or the
// HTTP server.
package analysis

import (
	"context"
	"time"

	"github.com/spf13/afero"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
	"github.com/tphakala/soilnet-go/internal/classifier"
	"github.com/tphakala/soilnet-go/internal/conf"
	"github.com/tphakala/soilnet-go/internal/datastore"
	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/imaging"
	"github.com/tphakala/soilnet-go/internal/logger"
	"github.com/tphakala/soilnet-go/internal/observability"
	"github.com/tphakala/soilnet-go/internal/scan"
	"github.com/tphakala/soilnet-go/internal/stats"
)

// Runtime holds the long-lived components of one process.
type Runtime struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
	Metrics  *observability.Metrics
	Store    datastore.Interface
	Engine   *classifier.Engine
	Service  *scan.Service
}

type options struct {
	fs     afero.Fs
	scorer classifier.Scorer
	clock  func() time.Time
}

// Option customizes New.
type Option func(*options)

// WithFs stores uploaded images on fs instead of the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithScorer overrides the scorer chosen from the model settings.
func WithScorer(s classifier.Scorer) Option {
	return func(o *options) { o.scorer = s }
}

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// New opens the result store and starts loading the model in the
// background. The load is bound to ctx. Callers must Close the runtime.
func New(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, opts ...Option) (*Runtime, error) {
	if settings == nil {
		return nil, errors.Newf("settings are required").
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	store, err := datastore.New(settings, m.Datastore)
	if err != nil {
		return nil, err
	}
	if err := store.Open(); err != nil {
		return nil, err
	}

	scorer := o.scorer
	if scorer == nil {
		scorer = NewScorer(&settings.Model)
	}
	engine := classifier.NewEngine(scorer, classifier.Options{
		Threshold: settings.Model.Threshold,
		Metrics:   m.Classifier,
	})

	cache := stats.NewCache(settings.Stats.CacheTTL, settings.Stats.Location(), m.Pipeline)
	svc, err := scan.NewService(imaging.New(PipelineConfig(&settings.Pipeline)), engine, store, cache, scan.Options{
		AllowPoorQuality: settings.Pipeline.AllowPoorQuality,
		LoadTimeout:      settings.Model.LoadTimeout,
		ImageDir:         settings.Pipeline.ImageDir,
		Fs:               o.fs,
		Metrics:          m.Pipeline,
		Clock:            o.clock,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	engine.Init(ctx)

	GetLogger().Debug("runtime ready",
		logger.String("version", build.Version()),
		logger.String("image_dir", settings.Pipeline.ImageDir),
		logger.Bool("model_configured", settings.Model.Path != ""))

	return &Runtime{
		Settings: settings,
		Build:    build,
		Metrics:  m,
		Store:    store,
		Engine:   engine,
		Service:  svc,
	}, nil
}

// Close stops the engine and closes the store.
func (r *Runtime) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return errors.Join(r.Engine.Shutdown(ctx), r.Store.Close())
}

// NewScorer returns the TFLite scorer for a configured model path and the
// colour reference scorer otherwise.
func NewScorer(settings *conf.ModelSettings) classifier.Scorer {
	if settings.Path == "" {
		GetLogger().Warn("no model configured, using colour reference scorer")
		return classifier.NewColorScorer()
	}
	return classifier.NewTFLiteScorer(classifier.TFLiteConfig{
		ModelPath:    settings.Path,
		MetadataPath: settings.MetadataPath,
		Threads:      settings.Threads,
		UseXNNPACK:   settings.UseXNNPACK,
	})
}

// PipelineConfig maps pipeline settings onto imaging limits. Zero values
// keep the imaging defaults.
func PipelineConfig(settings *conf.PipelineSettings) imaging.Config {
	cfg := imaging.DefaultConfig()
	if settings.TargetSize > 0 {
		cfg.TargetSize = settings.TargetSize
	}
	if settings.MinDimension > 0 {
		cfg.MinDimension = settings.MinDimension
	}
	if settings.MaxDimension > 0 {
		cfg.MaxDimension = settings.MaxDimension
	}
	if settings.MinQualitySide > 0 {
		cfg.MinQualitySide = settings.MinQualitySide
	}
	if settings.BlurThreshold > 0 {
		cfg.BlurThreshold = settings.BlurThreshold
	}
	return cfg
}

// closeTimeout bounds how long Run waits for in-flight work on exit.
const closeTimeout = 10 * time.Second

// Run opens a runtime, calls fn with it and closes it again.
func Run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, fn func(*Runtime) error, opts ...Option) error {
	rt, err := New(ctx, settings, build, opts...)
	if err != nil {
		return err
	}

	runErr := fn(rt)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	return errors.Join(runErr, rt.Close(closeCtx))
}
