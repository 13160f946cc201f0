// Package telemetry provides opt-in, privacy filtered error reporting to Sentry.
package telemetry

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
	"github.com/tphakala/soilnet-go/internal/conf"
	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/logger"
)

const defaultEnvironment = "production"

var enabled atomic.Bool

// Option customizes Init.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) {
		o.Transport = t
	}
}

// Init configures Sentry and routes enhanced errors to it. Reporting is
// opt-in: with telemetry disabled Init only clears any previous reporter.
func Init(settings *conf.TelemetrySettings, build *buildinfo.Context, opts ...Option) error {
	if settings == nil || !settings.Enabled {
		enabled.Store(false)
		errors.SetTelemetryReporter(nil)
		GetLogger().Debug("telemetry disabled")
		return nil
	}
	if settings.DSN == "" {
		return errors.Newf("telemetry enabled but no DSN configured").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	env := settings.Environment
	if env == "" {
		env = defaultEnvironment
	}

	options := sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      env,
		ServerName:       "",
		Release:          "soilnet@" + build.Version(),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := sentry.Init(options); err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	platform := collectPlatformInfo()
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", platform.OS)
		scope.SetTag("arch", platform.Architecture)
		scope.SetTag("container", strconv.FormatBool(platform.Container))
		scope.SetContext("platform", map[string]any{
			"num_cpu":    platform.NumCPU,
			"go_version": platform.GoVersion,
		})
	})

	enabled.Store(true)
	errors.SetTelemetryReporter(&filteredReporter{next: errors.NewSentryReporter(true)})

	GetLogger().Info("telemetry enabled",
		logger.String("environment", env),
		logger.String("release", options.Release))
	return nil
}

// Enabled reports whether Init turned reporting on.
func Enabled() bool {
	return enabled.Load()
}

// Flush waits up to timeout for queued events to be sent.
func Flush(timeout time.Duration) bool {
	if !enabled.Load() {
		return true
	}
	return sentry.Flush(timeout)
}

// Shutdown flushes and detaches the reporter.
func Shutdown(timeout time.Duration) {
	if !enabled.Load() {
		return
	}
	errors.SetTelemetryReporter(nil)
	sentry.Flush(timeout)
	enabled.Store(false)
}

// filteredReporter drops errors caused by caller input. Those describe a
// bad photo or request, not a fault in the program.
type filteredReporter struct {
	next errors.TelemetryReporter
}

func (r *filteredReporter) IsEnabled() bool {
	return r.next.IsEnabled()
}

func (r *filteredReporter) ReportError(ee *errors.EnhancedError) {
	if !reportable(ee.Category) {
		return
	}
	r.next.ReportError(ee)
}

func reportable(category errors.ErrorCategory) bool {
	switch category {
	case errors.CategoryValidation, errors.CategoryImageInput, errors.CategoryImageQuality,
		errors.CategoryNotFound, errors.CategoryConflict:
		return false
	default:
		return true
	}
}

// applyPrivacyFilters strips identifying data from an event before it leaves
// the process.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Message = logger.RedactSensitiveData(event.Message)

	for i := range event.Exception {
		event.Exception[i].Value = logger.RedactSensitiveData(event.Exception[i].Value)
	}

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}
