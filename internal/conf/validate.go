// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, check := range []func(*Settings) error{
		func(s *Settings) error { return validateModelSettings(&s.Model) },
		func(s *Settings) error { return validatePipelineSettings(&s.Pipeline) },
		func(s *Settings) error { return validateOutputSettings(&s.Output) },
		func(s *Settings) error { return validateTelemetrySettings(&s.Telemetry) },
		func(s *Settings) error { return validateWebServerSettings(&s.WebServer) },
		func(s *Settings) error { return validateStatsSettings(&s.Stats) },
	} {
		if err := check(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateModelSettings(settings *ModelSettings) error {
	var errs []string

	if settings.Threshold <= 0 || settings.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("model threshold must be in (0, 1], got %v", settings.Threshold))
	}
	if settings.Threads < 0 {
		errs = append(errs, "model threads must not be negative")
	}
	if settings.LoadTimeout <= 0 {
		errs = append(errs, "model load timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("model settings errors: %v", errs)
	}
	return nil
}

func validatePipelineSettings(settings *PipelineSettings) error {
	var errs []string

	if settings.TargetSize <= 0 {
		errs = append(errs, "target size must be positive")
	}
	if settings.MinDimension <= 0 || settings.MaxDimension < settings.MinDimension {
		errs = append(errs, fmt.Sprintf("invalid dimension range [%d, %d]", settings.MinDimension, settings.MaxDimension))
	}
	if settings.BlurThreshold < 0 {
		errs = append(errs, "blur threshold must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("pipeline settings errors: %v", errs)
	}
	return nil
}

func validateOutputSettings(settings *OutputSettings) error {
	switch {
	case settings.SQLite.Enabled && settings.MySQL.Enabled:
		return fmt.Errorf("only one of output.sqlite and output.mysql can be enabled")
	case settings.SQLite.Enabled:
		if strings.TrimSpace(settings.SQLite.Path) == "" {
			return fmt.Errorf("sqlite path must be set")
		}
	case settings.MySQL.Enabled:
		var missing []string
		if settings.MySQL.Username == "" {
			missing = append(missing, "username")
		}
		if settings.MySQL.Host == "" {
			missing = append(missing, "host")
		}
		if settings.MySQL.Database == "" {
			missing = append(missing, "database")
		}
		if len(missing) > 0 {
			return fmt.Errorf("mysql settings missing: %s", strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("no result store enabled, enable output.sqlite or output.mysql")
	}
	return nil
}

func validateTelemetrySettings(settings *TelemetrySettings) error {
	if settings.Enabled && settings.DSN == "" {
		return fmt.Errorf("telemetry is enabled but no DSN is configured")
	}
	return nil
}

func validateWebServerSettings(settings *WebServerSettings) error {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return fmt.Errorf("invalid webserver listen address %q: %w", settings.Listen, err)
	}
	if settings.MaxUploadMB <= 0 {
		return fmt.Errorf("webserver max upload must be positive")
	}
	if settings.MetricsListen != "" {
		if _, _, err := net.SplitHostPort(settings.MetricsListen); err != nil {
			return fmt.Errorf("invalid metrics listen address %q: %w", settings.MetricsListen, err)
		}
	}
	return nil
}

func validateStatsSettings(settings *StatsSettings) error {
	if settings.CacheTTL < 0 {
		return fmt.Errorf("stats cache ttl must not be negative")
	}
	return nil
}
