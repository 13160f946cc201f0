// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tphakala/soilnet-go/internal/logger"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "SOILNET_DEBUG", validateEnvBool},

		{"model.path", "SOILNET_MODEL_PATH", validateEnvPath},
		{"model.metadatapath", "SOILNET_MODEL_METADATA", validateEnvPath},
		{"model.threads", "SOILNET_MODEL_THREADS", validateEnvThreads},
		{"model.usexnnpack", "SOILNET_MODEL_XNNPACK", validateEnvBool},
		{"model.threshold", "SOILNET_MODEL_THRESHOLD", validateEnvThreshold},
		{"model.loadtimeout", "SOILNET_MODEL_LOAD_TIMEOUT", validateEnvDuration},

		{"pipeline.allowpoorquality", "SOILNET_ALLOW_POOR_QUALITY", validateEnvBool},

		{"output.sqlite.path", "SOILNET_SQLITE_PATH", validateEnvPath},
		{"output.mysql.enabled", "SOILNET_MYSQL_ENABLED", validateEnvBool},
		{"output.mysql.username", "SOILNET_MYSQL_USERNAME", nil},
		{"output.mysql.password", "SOILNET_MYSQL_PASSWORD", nil},
		{"output.mysql.host", "SOILNET_MYSQL_HOST", nil},
		{"output.mysql.port", "SOILNET_MYSQL_PORT", validateEnvPort},
		{"output.mysql.database", "SOILNET_MYSQL_DATABASE", nil},

		{"telemetry.enabled", "SOILNET_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.dsn", "SOILNET_SENTRY_DSN", nil},

		{"webserver.listen", "SOILNET_LISTEN", nil},
		{"logging.default_level", "SOILNET_LOG_LEVEL", validateEnvLogLevel},
	}
}

// bindEnvVars binds every environment variable and rejects invalid values.
// Invalid values are reported and left unbound so the file or default wins.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		value, set := os.LookupEnv(binding.EnvVar)
		if set && binding.Validate != nil {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: %v", binding.EnvVar, err))
				continue
			}
		}
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable validation failed: %s", strings.Join(warnings, "; "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value %q", value)
	}
	return nil
}

func validateEnvThreshold(value string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("must be a number, got %q", value)
	}
	if f <= 0 || f > 1 {
		return fmt.Errorf("must be in (0, 1], got %v", f)
	}
	return nil
}

func validateEnvThreads(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("must be an integer, got %q", value)
	}
	if n < 0 {
		return fmt.Errorf("must not be negative, got %d", n)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("must be a duration such as 30s, got %q", value)
	}
	if d <= 0 {
		return fmt.Errorf("must be positive, got %s", d)
	}
	return nil
}

func validateEnvPort(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("must be a port number, got %q", value)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch logger.LogLevel(strings.ToLower(value)) {
	case logger.LogLevelTrace, logger.LogLevelDebug, logger.LogLevelInfo, logger.LogLevelWarn, logger.LogLevelError:
		return nil
	default:
		return fmt.Errorf("unknown log level %q", value)
	}
}

// validateEnvPath rejects empty paths and parent directory traversal.
func validateEnvPath(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("path must not be empty")
	}
	if strings.Contains(value, "..") {
		return fmt.Errorf("path must not contain '..'")
	}
	return nil
}

// configureEnvironmentVariables binds SOILNET_* variables. Validation
// failures are logged and do not stop startup.
func configureEnvironmentVariables() error {
	if err := bindEnvVars(); err != nil {
		GetLogger().Warn("ignoring invalid environment variables", logger.Error(err))
	}
	return nil
}
