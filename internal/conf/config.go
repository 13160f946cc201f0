// config.go: settings struct for soilnet and the functions that load and save it.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"github.com/tphakala/soilnet-go/internal/logger"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// ModelSettings configures the classification model.
type ModelSettings struct {
	Path         string        // path to the .tflite model, empty runs the colour reference scorer
	MetadataPath string        // optional model_metadata.json, defaults to the model's directory
	Threads      int           // TFLite interpreter threads, 0 picks performance cores
	UseXNNPACK   bool          // use the XNNPACK delegate
	Threshold    float64       // minimum confidence for a primary classification
	LoadTimeout  time.Duration // how long callers wait for the background load
}

// PipelineSettings configures image validation and normalization.
type PipelineSettings struct {
	TargetSize       int     // model input side in pixels
	MinDimension     int     // smallest accepted image side
	MaxDimension     int     // largest accepted image side
	MinQualitySide   int     // sides below this are flagged as low resolution
	BlurThreshold    float64 // Laplacian variance below this is flagged as blurry
	AllowPoorQuality bool    // classify images whose quality verdict is not acceptable
	ImageDir         string  // directory for uploaded images
}

// SQLiteSettings configures the SQLite result store.
type SQLiteSettings struct {
	Enabled bool   // true to store results in SQLite
	Path    string // database file
}

// MySQLSettings configures the MySQL result store.
type MySQLSettings struct {
	Enabled  bool   // true to store results in MySQL
	Username string // database user
	Password string // database password
	Database string // schema name
	Host     string // server host
	Port     string // server port
}

// OutputSettings selects the result store backend.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// TelemetrySettings configures Sentry error reporting.
type TelemetrySettings struct {
	Enabled     bool   // opt-in error reporting
	DSN         string // Sentry DSN
	Environment string // reported environment name
}

// WebServerSettings configures the local HTTP API.
type WebServerSettings struct {
	Enabled     bool   // true to start the API with serve
	Listen      string // listen address, e.g. ":8080"
	MaxUploadMB int    // largest accepted image upload
	Metrics     bool   // expose /metrics
	// MetricsListen serves /metrics on a separate listener as well, empty to disable
	MetricsListen string
}

// StatsSettings configures statistics caching.
type StatsSettings struct {
	CacheTTL time.Duration // how long the loaded record set is reused for statistics
	Timezone string        // calendar zone for streaks, "Local" or an IANA name
}

// Settings is the root of the configuration tree.
type Settings struct {
	Debug bool

	Model     ModelSettings
	Pipeline  PipelineSettings
	Output    OutputSettings
	Logging   logger.LoggingConfig
	Telemetry TelemetrySettings
	WebServer WebServerSettings
	Stats     StatsSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file, environment and defaults into Settings.
// A missing config file is created from the embedded default.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, binds the environment and reads the config file.
func initViper() error {
	viper.SetConfigType("yaml")

	// An explicit --config file skips the search path lookup.
	if viper.ConfigFileUsed() == "" {
		viper.SetConfigName("config")
		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return fmt.Errorf("error getting default config paths: %w", err)
		}
		for _, path := range configPaths {
			viper.AddConfigPath(path)
		}
	}

	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		return err
	}

	err := viper.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return createDefaultConfig()
	}
	return fmt.Errorf("fatal error reading config file: %w", err)
}

// createDefaultConfig writes the embedded default config to the first config path.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := WriteDefaultConfig(configPath); err != nil {
		return err
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// WriteDefaultConfig writes the embedded default config to configPath.
// An existing file is left untouched.
func WriteDefaultConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file %s already exists", configPath)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(getDefaultConfig()), 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}
	return nil
}

// getDefaultConfig returns the embedded default config.yaml.
func getDefaultConfig() string {
	data, err := configFiles.ReadFile("config.yaml")
	if err != nil {
		// embedded at build time, cannot fail
		panic(fmt.Sprintf("error reading embedded config file: %v", err))
	}
	return string(data)
}

// GetSettings returns the settings loaded by the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath. Comments and ordering of an
// existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write to a temp file first so a failed write never truncates the config.
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName) //nolint:errcheck // already renamed on success

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// Location returns the zone used for calendar based statistics.
func (s *StatsSettings) Location() *time.Location {
	switch s.Timezone {
	case "", "Local":
		return time.Local
	default:
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return time.Local
		}
		return loc
	}
}
