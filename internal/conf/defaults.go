// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
	"github.com/tphakala/soilnet-go/internal/logger"
)

// setDefaultConfig registers defaults for every key in config.yaml.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("model.path", "")
	viper.SetDefault("model.metadatapath", "")
	viper.SetDefault("model.threads", 0)
	viper.SetDefault("model.usexnnpack", false)
	viper.SetDefault("model.threshold", DefaultConfidenceThreshold)
	viper.SetDefault("model.loadtimeout", DefaultModelLoadTimeout)

	viper.SetDefault("pipeline.targetsize", 224)
	viper.SetDefault("pipeline.mindimension", 100)
	viper.SetDefault("pipeline.maxdimension", 4000)
	viper.SetDefault("pipeline.minqualityside", 300)
	viper.SetDefault("pipeline.blurthreshold", 100.0)
	viper.SetDefault("pipeline.allowpoorquality", false)
	viper.SetDefault("pipeline.imagedir", "images")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "soilnet.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "soilnet")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	viper.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	viper.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	viper.SetDefault("logging.file_output.compress", false)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")
	viper.SetDefault("telemetry.environment", "production")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", ":8080")
	viper.SetDefault("webserver.maxuploadmb", DefaultMaxUploadMB)
	viper.SetDefault("webserver.metrics", true)
	viper.SetDefault("webserver.metricslisten", "")

	viper.SetDefault("stats.cachettl", DefaultStatsCacheTTL)
	viper.SetDefault("stats.timezone", "Local")
}
