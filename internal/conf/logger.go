// Package conf loads, validates and saves soilnet settings.
package conf

import "github.com/tphakala/soilnet-go/internal/logger"

// GetLogger returns the config package logger. It is fetched from the global
// logger each time because settings are loaded before logging is configured.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
