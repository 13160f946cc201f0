package v1

import (
	"sync"

	"github.com/tphakala/soilnet-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the api v1 module logger.
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logger.Global().Module("api.v1")
	})
	return serviceLogger
}
