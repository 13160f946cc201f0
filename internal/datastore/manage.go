package datastore

import (
	"time"

	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/logger"
	"github.com/tphakala/soilnet-go/internal/observability/metrics"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// createGormLogger routes GORM statements through the datastore logger and
// feeds query timings into m. A nil m only disables metrics.
func createGormLogger(m *metrics.DatastoreMetrics) gormlogger.Interface {
	return logger.NewGormLoggerAdapter(GetLogger().Module("sql"), metrics.DefaultSlowQueryThreshold, m.ObserveQuery)
}

// gormConfig is shared by all backends. TranslateError turns driver specific
// unique violations into gorm.ErrDuplicatedKey.
func gormConfig(m *metrics.DatastoreMetrics) *gorm.Config {
	return &gorm.Config{
		Logger:         createGormLogger(m),
		TranslateError: true,
	}
}

// performAutoMigration creates or updates the soil_records table.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	migrationStart := time.Now()
	migrationLogger := GetLogger().With(logger.String("db_type", dbType))

	if debug {
		migrationLogger.Debug("starting database migration",
			logger.String("connection", logger.RedactSensitiveData(connectionInfo)))
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Priority(errors.PriorityCritical).
			Context("operation", "auto_migrate").
			Context("db_type", dbType).
			Build()
	}

	migrationLogger.Debug("database migration completed",
		logger.Duration("total_duration", time.Since(migrationStart)))
	return nil
}
