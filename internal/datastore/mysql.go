package datastore

import (
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/soilnet-go/internal/conf"
	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/logger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLStore implements Interface for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func validateMySQLConfig(settings *conf.Settings) error {
	cfg := settings.Output.MySQL
	var missing []string
	if cfg.Username == "" {
		missing = append(missing, "username")
	}
	if cfg.Host == "" {
		missing = append(missing, "host")
	}
	if cfg.Database == "" {
		missing = append(missing, "database")
	}
	if len(missing) > 0 {
		return validationError("mysql settings incomplete", "output.mysql", strings.Join(missing, ","))
	}
	return nil
}

// mysqlDSN builds a DSN that stores and reads times in UTC.
func mysqlDSN(cfg conf.MySQLSettings) string {
	port := cfg.Port
	if port == "" {
		port = "3306"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)
}

// Open connects to MySQL and migrates the schema.
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err
	}

	cfg := store.Settings.Output.MySQL
	dsn := mysqlDSN(cfg)

	db, err := gorm.Open(mysql.Open(dsn), gormConfig(store.Metrics))
	if err != nil {
		GetLogger().Error("failed to open mysql database",
			logger.String("host", cfg.Host),
			logger.String("port", cfg.Port),
			logger.String("database", cfg.Database),
			logger.Error(err))
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Priority(errors.PriorityCritical).
			Context("operation", "open").
			Context("db_type", "mysql").
			Context("host", cfg.Host).
			Build()
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	store.DB = db
	if err := performAutoMigration(db, store.Settings.Debug, "MySQL", dsn); err != nil {
		_ = store.closeDB()
		return err
	}
	if err := store.reload(); err != nil {
		_ = store.closeDB()
		return err
	}

	GetLogger().Info("opened mysql result store",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database))
	return nil
}

// Close closes the connection pool.
func (store *MySQLStore) Close() error {
	return store.closeDB()
}
