package datastore

import (
	"path/filepath"

	"github.com/tphakala/soilnet-go/internal/conf"
	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements Interface for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

func validateSQLiteConfig(settings *conf.Settings) error {
	if settings.Output.SQLite.Path == "" {
		return validationError("sqlite path is required", "output.sqlite.path", "")
	}
	return nil
}

// Open opens the SQLite database, creating the file and its directory if needed.
func (store *SQLiteStore) Open() error {
	if err := validateSQLiteConfig(store.Settings); err != nil {
		return err
	}

	dir, fileName := filepath.Split(store.Settings.Output.SQLite.Path)
	basePath, err := conf.GetBasePath(dir)
	if err != nil {
		return err
	}
	absoluteFilePath := filepath.Join(basePath, fileName)

	db, err := gorm.Open(sqlite.Open(absoluteFilePath), gormConfig(store.Metrics))
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Priority(errors.PriorityCritical).
			Context("operation", "open").
			Context("db_type", "sqlite").
			FileContext(absoluteFilePath, 0).
			Build()
	}

	// WAL keeps readers unblocked while the single writer commits.
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if err := db.Exec(pragma).Error; err != nil {
			GetLogger().Warn("failed to apply sqlite pragma",
				logger.String("pragma", pragma),
				logger.Error(err))
		}
	}

	store.DB = db
	if err := performAutoMigration(db, store.Settings.Debug, "SQLite", absoluteFilePath); err != nil {
		_ = store.closeDB()
		return err
	}
	if err := store.reload(); err != nil {
		_ = store.closeDB()
		return err
	}

	GetLogger().Info("opened sqlite result store", logger.String("path", absoluteFilePath))
	return nil
}

// Close closes the database connection.
func (store *SQLiteStore) Close() error {
	return store.closeDB()
}
