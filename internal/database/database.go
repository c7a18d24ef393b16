package database

import (
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/procurement/services/rfq/config"
	"example.com/procurement/services/rfq/internal/models"
)

// Connect opens the write and read-only database connections. When no
// separate read replica is configured both handles share one pool.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, *gorm.DB, error) {
	db, err := open(cfg, cfg.DSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to database")
	}

	if cfg.ReadOnlyDSN == "" || cfg.ReadOnlyDSN == cfg.DSN {
		return db, db, nil
	}

	readOnlyDB, err := open(cfg, cfg.ReadOnlyDSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	return db, readOnlyDB, nil
}

func open(cfg config.DatabaseConfig, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get DB instance")
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// Migrate runs the schema migrations
func Migrate(db *gorm.DB) error {
	return models.SetupModels(db)
}

// Close closes a database connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
