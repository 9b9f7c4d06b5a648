package db

import (
	"time"

	"github.com/AksharDP/modhub/pkg/logger"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// WithLogger routes GORM's logging through the application logger.
func WithLogger(logger *logger.Logger, level gormLogger.LogLevel) DBOptions {
	return func(db *gorm.DB) error {
		db.Config.Logger = gormLogger.New(
			logger.Log,
			gormLogger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  level,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		)
		return nil
	}
}

// WithPool sizes the underlying sql.DB pool.
func WithPool(maxOpen, maxIdle int, maxLifetime time.Duration) DBOptions {
	return func(db *gorm.DB) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetMaxIdleConns(maxIdle)
		sqlDB.SetConnMaxLifetime(maxLifetime)
		return nil
	}
}
