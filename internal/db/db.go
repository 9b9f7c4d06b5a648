package db

import (
	"context"
	"sync"

	"github.com/AksharDP/modhub/internal/config"
	"github.com/AksharDP/modhub/pkg/logger"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DBInstance *gorm.DB
	Once       sync.Once
	DBMu       sync.Mutex
)

type DBOptions func(*gorm.DB) error

// Dialector picks the GORM driver for the configured database.
func Dialector(cfg *config.Config) gorm.Dialector {
	if cfg.DBDriver == "sqlite" {
		return sqlite.Open(cfg.SQLitePath + "?_pragma=foreign_keys(1)")
	}
	return postgres.Open(cfg.PostgresDSN())
}

// Open connects, applies opts and migrates models. Unlike NewDB it does not touch the shared instance.
func Open(ctx context.Context, dialector gorm.Dialector, models []interface{}, opts ...DBOptions) (*gorm.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "DB initialization canceled")
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, utils.NewError(utils.ErrInternalServerError.Code, "Failed to connect to Database", err.Error())
	}

	for _, opt := range opts {
		if err := opt(db); err != nil {
			return nil, utils.NewError(utils.ErrInternalServerError.Code, "Failed to apply DB Options", err.Error())
		}
	}

	if db.Dialector.Name() == "postgres" {
		if err := db.WithContext(ctx).Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
			return nil, utils.NewError(utils.ErrInternalServerError.Code, "Failed to create uuid-ossp extension", err.Error())
		}
	}

	select {
	case <-ctx.Done():
		return nil, utils.WrapError(ctx.Err(), utils.ErrInternalServerError.Code, "db migration canceled")
	default:
		if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
			return nil, utils.NewError(utils.ErrInternalServerError.Code, "Failed to Migrate models", err.Error())
		}
	}

	return db, nil
}

// NewDB opens the process wide database once.
func NewDB(ctx context.Context, dialector gorm.Dialector, models []interface{}, opts ...DBOptions) (*gorm.DB, error) {
	var InitErr error
	Once.Do(func() {
		db, err := Open(ctx, dialector, models, opts...)
		if err != nil {
			InitErr = err
			return
		}
		DBMu.Lock()
		DBInstance = db
		DBMu.Unlock()
	})

	if InitErr != nil {
		return nil, InitErr
	}

	DBMu.Lock()
	defer DBMu.Unlock()
	if DBInstance == nil {
		return nil, utils.NewError(utils.ErrInternalServerError.Code, "Database not initialized")
	}

	return DBInstance, nil
}

func GetDB() *gorm.DB {
	DBMu.Lock()
	defer DBMu.Unlock()

	if DBInstance == nil {
		panic("Database connection not initialized; call NewDB first")
	}
	return DBInstance
}

func CloseDB(logger *logger.Logger) error {
	DBMu.Lock()
	defer DBMu.Unlock()

	if DBInstance == nil {
		return nil
	}

	sqlDB, err := DBInstance.DB()
	if err != nil {
		logger.Error(context.Background()).WithMeta(utils.Map{"error": err.Error()}).Logs("Failed to get DB handle for closing")
		return utils.NewError(utils.ErrInternalServerError.Code, "Failed to close database", err.Error())
	}

	if err := sqlDB.Close(); err != nil {
		logger.Error(context.Background()).WithMeta(utils.Map{"error": err.Error()}).Logs("Database close failed")
		return utils.NewError(utils.ErrInternalServerError.Code, "Failed to close database", err.Error())
	}
	logger.Info(context.Background()).Logs("Database connection closed successfully")
	DBInstance = nil
	return nil
}
