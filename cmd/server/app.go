package main

import (
	"context"
	"time"

	"emperror.dev/errors"
	routes "github.com/AksharDP/modhub/internal/api"
	v1 "github.com/AksharDP/modhub/internal/api/v1"
	"github.com/AksharDP/modhub/internal/auth"
	"github.com/AksharDP/modhub/internal/config"
	"github.com/AksharDP/modhub/internal/db"
	"github.com/AksharDP/modhub/internal/jobs"
	"github.com/AksharDP/modhub/internal/models"
	"github.com/AksharDP/modhub/pkg/logger"
	"github.com/AksharDP/modhub/pkg/objectstore"
	storage "github.com/AksharDP/modhub/pkg/redis"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	settingsCacheTTL = 30 * time.Second
	shutdownTimeout  = 15 * time.Second
)

// App holds the process wide resources shared by the commands.
type App struct {
	Cfg   *config.Config
	Log   *logger.Logger
	DB    *gorm.DB
	Redis *storage.RedisClient
	Store objectstore.Store
}

// newApp loads config, starts the logger and opens the database. Every table is migrated on open.
func newApp(ctx context.Context) (*App, error) {
	cfg, err := config.LoadConfig(envFile, configFile)
	if err != nil {
		return nil, err
	}

	opts := []logger.LoggerOption{logger.WithApp(cfg.AppName), logger.WithLevel(cfg.LogLevel)}
	if cfg.LogDir != "" {
		opts = append(opts, logger.WithOutputDir(cfg.LogDir))
	}
	log, err := logger.NewLogger(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize logger")
	}

	gormLevel := gormLogger.Warn
	if cfg.LogLevel == "debug" {
		gormLevel = gormLogger.Info
	}
	gdb, err := db.NewDB(ctx, db.Dialector(cfg), models.RegisterModels(),
		db.WithLogger(log, gormLevel),
		db.WithPool(cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime),
	)
	if err != nil {
		log.Error(ctx).WithFields("error", err, "driver", cfg.DBDriver).Logs("Failed to initialize database")
		log.Close()
		return nil, err
	}

	return &App{Cfg: cfg, Log: log, DB: gdb}, nil
}

// connectServices opens Redis and the object store, which only the server needs.
func (a *App) connectServices(ctx context.Context) error {
	rc, err := storage.NewRedis(ctx, a.Cfg.RedisAddr, a.Cfg.RedisPassword, a.Cfg.RedisDB)
	if err != nil {
		a.Log.Error(ctx).WithFields("error", err, "addr", a.Cfg.RedisAddr).Logs("Failed to initialize Redis")
		return err
	}
	a.Redis = rc

	store, err := objectstore.NewS3Store(a.Cfg.ObjectStore())
	if err != nil {
		a.Log.Error(ctx).WithFields("error", err, "bucket", a.Cfg.S3Bucket).Logs("Failed to initialize object store")
		return err
	}
	a.Store = store
	return nil
}

// Close releases everything in reverse order of acquisition.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close(a.Log)
	}
	_ = db.CloseDB(a.Log)
	a.Log.Close()
}

// serve runs the HTTP server and the scheduler until ctx is canceled.
func (a *App) serve(ctx context.Context) error {
	if err := a.connectServices(ctx); err != nil {
		return err
	}
	if err := models.SeedRoles(ctx, a.DB); err != nil {
		return err
	}

	v1.Setup(v1.Deps{
		DB:       a.DB,
		Redis:    a.Redis,
		Logger:   a.Log,
		Store:    a.Store,
		Settings: gocache.New(settingsCacheTTL, 2*settingsCacheTTL),
		Auth: auth.Options{
			DB:           a.DB,
			Rclient:      a.Redis,
			Logger:       a.Log,
			Secret:       []byte(a.Cfg.JWTSecret),
			Issuer:       a.Cfg.AppName,
			AccessTTL:    a.Cfg.AccessTokenTTL,
			RefreshTTL:   a.Cfg.RefreshTokenTTL,
			SecureCookie: a.Cfg.IsProduction(),
		},
		Email: a.Cfg.Email(),
	})

	app := routes.NewApp(a.Cfg)
	routes.NewRoutes(app, a.Cfg, a.DB, a.Log, a.Redis)

	scheduler := jobs.New(a.DB, a.Store, a.Log, a.Cfg.PendingUploadTTL)
	if err := scheduler.Start(a.Cfg.CleanupSchedule, a.Cfg.SizeRepairSchedule); err != nil {
		return errors.Wrap(err, "failed to start scheduler")
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info(ctx).WithFields("addr", a.Cfg.Addr(), "env", a.Cfg.Env).Logs("Server starting")
		errCh <- app.Listen(a.Cfg.Addr())
	}()

	var listenErr error
	select {
	case <-ctx.Done():
		a.Log.Info(context.Background()).Logs("Shutting down")
	case listenErr = <-errCh:
		a.Log.Error(context.Background()).WithFields("error", listenErr).Logs("Server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		a.Log.Error(shutdownCtx).WithFields("error", err).Logs("HTTP shutdown failed")
	}
	scheduler.Stop(shutdownCtx)
	return listenErr
}
