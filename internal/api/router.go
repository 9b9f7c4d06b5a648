package routes

import (
	"errors"
	"time"

	v1 "github.com/AksharDP/modhub/internal/api/v1"
	"github.com/AksharDP/modhub/internal/config"
	"github.com/AksharDP/modhub/pkg/logger"
	storage "github.com/AksharDP/modhub/pkg/redis"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

// NewApp builds the Fiber application with the JSON codec and error handler used by every route.
func NewApp(cfg *config.Config) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: errorHandler,
	})
}

// errorHandler renders errors that escape handlers, such as unknown routes and recovered panics.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return utils.HandleError(c, err)
}

// NewRoutes installs the global middleware, the health check and the v1 API.
// v1.Setup must have been called before requests arrive.
func NewRoutes(app *fiber.App, cfg *config.Config, db *gorm.DB, log *logger.Logger, rclient *storage.RedisClient) {
	app.Use(
		logger.SetupLogger(log),
		recover.New(),
		cors.New(
			cors.Config{
				AllowOrigins:     cfg.CORSOrigins,
				AllowCredentials: cfg.CORSOrigins != "*",
				AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
				AllowMethods:     "GET,POST,PUT,PATCH,DELETE,HEAD,OPTIONS",
			},
		),
		compress.New(
			compress.Config{
				Level: compress.LevelBestSpeed,
			},
		),
		limiter.New(
			limiter.Config{
				Expiration: cfg.RateLimitWindow,
				Max:        cfg.RateLimitMax,
				KeyGenerator: func(c *fiber.Ctx) string {
					return c.IP()
				},
				LimitReached: func(c *fiber.Ctx) error {
					return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests"})
				},
			},
		),
	)
	app.Use(log.Middleware())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			log.Error(ctx).WithFields("error", err).Logs("Database health check failed")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "component": "database"})
		}
		if err := rclient.Ping(ctx).Err(); err != nil {
			log.Error(ctx).WithFields("error", err).Logs("Redis health check failed")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "component": "redis"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1.Routes(app)
}
