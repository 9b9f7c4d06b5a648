package v1

import (
	"github.com/AksharDP/modhub/internal/auth"
	"github.com/AksharDP/modhub/pkg/logger"
	"github.com/AksharDP/modhub/pkg/objectstore"
	storage "github.com/AksharDP/modhub/pkg/redis"
	"github.com/AksharDP/modhub/pkg/utils"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	Redis     *storage.RedisClient
	Logger    *logger.Logger
	Store     objectstore.Store
	Settings  *gocache.Cache
	AuthOpt   auth.Options
	EmailCfg  utils.EmailConfig
	Validator = utils.NewValidator()
)

// Deps is everything the handlers need at runtime.
type Deps struct {
	DB       *gorm.DB
	Redis    *storage.RedisClient
	Logger   *logger.Logger
	Store    objectstore.Store
	Settings *gocache.Cache
	Auth     auth.Options
	Email    utils.EmailConfig
}

// Setup wires the package level dependencies used by the handlers.
func Setup(d Deps) {
	DB = d.DB
	Redis = d.Redis
	Logger = d.Logger
	Store = d.Store
	Settings = d.Settings
	AuthOpt = d.Auth
	EmailCfg = d.Email
}
