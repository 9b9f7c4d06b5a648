package auth

import (
	"time"

	"github.com/AksharDP/modhub/pkg/logger"
	storage "github.com/AksharDP/modhub/pkg/redis"
	"gorm.io/gorm"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	refreshPrefix         = "refresh:"
	blacklistAccessPrefix = "blacklist:access:"
	blacklistRefresh      = "blacklist:refresh:"
)

// Options carries what the auth middleware and token helpers need.
type Options struct {
	DB           *gorm.DB
	Rclient      *storage.RedisClient
	Logger       *logger.Logger
	Secret       []byte
	Issuer       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	SecureCookie bool
}

func (o Options) accessTTL() time.Duration {
	if o.AccessTTL <= 0 {
		return 15 * time.Minute
	}
	return o.AccessTTL
}

func (o Options) refreshTTL() time.Duration {
	if o.RefreshTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return o.RefreshTTL
}
