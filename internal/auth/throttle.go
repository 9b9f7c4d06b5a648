package auth

import (
	"context"
	"time"

	storage "github.com/AksharDP/modhub/pkg/redis"
)

const (
	MaxLoginAttempts   = 5
	LoginAttemptWindow = 15 * time.Minute
)

func loginKey(ip string) string {
	return "login:attempts:" + ip
}

// AllowLogin counts a login attempt from ip and reports whether it is within the limit.
func AllowLogin(ctx context.Context, rc *storage.RedisClient, ip string) (bool, error) {
	n, err := rc.Hit(ctx, loginKey(ip), LoginAttemptWindow)
	if err != nil {
		return false, err
	}
	return n <= MaxLoginAttempts, nil
}

// ResetLogin clears the attempt counter after a successful login.
func ResetLogin(ctx context.Context, rc *storage.RedisClient, ip string) {
	rc.Del(ctx, loginKey(ip))
}
