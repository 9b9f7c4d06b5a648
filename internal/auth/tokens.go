package auth

import (
	"context"
	"time"

	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/gofiber/fiber/v2"
)

type refreshData struct {
	UserID string `json:"user_id"`
	IP     string `json:"ip"`
}

// IssueTokens creates an access and refresh token pair for u, stores the refresh token bound to
// the client IP and sets both cookies. It returns the access token.
func IssueTokens(c *fiber.Ctx, opt Options, u *user.User) (string, error) {
	accessToken, err := opt.GenerateAccessToken(u.ID.String(), u.RoleID.String())
	if err != nil {
		return "", err
	}
	refreshToken := GenerateRefreshToken()

	data := refreshData{UserID: u.ID.String(), IP: c.IP()}
	if err := opt.Rclient.SetJSON(c.UserContext(), refreshPrefix+refreshToken, data, opt.refreshTTL()); err != nil {
		return "", err
	}

	c.Cookie(&fiber.Cookie{
		Name:     AccessCookie,
		Value:    accessToken,
		Path:     "/",
		Expires:  time.Now().Add(opt.accessTTL()),
		HTTPOnly: true,
		Secure:   opt.SecureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookie,
		Value:    refreshToken,
		Path:     "/",
		Expires:  time.Now().Add(opt.refreshTTL()),
		HTTPOnly: true,
		Secure:   opt.SecureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return accessToken, nil
}

// RevokeTokens blacklists the request's tokens until they would have expired and clears the cookies.
func RevokeTokens(c *fiber.Ctx, opt Options) {
	ctx := c.UserContext()
	accessToken := tokenFromRequest(c)
	refreshToken := c.Cookies(RefreshCookie)

	if accessToken != "" {
		ttl := opt.accessTTL()
		if claims, err := opt.VerifyToken(accessToken); err == nil && claims.ExpiresAt != nil {
			ttl = time.Until(claims.ExpiresAt.Time)
		}
		if ttl > 0 {
			opt.Rclient.Set(ctx, blacklistAccessPrefix+accessToken, "revoked", ttl)
		}
	}
	if refreshToken != "" {
		opt.Rclient.Del(ctx, refreshPrefix+refreshToken)
		opt.Rclient.Set(ctx, blacklistRefresh+refreshToken, "revoked", opt.refreshTTL())
	}

	clearCookies(c)
}

func clearCookies(c *fiber.Ctx) {
	expired := time.Now().Add(-time.Hour)
	c.Cookie(&fiber.Cookie{Name: AccessCookie, Value: "", Path: "/", Expires: expired, HTTPOnly: true})
	c.Cookie(&fiber.Cookie{Name: RefreshCookie, Value: "", Path: "/", Expires: expired, HTTPOnly: true})
}

func isBlacklisted(ctx context.Context, opt Options, key string) bool {
	return opt.Rclient.Exists(ctx, key).Val() > 0
}
