package auth

import (
	"errors"
	"strings"

	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/AksharDP/modhub/pkg/logger"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequireAuth rejects requests without a valid session. Expired access tokens are rotated from
// the refresh cookie. The user, with role and permissions, is stored in locals; a user already
// loaded by OptionalAuth is reused.
func RequireAuth(opt Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if CurrentUser(c) != nil {
			return c.Next()
		}
		u, err := authenticate(c, opt)
		if err != nil {
			return utils.HandleError(c, err)
		}
		if u == nil {
			return utils.HandleError(c, utils.NewError(fiber.StatusUnauthorized, "Authentication required"))
		}
		return c.Next()
	}
}

// OptionalAuth loads the user when the request carries a valid session and continues anonymously otherwise.
func OptionalAuth(opt Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if CurrentUser(c) != nil {
			return c.Next()
		}
		if _, err := authenticate(c, opt); err != nil {
			opt.Logger.Debug(c.UserContext()).WithFields("error", err).Logs("Continuing without session")
		}
		return c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(c *fiber.Ctx) *user.User {
	u, _ := c.Locals("user").(*user.User)
	return u
}

// authenticate returns (nil, nil) when the request carries no tokens at all.
func authenticate(c *fiber.Ctx, opt Options) (*user.User, error) {
	ctx := c.UserContext()
	accessToken := tokenFromRequest(c)
	refreshToken := c.Cookies(RefreshCookie)
	if accessToken == "" && refreshToken == "" {
		return nil, nil
	}

	if accessToken != "" && isBlacklisted(ctx, opt, blacklistAccessPrefix+accessToken) {
		opt.Logger.Warn(ctx).Logs("Attempted use of blacklisted access token")
		return nil, utils.NewError(fiber.StatusUnauthorized, "Access token has been invalidated")
	}

	var claims *Claims
	var err error
	if accessToken == "" {
		claims, err = refresh(c, opt, refreshToken)
	} else {
		claims, err = opt.VerifyToken(accessToken)
		if errors.Is(err, ErrExpiredToken) {
			opt.Logger.Debug(ctx).Logs("Access token expired, attempting refresh")
			claims, err = refresh(c, opt, refreshToken)
		} else if err != nil {
			err = utils.NewError(fiber.StatusUnauthorized, "Invalid access token")
		}
	}
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, utils.NewError(fiber.StatusUnauthorized, "Invalid access token")
	}
	u, err := user.GetCachedUser(ctx, opt.Rclient, opt.DB, id)
	if err != nil {
		if utils.IsNotFound(err) {
			clearCookies(c)
			return nil, utils.NewError(fiber.StatusUnauthorized, "User not found")
		}
		return nil, err
	}
	if u.IsBanned {
		opt.Logger.Warn(ctx).WithFields("user_id", u.ID).Logs("Banned user rejected")
		return nil, utils.NewError(fiber.StatusForbidden, "Account is banned", u.BanReason)
	}

	c.Locals("user", u)
	c.Locals("user_id", u.ID.String())
	c.SetUserContext(logger.ContextWithUserID(ctx, u.ID.String()))
	return u, nil
}

// refresh trades a refresh token for a new token pair. The old refresh token is consumed.
func refresh(c *fiber.Ctx, opt Options, refreshToken string) (*Claims, error) {
	ctx := c.UserContext()
	if refreshToken == "" {
		return nil, utils.NewError(fiber.StatusUnauthorized, "Session expired")
	}
	if isBlacklisted(ctx, opt, blacklistRefresh+refreshToken) {
		opt.Logger.Warn(ctx).Logs("Attempted use of blacklisted refresh token")
		return nil, utils.NewError(fiber.StatusUnauthorized, "Refresh token has been invalidated")
	}

	key := refreshPrefix + refreshToken
	var data refreshData
	found, err := opt.Rclient.GetJSON(ctx, key, &data)
	if err != nil || !found || data.UserID == "" {
		opt.Logger.Warn(ctx).Logs("Invalid or expired refresh token")
		return nil, utils.NewError(fiber.StatusUnauthorized, "Session expired")
	}
	if data.IP != c.IP() {
		opt.Logger.Warn(ctx).WithFields("user_id", data.UserID).Logs("Refresh token IP mismatch")
		opt.Rclient.Del(ctx, key)
		return nil, utils.NewError(fiber.StatusUnauthorized, "Session expired")
	}

	id, err := uuid.Parse(data.UserID)
	if err != nil {
		return nil, utils.NewError(fiber.StatusUnauthorized, "Session expired")
	}
	u, err := user.GetCachedUser(ctx, opt.Rclient, opt.DB, id)
	if err != nil {
		clearCookies(c)
		return nil, utils.NewError(fiber.StatusUnauthorized, "User not found")
	}

	opt.Rclient.Del(ctx, key)
	accessToken, err := IssueTokens(c, opt, u)
	if err != nil {
		opt.Logger.Error(ctx).WithFields("error", err).Logs("Failed to rotate tokens")
		return nil, utils.NewError(fiber.StatusInternalServerError, "Failed to refresh session")
	}

	opt.Logger.Info(ctx).WithFields("user_id", data.UserID).Logs("Tokens refreshed")
	return opt.VerifyToken(accessToken)
}

func tokenFromRequest(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return c.Cookies(AccessCookie)
}
