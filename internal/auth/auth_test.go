package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/AksharDP/modhub/internal/testutil"
	"github.com/AksharDP/modhub/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (Options, *user.User, *user.User) {
	t.Helper()
	db := testutil.NewDB(t, &user.Permission{}, &user.Role{}, &user.User{})
	rc, _ := testutil.NewRedis(t)
	ctx := context.Background()
	require.NoError(t, user.SeedRoles(ctx, db))

	member, err := user.NewUser(ctx, db, "member", "member@modhub.test", "hash", user.RoleUser, user.WithIsActive(true))
	require.NoError(t, err)
	admin, err := user.NewUser(ctx, db, "admin", "admin@modhub.test", "hash", user.RoleAdmin, user.WithIsActive(true))
	require.NoError(t, err)

	opt := Options{
		DB:      db,
		Rclient: rc,
		Logger:  logger.NewNop(),
		Secret:  []byte("test-secret-0123456789"),
		Issuer:  "modhub",
	}
	return opt, member, admin
}

func newApp(opt Options) *fiber.App {
	app := fiber.New()
	app.Post("/login/:id", func(c *fiber.Ctx) error {
		u, err := user.GetUserBy(c.UserContext(), opt.DB, "id = ?", []interface{}{c.Params("id")})
		if err != nil {
			return err
		}
		token, err := IssueTokens(c, opt, u)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"token": token})
	})
	app.Post("/logout", func(c *fiber.Ctx) error {
		RevokeTokens(c, opt)
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/me", RequireAuth(opt), func(c *fiber.Ctx) error {
		return c.SendString(CurrentUser(c).Username)
	})
	app.Get("/maybe", OptionalAuth(opt), func(c *fiber.Ctx) error {
		if u := CurrentUser(c); u != nil {
			return c.SendString(u.Username)
		}
		return c.SendString("anonymous")
	})
	app.Get("/games-admin", RequireAuth(opt), CheckPerm(opt, user.PermManageGames), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func cookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func login(t *testing.T, app *fiber.App, u *user.User) (access, refresh *http.Cookie) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login/"+u.ID.String(), nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	access, refresh = cookie(resp, AccessCookie), cookie(resp, RefreshCookie)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	return access, refresh
}

func get(t *testing.T, app *fiber.App, path string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func expiredToken(t *testing.T, opt Options, u *user.User) string {
	t.Helper()
	past := time.Now().Add(-time.Hour)
	claims := Claims{
		UserID: u.ID.String(),
		RoleID: u.RoleID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(past),
			IssuedAt:  jwt.NewNumericDate(past.Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(opt.Secret)
	require.NoError(t, err)
	return token
}

func TestVerifyToken(t *testing.T) {
	opt, member, _ := setup(t)

	token, err := opt.GenerateAccessToken(member.ID.String(), member.RoleID.String())
	require.NoError(t, err)
	claims, err := opt.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, member.ID.String(), claims.UserID)
	assert.Equal(t, "modhub", claims.Issuer)

	other := opt
	other.Secret = []byte("another-secret-0123456789")
	_, err = other.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = opt.VerifyToken(expiredToken(t, opt, member))
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = opt.VerifyToken("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireAuth(t *testing.T) {
	opt, member, _ := setup(t)
	app := newApp(opt)

	assert.Equal(t, http.StatusUnauthorized, get(t, app, "/me").StatusCode)

	access, _ := login(t, app, member)
	resp := get(t, app, "/me", access)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	token, err := opt.GenerateAccessToken(member.ID.String(), member.RoleID.String())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestExpiredAccessTokenIsRotated(t *testing.T) {
	opt, member, _ := setup(t)
	app := newApp(opt)
	_, refresh := login(t, app, member)

	stale := &http.Cookie{Name: AccessCookie, Value: expiredToken(t, opt, member)}
	resp := get(t, app, "/me", stale, refresh)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rotated := cookie(resp, RefreshCookie)
	require.NotNil(t, rotated)
	assert.NotEqual(t, refresh.Value, rotated.Value)
	assert.NotNil(t, cookie(resp, AccessCookie))

	// the old refresh token is single use
	resp = get(t, app, "/me", stale, refresh)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = get(t, app, "/me", rotated)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogoutBlacklistsTokens(t *testing.T) {
	opt, member, _ := setup(t)
	app := newApp(opt)
	access, refresh := login(t, app, member)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(access)
	req.AddCookie(refresh)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, http.StatusUnauthorized, get(t, app, "/me", access).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "/me", refresh).StatusCode)
}

func TestBannedUserIsRejected(t *testing.T) {
	opt, member, _ := setup(t)
	app := newApp(opt)
	access, _ := login(t, app, member)

	_, err := user.SetBanned(context.Background(), opt.Rclient, opt.DB, member.ID, true, "spam")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(t, app, "/me", access).StatusCode)
}

func TestOptionalAuth(t *testing.T) {
	opt, member, _ := setup(t)
	app := newApp(opt)

	resp := get(t, app, "/maybe")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	access, _ := login(t, app, member)
	resp = get(t, app, "/maybe", access)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, app, "/maybe", &http.Cookie{Name: AccessCookie, Value: "broken"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCheckPerm(t *testing.T) {
	opt, member, admin := setup(t)
	app := newApp(opt)

	access, _ := login(t, app, member)
	assert.Equal(t, http.StatusForbidden, get(t, app, "/games-admin", access).StatusCode)

	access, _ = login(t, app, admin)
	assert.Equal(t, http.StatusOK, get(t, app, "/games-admin", access).StatusCode)
}

func TestAllowLogin(t *testing.T) {
	opt, _, _ := setup(t)
	ctx := context.Background()

	for i := 0; i < MaxLoginAttempts; i++ {
		ok, err := AllowLogin(ctx, opt.Rclient, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := AllowLogin(ctx, opt.Rclient, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = AllowLogin(ctx, opt.Rclient, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)

	ResetLogin(ctx, opt.Rclient, "10.0.0.1")
	ok, err = AllowLogin(ctx, opt.Rclient, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}
