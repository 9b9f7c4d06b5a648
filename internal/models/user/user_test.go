package models

import (
	"context"
	"testing"

	"github.com/AksharDP/modhub/internal/testutil"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := testutil.NewDB(t, &Permission{}, &Role{}, &User{})
	require.NoError(t, SeedRoles(context.Background(), db))
	return db
}

func TestSeedRolesIsIdempotent(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, SeedRoles(ctx, db))

	roles, err := ListRoles(ctx, db)
	require.NoError(t, err)
	require.Len(t, roles, 3)

	var perms int64
	db.Model(&Permission{}).Count(&perms)
	assert.Equal(t, int64(len(RolePermissions[RoleAdmin])), perms)

	admin, err := GetRoleByName(ctx, db, RoleAdmin)
	require.NoError(t, err)
	assert.ElementsMatch(t, RolePermissions[RoleAdmin], admin.PermissionNames())

	_, err = GetRoleByName(ctx, db, "ghost")
	assert.True(t, utils.IsNotFound(err))
}

func TestNewUser(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	u, err := NewUser(ctx, db, "Alice", "Alice@Example.com", "hash", "", WithDisplayName("Al"), WithIsActive(true))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "Al", u.Profile.DisplayName)
	assert.True(t, u.IsActive)
	assert.True(t, u.IsEmailVerified)
	assert.Equal(t, RoleUser, u.Role.Name)

	_, err = NewUser(ctx, db, "alice", "other@example.com", "hash", "")
	assert.Equal(t, 409, utils.StatusOf(err))
	_, err = NewUser(ctx, db, "bob", "ALICE@example.com", "hash", "")
	assert.Equal(t, 409, utils.StatusOf(err))
	_, err = NewUser(ctx, db, "carol", "carol@example.com", "hash", "ghost")
	assert.True(t, utils.IsNotFound(err))
}

func TestCachedUserHasPermissions(t *testing.T) {
	db := setupDB(t)
	rc, _ := testutil.NewRedis(t)
	ctx := context.Background()

	u, err := NewUser(ctx, db, "mod", "mod@example.com", "hash", RoleModerator)
	require.NoError(t, err)

	cached, err := GetCachedUser(ctx, rc, db, u.ID)
	require.NoError(t, err)
	assert.True(t, cached.HasPermission(PermModerateMod))
	assert.False(t, cached.HasPermission(PermSiteSettings))
	assert.False(t, cached.IsAdmin())

	// second read comes from redis and has no secrets
	again, err := GetCachedUser(ctx, rc, db, u.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Password)
	assert.Empty(t, again.Email)
	assert.True(t, again.HasPermission(PermModerateMod))

	promoted, err := SetRole(ctx, rc, db, u.ID, RoleAdmin)
	require.NoError(t, err)
	assert.True(t, promoted.IsAdmin())
	fresh, err := GetCachedUser(ctx, rc, db, u.ID)
	require.NoError(t, err)
	assert.True(t, fresh.HasPermission(PermSiteSettings))
}

func TestBanAndList(t *testing.T) {
	db := setupDB(t)
	rc, _ := testutil.NewRedis(t)
	ctx := context.Background()

	a, err := NewUser(ctx, db, "alpha", "alpha@example.com", "hash", "")
	require.NoError(t, err)
	_, err = NewUser(ctx, db, "beta", "beta@example.com", "hash", "")
	require.NoError(t, err)

	banned, err := SetBanned(ctx, rc, db, a.ID, true, "spam")
	require.NoError(t, err)
	assert.True(t, banned.IsBanned)
	assert.Equal(t, "spam", banned.BanReason)

	yes := true
	users, total, err := ListUsers(ctx, db, UserFilter{Banned: &yes}, utils.NewPagination(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, users, 1)
	assert.Equal(t, "alpha", users[0].Username)

	_, total, err = ListUsers(ctx, db, UserFilter{Query: "BET"}, utils.NewPagination(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	unbanned, err := SetBanned(ctx, rc, db, a.ID, false, "ignored")
	require.NoError(t, err)
	assert.False(t, unbanned.IsBanned)
	assert.Empty(t, unbanned.BanReason)

	activated, err := ActivateUser(ctx, rc, db, a.ID)
	require.NoError(t, err)
	assert.True(t, activated.IsActive)
	assert.True(t, activated.IsEmailVerified)
}

func TestPermissionHelpersOnNil(t *testing.T) {
	var u *User
	assert.False(t, u.HasPermission(PermUploadMod))
	assert.Empty(t, u.PermissionNames())
	assert.False(t, u.IsAdmin())
}
