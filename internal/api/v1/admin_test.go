package v1

import (
	"net/http"
	"testing"

	mods "github.com/AksharDP/modhub/internal/models/mods"
	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(t, http.MethodGet, "/api/v1/admin/settings", nil, h.member)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = h.do(t, http.MethodGet, "/api/v1/admin/settings", nil, h.moderator)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := h.do(t, http.MethodGet, "/api/v1/admin/settings", nil, h.admin)
	require.Equal(t, http.StatusOK, status)
	var s mods.SystemSettings
	decode(t, env, &s)
	assert.Equal(t, mods.DefaultSettings().MaxFileSizeMB, s.MaxFileSizeMB)
	assert.True(t, s.RequireModApproval)

	bad := s
	bad.MaxFilesPerMod = 0
	status, _ = h.do(t, http.MethodPut, "/api/v1/admin/settings", bad, h.admin)
	assert.Equal(t, http.StatusBadRequest, status)

	s.RequireModApproval = false
	s.MaxFileSizeMB = 2048
	status, env = h.do(t, http.MethodPut, "/api/v1/admin/settings", s, h.admin)
	require.Equal(t, http.StatusOK, status, env.Error)

	stored, err := mods.GetSettings(h.ctx, DB, Settings)
	require.NoError(t, err)
	assert.False(t, stored.RequireModApproval)
	assert.EqualValues(t, 2048, stored.MaxFileSizeMB)
}

func TestMaintenanceMode(t *testing.T) {
	h := newHarness(t)
	h.settings(t, func(s *mods.SystemSettings) { s.MaintenanceMode = true })

	status, env := h.do(t, http.MethodPost, "/api/v1/collections", fiber.Map{"name": "Blocked"}, h.member)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "The site is in maintenance mode", env.Error)

	status, _ = h.do(t, http.MethodGet, "/api/v1/games", nil, h.member)
	assert.Equal(t, http.StatusOK, status)

	status, _ = h.do(t, http.MethodPost, "/api/v1/auth/login", fiber.Map{"email": h.member.Email, "password": testPassword}, nil)
	assert.Equal(t, http.StatusOK, status, "login stays open")

	status, env = h.do(t, http.MethodPost, "/api/v1/admin/games", fiber.Map{"name": "Oblivion"}, h.admin)
	assert.Equal(t, http.StatusCreated, status, env.Error)
}

func TestModerationQueue(t *testing.T) {
	h := newHarness(t)
	g := h.game(t, "Skyrim")
	first := h.mod(t, g, h.member, "First", false)
	second := h.mod(t, g, h.member, "Second", false)
	h.mod(t, g, h.member, "Live", true)

	status, _ := h.do(t, http.MethodGet, "/api/v1/admin/mods", nil, h.member)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := h.do(t, http.MethodGet, "/api/v1/admin/mods", nil, h.moderator)
	require.Equal(t, http.StatusOK, status)
	var queue []mods.Mod
	decode(t, env, &queue)
	assert.Len(t, queue, 2)
	assert.EqualValues(t, 2, env.Pagination.Total)

	status, _ = h.do(t, http.MethodGet, "/api/v1/admin/mods?status=lost", nil, h.moderator)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = h.do(t, http.MethodPost, "/api/v1/admin/mods/"+first.ID.String()+"/approve", nil, h.moderator)
	require.Equal(t, http.StatusOK, status, env.Error)
	var approved mods.Mod
	decode(t, env, &approved)
	assert.Equal(t, mods.ModStatusApproved, approved.Status)
	assert.NotNil(t, approved.PublishedAt)

	status, _ = h.do(t, http.MethodPost, "/api/v1/admin/mods/"+second.ID.String()+"/reject", fiber.Map{}, h.moderator)
	assert.Equal(t, http.StatusBadRequest, status, "a rejection needs a reason")

	status, env = h.do(t, http.MethodPost, "/api/v1/admin/mods/"+second.ID.String()+"/reject", fiber.Map{"reason": "Missing install notes"}, h.moderator)
	require.Equal(t, http.StatusOK, status, env.Error)
	var rejected mods.Mod
	decode(t, env, &rejected)
	assert.Equal(t, mods.ModStatusRejected, rejected.Status)
	assert.Equal(t, "Missing install notes", rejected.RejectionReason)

	status, env = h.do(t, http.MethodGet, "/api/v1/admin/mods?status=rejected", nil, h.moderator)
	require.Equal(t, http.StatusOK, status)
	decode(t, env, &queue)
	require.Len(t, queue, 1)
	assert.Equal(t, second.ID, queue[0].ID)

	status, _ = h.do(t, http.MethodGet, "/api/v1/mods/"+first.ID.String(), nil, nil)
	assert.Equal(t, http.StatusOK, status, "approved mods are public")
}

func TestBanAndUnban(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(t, http.MethodPost, "/api/v1/admin/users/"+h.moderator.ID.String()+"/ban", fiber.Map{"reason": "self"}, h.moderator)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(t, http.MethodPost, "/api/v1/admin/users/"+h.other.ID.String()+"/ban", fiber.Map{"reason": "spam"}, h.member)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := h.do(t, http.MethodPost, "/api/v1/admin/users/"+h.other.ID.String()+"/ban", fiber.Map{"reason": "spam"}, h.moderator)
	require.Equal(t, http.StatusOK, status, env.Error)
	var view accountView
	decode(t, env, &view)
	assert.True(t, view.IsBanned)
	assert.Equal(t, "spam", view.BanReason)

	status, _ = h.do(t, http.MethodGet, "/api/v1/users/me", nil, h.other)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = h.do(t, http.MethodGet, "/api/v1/admin/users?banned=true", nil, h.moderator)
	require.Equal(t, http.StatusOK, status)
	var list []accountView
	decode(t, env, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "other@modhub.test", list[0].Email)

	status, env = h.do(t, http.MethodGet, "/api/v1/admin/users?banned=false", nil, h.moderator)
	require.Equal(t, http.StatusOK, status)
	decode(t, env, &list)
	assert.Len(t, list, 3)

	status, _ = h.do(t, http.MethodPost, "/api/v1/admin/users/"+h.other.ID.String()+"/unban", nil, h.moderator)
	require.Equal(t, http.StatusOK, status)
	status, _ = h.do(t, http.MethodGet, "/api/v1/users/me", nil, h.other)
	assert.Equal(t, http.StatusOK, status)
}

func TestSetUserRole(t *testing.T) {
	h := newHarness(t)
	rolePath := "/api/v1/admin/users/" + h.other.ID.String() + "/role"

	status, _ := h.do(t, http.MethodPut, "/api/v1/admin/users/"+h.admin.ID.String()+"/role", fiber.Map{"role": "user"}, h.admin)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = h.do(t, http.MethodPut, rolePath, fiber.Map{"role": "moderator"}, h.moderator)
	assert.Equal(t, http.StatusForbidden, status, "moderators cannot assign roles")
	status, _ = h.do(t, http.MethodPut, rolePath, fiber.Map{"role": "owner"}, h.admin)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(t, http.MethodGet, "/api/v1/admin/mods", nil, h.other)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := h.do(t, http.MethodPut, rolePath, fiber.Map{"role": "moderator"}, h.admin)
	require.Equal(t, http.StatusOK, status, env.Error)
	var view accountView
	decode(t, env, &view)
	assert.Equal(t, user.RoleModerator, view.Role)
	assert.Contains(t, view.Permissions, user.PermModerateMod)

	status, _ = h.do(t, http.MethodGet, "/api/v1/admin/mods", nil, h.other)
	assert.Equal(t, http.StatusOK, status, "the new role applies at once")

	status, env = h.do(t, http.MethodGet, "/api/v1/admin/roles", nil, h.admin)
	require.Equal(t, http.StatusOK, status)
	var roles []user.Role
	decode(t, env, &roles)
	assert.Len(t, roles, 3)
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	g := h.game(t, "Skyrim")
	live := h.mod(t, g, h.member, "Live", true)
	h.mod(t, g, h.member, "Waiting", false)
	h.readyFile(t, live, "mods/live.zip", 1000)
	require.NoError(t, mods.IncrementDownloads(h.ctx, DB, live.ID))

	status, _ := h.do(t, http.MethodGet, "/api/v1/admin/stats", nil, h.member)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := h.do(t, http.MethodGet, "/api/v1/admin/stats", nil, h.moderator)
	require.Equal(t, http.StatusOK, status, env.Error)
	var stats siteStats
	decode(t, env, &stats)
	assert.EqualValues(t, 4, stats.Users)
	assert.EqualValues(t, 1, stats.Games)
	assert.EqualValues(t, 0, stats.Collections)
	assert.EqualValues(t, 1, stats.ModsByStatus[mods.ModStatusApproved])
	assert.EqualValues(t, 1, stats.ModsByStatus[mods.ModStatusPending])
	assert.EqualValues(t, 0, stats.ModsByStatus[mods.ModStatusRejected])
	assert.EqualValues(t, 1, stats.TotalDownloads)
	assert.EqualValues(t, 1000, stats.StoredBytes)
}
