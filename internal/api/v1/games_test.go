package v1

import (
	"net/http"
	"testing"

	mods "github.com/AksharDP/modhub/internal/models/mods"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestGameAdminRequiresPermission(t *testing.T) {
	h := newHarness(t)
	body := fiber.Map{"name": "Stardew Valley"}

	status, _ := h.do(t, http.MethodPost, "/api/v1/admin/games", body, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = h.do(t, http.MethodPost, "/api/v1/admin/games", body, h.member)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = h.do(t, http.MethodPost, "/api/v1/admin/games", body, h.moderator)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := h.do(t, http.MethodPost, "/api/v1/admin/games", body, h.admin)
	require.Equal(t, http.StatusCreated, status, env.Error)
	var g mods.Game
	decode(t, env, &g)
	assert.Equal(t, "stardew-valley", g.Slug)
	assert.True(t, g.IsVisible)

	status, _ = h.do(t, http.MethodPost, "/api/v1/admin/games", body, h.admin)
	assert.Equal(t, http.StatusConflict, status)
}

func TestHiddenGames(t *testing.T) {
	h := newHarness(t)
	h.game(t, "Visible Game")
	status, env := h.do(t, http.MethodPost, "/api/v1/admin/games", fiber.Map{"name": "Secret Game", "is_visible": false}, h.admin)
	require.Equal(t, http.StatusCreated, status, env.Error)

	status, env = h.do(t, http.MethodGet, "/api/v1/games", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var games []mods.Game
	decode(t, env, &games)
	require.Len(t, games, 1)
	assert.Equal(t, "Visible Game", games[0].Name)

	status, _ = h.do(t, http.MethodGet, "/api/v1/games/secret-game", nil, h.member)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = h.do(t, http.MethodGet, "/api/v1/games/secret-game", nil, h.admin)
	assert.Equal(t, http.StatusOK, status)

	status, env = h.do(t, http.MethodGet, "/api/v1/admin/games", nil, h.admin)
	require.Equal(t, http.StatusOK, status)
	decode(t, env, &games)
	assert.Len(t, games, 2)
}

func TestUpdateAndDeleteGame(t *testing.T) {
	h := newHarness(t)
	g := h.game(t, "Old Name")

	status, env := h.do(t, http.MethodPatch, "/api/v1/admin/games/"+g.ID.String(), fiber.Map{"name": "New Name", "slug": "new-name"}, h.admin)
	require.Equal(t, http.StatusOK, status, env.Error)

	status, _ = h.do(t, http.MethodGet, "/api/v1/games/old-name", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = h.do(t, http.MethodGet, "/api/v1/games/new-name", nil, nil)
	assert.Equal(t, http.StatusOK, status)

	img := &mods.Image{EntityType: mods.EntityGames, EntityID: g.ID, UploaderID: h.admin.ID, StorageKey: "games/cover.png", Size: 10}
	require.NoError(t, mods.CreatePendingImage(h.ctx, DB, img))
	require.NoError(t, mods.FinalizeImage(h.ctx, DB, img, 10, "image/png", "https://cdn/cover.png"))
	h.store.On("Delete", mock.Anything, "games/cover.png").Return(nil).Once()

	status, _ = h.do(t, http.MethodDelete, "/api/v1/admin/games/"+g.ID.String(), nil, h.admin)
	assert.Equal(t, http.StatusNoContent, status)
	h.store.AssertExpectations(t)

	status, _ = h.do(t, http.MethodGet, "/api/v1/games/new-name", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDeleteGameWithModsConflicts(t *testing.T) {
	h := newHarness(t)
	g := h.game(t, "Busy Game")
	h.mod(t, g, h.member, "A Mod", true)

	status, _ := h.do(t, http.MethodDelete, "/api/v1/admin/games/"+g.ID.String(), nil, h.admin)
	assert.Equal(t, http.StatusConflict, status)
}

func TestCategories(t *testing.T) {
	h := newHarness(t)
	g := h.game(t, "Fallout 4")

	status, env := h.do(t, http.MethodPost, "/api/v1/admin/games/"+g.ID.String()+"/categories", fiber.Map{"name": "Weapons"}, h.admin)
	require.Equal(t, http.StatusCreated, status, env.Error)
	var cat mods.Category
	decode(t, env, &cat)
	assert.Equal(t, "weapons", cat.Slug)

	status, _ = h.do(t, http.MethodPost, "/api/v1/admin/games/"+g.ID.String()+"/categories", fiber.Map{"name": "weapons"}, h.admin)
	assert.Equal(t, http.StatusConflict, status)

	status, env = h.do(t, http.MethodPatch, "/api/v1/admin/categories/"+cat.ID.String(), fiber.Map{"description": "Guns and blades"}, h.admin)
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = h.do(t, http.MethodGet, "/api/v1/games/fallout-4/categories", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var cats []mods.Category
	decode(t, env, &cats)
	require.Len(t, cats, 1)
	assert.Equal(t, "Guns and blades", cats[0].Description)

	status, _ = h.do(t, http.MethodDelete, "/api/v1/admin/categories/"+cat.ID.String(), nil, h.admin)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = h.do(t, http.MethodDelete, "/api/v1/admin/categories/"+cat.ID.String(), nil, h.admin)
	assert.Equal(t, http.StatusNotFound, status)
}
