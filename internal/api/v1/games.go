package v1

import (
	mods "github.com/AksharDP/modhub/internal/models/mods"
	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type gameInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Slug        *string `json:"slug" validate:"omitempty,max=120,slug"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	IsVisible   *bool   `json:"is_visible"`
}

type categoryInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Slug        *string `json:"slug" validate:"omitempty,max=120,slug"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

func canManageGames(c *fiber.Ctx) bool {
	return currentUser(c).HasPermission(user.PermManageGames)
}

// ListGames lists visible games with their approved mod counts.
func ListGames(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	filter := mods.GameFilter{Query: c.Query("q")}
	games, total, err := mods.ListGames(c.UserContext(), Redis, DB, filter, p)
	if err != nil {
		return fail(c, err)
	}
	return utils.SendPage(c, games, p.WithTotal(total))
}

// ListAllGames lists every game, hidden ones included.
func ListAllGames(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	filter := mods.GameFilter{Query: c.Query("q"), IncludeHidden: true}
	games, total, err := mods.ListGames(c.UserContext(), Redis, DB, filter, p)
	if err != nil {
		return fail(c, err)
	}
	return utils.SendPage(c, games, p.WithTotal(total))
}

// GetGame returns a game by slug. Hidden games are only shown to game managers.
func GetGame(c *fiber.Ctx) error {
	g, err := mods.GetGameBySlug(c.UserContext(), Redis, DB, c.Params("slug"))
	if err != nil {
		return fail(c, err)
	}
	if !g.IsVisible && !canManageGames(c) {
		return fail(c, utils.NewError(fiber.StatusNotFound, "Game not found"))
	}
	return utils.SendSuccess(c, g)
}

// ListGameCategories lists a game's categories with approved mod counts.
func ListGameCategories(c *fiber.Ctx) error {
	ctx := c.UserContext()
	g, err := mods.GetGameBySlug(ctx, Redis, DB, c.Params("slug"))
	if err != nil {
		return fail(c, err)
	}
	if !g.IsVisible && !canManageGames(c) {
		return fail(c, utils.NewError(fiber.StatusNotFound, "Game not found"))
	}
	categories, err := mods.ListCategories(ctx, DB, g.ID)
	if err != nil {
		return fail(c, err)
	}
	return utils.SendSuccess(c, categories)
}

func CreateGame(c *fiber.Ctx) error {
	var in gameInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	if in.Name == nil {
		return fail(c, utils.NewError(fiber.StatusBadRequest, "name is required"))
	}

	g := &mods.Game{Name: *in.Name, IsVisible: true}
	if in.Slug != nil {
		g.Slug = *in.Slug
	}
	if in.Description != nil {
		g.Description = *in.Description
	}
	if in.IsVisible != nil {
		g.IsVisible = *in.IsVisible
	}
	if err := mods.CreateGame(c.UserContext(), Redis, DB, g); err != nil {
		return fail(c, err)
	}

	Logger.Info(c.UserContext()).WithFields("game_id", g.ID).Logs("Game created: " + g.Name)
	return utils.Success(c).WithStatus(fiber.StatusCreated).WithData(g).Send()
}

func UpdateGame(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var in gameInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}

	g, err := mods.UpdateGame(c.UserContext(), Redis, DB, id, mods.GameUpdate{
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		IsVisible:   in.IsVisible,
	})
	if err != nil {
		return fail(c, err)
	}
	return utils.SendSuccess(c, g)
}

// DeleteGame removes a game without mods, its categories and its images.
func DeleteGame(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}

	g, err := mods.DeleteGame(ctx, Redis, DB, id)
	if err != nil {
		return fail(c, err)
	}
	if err := deleteObjects(ctx, imageKeys(g.Images)); err != nil {
		Logger.Warn(ctx).WithFields("game_id", id).Logs("Some game images could not be removed from storage")
	}

	Logger.Info(ctx).WithFields("game_id", id).Logs("Game deleted: " + g.Name)
	return c.SendStatus(fiber.StatusNoContent)
}

func CreateCategory(c *fiber.Ctx) error {
	gameID, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var in categoryInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	if in.Name == nil {
		return fail(c, utils.NewError(fiber.StatusBadRequest, "name is required"))
	}

	cat := &mods.Category{GameID: gameID, Name: *in.Name}
	if in.Slug != nil {
		cat.Slug = *in.Slug
	}
	if in.Description != nil {
		cat.Description = *in.Description
	}
	if err := mods.CreateCategory(c.UserContext(), Redis, DB, cat); err != nil {
		return fail(c, err)
	}
	return utils.Success(c).WithStatus(fiber.StatusCreated).WithData(cat).Send()
}

func UpdateCategory(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var in categoryInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}

	cat, err := mods.UpdateCategory(c.UserContext(), Redis, DB, id, mods.CategoryUpdate{
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
	})
	if err != nil {
		return fail(c, err)
	}
	return utils.SendSuccess(c, cat)
}

// DeleteCategory removes a category; its mods become uncategorized.
func DeleteCategory(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := mods.DeleteCategory(c.UserContext(), Redis, DB, id); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
