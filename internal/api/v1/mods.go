package v1

import (
	"strconv"
	"time"

	mods "github.com/AksharDP/modhub/internal/models/mods"
	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/AksharDP/modhub/pkg/objectstore"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const countWindow = time.Hour

type modDetail struct {
	*mods.Mod
	Liked bool `json:"liked"`
}

type modInput struct {
	GameID           string  `json:"game_id" validate:"omitempty,uuid"`
	CategoryID       *string `json:"category_id" validate:"omitempty,max=36"`
	Name             *string `json:"name" validate:"omitempty,min=1,max=150"`
	Slug             *string `json:"slug" validate:"omitempty,max=160,slug"`
	ShortDescription *string `json:"short_description" validate:"omitempty,max=300"`
	Description      *string `json:"description" validate:"omitempty,max=50000"`
	Version          *string `json:"version" validate:"omitempty,max=50"`
	IsAdult          *bool   `json:"is_adult"`
}

// loadVisibleMod returns the mod if the caller may see it, 404 otherwise.
func loadVisibleMod(c *fiber.Ctx) (*mods.Mod, error) {
	id, err := idParam(c, "id")
	if err != nil {
		return nil, err
	}
	m, err := mods.GetMod(c.UserContext(), Redis, DB, id)
	if err != nil {
		return nil, err
	}
	visible, err := modVisible(c, m)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, utils.NewError(fiber.StatusNotFound, "Mod not found")
	}
	return m, nil
}

// modVisible checks the mod's status against the caller and hides mods of hidden games from
// anyone who cannot manage games. The game is read from the database since the cached mod may
// carry a stale copy.
func modVisible(c *fiber.Ctx, m *mods.Mod) (bool, error) {
	if !m.VisibleTo(currentUser(c)) {
		return false, nil
	}
	if canManageGames(c) {
		return true, nil
	}
	g, err := mods.GetGameByID(c.UserContext(), DB, m.GameID)
	if err != nil {
		return false, err
	}
	return g.IsVisible, nil
}

func isModerator(u *user.User) bool {
	return u.HasPermission(user.PermModerateMod)
}

// ListMods lists approved mods filtered by game slug, category slug, author username and text.
func ListMods(c *fiber.Ctx) error {
	ctx := c.UserContext()
	p := utils.ParsePagination(c)
	filter := mods.ModFilter{Query: c.Query("q"), Sort: c.Query("sort", "newest"), VisibleGamesOnly: !canManageGames(c)}
	if !mods.ValidModSort(filter.Sort) {
		return fail(c, utils.NewError(fiber.StatusBadRequest, "Invalid sort", "use newest, updated, downloads, likes or name"))
	}

	if slug := c.Query("game"); slug != "" {
		g, err := mods.GetGameBySlug(ctx, Redis, DB, slug)
		if err != nil {
			return fail(c, err)
		}
		if !g.IsVisible && filter.VisibleGamesOnly {
			return fail(c, utils.NewError(fiber.StatusNotFound, "Game not found"))
		}
		filter.GameID = &g.ID
	}
	if slug := c.Query("category"); slug != "" {
		if filter.GameID == nil {
			return fail(c, utils.NewError(fiber.StatusBadRequest, "category requires game"))
		}
		cat, err := mods.GetCategoryBySlug(ctx, DB, *filter.GameID, slug)
		if err != nil {
			return fail(c, err)
		}
		filter.CategoryID = &cat.ID
	}
	if username := c.Query("author"); username != "" {
		author, err := user.GetUserBy(ctx, DB, "username = ?", []interface{}{username})
		if err != nil {
			return fail(c, err)
		}
		filter.AuthorID = &author.ID
	}
	if v := c.Query("featured"); v != "" {
		featured, err := strconv.ParseBool(v)
		if err != nil {
			return fail(c, utils.NewError(fiber.StatusBadRequest, "Invalid featured flag"))
		}
		filter.Featured = &featured
	}

	list, total, err := mods.ListMods(ctx, DB, filter, p)
	if err != nil {
		return fail(c, err)
	}
	return utils.SendPage(c, list, p.WithTotal(total))
}

// GetMod returns a mod with stats, files and images. A view is counted once per IP per hour.
func GetMod(c *fiber.Ctx) error {
	ctx := c.UserContext()
	m, err := loadVisibleMod(c)
	if err != nil {
		return fail(c, err)
	}

	if first, err := Redis.Once(ctx, "view:"+m.ID.String()+":"+c.IP(), countWindow); err == nil && first {
		if err := mods.IncrementViews(ctx, DB, m.ID); err != nil {
			Logger.Warn(ctx).WithFields("error", err, "mod_id", m.ID).Logs("Failed to count view")
		}
	}
	if err := mods.LoadModDetails(ctx, DB, m); err != nil {
		return fail(c, err)
	}

	detail := modDetail{Mod: m}
	if u := currentUser(c); u != nil {
		if detail.Liked, err = mods.HasLiked(ctx, DB, u.ID, m.ID); err != nil {
			return fail(c, err)
		}
	}
	return utils.SendSuccess(c, detail)
}

// CreateMod creates a mod owned by the caller. It starts pending when approval is required.
func CreateMod(c *fiber.Ctx) error {
	ctx := c.UserContext()
	u := currentUser(c)
	var in modInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	if in.GameID == "" || in.Name == nil {
		return fail(c, utils.NewError(fiber.StatusBadRequest, "game_id and name are required"))
	}

	settings, err := siteSettings(ctx)
	if err != nil {
		return fail(c, err)
	}

	m := &mods.Mod{GameID: uuid.MustParse(in.GameID), AuthorID: u.ID, Name: *in.Name}
	if in.CategoryID != nil && *in.CategoryID != "" {
		cid, err := uuid.Parse(*in.CategoryID)
		if err != nil {
			return fail(c, utils.NewError(fiber.StatusBadRequest, "Invalid category_id"))
		}
		m.CategoryID = &cid
	}
	if in.Slug != nil {
		m.Slug = *in.Slug
	}
	if in.ShortDescription != nil {
		m.ShortDescription = *in.ShortDescription
	}
	if in.Description != nil {
		m.Description = *in.Description
	}
	if in.Version != nil {
		m.Version = *in.Version
	}
	if in.IsAdult != nil {
		m.IsAdult = *in.IsAdult
	}

	if err := mods.CreateMod(ctx, Redis, DB, m, settings.RequireModApproval); err != nil {
		return fail(c, err)
	}

	Logger.Info(ctx).WithFields("mod_id", m.ID, "status", m.Status).Logs("Mod created: " + m.Name)
	return utils.Success(c).WithStatus(fiber.StatusCreated).WithData(m).Send()
}

// UpdateMod edits a mod. Author edits send an approved mod back to moderation when approval is required.
func UpdateMod(c *fiber.Ctx) error {
	ctx := c.UserContext()
	u := currentUser(c)
	m, err := loadVisibleMod(c)
	if err != nil {
		return fail(c, err)
	}

	isAuthor := m.AuthorID == u.ID && u.HasPermission(user.PermEditOwnMod)
	if !isAuthor && !isModerator(u) {
		return fail(c, utils.NewError(fiber.StatusForbidden, "You cannot edit this mod"))
	}

	var in modInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	if in.GameID != "" && in.GameID != m.GameID.String() {
		return fail(c, utils.NewError(fiber.StatusBadRequest, "A mod cannot move to another game"))
	}

	settings, err := siteSettings(ctx)
	if err != nil {
		return fail(c, err)
	}
	// a rejected mod always goes back for review once its author changes it
	requeue := !isModerator(u) && (settings.RequireModApproval || m.Status == mods.ModStatusRejected)

	updated, err := mods.UpdateMod(ctx, Redis, DB, m.ID, mods.ModUpdate{
		Name:             in.Name,
		Slug:             in.Slug,
		ShortDescription: in.ShortDescription,
		Description:      in.Description,
		Version:          in.Version,
		CategoryID:       in.CategoryID,
		IsAdult:          in.IsAdult,
	}, requeue)
	if err != nil {
		return fail(c, err)
	}
	return utils.SendSuccess(c, updated)
}

// DeleteMod soft-deletes a mod and removes its stored files and images.
func DeleteMod(c *fiber.Ctx) error {
	ctx := c.UserContext()
	u := currentUser(c)
	m, err := loadVisibleMod(c)
	if err != nil {
		return fail(c, err)
	}
	isAuthor := m.AuthorID == u.ID && u.HasPermission(user.PermDeleteOwnMod)
	if !isAuthor && !isModerator(u) {
		return fail(c, utils.NewError(fiber.StatusForbidden, "You cannot delete this mod"))
	}

	files, images, err := mods.DeleteMod(ctx, Redis, DB, m.ID)
	if err != nil {
		return fail(c, err)
	}
	keys := append(fileKeys(files), imageKeys(images)...)
	if err := deleteObjects(ctx, keys); err != nil {
		Logger.Warn(ctx).WithFields("mod_id", m.ID).Logs("Some mod objects could not be removed from storage")
	}

	Logger.Info(ctx).WithFields("mod_id", m.ID, "user_id", u.ID).Logs("Mod deleted")
	return c.SendStatus(fiber.StatusNoContent)
}

// DownloadMod presigns a download of the requested or newest ready file.
// A download is counted once per IP per mod per hour.
func DownloadMod(c *fiber.Ctx) error {
	ctx := c.UserContext()
	m, err := loadVisibleMod(c)
	if err != nil {
		return fail(c, err)
	}

	var fileID *uuid.UUID
	if v := c.Query("file"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return fail(c, utils.NewError(fiber.StatusBadRequest, "Invalid file"))
		}
		fileID = &id
	}
	f, err := mods.GetReadyModFile(ctx, DB, m.ID, fileID)
	if err != nil {
		return fail(c, err)
	}

	settings, err := siteSettings(ctx)
	if err != nil {
		return fail(c, err)
	}
	req, err := Store.PresignGet(ctx, f.StorageKey, objectstore.GetOptions{FileName: f.Name, TTL: settings.DownloadTTL()})
	if err != nil {
		return fail(c, utils.WrapError(err, fiber.StatusInternalServerError, "Failed to sign download"))
	}

	if first, err := Redis.Once(ctx, "download:"+m.ID.String()+":"+c.IP(), countWindow); err == nil && first {
		if err := mods.IncrementDownloads(ctx, DB, m.ID); err != nil {
			Logger.Warn(ctx).WithFields("error", err, "mod_id", m.ID).Logs("Failed to count download")
		}
	}

	return utils.SendSuccess(c, fiber.Map{
		"url":        req.URL,
		"expires_at": req.ExpiresAt,
		"file":       f,
	})
}

func LikeMod(c *fiber.Ctx) error {
	m, err := loadVisibleMod(c)
	if err != nil {
		return fail(c, err)
	}
	likes, err := mods.LikeMod(c.UserContext(), DB, currentUser(c).ID, m.ID)
	if err != nil {
		return fail(c, err)
	}
	return utils.SendSuccess(c, fiber.Map{"liked": true, "likes": likes})
}

func UnlikeMod(c *fiber.Ctx) error {
	m, err := loadVisibleMod(c)
	if err != nil {
		return fail(c, err)
	}
	likes, err := mods.UnlikeMod(c.UserContext(), DB, currentUser(c).ID, m.ID)
	if err != nil {
		return fail(c, err)
	}
	return utils.SendSuccess(c, fiber.Map{"liked": false, "likes": likes})
}
