package v1

import (
	mods "github.com/AksharDP/modhub/internal/models/mods"
	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type collectionInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	IsPrivate   *bool   `json:"is_private"`
}

// loadCollection returns the collection if the caller may see it, 404 otherwise.
func loadCollection(c *fiber.Ctx) (*mods.Collection, error) {
	id, err := idParam(c, "id")
	if err != nil {
		return nil, err
	}
	col, err := mods.GetCollection(c.UserContext(), DB, id, false)
	if err != nil {
		return nil, err
	}
	if !col.VisibleTo(currentUser(c)) {
		return nil, utils.NewError(fiber.StatusNotFound, "Collection not found")
	}
	return col, nil
}

// loadOwnCollection is loadCollection restricted to the owner.
func loadOwnCollection(c *fiber.Ctx) (*mods.Collection, error) {
	col, err := loadCollection(c)
	if err != nil {
		return nil, err
	}
	if col.UserID != currentUser(c).ID {
		return nil, utils.NewError(fiber.StatusForbidden, "Only the owner can change this collection")
	}
	return col, nil
}

// ListCollections lists public collections, optionally of one user.
func ListCollections(c *fiber.Ctx) error {
	ctx := c.UserContext()
	p := utils.ParsePagination(c)
	filter := mods.CollectionFilter{Query: c.Query("q")}
	if username := c.Query("user"); username != "" {
		owner, err := user.GetUserBy(ctx, DB, "username = ?", []interface{}{username})
		if err != nil {
			return fail(c, err)
		}
		filter.UserID = &owner.ID
	}

	list, total, err := mods.ListCollections(ctx, DB, filter, p)
	if err != nil {
		return fail(c, err)
	}
	return utils.SendPage(c, list, p.WithTotal(total))
}

// GetCollection returns a collection and a page of its mods in order.
// The owner also sees mods that are not approved.
func GetCollection(c *fiber.Ctx) error {
	col, err := loadCollection(c)
	if err != nil {
		return fail(c, err)
	}

	p := utils.ParsePagination(c)
	u := currentUser(c)
	isOwner := u != nil && u.ID == col.UserID
	entries, total, err := mods.ListCollectionMods(c.UserContext(), DB, col.ID, isOwner, p)
	if err != nil {
		return fail(c, err)
	}
	col.ModCount = total
	return utils.Success(c).
		WithData(fiber.Map{"collection": col, "mods": entries}).
		WithPagination(p.WithTotal(total)).
		Send()
}

func CreateCollection(c *fiber.Ctx) error {
	var in collectionInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	if in.Name == nil {
		return fail(c, utils.NewError(fiber.StatusBadRequest, "name is required"))
	}

	col := &mods.Collection{UserID: currentUser(c).ID, Name: *in.Name}
	if in.Description != nil {
		col.Description = *in.Description
	}
	if in.IsPrivate != nil {
		col.IsPrivate = *in.IsPrivate
	}
	if err := mods.CreateCollection(c.UserContext(), DB, col); err != nil {
		return fail(c, err)
	}
	return utils.Success(c).WithStatus(fiber.StatusCreated).WithData(col).Send()
}

func UpdateCollection(c *fiber.Ctx) error {
	col, err := loadOwnCollection(c)
	if err != nil {
		return fail(c, err)
	}
	var in collectionInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}

	updated, err := mods.UpdateCollection(c.UserContext(), DB, col.ID, mods.CollectionUpdate{
		Name:        in.Name,
		Description: in.Description,
		IsPrivate:   in.IsPrivate,
	})
	if err != nil {
		return fail(c, err)
	}
	return utils.SendSuccess(c, updated)
}

func DeleteCollection(c *fiber.Ctx) error {
	col, err := loadOwnCollection(c)
	if err != nil {
		return fail(c, err)
	}
	if err := mods.DeleteCollection(c.UserContext(), DB, col.ID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddCollectionMod appends a mod to the caller's collection.
func AddCollectionMod(c *fiber.Ctx) error {
	ctx := c.UserContext()
	type AddInput struct {
		ModID string `json:"mod_id" validate:"required,uuid"`
	}
	col, err := loadOwnCollection(c)
	if err != nil {
		return fail(c, err)
	}
	var in AddInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}

	m, err := mods.GetMod(ctx, Redis, DB, uuid.MustParse(in.ModID))
	if err != nil {
		return fail(c, err)
	}
	visible, err := modVisible(c, m)
	if err != nil {
		return fail(c, err)
	}
	if !visible {
		return fail(c, utils.NewError(fiber.StatusNotFound, "Mod not found"))
	}

	entry, err := mods.AddModToCollection(ctx, DB, col.ID, m.ID)
	if err != nil {
		return fail(c, err)
	}
	return utils.Success(c).WithStatus(fiber.StatusCreated).WithData(entry).Send()
}

// RemoveCollectionMod removes a mod and closes the gap in positions.
func RemoveCollectionMod(c *fiber.Ctx) error {
	col, err := loadOwnCollection(c)
	if err != nil {
		return fail(c, err)
	}
	modID, err := idParam(c, "modId")
	if err != nil {
		return fail(c, err)
	}
	if err := mods.RemoveModFromCollection(c.UserContext(), DB, col.ID, modID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ReorderCollectionMods rewrites the order of a collection. mod_ids must list every member once.
func ReorderCollectionMods(c *fiber.Ctx) error {
	type OrderInput struct {
		ModIDs []string `json:"mod_ids" validate:"required,dive,uuid"`
	}
	col, err := loadOwnCollection(c)
	if err != nil {
		return fail(c, err)
	}
	var in OrderInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}

	ids := make([]uuid.UUID, 0, len(in.ModIDs))
	for _, s := range in.ModIDs {
		ids = append(ids, uuid.MustParse(s))
	}
	if err := mods.ReorderCollection(c.UserContext(), DB, col.ID, ids); err != nil {
		return fail(c, err)
	}

	entries, total, err := mods.ListCollectionMods(c.UserContext(), DB, col.ID, true, utils.NewPagination(1, utils.MaxLimit))
	if err != nil {
		return fail(c, err)
	}
	return utils.SendPage(c, entries, utils.NewPagination(1, utils.MaxLimit).WithTotal(total))
}
