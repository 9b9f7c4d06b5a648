package models

import (
	"context"
	"errors"
	"time"

	storage "github.com/AksharDP/modhub/pkg/redis"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Category struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GameID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_category_game_slug" json:"game_id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Slug        string    `gorm:"size:120;not null;uniqueIndex:idx_category_game_slug" json:"slug"`
	Description string    `gorm:"size:500" json:"description"`
	ModCount    int64     `gorm:"->;-:migration" json:"mod_count"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	newID(&c.ID)
	return nil
}

// ListCategories returns the categories of a game with their approved mod counts.
func ListCategories(ctx context.Context, db *gorm.DB, gameID uuid.UUID) ([]Category, error) {
	categories := []Category{}
	err := db.WithContext(ctx).Model(&Category{}).
		Select("categories.*, COUNT(mods.id) AS mod_count").
		Joins("LEFT JOIN mods ON mods.category_id = categories.id AND mods.status = ? AND mods.deleted_at IS NULL", ModStatusApproved).
		Where("categories.game_id = ?", gameID).
		Group("categories.id").
		Order("categories.name ASC").
		Find(&categories).Error
	if err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get categories")
	}
	return categories, nil
}

// GetCategory loads a category by id.
func GetCategory(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Category, error) {
	var c Category
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Category not found")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get category")
	}
	return &c, nil
}

// GetCategoryBySlug loads a category of a game by slug.
func GetCategoryBySlug(ctx context.Context, db *gorm.DB, gameID uuid.UUID, slug string) (*Category, error) {
	var c Category
	if err := db.WithContext(ctx).Where("game_id = ? AND slug = ?", gameID, slug).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Category not found")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get category")
	}
	return &c, nil
}

// CreateCategory adds a category to an existing game. Slugs are unique per game.
func CreateCategory(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, c *Category) error {
	if _, err := GetGameByID(ctx, db, c.GameID); err != nil {
		return err
	}
	if c.Slug == "" {
		c.Slug = MakeSlug(c.Name)
	}
	if err := checkCategorySlug(ctx, db, c.GameID, c.Slug, uuid.Nil); err != nil {
		return err
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.NewError(utils.ErrConflict.Code, "Category already exists")
		}
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to create category")
	}
	InvalidateGame(ctx, rclient, db, c.GameID)
	return nil
}

// CategoryUpdate holds the optional fields of a category edit.
type CategoryUpdate struct {
	Name        *string
	Slug        *string
	Description *string
}

func UpdateCategory(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID, in CategoryUpdate) (*Category, error) {
	c, err := GetCategory(ctx, db, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Slug != nil && *in.Slug != c.Slug {
		if err := checkCategorySlug(ctx, db, c.GameID, *in.Slug, c.ID); err != nil {
			return nil, err
		}
		updates["slug"] = *in.Slug
	}
	if len(updates) > 0 {
		if err := db.WithContext(ctx).Model(c).Updates(updates).Error; err != nil {
			return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update category")
		}
	}
	InvalidateGame(ctx, rclient, db, c.GameID)
	return GetCategory(ctx, db, id)
}

// DeleteCategory removes a category and detaches its mods.
func DeleteCategory(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID) error {
	c, err := GetCategory(ctx, db, id)
	if err != nil {
		return err
	}
	var modIDs []uuid.UUID
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Mod{}).Unscoped().Where("category_id = ?", id).Pluck("id", &modIDs).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get category mods")
		}
		if err := tx.Model(&Mod{}).Unscoped().Where("category_id = ?", id).Update("category_id", nil).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to detach mods")
		}
		if err := tx.Delete(c).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete category")
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, modID := range modIDs {
		InvalidateMod(ctx, rclient, modID)
	}
	InvalidateGame(ctx, rclient, db, c.GameID)
	return nil
}

func checkCategorySlug(ctx context.Context, db *gorm.DB, gameID uuid.UUID, slug string, except uuid.UUID) error {
	var n int64
	q := db.WithContext(ctx).Model(&Category{}).Where("game_id = ? AND slug = ?", gameID, slug)
	if except != uuid.Nil {
		q = q.Where("id <> ?", except)
	}
	if err := q.Count(&n).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to check category")
	}
	if n > 0 {
		return utils.NewError(utils.ErrConflict.Code, "Category already exists")
	}
	return nil
}
