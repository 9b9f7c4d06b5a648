package models

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	storage "github.com/AksharDP/modhub/pkg/redis"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const gameCacheTTL = 10 * time.Minute

type Game struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Slug        string    `gorm:"size:120;not null;uniqueIndex" json:"slug"`
	Description string    `gorm:"type:text" json:"description"`
	IsVisible   bool      `gorm:"not null" json:"is_visible"`
	ModCount    int64     `gorm:"->;-:migration" json:"mod_count"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Images     []Image    `gorm:"polymorphic:Entity" json:"images,omitempty"`
	Categories []Category `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE" json:"categories,omitempty"`
}

func (g *Game) BeforeCreate(tx *gorm.DB) error {
	newID(&g.ID)
	return nil
}

func GameKey(slug string) string {
	return "game:" + slug
}

const gamesListPrefix = "games:list:"

// CreateGame inserts a game. Name and slug are unique.
func CreateGame(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, g *Game) error {
	if g.Slug == "" {
		g.Slug = MakeSlug(g.Name)
	}

	var n int64
	if err := db.WithContext(ctx).Model(&Game{}).Where("slug = ? OR LOWER(name) = ?", g.Slug, strings.ToLower(g.Name)).Count(&n).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to check game")
	}
	if n > 0 {
		return utils.NewError(utils.ErrConflict.Code, "Game already exists")
	}

	if err := db.WithContext(ctx).Create(g).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.NewError(utils.ErrConflict.Code, "Game already exists")
		}
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to create game")
	}

	_ = rclient.InvalidatePrefix(ctx, gamesListPrefix)
	return nil
}

// GetGameBySlug returns a game with its approved mod count and images, cached by slug.
// Hidden games are returned too; callers decide who may see them.
func GetGameBySlug(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, slug string) (*Game, error) {
	key := GameKey(slug)
	var g Game
	if found, err := rclient.GetJSON(ctx, key, &g); err == nil && found {
		return &g, nil
	}

	err := gamesWithModCount(db.WithContext(ctx)).
		Where("games.slug = ?", slug).
		Preload("Images", readyImages).
		First(&g).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Game not found")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get game")
	}

	_ = rclient.SetJSON(ctx, key, g, gameCacheTTL)
	return &g, nil
}

// GetGameByID loads a game without aggregates.
func GetGameByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Game, error) {
	var g Game
	if err := db.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Game not found")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get game")
	}
	return &g, nil
}

// GameFilter narrows ListGames.
type GameFilter struct {
	Query         string
	IncludeHidden bool
}

type gamePage struct {
	Games []Game `json:"games"`
	Total int64  `json:"total"`
}

// ListGames returns a page of games with their approved mod counts and primary image.
func ListGames(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, filter GameFilter, p utils.Pagination) ([]Game, int64, error) {
	key := gamesListPrefix + strings.Join([]string{
		strings.ToLower(filter.Query),
		boolKey(filter.IncludeHidden),
		strconv.Itoa(p.Page),
		strconv.Itoa(p.Limit),
	}, ":")
	var cached gamePage
	if found, err := rclient.GetJSON(ctx, key, &cached); err == nil && found {
		return cached.Games, cached.Total, nil
	}

	base := db.WithContext(ctx).Model(&Game{})
	if !filter.IncludeHidden {
		base = base.Where("games.is_visible = ?", true)
	}
	if filter.Query != "" {
		base = base.Where("LOWER(games.name) LIKE ?", "%"+strings.ToLower(filter.Query)+"%")
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to count games")
	}

	games := []Game{}
	err := gamesWithModCount(base.Session(&gorm.Session{})).
		Preload("Images", primaryImage).
		Order("games.name ASC").
		Offset(p.Offset()).Limit(p.Limit).
		Find(&games).Error
	if err != nil {
		return nil, 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get games")
	}

	_ = rclient.SetJSON(ctx, key, gamePage{Games: games, Total: total}, gameCacheTTL)
	return games, total, nil
}

// GameUpdate holds the optional fields of a game edit.
type GameUpdate struct {
	Name        *string
	Slug        *string
	Description *string
	IsVisible   *bool
}

// UpdateGame edits a game and drops its cached copies.
func UpdateGame(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID, in GameUpdate) (*Game, error) {
	g, err := GetGameByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	oldSlug := g.Slug

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Slug != nil {
		updates["slug"] = *in.Slug
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.IsVisible != nil {
		updates["is_visible"] = *in.IsVisible
	}

	if in.Name != nil || in.Slug != nil {
		q := db.WithContext(ctx).Model(&Game{}).Where("id <> ?", id)
		switch {
		case in.Name != nil && in.Slug != nil:
			q = q.Where("LOWER(name) = ? OR slug = ?", strings.ToLower(*in.Name), *in.Slug)
		case in.Name != nil:
			q = q.Where("LOWER(name) = ?", strings.ToLower(*in.Name))
		default:
			q = q.Where("slug = ?", *in.Slug)
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to check game")
		}
		if n > 0 {
			return nil, utils.NewError(utils.ErrConflict.Code, "Game already exists")
		}
	}

	if len(updates) > 0 {
		if err := db.WithContext(ctx).Model(g).Updates(updates).Error; err != nil {
			return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update game")
		}
	}

	_ = rclient.Invalidate(ctx, GameKey(oldSlug), GameKey(g.Slug))
	_ = rclient.InvalidatePrefix(ctx, gamesListPrefix)
	return GetGameByID(ctx, db, id)
}

// DeleteGame removes a game. Games still referenced by mods cannot be deleted.
func DeleteGame(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID) (*Game, error) {
	g, err := GetGameByID(ctx, db, id)
	if err != nil {
		return nil, err
	}

	var images []Image
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Mod{}).Unscoped().Where("game_id = ?", id).Count(&n).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to check game mods")
		}
		if n > 0 {
			return utils.NewError(utils.ErrConflict.Code, "Game still has mods")
		}
		if err := tx.Where("entity_type = ? AND entity_id = ?", EntityGames, id).Find(&images).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get game images")
		}
		if err := tx.Where("entity_type = ? AND entity_id = ?", EntityGames, id).Delete(&Image{}).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete game images")
		}
		if err := tx.Where("game_id = ?", id).Delete(&Category{}).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete categories")
		}
		if err := tx.Delete(g).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete game")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = rclient.Invalidate(ctx, GameKey(g.Slug))
	_ = rclient.InvalidatePrefix(ctx, gamesListPrefix)
	g.Images = images
	return g, nil
}

// InvalidateGame drops cached copies after a change that affects a game's aggregates or images.
func InvalidateGame(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID) {
	var slug string
	if err := db.WithContext(ctx).Model(&Game{}).Where("id = ?", id).Pluck("slug", &slug).Error; err == nil && slug != "" {
		_ = rclient.Invalidate(ctx, GameKey(slug))
	}
	_ = rclient.InvalidatePrefix(ctx, gamesListPrefix)
}

// visibleGameIDs is a subquery over the games shown to the public. It takes one bind argument, true.
const visibleGameIDs = "SELECT games.id FROM games WHERE games.is_visible = ?"

func gamesWithModCount(q *gorm.DB) *gorm.DB {
	return q.Select("games.*, COUNT(mods.id) AS mod_count").
		Joins("LEFT JOIN mods ON mods.game_id = games.id AND mods.status = ? AND mods.deleted_at IS NULL", ModStatusApproved).
		Group("games.id")
}

func boolKey(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
