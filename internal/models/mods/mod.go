package models

import (
	"context"
	"errors"
	"strings"
	"time"

	user "github.com/AksharDP/modhub/internal/models/user"
	storage "github.com/AksharDP/modhub/pkg/redis"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ModStatusPending  = "pending"
	ModStatusApproved = "approved"
	ModStatusRejected = "rejected"

	modCacheTTL = 10 * time.Minute
)

type Mod struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	GameID           uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_mod_game_slug" json:"game_id"`
	CategoryID       *uuid.UUID     `gorm:"type:uuid;index" json:"category_id"`
	AuthorID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"author_id"`
	Name             string         `gorm:"size:150;not null" json:"name"`
	Slug             string         `gorm:"size:160;not null;uniqueIndex:idx_mod_game_slug" json:"slug"`
	ShortDescription string         `gorm:"size:300" json:"short_description"`
	Description      string         `gorm:"type:text" json:"description"`
	Version          string         `gorm:"size:50" json:"version"`
	Status           string         `gorm:"size:20;not null;index" json:"status"`
	RejectionReason  string         `gorm:"size:500" json:"rejection_reason,omitempty"`
	IsFeatured       bool           `gorm:"not null" json:"is_featured"`
	IsAdult          bool           `gorm:"not null" json:"is_adult"`
	Size             int64          `gorm:"not null;default:0" json:"size"`
	PublishedAt      *time.Time     `json:"published_at,omitempty"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`

	Game     *Game      `gorm:"foreignKey:GameID" json:"game,omitempty"`
	Category *Category  `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Author   *user.User `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Stats    *ModStats  `gorm:"foreignKey:ModID;constraint:OnDelete:CASCADE" json:"stats,omitempty"`
	Files    []File     `gorm:"polymorphic:Entity" json:"files,omitempty"`
	Images   []Image    `gorm:"polymorphic:Entity" json:"images,omitempty"`
}

func (m *Mod) BeforeCreate(tx *gorm.DB) error {
	newID(&m.ID)
	return nil
}

func ModKey(id uuid.UUID) string {
	return "mod:" + id.String()
}

// VisibleTo reports whether u may see the mod. Unapproved mods are visible to their author and moderators.
func (m *Mod) VisibleTo(u *user.User) bool {
	if m.Status == ModStatusApproved {
		return true
	}
	if u == nil {
		return false
	}
	return u.ID == m.AuthorID || u.HasPermission(user.PermModerateMod)
}

// CreateMod validates the game, category and slug, then inserts the mod with empty stats.
func CreateMod(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, m *Mod, requireApproval bool) error {
	if _, err := GetGameByID(ctx, db, m.GameID); err != nil {
		return err
	}
	if err := checkModCategory(ctx, db, m.GameID, m.CategoryID); err != nil {
		return err
	}
	if m.Slug == "" {
		m.Slug = MakeSlug(m.Name)
	}
	if err := checkModSlug(ctx, db, m.GameID, m.Slug, uuid.Nil); err != nil {
		return err
	}

	m.Status = ModStatusApproved
	if requireApproval {
		m.Status = ModStatusPending
	} else {
		now := time.Now()
		m.PublishedAt = &now
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Stats", "Files", "Images", "Game", "Category", "Author").Create(m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return utils.NewError(utils.ErrConflict.Code, "Mod slug already used for this game")
			}
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to create mod")
		}
		stats := &ModStats{ModID: m.ID}
		if err := tx.Create(stats).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to create mod stats")
		}
		m.Stats = stats
		return nil
	})
	if err != nil {
		return err
	}

	InvalidateGame(ctx, rclient, db, m.GameID)
	return nil
}

// GetMod returns the mod with game, category and author, read-through Redis.
// Stats, files and images change often and are not part of the cached copy; see LoadModDetails.
func GetMod(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID) (*Mod, error) {
	key := ModKey(id)
	var m Mod
	if found, err := rclient.GetJSON(ctx, key, &m); err == nil && found {
		return &m, nil
	}

	err := db.WithContext(ctx).
		Preload("Game").Preload("Category").Preload("Author").
		Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Mod not found")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get mod")
	}

	_ = rclient.SetJSON(ctx, key, m, modCacheTTL)
	return &m, nil
}

// LoadModDetails fills stats, ready files and ready images.
func LoadModDetails(ctx context.Context, db *gorm.DB, m *Mod) error {
	var stats ModStats
	if err := db.WithContext(ctx).Where("mod_id = ?", m.ID).Attrs(ModStats{ModID: m.ID}).FirstOrInit(&stats).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get mod stats")
	}
	m.Stats = &stats

	m.Files = []File{}
	if err := db.WithContext(ctx).Where("entity_type = ? AND entity_id = ? AND status = ?", EntityMods, m.ID, UploadReady).
		Order("created_at DESC").Find(&m.Files).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get mod files")
	}

	m.Images = []Image{}
	if err := db.WithContext(ctx).Where("entity_type = ? AND entity_id = ? AND status = ?", EntityMods, m.ID, UploadReady).
		Order("position ASC").Find(&m.Images).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get mod images")
	}
	return nil
}

// InvalidateMod drops the cached copy of a mod.
func InvalidateMod(ctx context.Context, rclient *storage.RedisClient, id uuid.UUID) {
	_ = rclient.Invalidate(ctx, ModKey(id))
}

var modSorts = map[string]string{
	"newest":    "mods.created_at DESC",
	"updated":   "mods.updated_at DESC",
	"downloads": "COALESCE(mod_stats.downloads, 0) DESC",
	"likes":     "COALESCE(mod_stats.likes, 0) DESC",
	"name":      "LOWER(mods.name) ASC",
}

// ValidModSort reports whether s is a known sort key.
func ValidModSort(s string) bool {
	_, ok := modSorts[s]
	return ok
}

// ModFilter narrows ListMods. Zero values mean no restriction, except Statuses which defaults to approved.
type ModFilter struct {
	GameID     *uuid.UUID
	CategoryID *uuid.UUID
	AuthorID   *uuid.UUID
	Query      string
	Featured   *bool
	Statuses   []string
	Sort       string

	// VisibleGamesOnly drops mods whose game is hidden.
	VisibleGamesOnly bool
}

// ListMods returns a page of live mods with stats, game, author and primary image.
func ListMods(ctx context.Context, db *gorm.DB, f ModFilter, p utils.Pagination) ([]Mod, int64, error) {
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = []string{ModStatusApproved}
	}

	q := db.WithContext(ctx).Model(&Mod{}).
		Joins("LEFT JOIN mod_stats ON mod_stats.mod_id = mods.id").
		Where("mods.status IN ?", statuses)
	if f.GameID != nil {
		q = q.Where("mods.game_id = ?", *f.GameID)
	}
	if f.VisibleGamesOnly {
		q = q.Where("mods.game_id IN ("+visibleGameIDs+")", true)
	}
	if f.CategoryID != nil {
		q = q.Where("mods.category_id = ?", *f.CategoryID)
	}
	if f.AuthorID != nil {
		q = q.Where("mods.author_id = ?", *f.AuthorID)
	}
	if f.Featured != nil {
		q = q.Where("mods.is_featured = ?", *f.Featured)
	}
	if f.Query != "" {
		like := "%" + strings.ToLower(f.Query) + "%"
		q = q.Where("LOWER(mods.name) LIKE ? OR LOWER(mods.short_description) LIKE ?", like, like)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to count mods")
	}

	order, ok := modSorts[f.Sort]
	if !ok {
		order = modSorts["newest"]
	}

	mods := []Mod{}
	err := q.Session(&gorm.Session{}).
		Select("mods.*").
		Order(order).Order("mods.id ASC").
		Offset(p.Offset()).Limit(p.Limit).
		Preload("Stats").Preload("Game").Preload("Category").Preload("Author").
		Preload("Images", primaryImage).
		Find(&mods).Error
	if err != nil {
		return nil, 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get mods")
	}
	return mods, total, nil
}

// ModUpdate holds the optional fields of a mod edit. An empty CategoryID clears the category.
type ModUpdate struct {
	Name             *string
	Slug             *string
	ShortDescription *string
	Description      *string
	Version          *string
	CategoryID       *string
	IsAdult          *bool
}

// UpdateMod edits a mod. requeue puts an approved or rejected mod back into the moderation queue.
func UpdateMod(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID, in ModUpdate, requeue bool) (*Mod, error) {
	var m Mod
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Mod not found")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get mod")
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.ShortDescription != nil {
		updates["short_description"] = *in.ShortDescription
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Version != nil {
		updates["version"] = *in.Version
	}
	if in.IsAdult != nil {
		updates["is_adult"] = *in.IsAdult
	}
	if in.Slug != nil && *in.Slug != m.Slug {
		if err := checkModSlug(ctx, db, m.GameID, *in.Slug, m.ID); err != nil {
			return nil, err
		}
		updates["slug"] = *in.Slug
	}
	if in.CategoryID != nil {
		if *in.CategoryID == "" {
			updates["category_id"] = nil
		} else {
			cid, err := uuid.Parse(*in.CategoryID)
			if err != nil {
				return nil, utils.NewError(utils.ErrBadRequest.Code, "Invalid category_id")
			}
			if err := checkModCategory(ctx, db, m.GameID, &cid); err != nil {
				return nil, err
			}
			updates["category_id"] = cid
		}
	}
	if requeue && m.Status != ModStatusPending && len(updates) > 0 {
		updates["status"] = ModStatusPending
		updates["rejection_reason"] = ""
	}

	if len(updates) > 0 {
		if err := db.WithContext(ctx).Model(&m).Updates(updates).Error; err != nil {
			return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update mod")
		}
	}

	InvalidateMod(ctx, rclient, id)
	InvalidateGame(ctx, rclient, db, m.GameID)
	return GetMod(ctx, rclient, db, id)
}

// DeleteMod soft-deletes a mod, removes it from every collection and deletes its file and image
// records. The returned records name the objects the caller still has to remove from storage.
func DeleteMod(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID) ([]File, []Image, error) {
	var m Mod
	var files []File
	var images []Image

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewError(utils.ErrNotFound.Code, "Mod not found")
			}
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get mod")
		}

		if err := tx.Where("entity_type = ? AND entity_id = ?", EntityMods, id).Find(&files).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get mod files")
		}
		if err := tx.Where("entity_type = ? AND entity_id = ?", EntityMods, id).Find(&images).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get mod images")
		}
		if err := tx.Where("entity_type = ? AND entity_id = ?", EntityMods, id).Delete(&File{}).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete mod files")
		}
		if err := tx.Where("entity_type = ? AND entity_id = ?", EntityMods, id).Delete(&Image{}).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete mod images")
		}
		if err := removeModFromCollections(tx, id); err != nil {
			return err
		}
		if err := tx.Model(&m).UpdateColumn("size", 0).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to reset mod size")
		}
		if err := tx.Delete(&m).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete mod")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	InvalidateMod(ctx, rclient, id)
	InvalidateGame(ctx, rclient, db, m.GameID)
	return files, images, nil
}

// SetModStatus records a moderation decision and returns the mod with its author loaded from the database.
func SetModStatus(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID, status, reason string) (*Mod, error) {
	var m Mod
	if err := db.WithContext(ctx).Preload("Author").Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Mod not found")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get mod")
	}

	updates := map[string]interface{}{"status": status, "rejection_reason": ""}
	if status == ModStatusRejected {
		updates["rejection_reason"] = reason
	}
	if status == ModStatusApproved && m.PublishedAt == nil {
		updates["published_at"] = time.Now()
	}
	if err := db.WithContext(ctx).Model(&m).Updates(updates).Error; err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update mod status")
	}

	InvalidateMod(ctx, rclient, id)
	InvalidateGame(ctx, rclient, db, m.GameID)
	return &m, nil
}

// SetFeatured toggles the featured flag.
func SetFeatured(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID, featured bool) (*Mod, error) {
	res := db.WithContext(ctx).Model(&Mod{}).Where("id = ?", id).Update("is_featured", featured)
	if res.Error != nil {
		return nil, utils.WrapError(res.Error, utils.ErrInternalServerError.Code, "Failed to update mod")
	}
	if res.RowsAffected == 0 {
		return nil, utils.NewError(utils.ErrNotFound.Code, "Mod not found")
	}
	InvalidateMod(ctx, rclient, id)
	return GetMod(ctx, rclient, db, id)
}

// RecomputeModSize sets a mod's size to the sum of its ready files in a single statement.
func RecomputeModSize(tx *gorm.DB, modID uuid.UUID) error {
	err := tx.Exec(`UPDATE mods SET size = (
		SELECT COALESCE(SUM(files.size), 0) FROM files
		WHERE files.entity_type = ? AND files.entity_id = mods.id AND files.status = ?
	) WHERE id = ?`, EntityMods, UploadReady, modID).Error
	if err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to recompute mod size")
	}
	return nil
}

// RecomputeAllModSizes repairs every live mod's size and returns how many rows changed.
func RecomputeAllModSizes(ctx context.Context, db *gorm.DB) (int64, error) {
	res := db.WithContext(ctx).Exec(`UPDATE mods SET size = (
		SELECT COALESCE(SUM(files.size), 0) FROM files
		WHERE files.entity_type = ? AND files.entity_id = mods.id AND files.status = ?
	) WHERE deleted_at IS NULL AND size <> (
		SELECT COALESCE(SUM(files.size), 0) FROM files
		WHERE files.entity_type = ? AND files.entity_id = mods.id AND files.status = ?
	)`, EntityMods, UploadReady, EntityMods, UploadReady)
	if res.Error != nil {
		return 0, utils.WrapError(res.Error, utils.ErrInternalServerError.Code, "Failed to recompute mod sizes")
	}
	return res.RowsAffected, nil
}

// CountModsByStatus counts live mods per status.
func CountModsByStatus(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).Model(&Mod{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to count mods")
	}
	out := map[string]int64{ModStatusPending: 0, ModStatusApproved: 0, ModStatusRejected: 0}
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

func checkModSlug(ctx context.Context, db *gorm.DB, gameID uuid.UUID, slug string, except uuid.UUID) error {
	var n int64
	q := db.WithContext(ctx).Model(&Mod{}).Unscoped().Where("game_id = ? AND slug = ?", gameID, slug)
	if except != uuid.Nil {
		q = q.Where("id <> ?", except)
	}
	if err := q.Count(&n).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to check mod slug")
	}
	if n > 0 {
		return utils.NewError(utils.ErrConflict.Code, "Mod slug already used for this game")
	}
	return nil
}

func checkModCategory(ctx context.Context, db *gorm.DB, gameID uuid.UUID, categoryID *uuid.UUID) error {
	if categoryID == nil {
		return nil
	}
	c, err := GetCategory(ctx, db, *categoryID)
	if err != nil {
		if utils.IsNotFound(err) {
			return utils.NewError(utils.ErrBadRequest.Code, "Category not found")
		}
		return err
	}
	if c.GameID != gameID {
		return utils.NewError(utils.ErrBadRequest.Code, "Category does not belong to this game")
	}
	return nil
}
