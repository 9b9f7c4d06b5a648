package models

import (
	"context"
	"errors"
	"strings"
	"time"

	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Collection struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Name        string         `gorm:"size:100;not null" json:"name"`
	Slug        string         `gorm:"size:120;not null" json:"slug"`
	Description string         `gorm:"size:1000" json:"description"`
	IsPrivate   bool           `gorm:"not null;index" json:"is_private"`
	ModCount    int64          `gorm:"->;-:migration" json:"mod_count"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	User *user.User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (c *Collection) BeforeCreate(tx *gorm.DB) error {
	newID(&c.ID)
	return nil
}

// CollectionMod places a mod in a collection. Positions are dense, starting at 1.
type CollectionMod struct {
	CollectionID uuid.UUID `gorm:"type:uuid;primaryKey" json:"collection_id"`
	ModID        uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"mod_id"`
	Position     int       `gorm:"not null;index" json:"position"`
	AddedAt      time.Time `gorm:"autoCreateTime" json:"added_at"`

	Mod *Mod `gorm:"foreignKey:ModID" json:"mod,omitempty"`
}

// CollectionFilter narrows ListCollections. IncludePrivate is the owner's view: private
// collections are listed and mod_count covers every live mod, not only public ones.
type CollectionFilter struct {
	Query          string
	UserID         *uuid.UUID
	IncludePrivate bool
}

// ListCollections returns a page of collections with their mod counts.
func ListCollections(ctx context.Context, db *gorm.DB, f CollectionFilter, p utils.Pagination) ([]Collection, int64, error) {
	q := db.WithContext(ctx).Model(&Collection{})
	if !f.IncludePrivate {
		q = q.Where("collections.is_private = ?", false)
	}
	if f.UserID != nil {
		q = q.Where("collections.user_id = ?", *f.UserID)
	}
	if f.Query != "" {
		q = q.Where("LOWER(collections.name) LIKE ?", "%"+strings.ToLower(f.Query)+"%")
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to count collections")
	}

	collections := []Collection{}
	err := withModCount(q.Session(&gorm.Session{}), f.IncludePrivate).
		Order("collections.updated_at DESC").Order("collections.id ASC").
		Offset(p.Offset()).Limit(p.Limit).
		Preload("User").
		Find(&collections).Error
	if err != nil {
		return nil, 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get collections")
	}
	return collections, total, nil
}

// GetCollection loads a collection with its owner and mod count. The count follows
// ListCollectionMods for the same includeUnapproved.
func GetCollection(ctx context.Context, db *gorm.DB, id uuid.UUID, includeUnapproved bool) (*Collection, error) {
	var c Collection
	err := withModCount(db.WithContext(ctx).Model(&Collection{}), includeUnapproved).
		Where("collections.id = ?", id).
		Preload("User").
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Collection not found")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get collection")
	}
	return &c, nil
}

// withModCount selects mod_count alongside the collections. Without includeUnapproved only the
// approved mods of visible games are counted.
func withModCount(q *gorm.DB, includeUnapproved bool) *gorm.DB {
	q = q.Joins("LEFT JOIN collection_mods ON collection_mods.collection_id = collections.id")
	if includeUnapproved {
		q = q.Joins("LEFT JOIN mods ON mods.id = collection_mods.mod_id AND mods.deleted_at IS NULL")
	} else {
		q = q.Joins("LEFT JOIN mods ON mods.id = collection_mods.mod_id AND mods.deleted_at IS NULL"+
			" AND mods.status = ? AND mods.game_id IN ("+visibleGameIDs+")", ModStatusApproved, true)
	}
	return q.Select("collections.*, COUNT(mods.id) AS mod_count").Group("collections.id")
}

// VisibleTo reports whether u may see the collection.
func (c *Collection) VisibleTo(u *user.User) bool {
	return !c.IsPrivate || (u != nil && u.ID == c.UserID)
}

// CreateCollection inserts a collection, deriving the slug from the name.
func CreateCollection(ctx context.Context, db *gorm.DB, c *Collection) error {
	c.Slug = MakeSlug(c.Name)
	if err := db.WithContext(ctx).Omit("User").Create(c).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to create collection")
	}
	return nil
}

// CollectionUpdate holds the optional fields of a collection edit.
type CollectionUpdate struct {
	Name        *string
	Description *string
	IsPrivate   *bool
}

func UpdateCollection(ctx context.Context, db *gorm.DB, id uuid.UUID, in CollectionUpdate) (*Collection, error) {
	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
		updates["slug"] = MakeSlug(*in.Name)
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.IsPrivate != nil {
		updates["is_private"] = *in.IsPrivate
	}
	if len(updates) > 0 {
		if err := db.WithContext(ctx).Model(&Collection{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update collection")
		}
	}
	return GetCollection(ctx, db, id, true)
}

// DeleteCollection soft-deletes a collection and drops its entries.
func DeleteCollection(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection_id = ?", id).Delete(&CollectionMod{}).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete collection entries")
		}
		if err := tx.Where("id = ?", id).Delete(&Collection{}).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete collection")
		}
		return nil
	})
}

// ListCollectionMods returns a page of a collection's entries in position order.
// Unless includeUnapproved is set only approved mods of visible games are listed.
func ListCollectionMods(ctx context.Context, db *gorm.DB, collectionID uuid.UUID, includeUnapproved bool, p utils.Pagination) ([]CollectionMod, int64, error) {
	q := db.WithContext(ctx).Model(&CollectionMod{}).
		Joins("JOIN mods ON mods.id = collection_mods.mod_id AND mods.deleted_at IS NULL").
		Where("collection_mods.collection_id = ?", collectionID)
	if !includeUnapproved {
		q = q.Where("mods.status = ? AND mods.game_id IN ("+visibleGameIDs+")", ModStatusApproved, true)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to count collection mods")
	}

	entries := []CollectionMod{}
	err := q.Session(&gorm.Session{}).
		Select("collection_mods.*").
		Order("collection_mods.position ASC").
		Offset(p.Offset()).Limit(p.Limit).
		Preload("Mod").Preload("Mod.Stats").Preload("Mod.Game").Preload("Mod.Author").
		Preload("Mod.Images", primaryImage).
		Find(&entries).Error
	if err != nil {
		return nil, 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get collection mods")
	}
	return entries, total, nil
}

// AddModToCollection appends a mod at the end of a collection.
func AddModToCollection(ctx context.Context, db *gorm.DB, collectionID, modID uuid.UUID) (*CollectionMod, error) {
	entry := &CollectionMod{CollectionID: collectionID, ModID: modID}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&CollectionMod{}).Where("collection_id = ? AND mod_id = ?", collectionID, modID).Count(&n).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to check collection")
		}
		if n > 0 {
			return utils.NewError(utils.ErrConflict.Code, "Mod already in collection")
		}

		var maxPos int
		if err := tx.Model(&CollectionMod{}).Where("collection_id = ?", collectionID).
			Select("COALESCE(MAX(position), 0)").Scan(&maxPos).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get position")
		}
		entry.Position = maxPos + 1

		if err := tx.Omit("Mod").Create(entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return utils.NewError(utils.ErrConflict.Code, "Mod already in collection")
			}
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to add mod")
		}
		return touchCollection(tx, collectionID)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RemoveModFromCollection deletes an entry and closes the gap it leaves.
func RemoveModFromCollection(ctx context.Context, db *gorm.DB, collectionID, modID uuid.UUID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry CollectionMod
		if err := tx.Where("collection_id = ? AND mod_id = ?", collectionID, modID).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewError(utils.ErrNotFound.Code, "Mod not in collection")
			}
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get collection entry")
		}
		if err := deleteEntry(tx, entry); err != nil {
			return err
		}
		return touchCollection(tx, collectionID)
	})
}

// ReorderCollection rewrites positions to follow modIDs, which must be a permutation of the current members.
func ReorderCollection(ctx context.Context, db *gorm.DB, collectionID uuid.UUID, modIDs []uuid.UUID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []uuid.UUID
		if err := tx.Model(&CollectionMod{}).Where("collection_id = ?", collectionID).Pluck("mod_id", &current).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get collection entries")
		}
		if !isPermutation(current, modIDs) {
			return utils.NewError(utils.ErrBadRequest.Code, "mod_ids must list every mod of the collection exactly once")
		}
		for i, id := range modIDs {
			if err := tx.Model(&CollectionMod{}).
				Where("collection_id = ? AND mod_id = ?", collectionID, id).
				UpdateColumn("position", i+1).Error; err != nil {
				return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to reorder collection")
			}
		}
		return touchCollection(tx, collectionID)
	})
}

// removeModFromCollections drops a mod from every collection, compacting each.
func removeModFromCollections(tx *gorm.DB, modID uuid.UUID) error {
	var entries []CollectionMod
	if err := tx.Where("mod_id = ?", modID).Find(&entries).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get collection entries")
	}
	for _, e := range entries {
		if err := deleteEntry(tx, e); err != nil {
			return err
		}
	}
	return nil
}

func deleteEntry(tx *gorm.DB, entry CollectionMod) error {
	if err := tx.Where("collection_id = ? AND mod_id = ?", entry.CollectionID, entry.ModID).Delete(&CollectionMod{}).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to remove mod")
	}
	if err := tx.Model(&CollectionMod{}).
		Where("collection_id = ? AND position > ?", entry.CollectionID, entry.Position).
		UpdateColumn("position", gorm.Expr("position - 1")).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to compact positions")
	}
	return nil
}

func touchCollection(tx *gorm.DB, id uuid.UUID) error {
	if err := tx.Model(&Collection{}).Where("id = ?", id).UpdateColumn("updated_at", time.Now()).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update collection")
	}
	return nil
}

func isPermutation(current, proposed []uuid.UUID) bool {
	if len(current) != len(proposed) {
		return false
	}
	seen := make(map[uuid.UUID]bool, len(current))
	for _, id := range current {
		seen[id] = false
	}
	for _, id := range proposed {
		used, ok := seen[id]
		if !ok || used {
			return false
		}
		seen[id] = true
	}
	return true
}
