package models

import (
	"context"
	"time"

	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ModStats struct {
	ModID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	Downloads int64     `gorm:"not null;default:0" json:"downloads"`
	Views     int64     `gorm:"not null;default:0" json:"views"`
	Likes     int64     `gorm:"not null;default:0" json:"likes"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type ModLike struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	ModID     uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"mod_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// IncrementDownloads adds one download to the mod's counter.
func IncrementDownloads(ctx context.Context, db *gorm.DB, modID uuid.UUID) error {
	return incrementStat(ctx, db, modID, "downloads")
}

// IncrementViews adds one view to the mod's counter.
func IncrementViews(ctx context.Context, db *gorm.DB, modID uuid.UUID) error {
	return incrementStat(ctx, db, modID, "views")
}

func incrementStat(ctx context.Context, db *gorm.DB, modID uuid.UUID, column string) error {
	err := db.WithContext(ctx).Model(&ModStats{}).Where("mod_id = ?", modID).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
	if err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update mod "+column)
	}
	return nil
}

// LikeMod records a like. Liking twice is a no-op. It returns the current like count.
func LikeMod(ctx context.Context, db *gorm.DB, userID, modID uuid.UUID) (int64, error) {
	var likes int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ModLike{UserID: userID, ModID: modID})
		if res.Error != nil {
			return utils.WrapError(res.Error, utils.ErrInternalServerError.Code, "Failed to like mod")
		}
		if res.RowsAffected == 1 {
			if err := tx.Model(&ModStats{}).Where("mod_id = ?", modID).
				UpdateColumn("likes", gorm.Expr("likes + 1")).Error; err != nil {
				return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update likes")
			}
		}
		return currentLikes(tx, modID, &likes)
	})
	return likes, err
}

// UnlikeMod removes a like. Removing a missing like is a no-op. It returns the current like count.
func UnlikeMod(ctx context.Context, db *gorm.DB, userID, modID uuid.UUID) (int64, error) {
	var likes int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND mod_id = ?", userID, modID).Delete(&ModLike{})
		if res.Error != nil {
			return utils.WrapError(res.Error, utils.ErrInternalServerError.Code, "Failed to unlike mod")
		}
		if res.RowsAffected == 1 {
			if err := tx.Model(&ModStats{}).Where("mod_id = ? AND likes > 0", modID).
				UpdateColumn("likes", gorm.Expr("likes - 1")).Error; err != nil {
				return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update likes")
			}
		}
		return currentLikes(tx, modID, &likes)
	})
	return likes, err
}

// HasLiked reports whether the user likes the mod.
func HasLiked(ctx context.Context, db *gorm.DB, userID, modID uuid.UUID) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&ModLike{}).Where("user_id = ? AND mod_id = ?", userID, modID).Count(&n).Error; err != nil {
		return false, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to check like")
	}
	return n > 0, nil
}

// TotalDownloads sums downloads over live mods.
func TotalDownloads(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&ModStats{}).
		Joins("JOIN mods ON mods.id = mod_stats.mod_id AND mods.deleted_at IS NULL").
		Select("COALESCE(SUM(mod_stats.downloads), 0)").Scan(&total).Error
	if err != nil {
		return 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to sum downloads")
	}
	return total, nil
}

func currentLikes(tx *gorm.DB, modID uuid.UUID, likes *int64) error {
	if err := tx.Model(&ModStats{}).Where("mod_id = ?", modID).Select("likes").Scan(likes).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to read likes")
	}
	return nil
}
