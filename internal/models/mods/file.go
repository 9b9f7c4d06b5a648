package models

import (
	"context"
	"errors"
	"time"

	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Polymorphic owner types. The values match the owners' table names.
const (
	EntityMods  = "mods"
	EntityGames = "games"
	EntityUsers = "users"
)

const (
	UploadPending = "pending"
	UploadReady   = "ready"
)

type File struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EntityType  string    `gorm:"size:20;not null;index:idx_file_entity" json:"entity_type"`
	EntityID    uuid.UUID `gorm:"type:uuid;not null;index:idx_file_entity" json:"entity_id"`
	UploaderID  uuid.UUID `gorm:"type:uuid;not null;index" json:"uploader_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	StorageKey  string    `gorm:"size:512;not null;uniqueIndex" json:"-"`
	Size        int64     `gorm:"not null" json:"size"`
	ContentType string    `gorm:"size:255" json:"content_type"`
	Status      string    `gorm:"size:20;not null;index" json:"status"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (f *File) BeforeCreate(tx *gorm.DB) error {
	newID(&f.ID)
	if f.Status == "" {
		f.Status = UploadPending
	}
	return nil
}

type Image struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EntityType  string    `gorm:"size:20;not null;index:idx_image_entity" json:"entity_type"`
	EntityID    uuid.UUID `gorm:"type:uuid;not null;index:idx_image_entity" json:"entity_id"`
	UploaderID  uuid.UUID `gorm:"type:uuid;not null;index" json:"uploader_id"`
	StorageKey  string    `gorm:"size:512;not null;uniqueIndex" json:"-"`
	URL         string    `gorm:"size:1024" json:"url"`
	Size        int64     `gorm:"not null" json:"size"`
	ContentType string    `gorm:"size:255" json:"content_type"`
	Position    int       `gorm:"not null" json:"position"`
	IsPrimary   bool      `gorm:"not null" json:"is_primary"`
	Status      string    `gorm:"size:20;not null;index" json:"status"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i *Image) BeforeCreate(tx *gorm.DB) error {
	newID(&i.ID)
	if i.Status == "" {
		i.Status = UploadPending
	}
	return nil
}

func readyImages(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", UploadReady).Order("position ASC")
}

func primaryImage(db *gorm.DB) *gorm.DB {
	return db.Where("status = ? AND is_primary = ?", UploadReady, true)
}

// CountFiles counts the ready files of an entity plus the pending ones created since pendingSince.
// Older pending records are abandoned uploads waiting for the purge job.
func CountFiles(ctx context.Context, db *gorm.DB, entityType string, entityID uuid.UUID, pendingSince time.Time) (int64, error) {
	var n int64
	if err := countableUploads(db.WithContext(ctx).Model(&File{}), entityType, entityID, pendingSince).Count(&n).Error; err != nil {
		return 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to count files")
	}
	return n, nil
}

// CountImages is CountFiles for images.
func CountImages(ctx context.Context, db *gorm.DB, entityType string, entityID uuid.UUID, pendingSince time.Time) (int64, error) {
	var n int64
	if err := countableUploads(db.WithContext(ctx).Model(&Image{}), entityType, entityID, pendingSince).Count(&n).Error; err != nil {
		return 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to count images")
	}
	return n, nil
}

func countableUploads(q *gorm.DB, entityType string, entityID uuid.UUID, pendingSince time.Time) *gorm.DB {
	return q.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Where("status = ? OR (status = ? AND created_at >= ?)", UploadReady, UploadPending, pendingSince)
}

// CreatePendingFile records a file whose upload has been authorized but not confirmed.
func CreatePendingFile(ctx context.Context, db *gorm.DB, f *File) error {
	f.Status = UploadPending
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to create file record")
	}
	return nil
}

// CreatePendingImage records an image upload and places it after the entity's other images.
func CreatePendingImage(ctx context.Context, db *gorm.DB, img *Image) error {
	img.Status = UploadPending
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPos int
		if err := tx.Model(&Image{}).Where("entity_type = ? AND entity_id = ?", img.EntityType, img.EntityID).
			Select("COALESCE(MAX(position), 0)").Scan(&maxPos).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get image position")
		}
		img.Position = maxPos + 1
		if err := tx.Create(img).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to create image record")
		}
		return nil
	})
}

func GetFile(ctx context.Context, db *gorm.DB, id uuid.UUID) (*File, error) {
	var f File
	if err := db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.ErrNotFound.Code, "File not found")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get file")
	}
	return &f, nil
}

func GetImage(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Image, error) {
	var img Image
	if err := db.WithContext(ctx).Where("id = ?", id).First(&img).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Image not found")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get image")
	}
	return &img, nil
}

// GetReadyModFile returns the requested ready file of a mod, or its newest one when fileID is nil.
func GetReadyModFile(ctx context.Context, db *gorm.DB, modID uuid.UUID, fileID *uuid.UUID) (*File, error) {
	var f File
	q := db.WithContext(ctx).Where("entity_type = ? AND entity_id = ? AND status = ?", EntityMods, modID, UploadReady)
	if fileID != nil {
		q = q.Where("id = ?", *fileID)
	}
	if err := q.Order("created_at DESC").First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.ErrNotFound.Code, "No downloadable file")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get file")
	}
	return &f, nil
}

// FinalizeFile marks a confirmed upload ready. Mod files update the mod size in the same transaction.
func FinalizeFile(ctx context.Context, db *gorm.DB, f *File, size int64, contentType string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(f).Updates(map[string]interface{}{
			"status":       UploadReady,
			"size":         size,
			"content_type": contentType,
		}).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to finalize file")
		}
		f.Status, f.Size, f.ContentType = UploadReady, size, contentType
		if f.EntityType == EntityMods {
			return RecomputeModSize(tx, f.EntityID)
		}
		return nil
	})
}

// FinalizeImage marks a confirmed image ready. The first ready image of an entity becomes primary,
// and a primary user image becomes the avatar.
func FinalizeImage(ctx context.Context, db *gorm.DB, img *Image, size int64, contentType, url string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var primaries int64
		if err := tx.Model(&Image{}).
			Where("entity_type = ? AND entity_id = ? AND status = ? AND is_primary = ?", img.EntityType, img.EntityID, UploadReady, true).
			Count(&primaries).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to check primary image")
		}

		updates := map[string]interface{}{
			"status":       UploadReady,
			"size":         size,
			"content_type": contentType,
			"url":          url,
		}
		// a new avatar replaces the old one
		makePrimary := primaries == 0 || img.EntityType == EntityUsers
		if makePrimary {
			if err := tx.Model(&Image{}).
				Where("entity_type = ? AND entity_id = ? AND id <> ?", img.EntityType, img.EntityID, img.ID).
				Update("is_primary", false).Error; err != nil {
				return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to reset primary image")
			}
			updates["is_primary"] = true
		}
		if err := tx.Model(img).Updates(updates).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to finalize image")
		}
		img.Status, img.Size, img.ContentType, img.URL = UploadReady, size, contentType, url
		img.IsPrimary = img.IsPrimary || makePrimary
		if img.EntityType == EntityUsers {
			if err := tx.Table("users").Where("id = ?", img.EntityID).Update("avatar_url", url).Error; err != nil {
				return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to set avatar")
			}
		}
		return nil
	})
}

// DeleteFileRecord removes a file record and updates the owning mod's size.
func DeleteFileRecord(ctx context.Context, db *gorm.DB, f *File) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(f).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete file")
		}
		if f.EntityType == EntityMods && f.Status == UploadReady {
			return RecomputeModSize(tx, f.EntityID)
		}
		return nil
	})
}

// DeleteImageRecord removes an image record. When it was primary, the next ready image by position
// takes over, and for users the avatar follows.
func DeleteImageRecord(ctx context.Context, db *gorm.DB, img *Image) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(img).Error; err != nil {
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete image")
		}
		if !img.IsPrimary {
			return nil
		}

		avatar := ""
		var next Image
		err := tx.Where("entity_type = ? AND entity_id = ? AND status = ?", img.EntityType, img.EntityID, UploadReady).
			Order("position ASC").First(&next).Error
		switch {
		case err == nil:
			if err := tx.Model(&next).Update("is_primary", true).Error; err != nil {
				return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to promote image")
			}
			avatar = next.URL
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get images")
		}

		if img.EntityType == EntityUsers {
			if err := tx.Table("users").Where("id = ?", img.EntityID).Update("avatar_url", avatar).Error; err != nil {
				return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to reset avatar")
			}
		}
		return nil
	})
}

// StalePendingUploads lists uploads still pending that were created before cutoff.
func StalePendingUploads(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]File, []Image, error) {
	var files []File
	if err := db.WithContext(ctx).Where("status = ? AND created_at < ?", UploadPending, cutoff).
		Order("created_at ASC").Limit(limit).Find(&files).Error; err != nil {
		return nil, nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get stale files")
	}
	var images []Image
	if err := db.WithContext(ctx).Where("status = ? AND created_at < ?", UploadPending, cutoff).
		Order("created_at ASC").Limit(limit).Find(&images).Error; err != nil {
		return nil, nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get stale images")
	}
	return files, images, nil
}

// DeleteUploadRecords hard deletes file and image records by id.
func DeleteUploadRecords(ctx context.Context, db *gorm.DB, fileIDs, imageIDs []uuid.UUID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(fileIDs) > 0 {
			if err := tx.Where("id IN ?", fileIDs).Delete(&File{}).Error; err != nil {
				return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete files")
			}
		}
		if len(imageIDs) > 0 {
			if err := tx.Where("id IN ?", imageIDs).Delete(&Image{}).Error; err != nil {
				return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete images")
			}
		}
		return nil
	})
}

// StoredBytes sums the size of every ready file and image.
func StoredBytes(ctx context.Context, db *gorm.DB) (int64, error) {
	var files, images int64
	if err := db.WithContext(ctx).Model(&File{}).Where("status = ?", UploadReady).
		Select("COALESCE(SUM(size), 0)").Scan(&files).Error; err != nil {
		return 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to sum file sizes")
	}
	if err := db.WithContext(ctx).Model(&Image{}).Where("status = ?", UploadReady).
		Select("COALESCE(SUM(size), 0)").Scan(&images).Error; err != nil {
		return 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to sum image sizes")
	}
	return files + images, nil
}
