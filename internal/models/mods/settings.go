package models

import (
	"context"
	"strings"
	"time"

	"github.com/AksharDP/modhub/pkg/utils"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

const (
	settingsID       = 1
	settingsCacheKey = "system_settings"
	MB               = 1024 * 1024
)

// SystemSettings is the single row of site-wide switches and upload limits.
type SystemSettings struct {
	ID                    uint      `gorm:"primaryKey" json:"-"`
	AllowRegistration     bool      `gorm:"not null" json:"allow_registration"`
	RequireModApproval    bool      `gorm:"not null" json:"require_mod_approval"`
	MaintenanceMode       bool      `gorm:"not null" json:"maintenance_mode"`
	MaxFileSizeMB         int64     `gorm:"not null" json:"max_file_size_mb" validate:"gte=1,lte=102400"`
	MaxImageSizeMB        int64     `gorm:"not null" json:"max_image_size_mb" validate:"gte=1,lte=1024"`
	MaxFilesPerMod        int       `gorm:"not null" json:"max_files_per_mod" validate:"gte=1,lte=1000"`
	MaxImagesPerMod       int       `gorm:"not null" json:"max_images_per_mod" validate:"gte=1,lte=1000"`
	AllowedFileExtensions string    `gorm:"size:1000;not null" json:"allowed_file_extensions" validate:"required"`
	AllowedImageTypes     string    `gorm:"size:1000;not null" json:"allowed_image_types" validate:"required"`
	UploadURLTTLMinutes   int       `gorm:"not null" json:"upload_url_ttl_minutes" validate:"gte=1,lte=1440"`
	DownloadURLTTLMinutes int       `gorm:"not null" json:"download_url_ttl_minutes" validate:"gte=1,lte=1440"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultSettings is what a fresh installation starts with.
func DefaultSettings() SystemSettings {
	return SystemSettings{
		ID:                    settingsID,
		AllowRegistration:     true,
		RequireModApproval:    true,
		MaintenanceMode:       false,
		MaxFileSizeMB:         500,
		MaxImageSizeMB:        10,
		MaxFilesPerMod:        20,
		MaxImagesPerMod:       20,
		AllowedFileExtensions: "zip,7z,rar,tar,gz,jar,pak,esp,esm,esl,ba2,bsa,dll,lua,json,txt",
		AllowedImageTypes:     "image/png,image/jpeg,image/webp,image/gif",
		UploadURLTTLMinutes:   15,
		DownloadURLTTLMinutes: 5,
	}
}

func (s SystemSettings) MaxFileBytes() int64  { return s.MaxFileSizeMB * MB }
func (s SystemSettings) MaxImageBytes() int64 { return s.MaxImageSizeMB * MB }

func (s SystemSettings) UploadTTL() time.Duration {
	return time.Duration(s.UploadURLTTLMinutes) * time.Minute
}

func (s SystemSettings) DownloadTTL() time.Duration {
	return time.Duration(s.DownloadURLTTLMinutes) * time.Minute
}

// FileExtensionAllowed matches ext (with or without the dot) against the allow list.
func (s SystemSettings) FileExtensionAllowed(ext string) bool {
	list := utils.SplitList(strings.TrimPrefix(ext, "."))
	return len(list) > 0 && utils.Contains(utils.SplitList(s.AllowedFileExtensions), list[0])
}

// ImageTypeAllowed matches a MIME type against the allow list.
func (s SystemSettings) ImageTypeAllowed(contentType string) bool {
	list := utils.SplitList(contentType)
	return len(list) > 0 && utils.Contains(utils.SplitList(s.AllowedImageTypes), list[0])
}

// GetSettings returns the settings row, creating it with defaults on first use.
// The result is cached in-process.
func GetSettings(ctx context.Context, db *gorm.DB, cache *gocache.Cache) (SystemSettings, error) {
	if cache != nil {
		if v, ok := cache.Get(settingsCacheKey); ok {
			return v.(SystemSettings), nil
		}
	}

	s := DefaultSettings()
	if err := db.WithContext(ctx).Where(SystemSettings{ID: settingsID}).FirstOrCreate(&s).Error; err != nil {
		return SystemSettings{}, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to load settings")
	}

	if cache != nil {
		cache.SetDefault(settingsCacheKey, s)
	}
	return s, nil
}

// UpdateSettings overwrites every setting and drops the cached copy.
func UpdateSettings(ctx context.Context, db *gorm.DB, cache *gocache.Cache, s SystemSettings) (SystemSettings, error) {
	if _, err := GetSettings(ctx, db, nil); err != nil {
		return SystemSettings{}, err
	}

	s.ID = settingsID
	if err := db.WithContext(ctx).Model(&SystemSettings{ID: settingsID}).Select("*").Omit("id").Updates(&s).Error; err != nil {
		return SystemSettings{}, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update settings")
	}
	if cache != nil {
		cache.Delete(settingsCacheKey)
	}
	return GetSettings(ctx, db, cache)
}
