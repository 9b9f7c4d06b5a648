package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PermUploadMod        = "upload_mod"
	PermEditOwnMod       = "edit_own_mod"
	PermDeleteOwnMod     = "delete_own_mod"
	PermModerateMod      = "moderate_mod"
	PermManageGames      = "manage_games"
	PermManageUsers      = "manage_users"
	PermAssignRoles      = "assign_roles"
	PermSiteSettings     = "site_settings"
	PermCreateCollection = "create_collection"
)

type Permission struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:50;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Permission) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
