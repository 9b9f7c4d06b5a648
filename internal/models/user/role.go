package models

import (
	"context"
	"errors"
	"time"

	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string       `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// PermissionNames extracts permission names into a []string
func (r *Role) PermissionNames() []string {
	perms := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, p.Name)
	}
	return perms
}

// RolePermissions is the permission set granted to each seeded role.
var RolePermissions = map[string][]string{
	RoleUser: {
		PermUploadMod, PermEditOwnMod, PermDeleteOwnMod, PermCreateCollection,
	},
	RoleModerator: {
		PermUploadMod, PermEditOwnMod, PermDeleteOwnMod, PermCreateCollection,
		PermModerateMod, PermManageUsers,
	},
	RoleAdmin: {
		PermUploadMod, PermEditOwnMod, PermDeleteOwnMod, PermCreateCollection,
		PermModerateMod, PermManageUsers, PermManageGames, PermAssignRoles, PermSiteSettings,
	},
}

// GetRoleByName loads a role with its permissions.
func GetRoleByName(ctx context.Context, db *gorm.DB, name string) (*Role, error) {
	var role Role
	if err := db.WithContext(ctx).Preload("Permissions").Where("name = ?", name).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Role not found", name)
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get role")
	}
	return &role, nil
}

// ListRoles returns every role with its permissions.
func ListRoles(ctx context.Context, db *gorm.DB) ([]Role, error) {
	var roles []Role
	if err := db.WithContext(ctx).Preload("Permissions").Order("name ASC").Find(&roles).Error; err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get roles")
	}
	return roles, nil
}

// SeedRoles initializes default roles and permissions. Running it again only adds what is missing.
func SeedRoles(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range []string{RoleUser, RoleModerator, RoleAdmin} {
			var role Role
			if err := tx.Where(Role{Name: name}).FirstOrCreate(&role).Error; err != nil {
				return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to seed role: "+name)
			}

			perms := make([]Permission, 0, len(RolePermissions[name]))
			for _, permName := range RolePermissions[name] {
				var perm Permission
				if err := tx.Where(Permission{Name: permName}).FirstOrCreate(&perm).Error; err != nil {
					return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to seed permission: "+permName)
				}
				perms = append(perms, perm)
			}
			if err := tx.Model(&role).Association("Permissions").Replace(perms); err != nil {
				return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to link permissions to "+name)
			}
		}
		return nil
	})
}
