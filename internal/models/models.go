package models

import (
	mods "github.com/AksharDP/modhub/internal/models/mods"
	user "github.com/AksharDP/modhub/internal/models/user"
)

// RegisterModels lists every table in migration order.
func RegisterModels() []interface{} {
	return []interface{}{
		&user.Permission{},
		&user.Role{},
		&user.User{},
		&mods.Game{},
		&mods.Category{},
		&mods.Mod{},
		&mods.ModStats{},
		&mods.ModLike{},
		&mods.File{},
		&mods.Image{},
		&mods.Collection{},
		&mods.CollectionMod{},
		&mods.SystemSettings{},
	}
}

// Shortcuts used by the command line tools.
var (
	NewUser     = user.NewUser
	SeedRoles   = user.SeedRoles
	GetSettings = mods.GetSettings
)
