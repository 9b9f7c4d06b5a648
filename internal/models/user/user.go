package models

import (
	"context"
	"errors"
	"strings"
	"time"

	storage "github.com/AksharDP/modhub/pkg/redis"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const userCacheTTL = 10 * time.Minute

type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Username        string     `gorm:"size:50;not null;uniqueIndex" json:"username"`
	Email           string     `gorm:"size:100;not null;uniqueIndex" json:"-"`
	Password        string     `gorm:"size:255;not null" json:"-"`
	IsActive        bool       `gorm:"not null;default:false" json:"is_active"`
	IsEmailVerified bool       `gorm:"not null;default:false" json:"is_email_verified"`
	IsBanned        bool       `gorm:"not null;default:false" json:"is_banned"`
	BanReason       string     `gorm:"size:255" json:"ban_reason,omitempty"`
	RoleID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"role_id"`
	Role            *Role      `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	LastSeen        *time.Time `json:"last_seen,omitempty"`

	Profile struct {
		DisplayName string `gorm:"size:100" json:"display_name"`
		Bio         string `gorm:"size:1000" json:"bio"`
		AvatarURL   string `gorm:"size:1024" json:"avatar_url"`
	} `gorm:"embedded" json:"profile"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// UserKey is the Redis key of the cached user.
func UserKey(id uuid.UUID) string {
	return "user:" + id.String()
}

// UserOption configures a User.
type UserOption func(*User)

// NewUser creates a user with the given role, "user" when roleName is empty.
func NewUser(ctx context.Context, db *gorm.DB, username, email, passwordHash, roleName string, opts ...UserOption) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "user creation canceled")
	}
	if roleName == "" {
		roleName = RoleUser
	}

	role, err := GetRoleByName(ctx, db, roleName)
	if err != nil {
		return nil, err
	}

	var existing int64
	if err := db.WithContext(ctx).Model(&User{}).Unscoped().
		Where("LOWER(username) = ? OR LOWER(email) = ?", strings.ToLower(username), strings.ToLower(email)).
		Count(&existing).Error; err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to check existing user")
	}
	if existing > 0 {
		return nil, utils.NewError(utils.ErrConflict.Code, "Username or email already taken")
	}

	u := &User{
		Username: username,
		Email:    strings.ToLower(email),
		Password: passwordHash,
		RoleID:   role.ID,
	}
	for _, opt := range opts {
		opt(u)
	}

	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, utils.NewError(utils.ErrConflict.Code, "Username or email already taken")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to create user in database")
	}
	u.Role = role

	return u, nil
}

// GetUserBy retrieves a single user from the database, with optional preloading.
func GetUserBy(ctx context.Context, db *gorm.DB, condition string, args []interface{}, preload ...string) (*User, error) {
	var u User
	query := db.WithContext(ctx).Where(condition, args...)
	for _, p := range preload {
		if p != "" {
			query = query.Preload(p)
		}
	}
	if err := query.First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.ErrNotFound.Code, "User not found")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get user")
	}
	return &u, nil
}

// GetCachedUser loads a user with role and permissions, read-through Redis.
// The cached copy carries no password or email; never save it back.
func GetCachedUser(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID) (*User, error) {
	key := UserKey(id)
	var cached User
	if found, err := rclient.GetJSON(ctx, key, &cached); err == nil && found {
		return &cached, nil
	}

	u, err := GetUserBy(ctx, db, "id = ?", []interface{}{id}, "Role.Permissions")
	if err != nil {
		return nil, err
	}
	_ = rclient.SetJSON(ctx, key, u, userCacheTTL)
	return u, nil
}

// InvalidateUser drops the cached copy of a user.
func InvalidateUser(ctx context.Context, rclient *storage.RedisClient, id uuid.UUID) {
	_ = rclient.Invalidate(ctx, UserKey(id))
}

// UserFilter narrows ListUsers.
type UserFilter struct {
	Query  string
	Banned *bool
}

// ListUsers returns a page of users ordered by creation date.
func ListUsers(ctx context.Context, db *gorm.DB, filter UserFilter, p utils.Pagination) ([]User, int64, error) {
	query := db.WithContext(ctx).Model(&User{})
	if filter.Query != "" {
		like := "%" + strings.ToLower(filter.Query) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	if filter.Banned != nil {
		query = query.Where("is_banned = ?", *filter.Banned)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to count users")
	}

	var users []User
	if err := query.Preload("Role").Order("created_at DESC").Offset(p.Offset()).Limit(p.Limit).Find(&users).Error; err != nil {
		return nil, 0, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get users")
	}
	return users, total, nil
}

// UpdateUser applies column updates and refreshes the cache.
func UpdateUser(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID, updates map[string]interface{}) (*User, error) {
	if len(updates) > 0 {
		res := db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, utils.WrapError(res.Error, utils.ErrInternalServerError.Code, "Failed to update user")
		}
		if res.RowsAffected == 0 {
			return nil, utils.NewError(utils.ErrNotFound.Code, "User not found")
		}
	}
	InvalidateUser(ctx, rclient, id)

	return GetUserBy(ctx, db, "id = ?", []interface{}{id}, "Role.Permissions")
}

// ActivateUser marks a user active with a verified email.
func ActivateUser(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID) (*User, error) {
	return UpdateUser(ctx, rclient, db, id, map[string]interface{}{
		"is_active":         true,
		"is_email_verified": true,
	})
}

// SetBanned bans or unbans a user.
func SetBanned(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID, banned bool, reason string) (*User, error) {
	if !banned {
		reason = ""
	}
	return UpdateUser(ctx, rclient, db, id, map[string]interface{}{
		"is_banned":  banned,
		"ban_reason": reason,
	})
}

// SetRole moves a user to the named role.
func SetRole(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID, roleName string) (*User, error) {
	role, err := GetRoleByName(ctx, db, roleName)
	if err != nil {
		return nil, err
	}
	return UpdateUser(ctx, rclient, db, id, map[string]interface{}{"role_id": role.ID})
}

// UpdateLastSeen refreshes the user's last seen timestamp without touching the cache.
func UpdateLastSeen(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	if err := db.WithContext(ctx).Model(&User{}).Where("id = ?", id).UpdateColumn("last_seen", time.Now()).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update last seen")
	}
	return nil
}

// HasPermission checks the preloaded role for a permission.
func (u *User) HasPermission(permission string) bool {
	if u == nil || u.Role == nil {
		return false
	}
	for _, p := range u.Role.Permissions {
		if p.Name == permission {
			return true
		}
	}
	return false
}

// PermissionNames lists the permissions of the preloaded role.
func (u *User) PermissionNames() []string {
	if u == nil || u.Role == nil {
		return []string{}
	}
	return u.Role.PermissionNames()
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role != nil && u.Role.Name == RoleAdmin
}
