package v1

import (
	"strconv"
	"strings"
	"time"

	"github.com/AksharDP/modhub/internal/auth"
	mods "github.com/AksharDP/modhub/internal/models/mods"
	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const activationTTL = 24 * time.Hour

func activationKey(token string) string {
	return "otp:" + token
}

type activation struct {
	UserID  string `json:"user_id"`
	OTPHash string `json:"otp_hash"`
}

// accountView is the private representation of a user, shown to the user and to admins.
type accountView struct {
	ID              uuid.UUID  `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	IsActive        bool       `json:"is_active"`
	IsEmailVerified bool       `json:"is_email_verified"`
	IsBanned        bool       `json:"is_banned"`
	BanReason       string     `json:"ban_reason,omitempty"`
	Role            string     `json:"role"`
	Permissions     []string   `json:"permissions"`
	DisplayName     string     `json:"display_name"`
	Bio             string     `json:"bio"`
	AvatarURL       string     `json:"avatar_url"`
	LastSeen        *time.Time `json:"last_seen,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func newAccountView(u *user.User) accountView {
	v := accountView{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		IsBanned:        u.IsBanned,
		BanReason:       u.BanReason,
		Permissions:     u.PermissionNames(),
		DisplayName:     u.Profile.DisplayName,
		Bio:             u.Profile.Bio,
		AvatarURL:       u.Profile.AvatarURL,
		LastSeen:        u.LastSeen,
		CreatedAt:       u.CreatedAt,
	}
	if u.Role != nil {
		v.Role = u.Role.Name
	}
	return v
}

// Register creates an inactive account and emails its activation code.
func Register(c *fiber.Ctx) error {
	ctx := c.UserContext()
	type RegisterInput struct {
		Username        string `json:"username" validate:"required,min=3,max=50,username"`
		Email           string `json:"email" validate:"required,email,max=100"`
		Password        string `json:"password" validate:"required,min=8,max=72,eqfield=ConfirmPassword"`
		ConfirmPassword string `json:"confirm_password" validate:"required"`
		DisplayName     string `json:"display_name" validate:"omitempty,max=100"`
	}

	settings, err := siteSettings(ctx)
	if err != nil {
		return fail(c, err)
	}
	if !settings.AllowRegistration {
		return fail(c, utils.NewError(fiber.StatusForbidden, "Registration is disabled"))
	}

	var in RegisterInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	hashed, err := utils.HashPassword(in.Password)
	if err != nil {
		return fail(c, utils.WrapError(err, fiber.StatusInternalServerError, "Failed to process password"))
	}

	u, err := user.NewUser(ctx, DB, in.Username, in.Email, hashed, user.RoleUser, user.WithDisplayName(in.DisplayName))
	if err != nil {
		return fail(c, err)
	}

	otp, err := utils.GenerateOTP()
	if err != nil {
		return fail(c, utils.WrapError(err, fiber.StatusInternalServerError, "Failed to generate activation code"))
	}
	token, err := utils.GenerateRandomToken(32)
	if err != nil {
		return fail(c, utils.WrapError(err, fiber.StatusInternalServerError, "Failed to generate activation token"))
	}
	otpHash, err := utils.HashPassword(strconv.FormatInt(otp, 10))
	if err != nil {
		return fail(c, utils.WrapError(err, fiber.StatusInternalServerError, "Failed to generate activation code"))
	}
	if err := Redis.SetJSON(ctx, activationKey(token), activation{UserID: u.ID.String(), OTPHash: otpHash}, activationTTL); err != nil {
		return fail(c, utils.WrapError(err, fiber.StatusInternalServerError, "Failed to store activation code"))
	}

	if err := utils.SendActivationEmail(ctx, EmailCfg, u.Email, u.Username, token, otp, Logger); err != nil {
		Logger.Warn(ctx).WithFields("error", err, "user_id", u.ID).Logs("Activation email failed, user created")
	}

	Logger.Info(ctx).WithFields("user_id", u.ID).Logs("User registered: " + u.Username)
	return utils.Success(c).
		WithStatus(fiber.StatusCreated).
		WithMessage("Registration successful. Check your email to activate your account.").
		WithData(fiber.Map{"id": u.ID, "username": u.Username, "email": u.Email}).
		Send()
}

// ActivateUser checks the emailed code for the activation token and activates the account.
func ActivateUser(c *fiber.Ctx) error {
	ctx := c.UserContext()
	type ActivateInput struct {
		OTP int64 `json:"otp" validate:"required,gte=0,lte=99999999"`
	}

	token := c.Query("token")
	if token == "" {
		return fail(c, utils.NewError(fiber.StatusBadRequest, "Missing activation token"))
	}
	var in ActivateInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}

	var data activation
	found, err := Redis.GetJSON(ctx, activationKey(token), &data)
	if err != nil {
		return fail(c, utils.WrapError(err, fiber.StatusInternalServerError, "Failed to read activation code"))
	}
	if !found {
		return fail(c, utils.NewError(fiber.StatusBadRequest, "Invalid or expired activation code"))
	}
	if err := utils.ComparePasswords(data.OTPHash, strconv.FormatInt(in.OTP, 10)); err != nil {
		return fail(c, utils.NewError(fiber.StatusBadRequest, "Invalid or expired activation code"))
	}

	id, err := uuid.Parse(data.UserID)
	if err != nil {
		return fail(c, utils.NewError(fiber.StatusBadRequest, "Invalid or expired activation code"))
	}
	u, err := user.ActivateUser(ctx, Redis, DB, id)
	if err != nil {
		return fail(c, err)
	}
	Redis.Del(ctx, activationKey(token))

	Logger.Info(ctx).WithFields("user_id", u.ID).Logs("User activated")
	return utils.Success(c).
		WithMessage("Account activated. You can log in now.").
		WithData(newAccountView(u)).
		Send()
}

// Login checks the credentials and starts a session.
func Login(c *fiber.Ctx) error {
	ctx := c.UserContext()
	type LoginInput struct {
		Email    string `json:"email" validate:"required,email,max=100"`
		Password string `json:"password" validate:"required,max=72"`
	}

	ok, err := auth.AllowLogin(ctx, Redis, c.IP())
	if err != nil {
		return fail(c, utils.WrapError(err, fiber.StatusInternalServerError, "Failed to check login attempts"))
	}
	if !ok {
		return fail(c, utils.NewError(fiber.StatusTooManyRequests, "Too many login attempts. Try again later."))
	}

	var in LoginInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}

	u, err := user.GetUserBy(ctx, DB, "email = ?", []interface{}{strings.ToLower(strings.TrimSpace(in.Email))}, "Role.Permissions")
	if err != nil {
		if utils.IsNotFound(err) {
			return fail(c, utils.NewError(fiber.StatusUnauthorized, "Invalid email or password"))
		}
		return fail(c, err)
	}
	if err := utils.ComparePasswords(u.Password, in.Password); err != nil {
		return fail(c, utils.NewError(fiber.StatusUnauthorized, "Invalid email or password"))
	}
	if u.IsBanned {
		return fail(c, utils.NewError(fiber.StatusForbidden, "Account is banned", u.BanReason))
	}
	if !u.IsActive {
		return fail(c, utils.NewError(fiber.StatusForbidden, "Account not activated. Check your email."))
	}

	token, err := auth.IssueTokens(c, AuthOpt, u)
	if err != nil {
		return fail(c, utils.WrapError(err, fiber.StatusInternalServerError, "Failed to start session"))
	}
	auth.ResetLogin(ctx, Redis, c.IP())
	if err := user.UpdateLastSeen(ctx, DB, u.ID); err != nil {
		Logger.Warn(ctx).WithFields("error", err, "user_id", u.ID).Logs("Failed to update last seen")
	}

	Logger.Info(ctx).WithFields("user_id", u.ID).Logs("User logged in")
	return utils.Success(c).
		WithMessage("Login successful").
		WithData(fiber.Map{"access_token": token, "user": newAccountView(u)}).
		Send()
}

// Logout revokes the session tokens.
func Logout(c *fiber.Ctx) error {
	auth.RevokeTokens(c, AuthOpt)
	c.Set(fiber.HeaderCacheControl, "no-store, no-cache, must-revalidate, private")
	c.Set("Pragma", "no-cache")
	Logger.Info(c.UserContext()).Logs("User logged out")
	return utils.Success(c).WithMessage("Logout successful").Send()
}

// GetMe returns the caller's account.
func GetMe(c *fiber.Ctx) error {
	u, err := user.GetUserBy(c.UserContext(), DB, "id = ?", []interface{}{currentUser(c).ID}, "Role.Permissions")
	if err != nil {
		return fail(c, err)
	}
	return utils.SendSuccess(c, newAccountView(u))
}

// UpdateMe edits the caller's profile.
func UpdateMe(c *fiber.Ctx) error {
	type ProfileInput struct {
		DisplayName *string `json:"display_name" validate:"omitempty,max=100"`
		Bio         *string `json:"bio" validate:"omitempty,max=1000"`
	}
	var in ProfileInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}

	updates := map[string]interface{}{}
	if in.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*in.DisplayName)
	}
	if in.Bio != nil {
		updates["bio"] = *in.Bio
	}
	u, err := user.UpdateUser(c.UserContext(), Redis, DB, currentUser(c).ID, updates)
	if err != nil {
		return fail(c, err)
	}
	u.Role = currentUser(c).Role
	return utils.SendSuccess(c, newAccountView(u))
}

// GetProfile returns a public profile with a page of the user's approved mods.
func GetProfile(c *fiber.Ctx) error {
	ctx := c.UserContext()
	u, err := user.GetUserBy(ctx, DB, "username = ?", []interface{}{c.Params("username")})
	if err != nil {
		return fail(c, err)
	}

	p := utils.ParsePagination(c)
	list, total, err := mods.ListMods(ctx, DB, mods.ModFilter{AuthorID: &u.ID, VisibleGamesOnly: !canManageGames(c)}, p)
	if err != nil {
		return fail(c, err)
	}
	return utils.Success(c).
		WithData(fiber.Map{"user": u, "mods": list}).
		WithPagination(p.WithTotal(total)).
		Send()
}

// MyMods lists the caller's mods in every status.
func MyMods(c *fiber.Ctx) error {
	u := currentUser(c)
	p := utils.ParsePagination(c)
	filter := mods.ModFilter{
		AuthorID: &u.ID,
		Statuses: []string{mods.ModStatusPending, mods.ModStatusApproved, mods.ModStatusRejected},
	}
	list, total, err := mods.ListMods(c.UserContext(), DB, filter, p)
	if err != nil {
		return fail(c, err)
	}
	return utils.SendPage(c, list, p.WithTotal(total))
}

// MyCollections lists the caller's collections, private ones included.
func MyCollections(c *fiber.Ctx) error {
	u := currentUser(c)
	p := utils.ParsePagination(c)
	list, total, err := mods.ListCollections(c.UserContext(), DB, mods.CollectionFilter{UserID: &u.ID, IncludePrivate: true}, p)
	if err != nil {
		return fail(c, err)
	}
	return utils.SendPage(c, list, p.WithTotal(total))
}
