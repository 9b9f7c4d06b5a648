package v1

import (
	"context"
	"strings"

	mods "github.com/AksharDP/modhub/internal/models/mods"
	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

// MaintenanceGate answers 503 to writes from anyone but site administrators while maintenance
// mode is on. Reads, login and logout stay available.
func MaintenanceGate(c *fiber.Ctx) error {
	switch c.Method() {
	case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
		return c.Next()
	}
	if strings.HasSuffix(c.Path(), "/auth/login") || strings.HasSuffix(c.Path(), "/auth/logout") {
		return c.Next()
	}

	s, err := siteSettings(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	if !s.MaintenanceMode || currentUser(c).HasPermission(user.PermSiteSettings) {
		return c.Next()
	}
	return fail(c, utils.NewError(fiber.StatusServiceUnavailable, "The site is in maintenance mode"))
}

func GetSettings(c *fiber.Ctx) error {
	s, err := siteSettings(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return utils.SendSuccess(c, s)
}

// UpdateSettings replaces every setting.
func UpdateSettings(c *fiber.Ctx) error {
	var in mods.SystemSettings
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	s, err := mods.UpdateSettings(c.UserContext(), DB, Settings, in)
	if err != nil {
		return fail(c, err)
	}
	Logger.Info(c.UserContext()).WithFields("user_id", currentUser(c).ID).Logs("Site settings updated")
	return utils.SendSuccess(c, s)
}

// ListModerationQueue lists mods by status, pending by default, most recently updated first.
func ListModerationQueue(c *fiber.Ctx) error {
	status := c.Query("status", mods.ModStatusPending)
	switch status {
	case mods.ModStatusPending, mods.ModStatusApproved, mods.ModStatusRejected:
	default:
		return fail(c, utils.NewError(fiber.StatusBadRequest, "Invalid status"))
	}

	p := utils.ParsePagination(c)
	list, total, err := mods.ListMods(c.UserContext(), DB, mods.ModFilter{Statuses: []string{status}, Sort: "updated"}, p)
	if err != nil {
		return fail(c, err)
	}
	return utils.SendPage(c, list, p.WithTotal(total))
}

func ApproveMod(c *fiber.Ctx) error {
	return review(c, mods.ModStatusApproved, "")
}

func RejectMod(c *fiber.Ctx) error {
	type RejectInput struct {
		Reason string `json:"reason" validate:"required,min=3,max=500"`
	}
	var in RejectInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	return review(c, mods.ModStatusRejected, in.Reason)
}

// review records a moderation decision and emails the author in the background.
func review(c *fiber.Ctx, status, reason string) error {
	ctx := c.UserContext()
	id, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	m, err := mods.SetModStatus(ctx, Redis, DB, id, status, reason)
	if err != nil {
		return fail(c, err)
	}

	if m.Author != nil {
		msg := utils.ModReviewEmail(EmailCfg, m.Author.Email, m.Author.Username, m.Name, m.ID.String(), status, reason)
		go func(ctx context.Context) {
			if err := utils.SendEmail(ctx, EmailCfg, msg, Logger); err != nil {
				Logger.Warn(ctx).WithFields("error", err, "mod_id", m.ID).Logs("Review email failed")
			}
		}(context.WithoutCancel(ctx))
	}

	Logger.Info(ctx).WithFields("mod_id", id, "status", status, "moderator_id", currentUser(c).ID).Logs("Mod reviewed")
	updated, err := mods.GetMod(ctx, Redis, DB, id)
	if err != nil {
		return fail(c, err)
	}
	return utils.SendSuccess(c, updated)
}

func FeatureMod(c *fiber.Ctx) error {
	type FeatureInput struct {
		Featured *bool `json:"featured" validate:"required"`
	}
	id, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var in FeatureInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	m, err := mods.SetFeatured(c.UserContext(), Redis, DB, id, *in.Featured)
	if err != nil {
		return fail(c, err)
	}
	return utils.SendSuccess(c, m)
}

// ListUsers lists accounts for administration, emails included.
func ListUsers(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	filter := user.UserFilter{Query: c.Query("q")}
	switch c.Query("banned") {
	case "true":
		b := true
		filter.Banned = &b
	case "false":
		b := false
		filter.Banned = &b
	}

	users, total, err := user.ListUsers(c.UserContext(), DB, filter, p)
	if err != nil {
		return fail(c, err)
	}
	views := make([]accountView, 0, len(users))
	for i := range users {
		views = append(views, newAccountView(&users[i]))
	}
	return utils.SendPage(c, views, p.WithTotal(total))
}

func ListRoles(c *fiber.Ctx) error {
	roles, err := user.ListRoles(c.UserContext(), DB)
	if err != nil {
		return fail(c, err)
	}
	return utils.SendSuccess(c, roles)
}

func SetUserRole(c *fiber.Ctx) error {
	type RoleInput struct {
		Role string `json:"role" validate:"required,oneof=user moderator admin"`
	}
	id, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if id == currentUser(c).ID {
		return fail(c, utils.NewError(fiber.StatusBadRequest, "You cannot change your own role"))
	}
	var in RoleInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}

	u, err := user.SetRole(c.UserContext(), Redis, DB, id, in.Role)
	if err != nil {
		return fail(c, err)
	}
	Logger.Info(c.UserContext()).WithFields("user_id", id, "role", in.Role).Logs("User role changed")
	return utils.SendSuccess(c, newAccountView(u))
}

func BanUser(c *fiber.Ctx) error {
	type BanInput struct {
		Reason string `json:"reason" validate:"required,min=3,max=255"`
	}
	id, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if id == currentUser(c).ID {
		return fail(c, utils.NewError(fiber.StatusBadRequest, "You cannot ban yourself"))
	}
	var in BanInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}

	u, err := user.SetBanned(c.UserContext(), Redis, DB, id, true, in.Reason)
	if err != nil {
		return fail(c, err)
	}
	Logger.Info(c.UserContext()).WithFields("user_id", id, "moderator_id", currentUser(c).ID).Logs("User banned")
	return utils.SendSuccess(c, newAccountView(u))
}

func UnbanUser(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	u, err := user.SetBanned(c.UserContext(), Redis, DB, id, false, "")
	if err != nil {
		return fail(c, err)
	}
	return utils.SendSuccess(c, newAccountView(u))
}

type siteStats struct {
	Users          int64            `json:"users"`
	Games          int64            `json:"games"`
	Collections    int64            `json:"collections"`
	ModsByStatus   map[string]int64 `json:"mods_by_status"`
	TotalDownloads int64            `json:"total_downloads"`
	StoredBytes    int64            `json:"stored_bytes"`
}

// GetStats gathers site counters concurrently.
func GetStats(c *fiber.Ctx) error {
	var stats siteStats
	g, ctx := errgroup.WithContext(c.UserContext())

	g.Go(func() error {
		return DB.WithContext(ctx).Model(&user.User{}).Count(&stats.Users).Error
	})
	g.Go(func() error {
		return DB.WithContext(ctx).Model(&mods.Game{}).Count(&stats.Games).Error
	})
	g.Go(func() error {
		return DB.WithContext(ctx).Model(&mods.Collection{}).Count(&stats.Collections).Error
	})
	g.Go(func() error {
		byStatus, err := mods.CountModsByStatus(ctx, DB)
		stats.ModsByStatus = byStatus
		return err
	})
	g.Go(func() error {
		total, err := mods.TotalDownloads(ctx, DB)
		stats.TotalDownloads = total
		return err
	})
	g.Go(func() error {
		total, err := mods.StoredBytes(ctx, DB)
		stats.StoredBytes = total
		return err
	})

	if err := g.Wait(); err != nil {
		return fail(c, utils.WrapError(err, fiber.StatusInternalServerError, "Failed to gather stats"))
	}
	return utils.SendSuccess(c, stats)
}
