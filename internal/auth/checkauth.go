package auth

import (
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// CheckPerm lets the request through when the authenticated user holds any of perms.
func CheckPerm(opt Options, perms ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := CurrentUser(c)
		if u == nil {
			return utils.HandleError(c, utils.NewError(fiber.StatusUnauthorized, "Authentication required"))
		}

		for _, p := range perms {
			if u.HasPermission(p) {
				opt.Logger.Debug(c.UserContext()).WithFields("user_id", u.ID, "permission", p).Logs("Permission authorized")
				return c.Next()
			}
		}

		opt.Logger.Warn(c.UserContext()).WithFields(
			"user_id", u.ID,
			"required_perms", perms,
			"user_permissions", u.PermissionNames(),
		).Logs("Insufficient permissions")
		return utils.HandleError(c, utils.NewError(fiber.StatusForbidden, "Insufficient permissions"))
	}
}
