package v1

import (
	"context"

	"github.com/AksharDP/modhub/internal/auth"
	mods "github.com/AksharDP/modhub/internal/models/mods"
	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const objectDeleteWorkers = 8

// bind parses the JSON body strictly and validates it.
func bind(c *fiber.Ctx, out interface{}) error {
	if err := utils.StrictBodyParser(c, out); err != nil {
		return utils.NewError(fiber.StatusBadRequest, "Invalid request format", err.Error())
	}
	if verr := Validator.Validate(out); verr != nil {
		return verr
	}
	return nil
}

// fail logs err and writes the error response. Validation errors carry their field list.
func fail(c *fiber.Ctx, err error) error {
	ctx := c.UserContext()
	if verr, ok := err.(*utils.ErrorResponse); ok {
		Logger.Warn(ctx).WithFields("errors", verr.Errors, "path", c.Path()).Logs("Validation failed")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": verr.Errors,
		})
	}

	status := utils.StatusOf(err)
	if status >= fiber.StatusInternalServerError {
		Logger.Error(ctx).WithFields("error", err, "path", c.Path(), "method", c.Method()).Logs("Request failed")
	} else {
		Logger.Warn(ctx).WithFields("error", err, "path", c.Path(), "method", c.Method()).Logs("Request rejected")
	}
	return utils.HandleError(c, err)
}

func idParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, utils.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}

func currentUser(c *fiber.Ctx) *user.User {
	return auth.CurrentUser(c)
}

func siteSettings(ctx context.Context) (mods.SystemSettings, error) {
	return mods.GetSettings(ctx, DB, Settings)
}

func requireAuth() fiber.Handler {
	return auth.RequireAuth(AuthOpt)
}

func perm(perms ...string) fiber.Handler {
	return auth.CheckPerm(AuthOpt, perms...)
}

// deleteObjects removes storage objects concurrently. One failure does not stop the others;
// failures are logged and the first one is returned.
func deleteObjects(ctx context.Context, keys []string) error {
	var g errgroup.Group
	g.SetLimit(objectDeleteWorkers)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := Store.Delete(ctx, key); err != nil {
				Logger.Error(ctx).WithFields("error", err, "key", key).Logs("Failed to delete object")
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func fileKeys(files []mods.File) []string {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		keys = append(keys, f.StorageKey)
	}
	return keys
}

func imageKeys(images []mods.Image) []string {
	keys := make([]string, 0, len(images))
	for _, img := range images {
		keys = append(keys, img.StorageKey)
	}
	return keys
}
