package v1

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	mods "github.com/AksharDP/modhub/internal/models/mods"
	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/AksharDP/modhub/pkg/objectstore"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	KindFile  = "file"
	KindImage = "image"
)

var entityTypes = map[string]string{
	"mod":  mods.EntityMods,
	"game": mods.EntityGames,
	"user": mods.EntityUsers,
}

type presignInput struct {
	Kind        string `json:"kind" validate:"required,oneof=file image"`
	EntityType  string `json:"entity_type" validate:"required,oneof=mod game user"`
	EntityID    string `json:"entity_id" validate:"required,uuid"`
	FileName    string `json:"file_name" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required,max=255"`
	Size        int64  `json:"size" validate:"required,gt=0"`
}

type finalizeInput struct {
	Kind string `json:"kind" validate:"required,oneof=file image"`
	ID   string `json:"id" validate:"required,uuid"`
}

type presignResponse struct {
	ID        uuid.UUID         `json:"id"`
	Key       string            `json:"key"`
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// storageKey builds a collision free object key that keeps a readable file name.
func storageKey(entityType string, entityID uuid.UUID, kind, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	base := mods.MakeSlug(strings.TrimSuffix(path.Base(fileName), path.Ext(fileName)))
	return entityType + "/" + entityID.String() + "/" + kind + "s/" + uuid.NewString() + "-" + base + ext
}

// authorizeEntity checks that u may attach uploads to the entity.
func authorizeEntity(ctx context.Context, u *user.User, entityType string, entityID uuid.UUID, kind string) error {
	switch entityType {
	case mods.EntityMods:
		m, err := mods.GetMod(ctx, Redis, DB, entityID)
		if err != nil {
			return err
		}
		if m.AuthorID != u.ID && !isModerator(u) {
			return utils.NewError(fiber.StatusForbidden, "You cannot upload to this mod")
		}
	case mods.EntityGames:
		if kind != KindImage {
			return utils.NewError(fiber.StatusBadRequest, "Games only accept images")
		}
		if !u.HasPermission(user.PermManageGames) {
			return utils.NewError(fiber.StatusForbidden, "You cannot upload to this game")
		}
		if _, err := mods.GetGameByID(ctx, DB, entityID); err != nil {
			return err
		}
	case mods.EntityUsers:
		if kind != KindImage {
			return utils.NewError(fiber.StatusBadRequest, "Users only accept an avatar image")
		}
		if entityID != u.ID {
			return utils.NewError(fiber.StatusForbidden, "You can only upload your own avatar")
		}
	}
	return nil
}

// checkLimits enforces the size, type and per-mod count limits from the site settings.
func checkLimits(ctx context.Context, s mods.SystemSettings, in presignInput, entityType string, entityID uuid.UUID) error {
	if in.Kind == KindFile {
		if in.Size > s.MaxFileBytes() {
			return utils.NewError(fiber.StatusBadRequest, "File too large")
		}
		if !s.FileExtensionAllowed(path.Ext(in.FileName)) {
			return utils.NewError(fiber.StatusBadRequest, "File type not allowed", "allowed: "+s.AllowedFileExtensions)
		}
		n, err := mods.CountFiles(ctx, DB, entityType, entityID, time.Now().Add(-s.UploadTTL()))
		if err != nil {
			return err
		}
		if n >= int64(s.MaxFilesPerMod) {
			return utils.NewError(fiber.StatusBadRequest, "Too many files for this mod")
		}
		return nil
	}

	if in.Size > s.MaxImageBytes() {
		return utils.NewError(fiber.StatusBadRequest, "Image too large")
	}
	if !s.ImageTypeAllowed(in.ContentType) {
		return utils.NewError(fiber.StatusBadRequest, "Image type not allowed", "allowed: "+s.AllowedImageTypes)
	}
	if entityType == mods.EntityMods {
		n, err := mods.CountImages(ctx, DB, entityType, entityID, time.Now().Add(-s.UploadTTL()))
		if err != nil {
			return err
		}
		if n >= int64(s.MaxImagesPerMod) {
			return utils.NewError(fiber.StatusBadRequest, "Too many images for this mod")
		}
	}
	return nil
}

// PresignUpload records a pending upload and returns a presigned PUT for it.
func PresignUpload(c *fiber.Ctx) error {
	ctx := c.UserContext()
	u := currentUser(c)
	var in presignInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	entityType := entityTypes[in.EntityType]
	entityID := uuid.MustParse(in.EntityID)

	if err := authorizeEntity(ctx, u, entityType, entityID, in.Kind); err != nil {
		return fail(c, err)
	}
	settings, err := siteSettings(ctx)
	if err != nil {
		return fail(c, err)
	}
	if err := checkLimits(ctx, settings, in, entityType, entityID); err != nil {
		return fail(c, err)
	}

	key := storageKey(entityType, entityID, in.Kind, in.FileName)
	var id uuid.UUID
	var discard func()
	if in.Kind == KindFile {
		f := &mods.File{
			EntityType:  entityType,
			EntityID:    entityID,
			UploaderID:  u.ID,
			Name:        path.Base(in.FileName),
			StorageKey:  key,
			Size:        in.Size,
			ContentType: in.ContentType,
		}
		if err := mods.CreatePendingFile(ctx, DB, f); err != nil {
			return fail(c, err)
		}
		id = f.ID
		discard = func() { _ = mods.DeleteFileRecord(ctx, DB, f) }
	} else {
		img := &mods.Image{
			EntityType:  entityType,
			EntityID:    entityID,
			UploaderID:  u.ID,
			StorageKey:  key,
			Size:        in.Size,
			ContentType: in.ContentType,
		}
		if err := mods.CreatePendingImage(ctx, DB, img); err != nil {
			return fail(c, err)
		}
		id = img.ID
		discard = func() { _ = mods.DeleteImageRecord(ctx, DB, img) }
	}

	req, err := Store.PresignPut(ctx, key, objectstore.PutOptions{
		ContentType: in.ContentType,
		Size:        in.Size,
		TTL:         settings.UploadTTL(),
	})
	if err != nil {
		discard()
		return fail(c, utils.WrapError(err, fiber.StatusInternalServerError, "Failed to sign upload"))
	}

	Logger.Info(ctx).WithFields("upload_id", id, "key", key, "user_id", u.ID).Logs("Upload presigned")
	return utils.Success(c).WithStatus(fiber.StatusCreated).WithData(presignResponse{
		ID:        id,
		Key:       key,
		UploadURL: req.URL,
		Method:    req.Method,
		Headers:   req.Headers,
		ExpiresAt: req.ExpiresAt,
	}).Send()
}

// FinalizeUpload confirms an upload once the object is in the bucket.
func FinalizeUpload(c *fiber.Ctx) error {
	var in finalizeInput
	if err := bind(c, &in); err != nil {
		return fail(c, err)
	}
	id := uuid.MustParse(in.ID)
	if in.Kind == KindFile {
		return finalizeFile(c, id)
	}
	return finalizeImage(c, id)
}

// inspect checks the stored object against the declared size and returns its sniffed type.
// A missing object is a 404; a mismatched one is deleted by the caller.
func inspect(ctx context.Context, key string, declared int64) (string, error) {
	info, err := Store.Head(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return "", utils.NewError(fiber.StatusNotFound, "Uploaded object not found")
		}
		return "", utils.WrapError(err, fiber.StatusInternalServerError, "Failed to inspect upload")
	}
	if info.Size != declared {
		return "", utils.NewError(fiber.StatusBadRequest, "Uploaded size does not match the declared size")
	}
	contentType, err := Store.Sniff(ctx, key)
	if err != nil {
		return "", utils.WrapError(err, fiber.StatusInternalServerError, "Failed to inspect upload")
	}
	return contentType, nil
}

func canTouchUpload(u *user.User, uploaderID uuid.UUID) bool {
	return uploaderID == u.ID || isModerator(u)
}

// canRemoveUpload is canTouchUpload extended to the author of the mod the upload belongs to.
func canRemoveUpload(ctx context.Context, u *user.User, uploaderID uuid.UUID, entityType string, entityID uuid.UUID) (bool, error) {
	if canTouchUpload(u, uploaderID) {
		return true, nil
	}
	if entityType != mods.EntityMods {
		return false, nil
	}
	m, err := mods.GetMod(ctx, Redis, DB, entityID)
	if err != nil {
		if utils.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return m.AuthorID == u.ID, nil
}

func finalizeFile(c *fiber.Ctx, id uuid.UUID) error {
	ctx := c.UserContext()
	u := currentUser(c)
	f, err := mods.GetFile(ctx, DB, id)
	if err != nil {
		return fail(c, err)
	}
	if !canTouchUpload(u, f.UploaderID) {
		return fail(c, utils.NewError(fiber.StatusForbidden, "You cannot finalize this upload"))
	}
	if f.Status == mods.UploadReady {
		return utils.SendSuccess(c, f)
	}

	contentType, err := inspect(ctx, f.StorageKey, f.Size)
	if err != nil {
		if utils.StatusOf(err) == fiber.StatusBadRequest {
			_ = Store.Delete(ctx, f.StorageKey)
			_ = mods.DeleteFileRecord(ctx, DB, f)
		}
		return fail(c, err)
	}

	if err := mods.FinalizeFile(ctx, DB, f, f.Size, contentType); err != nil {
		return fail(c, err)
	}
	if f.EntityType == mods.EntityMods {
		mods.InvalidateMod(ctx, Redis, f.EntityID)
	}

	Logger.Info(ctx).WithFields("file_id", f.ID, "size", f.Size).Logs("File upload finalized")
	return utils.SendSuccess(c, f)
}

func finalizeImage(c *fiber.Ctx, id uuid.UUID) error {
	ctx := c.UserContext()
	u := currentUser(c)
	img, err := mods.GetImage(ctx, DB, id)
	if err != nil {
		return fail(c, err)
	}
	if !canTouchUpload(u, img.UploaderID) {
		return fail(c, utils.NewError(fiber.StatusForbidden, "You cannot finalize this upload"))
	}
	if img.Status == mods.UploadReady {
		return utils.SendSuccess(c, img)
	}

	settings, err := siteSettings(ctx)
	if err != nil {
		return fail(c, err)
	}
	contentType, err := inspect(ctx, img.StorageKey, img.Size)
	if err == nil && !settings.ImageTypeAllowed(contentType) {
		err = utils.NewError(fiber.StatusBadRequest, "Uploaded file is not an allowed image", contentType)
	}
	if err != nil {
		if utils.StatusOf(err) == fiber.StatusBadRequest {
			_ = Store.Delete(ctx, img.StorageKey)
			_ = mods.DeleteImageRecord(ctx, DB, img)
		}
		return fail(c, err)
	}

	if err := mods.FinalizeImage(ctx, DB, img, img.Size, contentType, Store.PublicURL(img.StorageKey)); err != nil {
		return fail(c, err)
	}
	invalidateOwner(ctx, img.EntityType, img.EntityID)

	Logger.Info(ctx).WithFields("image_id", img.ID, "primary", img.IsPrimary).Logs("Image upload finalized")
	return utils.SendSuccess(c, img)
}

func invalidateOwner(ctx context.Context, entityType string, entityID uuid.UUID) {
	switch entityType {
	case mods.EntityMods:
		mods.InvalidateMod(ctx, Redis, entityID)
	case mods.EntityGames:
		mods.InvalidateGame(ctx, Redis, DB, entityID)
	case mods.EntityUsers:
		user.InvalidateUser(ctx, Redis, entityID)
	}
}

// DeleteFile removes a file from storage and its record.
func DeleteFile(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	f, err := mods.GetFile(ctx, DB, id)
	if err != nil {
		return fail(c, err)
	}
	allowed, err := canRemoveUpload(ctx, currentUser(c), f.UploaderID, f.EntityType, f.EntityID)
	if err != nil {
		return fail(c, err)
	}
	if !allowed {
		return fail(c, utils.NewError(fiber.StatusForbidden, "You cannot delete this file"))
	}

	if err := Store.Delete(ctx, f.StorageKey); err != nil {
		return fail(c, utils.WrapError(err, fiber.StatusInternalServerError, "Failed to delete object"))
	}
	if err := mods.DeleteFileRecord(ctx, DB, f); err != nil {
		return fail(c, err)
	}
	if f.EntityType == mods.EntityMods {
		mods.InvalidateMod(ctx, Redis, f.EntityID)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteImage removes an image from storage and its record. Game images need manage_games.
func DeleteImage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	u := currentUser(c)
	id, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	img, err := mods.GetImage(ctx, DB, id)
	if err != nil {
		return fail(c, err)
	}
	allowed, err := canRemoveUpload(ctx, u, img.UploaderID, img.EntityType, img.EntityID)
	if err != nil {
		return fail(c, err)
	}
	if !allowed && !(img.EntityType == mods.EntityGames && u.HasPermission(user.PermManageGames)) {
		return fail(c, utils.NewError(fiber.StatusForbidden, "You cannot delete this image"))
	}

	if err := Store.Delete(ctx, img.StorageKey); err != nil {
		return fail(c, utils.WrapError(err, fiber.StatusInternalServerError, "Failed to delete object"))
	}
	if err := mods.DeleteImageRecord(ctx, DB, img); err != nil {
		return fail(c, err)
	}
	invalidateOwner(ctx, img.EntityType, img.EntityID)
	return c.SendStatus(fiber.StatusNoContent)
}
