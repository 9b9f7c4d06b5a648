package v1

import (
	"github.com/AksharDP/modhub/internal/auth"
	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/gofiber/fiber/v2"
)

// Routes mounts the v1 API on router. Setup must have been called first.
func Routes(router fiber.Router) {
	api := router.Group("/api/v1", OptionalAuth(), MaintenanceGate)

	authGroup := api.Group("/auth")
	authGroup.Post("/register", Register)
	authGroup.Post("/activate", ActivateUser)
	authGroup.Post("/login", Login)
	authGroup.Post("/logout", requireAuth(), Logout)

	users := api.Group("/users")
	users.Get("/me", requireAuth(), GetMe)
	users.Patch("/me", requireAuth(), UpdateMe)
	users.Get("/me/mods", requireAuth(), MyMods)
	users.Get("/me/collections", requireAuth(), MyCollections)
	users.Get("/:username", GetProfile)

	games := api.Group("/games")
	games.Get("/", ListGames)
	games.Get("/:slug", GetGame)
	games.Get("/:slug/categories", ListGameCategories)

	m := api.Group("/mods")
	m.Get("/", ListMods)
	m.Post("/", requireAuth(), perm(user.PermUploadMod), CreateMod)
	m.Get("/:id", GetMod)
	m.Patch("/:id", requireAuth(), UpdateMod)
	m.Delete("/:id", requireAuth(), DeleteMod)
	m.Get("/:id/download", DownloadMod)
	m.Post("/:id/like", requireAuth(), LikeMod)
	m.Delete("/:id/like", requireAuth(), UnlikeMod)

	api.Post("/uploads/presign", requireAuth(), PresignUpload)
	api.Post("/uploads/finalize", requireAuth(), FinalizeUpload)
	api.Delete("/files/:id", requireAuth(), DeleteFile)
	api.Delete("/images/:id", requireAuth(), DeleteImage)

	col := api.Group("/collections")
	col.Get("/", ListCollections)
	col.Post("/", requireAuth(), perm(user.PermCreateCollection), CreateCollection)
	col.Get("/:id", GetCollection)
	col.Patch("/:id", requireAuth(), UpdateCollection)
	col.Delete("/:id", requireAuth(), DeleteCollection)
	col.Post("/:id/mods", requireAuth(), AddCollectionMod)
	col.Put("/:id/mods/order", requireAuth(), ReorderCollectionMods)
	col.Delete("/:id/mods/:modId", requireAuth(), RemoveCollectionMod)

	admin := api.Group("/admin", requireAuth())
	admin.Get("/settings", perm(user.PermSiteSettings), GetSettings)
	admin.Put("/settings", perm(user.PermSiteSettings), UpdateSettings)
	admin.Get("/stats", perm(user.PermSiteSettings, user.PermModerateMod), GetStats)
	admin.Get("/roles", perm(user.PermAssignRoles, user.PermManageUsers), ListRoles)

	admin.Get("/mods", perm(user.PermModerateMod), ListModerationQueue)
	admin.Post("/mods/:id/approve", perm(user.PermModerateMod), ApproveMod)
	admin.Post("/mods/:id/reject", perm(user.PermModerateMod), RejectMod)
	admin.Post("/mods/:id/feature", perm(user.PermModerateMod), FeatureMod)

	admin.Get("/users", perm(user.PermManageUsers), ListUsers)
	admin.Put("/users/:id/role", perm(user.PermAssignRoles), SetUserRole)
	admin.Post("/users/:id/ban", perm(user.PermManageUsers), BanUser)
	admin.Post("/users/:id/unban", perm(user.PermManageUsers), UnbanUser)

	admin.Get("/games", perm(user.PermManageGames), ListAllGames)
	admin.Post("/games", perm(user.PermManageGames), CreateGame)
	admin.Patch("/games/:id", perm(user.PermManageGames), UpdateGame)
	admin.Delete("/games/:id", perm(user.PermManageGames), DeleteGame)
	admin.Post("/games/:id/categories", perm(user.PermManageGames), CreateCategory)
	admin.Patch("/categories/:id", perm(user.PermManageGames), UpdateCategory)
	admin.Delete("/categories/:id", perm(user.PermManageGames), DeleteCategory)
}

// OptionalAuth attaches the caller when credentials are present.
func OptionalAuth() fiber.Handler {
	return auth.OptionalAuth(AuthOpt)
}
