package models

import (
	"context"
	"testing"
	"time"

	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/AksharDP/modhub/internal/testutil"
	storage "github.com/AksharDP/modhub/pkg/redis"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	ctx    context.Context
	db     *gorm.DB
	rc     *storage.RedisClient
	author *user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t,
		&user.Permission{}, &user.Role{}, &user.User{},
		&Game{}, &Category{}, &Mod{}, &ModStats{}, &ModLike{},
		&File{}, &Image{}, &Collection{}, &CollectionMod{}, &SystemSettings{},
	)
	rc, _ := testutil.NewRedis(t)
	ctx := context.Background()
	require.NoError(t, user.SeedRoles(ctx, db))
	author, err := user.NewUser(ctx, db, "author", "author@modhub.test", "hash", user.RoleUser)
	require.NoError(t, err)
	return &fixture{ctx: ctx, db: db, rc: rc, author: author}
}

func (f *fixture) game(t *testing.T, name string, visible bool) *Game {
	t.Helper()
	g := &Game{Name: name, IsVisible: visible}
	require.NoError(t, CreateGame(f.ctx, f.rc, f.db, g))
	return g
}

func (f *fixture) mod(t *testing.T, g *Game, name string, approved bool) *Mod {
	t.Helper()
	m := &Mod{GameID: g.ID, AuthorID: f.author.ID, Name: name}
	require.NoError(t, CreateMod(f.ctx, f.rc, f.db, m, !approved))
	return m
}

func (f *fixture) readyFile(t *testing.T, m *Mod, size int64) *File {
	t.Helper()
	file := &File{EntityType: EntityMods, EntityID: m.ID, UploaderID: f.author.ID, Name: "a.zip", StorageKey: uuid.NewString(), Size: size}
	require.NoError(t, CreatePendingFile(f.ctx, f.db, file))
	require.NoError(t, FinalizeFile(f.ctx, f.db, file, size, "application/zip"))
	return file
}

func modSize(t *testing.T, db *gorm.DB, id uuid.UUID) int64 {
	t.Helper()
	var size int64
	require.NoError(t, db.Model(&Mod{}).Unscoped().Where("id = ?", id).Pluck("size", &size).Error)
	return size
}

func TestMakeSlug(t *testing.T) {
	assert.Equal(t, "better-trees-2", MakeSlug("Better Trees 2!"))
	assert.Equal(t, "item", MakeSlug("!!!"))
}

func TestCreateGameConflict(t *testing.T) {
	f := newFixture(t)
	g := f.game(t, "Skyrim Special Edition", true)
	assert.Equal(t, "skyrim-special-edition", g.Slug)

	err := CreateGame(f.ctx, f.rc, f.db, &Game{Name: "skyrim special edition"})
	assert.Equal(t, 409, utils.StatusOf(err))
}

func TestListGamesCountsApprovedModsOnly(t *testing.T) {
	f := newFixture(t)
	sky := f.game(t, "Skyrim", true)
	fo := f.game(t, "Fallout 4", true)
	f.game(t, "Hidden", false)

	f.mod(t, sky, "One", true)
	f.mod(t, sky, "Two", true)
	f.mod(t, sky, "Pending", false)
	deleted := f.mod(t, sky, "Gone", true)
	_, _, err := DeleteMod(f.ctx, f.rc, f.db, deleted.ID)
	require.NoError(t, err)

	games, total, err := ListGames(f.ctx, f.rc, f.db, GameFilter{}, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, games, 2)
	assert.Equal(t, fo.ID, games[0].ID)
	assert.Equal(t, int64(0), games[0].ModCount)
	assert.Equal(t, sky.ID, games[1].ID)
	assert.Equal(t, int64(2), games[1].ModCount)

	games, total, err = ListGames(f.ctx, f.rc, f.db, GameFilter{IncludeHidden: true}, utils.NewPagination(2, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, games, 1)
	assert.Equal(t, "Skyrim", games[0].Name)

	games, _, err = ListGames(f.ctx, f.rc, f.db, GameFilter{Query: "fall"}, utils.NewPagination(1, 20))
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Fallout 4", games[0].Name)
}

func TestGetGameBySlugCachesAndInvalidates(t *testing.T) {
	f := newFixture(t)
	g := f.game(t, "Skyrim", true)

	got, err := GetGameBySlug(f.ctx, f.rc, f.db, "skyrim")
	require.NoError(t, err)
	assert.Equal(t, g.ID, got.ID)
	assert.Equal(t, int64(1), f.rc.Exists(f.ctx, GameKey("skyrim")).Val())

	f.mod(t, g, "One", true)
	assert.Equal(t, int64(0), f.rc.Exists(f.ctx, GameKey("skyrim")).Val())
	got, err = GetGameBySlug(f.ctx, f.rc, f.db, "skyrim")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ModCount)

	_, err = GetGameBySlug(f.ctx, f.rc, f.db, "nope")
	assert.True(t, utils.IsNotFound(err))
}

func TestDeleteGameWithModsConflicts(t *testing.T) {
	f := newFixture(t)
	g := f.game(t, "Skyrim", true)
	f.mod(t, g, "One", true)

	_, err := DeleteGame(f.ctx, f.rc, f.db, g.ID)
	assert.Equal(t, 409, utils.StatusOf(err))

	empty := f.game(t, "Empty", true)
	require.NoError(t, CreateCategory(f.ctx, f.rc, f.db, &Category{GameID: empty.ID, Name: "Armor"}))
	_, err = DeleteGame(f.ctx, f.rc, f.db, empty.ID)
	require.NoError(t, err)
	var n int64
	f.db.Model(&Category{}).Where("game_id = ?", empty.ID).Count(&n)
	assert.Zero(t, n)
}

func TestCategories(t *testing.T) {
	f := newFixture(t)
	g := f.game(t, "Skyrim", true)
	other := f.game(t, "Fallout", true)

	armor := &Category{GameID: g.ID, Name: "Armor"}
	require.NoError(t, CreateCategory(f.ctx, f.rc, f.db, armor))
	assert.Equal(t, 409, utils.StatusOf(CreateCategory(f.ctx, f.rc, f.db, &Category{GameID: g.ID, Name: "Armor"})))
	require.NoError(t, CreateCategory(f.ctx, f.rc, f.db, &Category{GameID: other.ID, Name: "Armor"}))

	m := &Mod{GameID: g.ID, AuthorID: f.author.ID, Name: "Plate", CategoryID: &armor.ID}
	require.NoError(t, CreateMod(f.ctx, f.rc, f.db, m, false))

	cats, err := ListCategories(f.ctx, f.db, g.ID)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, int64(1), cats[0].ModCount)

	require.NoError(t, DeleteCategory(f.ctx, f.rc, f.db, armor.ID))
	var reloaded Mod
	require.NoError(t, f.db.First(&reloaded, "id = ?", m.ID).Error)
	assert.Nil(t, reloaded.CategoryID)
}

func TestCreateModRules(t *testing.T) {
	f := newFixture(t)
	g := f.game(t, "Skyrim", true)
	other := f.game(t, "Fallout", true)
	foreign := &Category{GameID: other.ID, Name: "Weapons"}
	require.NoError(t, CreateCategory(f.ctx, f.rc, f.db, foreign))

	pending := f.mod(t, g, "Better Trees", false)
	assert.Equal(t, ModStatusPending, pending.Status)
	assert.Nil(t, pending.PublishedAt)
	require.NotNil(t, pending.Stats)

	approved := f.mod(t, g, "Better Water", true)
	assert.Equal(t, ModStatusApproved, approved.Status)
	assert.NotNil(t, approved.PublishedAt)

	err := CreateMod(f.ctx, f.rc, f.db, &Mod{GameID: g.ID, AuthorID: f.author.ID, Name: "Better Trees"}, true)
	assert.Equal(t, 409, utils.StatusOf(err))

	// same slug on another game is fine
	require.NoError(t, CreateMod(f.ctx, f.rc, f.db, &Mod{GameID: other.ID, AuthorID: f.author.ID, Name: "Better Trees"}, true))

	err = CreateMod(f.ctx, f.rc, f.db, &Mod{GameID: g.ID, AuthorID: f.author.ID, Name: "X", CategoryID: &foreign.ID}, true)
	assert.Equal(t, 400, utils.StatusOf(err))

	err = CreateMod(f.ctx, f.rc, f.db, &Mod{GameID: uuid.New(), AuthorID: f.author.ID, Name: "X"}, true)
	assert.True(t, utils.IsNotFound(err))
}

func TestListModsFiltersAndSorts(t *testing.T) {
	f := newFixture(t)
	g := f.game(t, "Skyrim", true)
	a := f.mod(t, g, "Alpha", true)
	b := f.mod(t, g, "Beta", true)
	f.mod(t, g, "Gamma", false)

	require.NoError(t, IncrementDownloads(f.ctx, f.db, b.ID))
	require.NoError(t, IncrementDownloads(f.ctx, f.db, b.ID))
	require.NoError(t, IncrementDownloads(f.ctx, f.db, a.ID))

	mods, total, err := ListMods(f.ctx, f.db, ModFilter{GameID: &g.ID, Sort: "downloads"}, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, mods, 2)
	assert.Equal(t, b.ID, mods[0].ID)
	assert.Equal(t, int64(2), mods[0].Stats.Downloads)
	require.NotNil(t, mods[0].Author)
	assert.Equal(t, "author", mods[0].Author.Username)

	mods, _, err = ListMods(f.ctx, f.db, ModFilter{Sort: "name"}, utils.NewPagination(1, 20))
	require.NoError(t, err)
	require.Len(t, mods, 2)
	assert.Equal(t, "Alpha", mods[0].Name)

	mods, total, err = ListMods(f.ctx, f.db, ModFilter{Query: "gam", Statuses: []string{ModStatusPending}}, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Gamma", mods[0].Name)

	assert.True(t, ValidModSort("likes"))
	assert.False(t, ValidModSort("random"))
}

func TestModVisibility(t *testing.T) {
	f := newFixture(t)
	g := f.game(t, "Skyrim", true)
	m := f.mod(t, g, "Pending", false)

	mod, err := user.GetRoleByName(f.ctx, f.db, user.RoleModerator)
	require.NoError(t, err)
	stranger := &user.User{ID: uuid.New(), Role: &user.Role{Name: user.RoleUser}}
	moderator := &user.User{ID: uuid.New(), Role: mod}

	assert.False(t, m.VisibleTo(nil))
	assert.False(t, m.VisibleTo(stranger))
	assert.True(t, m.VisibleTo(f.author))
	assert.True(t, m.VisibleTo(moderator))
}

func TestUpdateModRequeuesApprovedMod(t *testing.T) {
	f := newFixture(t)
	g := f.game(t, "Skyrim", true)
	m := f.mod(t, g, "Alpha", true)

	name := "Alpha Remastered"
	updated, err := UpdateMod(f.ctx, f.rc, f.db, m.ID, ModUpdate{Name: &name}, true)
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, ModStatusPending, updated.Status)

	other := f.mod(t, g, "Beta", true)
	slug := "alpha"
	_, err = UpdateMod(f.ctx, f.rc, f.db, other.ID, ModUpdate{Slug: &slug}, false)
	assert.Equal(t, 409, utils.StatusOf(err))
}

func TestModSizeFollowsReadyFiles(t *testing.T) {
	f := newFixture(t)
	g := f.game(t, "Skyrim", true)
	m := f.mod(t, g, "Alpha", true)

	first := f.readyFile(t, m, 100)
	f.readyFile(t, m, 250)
	pending := &File{EntityType: EntityMods, EntityID: m.ID, UploaderID: f.author.ID, Name: "p.zip", StorageKey: "p", Size: 999}
	require.NoError(t, CreatePendingFile(f.ctx, f.db, pending))
	assert.Equal(t, int64(350), modSize(t, f.db, m.ID))

	require.NoError(t, DeleteFileRecord(f.ctx, f.db, first))
	assert.Equal(t, int64(250), modSize(t, f.db, m.ID))

	// drift gets repaired
	require.NoError(t, f.db.Model(&Mod{}).Where("id = ?", m.ID).UpdateColumn("size", 1).Error)
	n, err := RecomputeAllModSizes(f.ctx, f.db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(250), modSize(t, f.db, m.ID))

	count, err := CountFiles(f.ctx, f.db, EntityMods, m.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	latest, err := GetReadyModFile(f.ctx, f.db, m.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, UploadReady, latest.Status)
	_, err = GetReadyModFile(f.ctx, f.db, m.ID, &pending.ID)
	assert.True(t, utils.IsNotFound(err))
}

func TestLikesAreIdempotent(t *testing.T) {
	f := newFixture(t)
	g := f.game(t, "Skyrim", true)
	m := f.mod(t, g, "Alpha", true)

	likes, err := LikeMod(f.ctx, f.db, f.author.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), likes)
	likes, err = LikeMod(f.ctx, f.db, f.author.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), likes)

	liked, err := HasLiked(f.ctx, f.db, f.author.ID, m.ID)
	require.NoError(t, err)
	assert.True(t, liked)

	likes, err = UnlikeMod(f.ctx, f.db, f.author.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), likes)
	likes, err = UnlikeMod(f.ctx, f.db, f.author.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), likes)
}

func TestImagesPrimaryAndAvatar(t *testing.T) {
	f := newFixture(t)

	first := &Image{EntityType: EntityUsers, EntityID: f.author.ID, UploaderID: f.author.ID, StorageKey: "a"}
	require.NoError(t, CreatePendingImage(f.ctx, f.db, first))
	second := &Image{EntityType: EntityUsers, EntityID: f.author.ID, UploaderID: f.author.ID, StorageKey: "b"}
	require.NoError(t, CreatePendingImage(f.ctx, f.db, second))
	assert.Equal(t, 1, first.Position)
	assert.Equal(t, 2, second.Position)

	require.NoError(t, FinalizeImage(f.ctx, f.db, first, 10, "image/png", "https://cdn/a"))
	assert.True(t, first.IsPrimary)
	require.NoError(t, FinalizeImage(f.ctx, f.db, second, 10, "image/png", "https://cdn/b"))

	u, err := user.GetUserBy(f.ctx, f.db, "id = ?", []interface{}{f.author.ID})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/b", u.Profile.AvatarURL)

	reloaded, err := GetImage(f.ctx, f.db, first.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsPrimary)

	second.IsPrimary = true
	require.NoError(t, DeleteImageRecord(f.ctx, f.db, second))
	u, err = user.GetUserBy(f.ctx, f.db, "id = ?", []interface{}{f.author.ID})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a", u.Profile.AvatarURL)
}

func TestModImagesFirstBecomesPrimary(t *testing.T) {
	f := newFixture(t)
	g := f.game(t, "Skyrim", true)
	m := f.mod(t, g, "Alpha", true)

	a := &Image{EntityType: EntityMods, EntityID: m.ID, UploaderID: f.author.ID, StorageKey: "a"}
	b := &Image{EntityType: EntityMods, EntityID: m.ID, UploaderID: f.author.ID, StorageKey: "b"}
	require.NoError(t, CreatePendingImage(f.ctx, f.db, a))
	require.NoError(t, CreatePendingImage(f.ctx, f.db, b))
	require.NoError(t, FinalizeImage(f.ctx, f.db, b, 1, "image/png", "u-b"))
	require.NoError(t, FinalizeImage(f.ctx, f.db, a, 1, "image/png", "u-a"))
	assert.True(t, b.IsPrimary)
	assert.False(t, a.IsPrimary)

	require.NoError(t, LoadModDetails(f.ctx, f.db, m))
	require.Len(t, m.Images, 2)
	assert.Equal(t, "u-a", m.Images[0].URL)
}

func positions(t *testing.T, db *gorm.DB, collectionID uuid.UUID) map[uuid.UUID]int {
	t.Helper()
	var entries []CollectionMod
	require.NoError(t, db.Where("collection_id = ?", collectionID).Find(&entries).Error)
	out := map[uuid.UUID]int{}
	for _, e := range entries {
		out[e.ModID] = e.Position
	}
	return out
}

func TestCollectionOrdering(t *testing.T) {
	f := newFixture(t)
	g := f.game(t, "Skyrim", true)
	a := f.mod(t, g, "A", true)
	b := f.mod(t, g, "B", true)
	c := f.mod(t, g, "C", true)

	col := &Collection{UserID: f.author.ID, Name: "Essentials"}
	require.NoError(t, CreateCollection(f.ctx, f.db, col))
	assert.Equal(t, "essentials", col.Slug)

	for _, m := range []*Mod{a, b, c} {
		_, err := AddModToCollection(f.ctx, f.db, col.ID, m.ID)
		require.NoError(t, err)
	}
	_, err := AddModToCollection(f.ctx, f.db, col.ID, a.ID)
	assert.Equal(t, 409, utils.StatusOf(err))
	assert.Equal(t, map[uuid.UUID]int{a.ID: 1, b.ID: 2, c.ID: 3}, positions(t, f.db, col.ID))

	require.NoError(t, RemoveModFromCollection(f.ctx, f.db, col.ID, a.ID))
	assert.Equal(t, map[uuid.UUID]int{b.ID: 1, c.ID: 2}, positions(t, f.db, col.ID))
	assert.True(t, utils.IsNotFound(RemoveModFromCollection(f.ctx, f.db, col.ID, a.ID)))

	require.NoError(t, ReorderCollection(f.ctx, f.db, col.ID, []uuid.UUID{c.ID, b.ID}))
	assert.Equal(t, map[uuid.UUID]int{c.ID: 1, b.ID: 2}, positions(t, f.db, col.ID))

	assert.Equal(t, 400, utils.StatusOf(ReorderCollection(f.ctx, f.db, col.ID, []uuid.UUID{c.ID})))
	assert.Equal(t, 400, utils.StatusOf(ReorderCollection(f.ctx, f.db, col.ID, []uuid.UUID{c.ID, c.ID})))
	assert.Equal(t, 400, utils.StatusOf(ReorderCollection(f.ctx, f.db, col.ID, []uuid.UUID{c.ID, a.ID})))

	// deleting a mod compacts every collection holding it
	_, _, err = DeleteMod(f.ctx, f.rc, f.db, c.ID)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{b.ID: 1}, positions(t, f.db, col.ID))

	entries, total, err := ListCollectionMods(f.ctx, f.db, col.ID, false, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Mod)
	assert.Equal(t, "B", entries[0].Mod.Name)
}

func TestListCollectionsHidesPrivate(t *testing.T) {
	f := newFixture(t)
	g := f.game(t, "Skyrim", true)
	m := f.mod(t, g, "A", true)

	public := &Collection{UserID: f.author.ID, Name: "Public"}
	private := &Collection{UserID: f.author.ID, Name: "Private", IsPrivate: true}
	require.NoError(t, CreateCollection(f.ctx, f.db, public))
	require.NoError(t, CreateCollection(f.ctx, f.db, private))
	_, err := AddModToCollection(f.ctx, f.db, public.ID, m.ID)
	require.NoError(t, err)

	cols, total, err := ListCollections(f.ctx, f.db, CollectionFilter{}, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, cols, 1)
	assert.Equal(t, int64(1), cols[0].ModCount)

	_, total, err = ListCollections(f.ctx, f.db, CollectionFilter{UserID: &f.author.ID, IncludePrivate: true}, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	assert.False(t, private.VisibleTo(nil))
	assert.True(t, private.VisibleTo(f.author))

	require.NoError(t, DeleteCollection(f.ctx, f.db, public.ID))
	_, err = GetCollection(f.ctx, f.db, public.ID, false)
	assert.True(t, utils.IsNotFound(err))
}

func TestSettings(t *testing.T) {
	f := newFixture(t)
	cache := gocache.New(gocache.NoExpiration, 0)

	s, err := GetSettings(f.ctx, f.db, cache)
	require.NoError(t, err)
	assert.True(t, s.AllowRegistration)
	assert.True(t, s.RequireModApproval)
	assert.Equal(t, int64(500*MB), s.MaxFileBytes())
	assert.True(t, s.FileExtensionAllowed(".ZIP"))
	assert.False(t, s.FileExtensionAllowed(".exe"))
	assert.False(t, s.FileExtensionAllowed(""))
	assert.True(t, s.ImageTypeAllowed("image/png"))
	assert.False(t, s.ImageTypeAllowed("image/svg+xml"))

	s.AllowRegistration = false
	s.MaxFilesPerMod = 3
	updated, err := UpdateSettings(f.ctx, f.db, cache, s)
	require.NoError(t, err)
	assert.False(t, updated.AllowRegistration)
	assert.Equal(t, 3, updated.MaxFilesPerMod)

	var rows int64
	f.db.Model(&SystemSettings{}).Count(&rows)
	assert.Equal(t, int64(1), rows)
}

func TestStatsHelpers(t *testing.T) {
	f := newFixture(t)
	g := f.game(t, "Skyrim", true)
	a := f.mod(t, g, "A", true)
	f.mod(t, g, "B", false)
	f.readyFile(t, a, 40)
	require.NoError(t, IncrementDownloads(f.ctx, f.db, a.ID))
	require.NoError(t, IncrementViews(f.ctx, f.db, a.ID))

	counts, err := CountModsByStatus(f.ctx, f.db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[ModStatusApproved])
	assert.Equal(t, int64(1), counts[ModStatusPending])
	assert.Equal(t, int64(0), counts[ModStatusRejected])

	downloads, err := TotalDownloads(f.ctx, f.db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), downloads)

	bytes, err := StoredBytes(f.ctx, f.db)
	require.NoError(t, err)
	assert.Equal(t, int64(40), bytes)

	rejected, err := SetModStatus(f.ctx, f.rc, f.db, a.ID, ModStatusRejected, "broken")
	require.NoError(t, err)
	require.NotNil(t, rejected.Author)
	assert.Equal(t, "author@modhub.test", rejected.Author.Email)
}
