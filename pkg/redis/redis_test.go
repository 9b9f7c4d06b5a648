package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := NewRedis(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Client.Close() })
	return rc, mr
}

func TestNewRedisUnreachable(t *testing.T) {
	_, err := NewRedis(context.Background(), "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}

func TestJSONRoundTripAndMiss(t *testing.T) {
	rc, mr := newTestRedis(t)
	ctx := context.Background()

	type game struct {
		Slug string `json:"slug"`
	}

	var g game
	found, err := rc.GetJSON(ctx, "game:skyrim", &g)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, rc.SetJSON(ctx, "game:skyrim", game{Slug: "skyrim"}, 10*time.Minute))
	found, err = rc.GetJSON(ctx, "game:skyrim", &g)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "skyrim", g.Slug)

	mr.FastForward(11 * time.Minute)
	found, err = rc.GetJSON(ctx, "game:skyrim", &g)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidatePrefix(t *testing.T) {
	rc, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("games:list:1:20:", "x"))
	require.NoError(t, mr.Set("games:list:2:20:", "x"))
	require.NoError(t, mr.Set("game:other", "x"))

	require.NoError(t, rc.InvalidatePrefix(ctx, "games:list:"))
	assert.False(t, mr.Exists("games:list:1:20:"))
	assert.False(t, mr.Exists("games:list:2:20:"))
	assert.True(t, mr.Exists("game:other"))
	assert.NoError(t, rc.Invalidate(ctx))
}

func TestOnceAndHit(t *testing.T) {
	rc, mr := newTestRedis(t)
	ctx := context.Background()

	first, err := rc.Once(ctx, "dl:mod:ip", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
	again, err := rc.Once(ctx, "dl:mod:ip", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	for i := int64(1); i <= 3; i++ {
		n, err := rc.Hit(ctx, "login:ip", 15*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	assert.Equal(t, 15*time.Minute, mr.TTL("login:ip"))
}
