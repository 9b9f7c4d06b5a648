// Package testutil wires throwaway SQLite and Redis instances for tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/AksharDP/modhub/internal/db"
	"github.com/AksharDP/modhub/pkg/logger"
	storage "github.com/AksharDP/modhub/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database migrated with models.
// The pool holds one connection, so code running inside a transaction must only use the tx handle.
func NewDB(t testing.TB, models ...interface{}) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := db.Open(context.Background(), sqlite.Open(dsn), models,
		db.WithLogger(logger.NewNop(), gormLogger.Silent),
		db.WithPool(1, 1, time.Hour),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

// NewRedis starts a miniredis server and a client connected to it.
func NewRedis(t testing.TB) (*storage.RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := storage.NewRedis(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Client.Close() })
	return rc, mr
}
