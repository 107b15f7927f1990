package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicely/internal/cache"
	directorydomain "github.com/smallbiznis/invoicely/internal/directory/domain"
	"github.com/smallbiznis/invoicely/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func seed(t *testing.T) *gorm.DB {
	t.Helper()
	conn := dbtest.Open(t, &directorydomain.Client{}, &directorydomain.CatalogItem{})
	now := time.Now().UTC()
	rate := decimal.NewFromInt(2500)
	require.NoError(t, conn.Create(&directorydomain.Client{
		ID: 5, OrgID: 1, Name: "Acme", Email: "ap@acme.test", GSTIN: "29ABCDE1234F1Z5", CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, conn.Create(&directorydomain.CatalogItem{
		ID: 9, OrgID: 1, Name: "Hosting", HSNSAC: "998315", GSTRate: decimal.NewFromInt(18), Rate: &rate, CreatedAt: now, UpdatedAt: now,
	}).Error)
	return conn
}

func TestLookupsAreOrgScoped(t *testing.T) {
	ctx := context.Background()
	dir := Provide(seed(t))

	client, err := dir.GetClient(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, "Acme", client.Name)
	assert.Equal(t, "29ABCDE1234F1Z5", client.GSTIN)

	_, err = dir.GetClient(ctx, 2, 5)
	assert.ErrorIs(t, err, directorydomain.ErrClientNotFound)

	item, err := dir.GetCatalogItem(ctx, 1, 9)
	require.NoError(t, err)
	assert.Equal(t, "998315", item.HSNSAC)
	assert.True(t, item.GSTRate.Equal(decimal.NewFromInt(18)))

	_, err = dir.GetCatalogItem(ctx, 1, 10)
	assert.ErrorIs(t, err, directorydomain.ErrCatalogItemNotFound)
}

func TestCachedServesRepeatLookups(t *testing.T) {
	ctx := context.Background()
	conn := seed(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	dir := NewCached(Provide(conn), cache.NewJSONCache(rdb, "dir:"), time.Minute, zap.NewNop())

	first, err := dir.GetClient(ctx, 1, 5)
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`UPDATE clients SET name = ? WHERE id = ?`, "Acme Renamed", 5).Error)

	second, err := dir.GetClient(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, first.Name, second.Name)

	mr.FlushAll()
	third, err := dir.GetClient(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, "Acme Renamed", third.Name)
}

func TestCachedFallsThroughWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	conn := seed(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	dir := NewCached(Provide(conn), cache.NewJSONCache(rdb, "dir:"), time.Minute, zap.NewNop())
	item, err := dir.GetCatalogItem(ctx, 1, 9)
	require.NoError(t, err)
	assert.Equal(t, "Hosting", item.Name)
}
