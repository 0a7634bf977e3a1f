package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/storybook-api/internal/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCartRepo_SaveAndLoad(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewCartRepository(client, time.Hour)
	ctx := context.Background()
	userID := uuid.New()

	items := []model.CartItem{{
		ID: "b1", Type: model.ItemTypeCustomBook, Price: decimal.NewFromFloat(499.5), Quantity: 1,
		Images: []model.ImageDescriptor{{URL: "https://cdn/x.png", Path: "artwork/u1/x.png", Name: "x.png"}},
	}}
	require.NoError(t, repo.Save(ctx, userID, items))
	assert.Equal(t, time.Hour, mr.TTL(cartKey(userID)))

	loaded, err := repo.Load(ctx, userID)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "b1", loaded[0].ID)
	assert.True(t, items[0].Price.Equal(loaded[0].Price))
	assert.Equal(t, "artwork/u1/x.png", loaded[0].Images[0].Path)
}

func TestCartRepo_LoadMissing(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewCartRepository(client, time.Hour)

	items, err := repo.Load(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestCartRepo_SaveEmptyDeletes(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewCartRepository(client, time.Hour)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, repo.Save(ctx, userID, []model.CartItem{{ID: "a", Price: decimal.NewFromInt(1)}}))
	require.NoError(t, repo.Save(ctx, userID, nil))
	assert.False(t, mr.Exists(cartKey(userID)))
}

func TestCartRepo_SaveFailsWhenRedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewCartRepository(client, time.Hour)
	mr.Close()

	err := repo.Save(context.Background(), uuid.New(), []model.CartItem{{ID: "a"}})
	assert.Error(t, err)
}
