package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/hera/pkg/fields"
	"github.com/mesh-intelligence/hera/pkg/types"
)

func entity(id, entityType string, created time.Time) *types.Entity {
	return &types.Entity{
		ID:         id,
		EntityType: entityType,
		EntityName: "name-" + id,
		SmartCode:  "HERA.SALON.PRODUCT.ENT.ITEM.V1",
		Status:     types.StatusActive,
		DynamicFields: map[string]types.DynamicFieldValue{
			"price": {Name: "price", Type: fields.TypeNumber, Value: fields.NumberField{V: 12.5}},
		},
		Relationships: map[string][]types.RelationshipInstance{},
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func newRedisCache(t *testing.T, opts ...RedisOption) (*miniredis.Miniredis, *Redis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedis(client, opts...)
}

func implementations(t *testing.T) map[string]Cache {
	_, r := newRedisCache(t)
	return map[string]Cache{
		"memory": NewMemory(),
		"redis":  r,
	}
}

func TestCacheContract(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for name, c := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Merge(ctx, entity("p1", "PRODUCT", base)))
			require.NoError(t, c.Merge(ctx, entity("p2", "PRODUCT", base.Add(time.Hour))))
			require.NoError(t, c.Merge(ctx, entity("s1", "SERVICE", base)))

			got, ok, err := c.Get(ctx, "p1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "name-p1", got.EntityName)
			assert.Equal(t, 12.5, got.Field("price"))

			list, err := c.List(ctx, "PRODUCT")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "p2", list[0].ID, "newest first")

			updated := entity("p1", "PRODUCT", base)
			updated.Status = types.StatusArchived
			require.NoError(t, c.Merge(ctx, updated))
			got, _, err = c.Get(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, types.StatusArchived, got.Status)
			list, _ = c.List(ctx, "PRODUCT")
			assert.Len(t, list, 2, "merge by id must replace, not append")

			require.NoError(t, c.Remove(ctx, "p1"))
			require.NoError(t, c.Remove(ctx, "p1"))
			_, ok, err = c.Get(ctx, "p1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Invalidate(ctx, "PRODUCT"))
			list, err = c.List(ctx, "PRODUCT")
			require.NoError(t, err)
			assert.Empty(t, list)
			_, ok, _ = c.Get(ctx, "p2")
			assert.False(t, ok)
			_, ok, _ = c.Get(ctx, "s1")
			assert.True(t, ok, "invalidate is scoped to one type")
		})
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	e := entity("p1", "PRODUCT", time.Now())
	require.NoError(t, c.Merge(ctx, e))
	e.EntityName = "changed after merge"

	got, _, _ := c.Get(ctx, "p1")
	assert.Equal(t, "name-p1", got.EntityName)
	got.EntityName = "changed after get"
	again, _, _ := c.Get(ctx, "p1")
	assert.Equal(t, "name-p1", again.EntityName)
	assert.Equal(t, 1, c.Len())
}

func TestRedisTTL(t *testing.T) {
	ctx := context.Background()
	mr, c := newRedisCache(t, WithTTL(time.Minute), WithKeyPrefix("test:"))
	require.NoError(t, c.Merge(ctx, entity("p1", "PRODUCT", time.Now())))
	assert.True(t, mr.Exists("test:type:PRODUCT"))
	assert.Equal(t, time.Minute, mr.TTL("test:type:PRODUCT"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Ping(ctx))
}

func TestRedisSkipsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	mr, c := newRedisCache(t)
	require.NoError(t, c.Merge(ctx, entity("p1", "PRODUCT", time.Now())))
	mr.HSet(DefaultKeyPrefix+"type:PRODUCT", "p2", "{not json")

	list, err := c.List(ctx, "PRODUCT")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p1", list[0].ID)
}
