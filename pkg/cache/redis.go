package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/hera/pkg/types"
)

// DefaultKeyPrefix namespaces every key the Redis cache writes.
const DefaultKeyPrefix = "hera:cache:"

// Redis is a Cache shared between processes. Entities of one type live in a
// hash keyed by id; a second hash maps each id to its type so Get and Remove
// need only the id.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithTTL expires a type's entries ttl after its last write. Zero keeps them
// until invalidated.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RedisOption {
	return func(r *Redis) { r.logger = l }
}

// NewRedis returns a cache backed by client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: DefaultKeyPrefix, logger: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Redis) typeKey(entityType string) string { return r.prefix + "type:" + entityType }
func (r *Redis) indexKey() string                  { return r.prefix + "index" }

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, id string) (*types.Entity, bool, error) {
	entityType, err := r.client.HGet(ctx, r.indexKey(), id).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache index %s: %w", id, err)
	}
	data, err := r.client.HGet(ctx, r.typeKey(entityType), id).Bytes()
	if err == redis.Nil {
		// The type hash expired or was invalidated under the index entry.
		r.client.HDel(ctx, r.indexKey(), id)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", id, err)
	}
	var e types.Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("cache decode %s: %w", id, err)
	}
	return &e, true, nil
}

// List implements Cache.
func (r *Redis) List(ctx context.Context, entityType string) ([]*types.Entity, error) {
	all, err := r.client.HGetAll(ctx, r.typeKey(entityType)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache list %s: %w", entityType, err)
	}
	out := make([]*types.Entity, 0, len(all))
	for id, data := range all {
		var e types.Entity
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			r.logger.Warn("dropping undecodable cache entry",
				zap.String("entity_type", entityType), zap.String("entity_id", id), zap.Error(err))
			continue
		}
		out = append(out, &e)
	}
	SortNewestFirst(out)
	return out, nil
}

// Merge implements Cache.
func (r *Redis) Merge(ctx context.Context, e *types.Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", e.ID, err)
	}
	typeKey := r.typeKey(e.EntityType)
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, typeKey, e.ID, data)
		p.HSet(ctx, r.indexKey(), e.ID, e.EntityType)
		if r.ttl > 0 {
			p.Expire(ctx, typeKey, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache merge %s: %w", e.ID, err)
	}
	return nil
}

// Remove implements Cache.
func (r *Redis) Remove(ctx context.Context, id string) error {
	entityType, err := r.client.HGet(ctx, r.indexKey(), id).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache index %s: %w", id, err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, r.typeKey(entityType), id)
		p.HDel(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache remove %s: %w", id, err)
	}
	return nil
}

// Invalidate implements Cache.
func (r *Redis) Invalidate(ctx context.Context, entityType string) error {
	typeKey := r.typeKey(entityType)
	ids, err := r.client.HKeys(ctx, typeKey).Result()
	if err != nil {
		return fmt.Errorf("cache invalidate %s: %w", entityType, err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if len(ids) > 0 {
			p.HDel(ctx, r.indexKey(), ids...)
		}
		p.Del(ctx, typeKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache invalidate %s: %w", entityType, err)
	}
	return nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
