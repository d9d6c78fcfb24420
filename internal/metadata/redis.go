// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pdiddy/scholarqa/pkg/types"
)

const redisKeyPrefix = "scholarqa:paper:"

// RedisCache stores metadata as JSON strings under scholarqa:paper:<id>.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache wraps client. ttl <= 0 stores entries without expiry.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger.Named("redis-cache")}
}

func redisKey(id string) string { return redisKeyPrefix + id }

// GetMany reads ids with one MGET. Undecodable entries are skipped.
func (c *RedisCache) GetMany(ctx context.Context, ids []string) (map[string]types.PaperMetadata, error) {
	out := make(map[string]types.PaperMetadata, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisKey(id)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return out, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var p types.PaperMetadata
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			c.logger.Warn("dropping undecodable cache entry", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		out[ids[i]] = p
	}
	return out, nil
}

// PutMany writes papers in one pipeline.
func (c *RedisCache) PutMany(ctx context.Context, papers []types.PaperMetadata) error {
	if len(papers) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, p := range papers {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshaling metadata %s: %w", p.DocID, err)
		}
		pipe.Set(ctx, redisKey(p.DocID), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}
