package dedup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBloomFilter is the production ApproximateFilter, backed by the
// RedisBloom module's BF.ADD/BF.EXISTS commands so the filter state is
// shared across every pipeline worker and process.
type RedisBloomFilter struct {
	client *redis.Client
	key    string
}

// NewRedisBloomFilter creates a filter over the fixed key, matching the
// original's "dedup:bloom" name. RedisBloom initializes the filter with
// its default error rate and capacity on first BF.ADD; no explicit
// BF.RESERVE is issued, matching the original's behavior.
func NewRedisBloomFilter(client *redis.Client) *RedisBloomFilter {
	return &RedisBloomFilter{client: client, key: bloomKey}
}

// Exists reports whether id may already be in the filter.
func (f *RedisBloomFilter) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := f.client.BFExists(ctx, f.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("bloom: BF.EXISTS: %w", err)
	}
	return ok, nil
}

// Add records id in the filter.
func (f *RedisBloomFilter) Add(ctx context.Context, id string) error {
	if _, err := f.client.BFAdd(ctx, f.key, id).Result(); err != nil {
		return fmt.Errorf("bloom: BF.ADD: %w", err)
	}
	return nil
}
