// Package cache implements the hot cache: a short-lived, pipelined Redis
// write of each enriched record plus the rolling "recent" and
// "by sentiment" indexes used for fast reads, matching spec §4.4 exactly.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrepp/tweetpulse/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	ttl            = 24 * time.Hour
	recentListKey  = "tweets:recent"
	recentListCap  = 1000
	statsCachedKey = "stats:cached_tweets"
)

// HotCache is the read/write surface the pipeline uses for recently-seen records.
type HotCache interface {
	Store(ctx context.Context, rec model.EnrichedRecord) error
	Get(ctx context.Context, id string) (model.EnrichedRecord, bool, error)
	Recent(ctx context.Context, limit int64) ([]string, error)
	BySentiment(ctx context.Context, sentiment model.Sentiment, count int) ([]string, error)
}

// RedisHotCache implements HotCache over a single Redis client.
type RedisHotCache struct {
	client *redis.Client
}

// New creates a RedisHotCache.
func New(client *redis.Client) *RedisHotCache {
	return &RedisHotCache{client: client}
}

func recordKey(id string) string { return "tweet:" + id }

func sentimentSetKey(sentiment model.Sentiment) string {
	return "tweets:by_sentiment:" + string(sentiment)
}

// Store writes rec's hash, prepends it to the recent list (trimmed to
// 1000), adds it to its sentiment set, and bumps the cached-tweet counter
// — all in one pipelined transaction, matching the original's
// asyncio-gathered Redis pipeline.
func (c *RedisHotCache) Store(ctx context.Context, rec model.EnrichedRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("hotcache: marshal record %s: %w", rec.ID, err)
	}

	key := recordKey(rec.ID)

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"data":      payload,
			"sentiment": string(rec.Sentiment),
		})
		pipe.Expire(ctx, key, ttl)
		pipe.LPush(ctx, recentListKey, rec.ID)
		pipe.LTrim(ctx, recentListKey, 0, recentListCap-1)
		sentKey := sentimentSetKey(rec.Sentiment)
		pipe.SAdd(ctx, sentKey, rec.ID)
		pipe.Expire(ctx, sentKey, ttl)
		pipe.Incr(ctx, statsCachedKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("hotcache: store %s: %w", rec.ID, err)
	}

	return nil
}

// Get retrieves a cached record by ID.
func (c *RedisHotCache) Get(ctx context.Context, id string) (model.EnrichedRecord, bool, error) {
	data, err := c.client.HGet(ctx, recordKey(id), "data").Result()
	if err == redis.Nil {
		return model.EnrichedRecord{}, false, nil
	}
	if err != nil {
		return model.EnrichedRecord{}, false, fmt.Errorf("hotcache: get %s: %w", id, err)
	}

	var rec model.EnrichedRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return model.EnrichedRecord{}, false, fmt.Errorf("hotcache: unmarshal %s: %w", id, err)
	}

	return rec, true, nil
}

// Recent returns up to limit of the most recently stored IDs, newest first.
func (c *RedisHotCache) Recent(ctx context.Context, limit int64) ([]string, error) {
	if limit <= 0 || limit > recentListCap {
		limit = recentListCap
	}
	ids, err := c.client.LRange(ctx, recentListKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("hotcache: recent: %w", err)
	}
	return ids, nil
}

// BySentiment returns up to count random IDs cached under sentiment.
func (c *RedisHotCache) BySentiment(ctx context.Context, sentiment model.Sentiment, count int) ([]string, error) {
	ids, err := c.client.SRandMemberN(ctx, sentimentSetKey(sentiment), int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("hotcache: by sentiment %s: %w", sentiment, err)
	}
	return ids, nil
}

var _ HotCache = (*RedisHotCache)(nil)
