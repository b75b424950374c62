// Package stream implements the stream consumer: reading tweet messages off
// a Redis Stream consumer group, decoding them, and acknowledging only on
// successful processing, matching spec §4.8. The StreamStore interface is
// backend-agnostic: kafka_store.go implements it over Kafka for the optional
// search-indexing mirror, which supports only Add, so Run does not consume
// from it.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is one message read off a stream, with its transport-assigned ID
// and decoded string fields.
type Entry struct {
	ID     string
	Fields map[string]string
}

// StreamStore is the minimal surface a stream consumer needs: produce,
// consume-as-a-group, and acknowledge.
type StreamStore interface {
	// EnsureGroup idempotently creates the consumer group at startID
	// ("0" for the beginning, "$" for only new entries), creating the
	// stream itself if it doesn't exist yet.
	EnsureGroup(ctx context.Context, startID string) error

	// Read blocks for up to block waiting for up to count new entries
	// for consumerName in the group.
	Read(ctx context.Context, consumerName string, count int64, block time.Duration) ([]Entry, error)

	// Ack acknowledges a successfully processed entry.
	Ack(ctx context.Context, id string) error

	// Add appends a new entry to the stream (used by the upstream connector).
	Add(ctx context.Context, fields map[string]string) (string, error)
}

// RedisStreamStore implements StreamStore over a Redis Stream and consumer group.
type RedisStreamStore struct {
	client *redis.Client
	stream string
	group  string
}

// New creates a RedisStreamStore bound to stream/group.
func New(client *redis.Client, stream, group string) *RedisStreamStore {
	return &RedisStreamStore{client: client, stream: stream, group: group}
}

// StartIDFor translates spec §6's STREAM_START_FROM values into the Redis
// XGROUP CREATE starting ID.
func StartIDFor(startFrom string) string {
	if startFrom == "beginning" {
		return "0"
	}
	return "$"
}

// EnsureGroup implements StreamStore.
func (s *RedisStreamStore) EnsureGroup(ctx context.Context, startID string) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, startID).Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("stream: create group %s on %s: %w", s.group, s.stream, err)
	}
	return nil
}

// Read implements StreamStore.
func (s *RedisStreamStore) Read(ctx context.Context, consumerName string, count int64, block time.Duration) ([]Entry, error) {
	res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: consumerName,
		Streams:  []string{s.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stream: read group %s: %w", s.group, err)
	}

	var entries []Entry
	for _, streamResult := range res {
		for _, msg := range streamResult.Messages {
			fields := make(map[string]string, len(msg.Values))
			for k, v := range msg.Values {
				if s, ok := v.(string); ok {
					fields[k] = s
				} else {
					fields[k] = fmt.Sprintf("%v", v)
				}
			}
			entries = append(entries, Entry{ID: msg.ID, Fields: fields})
		}
	}

	return entries, nil
}

// Ack implements StreamStore.
func (s *RedisStreamStore) Ack(ctx context.Context, id string) error {
	if err := s.client.XAck(ctx, s.stream, s.group, id).Err(); err != nil {
		return fmt.Errorf("stream: ack %s: %w", id, err)
	}
	return nil
}

// Add implements StreamStore.
func (s *RedisStreamStore) Add(ctx context.Context, fields map[string]string) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("stream: add: %w", err)
	}

	return id, nil
}

var _ StreamStore = (*RedisStreamStore)(nil)
