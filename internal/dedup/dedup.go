// Package dedup implements probabilistic deduplication: a cheap approximate
// filter guards an authoritative confirmation set so a steady stream of
// never-seen IDs costs one round-trip, while an ID that might have been
// seen gets a second, definitive check.
package dedup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("tweetpulse/dedup")

// confirmationSetKey is fixed and shared across all filter instances. It
// must never be derived from the approximate filter's own key: doing so
// would make the confirmation check query the filter instead of the
// authoritative set, silently turning every false positive into a
// permanent false negative. See the "Deduplicator key-naming pitfall" in
// the design notes.
const confirmationSetKey = "dedup:seen"

const bloomKey = "dedup:bloom"

// ApproximateFilter is a probabilistic set membership test: false
// positives are possible, false negatives are not.
type ApproximateFilter interface {
	// Exists reports whether id may have been added before.
	Exists(ctx context.Context, id string) (bool, error)
	// Add records id in the filter. Idempotent.
	Add(ctx context.Context, id string) error
}

// Deduplicator answers "have I seen this ID before" using an
// ApproximateFilter to short-circuit the common case and the fixed
// dedup:seen Redis set as the authoritative source of truth.
type Deduplicator struct {
	client *redis.Client
	filter ApproximateFilter
}

// New builds a Deduplicator using filter as the approximate layer and
// client's dedup:seen set as the confirmation layer.
func New(client *redis.Client, filter ApproximateFilter) *Deduplicator {
	return &Deduplicator{client: client, filter: filter}
}

// IsDuplicate reports whether id has already been processed. Must be
// called before enrichment and storage for every message, and the call
// itself records id as seen — it is not a pure read.
func (d *Deduplicator) IsDuplicate(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "dedup.IsDuplicate")
	defer span.End()

	exists, err := d.filter.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("dedup: filter exists check: %w", err)
	}

	if !exists {
		// Definitely never seen: record it in both layers and move on.
		if err := d.filter.Add(ctx, id); err != nil {
			return false, fmt.Errorf("dedup: filter add: %w", err)
		}
		if err := d.client.SAdd(ctx, confirmationSetKey, id).Err(); err != nil {
			return false, fmt.Errorf("dedup: confirmation add: %w", err)
		}
		return false, nil
	}

	// Filter says "maybe": confirm against the authoritative set.
	confirmed, err := d.client.SIsMember(ctx, confirmationSetKey, id).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: confirmation check: %w", err)
	}

	if confirmed {
		return true, nil
	}

	// False positive from the filter: not actually seen before. Record it
	// properly (the filter add is a no-op for a bloom filter but keeps
	// other ApproximateFilter implementations consistent) and let it through.
	if err := d.filter.Add(ctx, id); err != nil {
		return false, fmt.Errorf("dedup: filter add after false positive: %w", err)
	}
	if err := d.client.SAdd(ctx, confirmationSetKey, id).Err(); err != nil {
		return false, fmt.Errorf("dedup: confirmation add after false positive: %w", err)
	}
	return false, nil
}
