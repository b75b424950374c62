package dedup

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupTestDedup(t *testing.T) (*Deduplicator, *redis.Client) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	// miniredis doesn't implement the RedisBloom module, so unit tests
	// exercise the confirmation-set logic against the in-memory filter,
	// which presents the same ApproximateFilter contract.
	filter := NewMemoryFilter(1000)

	return New(client, filter), client
}

func TestDeduplicator_FirstSeenIsNotDuplicate(t *testing.T) {
	d, _ := setupTestDedup(t)
	ctx := context.Background()

	dup, err := d.IsDuplicate(ctx, "tweet-1")
	require.NoError(t, err)
	require.False(t, dup)
}

func TestDeduplicator_SecondSeenIsDuplicate(t *testing.T) {
	d, _ := setupTestDedup(t)
	ctx := context.Background()

	_, err := d.IsDuplicate(ctx, "tweet-1")
	require.NoError(t, err)

	dup, err := d.IsDuplicate(ctx, "tweet-1")
	require.NoError(t, err)
	require.True(t, dup)
}

func TestDeduplicator_DistinctIDsAreIndependent(t *testing.T) {
	d, _ := setupTestDedup(t)
	ctx := context.Background()

	_, err := d.IsDuplicate(ctx, "tweet-1")
	require.NoError(t, err)

	dup, err := d.IsDuplicate(ctx, "tweet-2")
	require.NoError(t, err)
	require.False(t, dup)
}

func TestDeduplicator_FalsePositiveFallsThroughToConfirmationSet(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	// A filter that always claims "maybe seen" simulates a false positive
	// for an ID that was never actually confirmed.
	d := New(client, alwaysMaybeFilter{})

	dup, err := d.IsDuplicate(ctx, "never-really-seen")
	require.NoError(t, err)
	require.False(t, dup)

	// Now it really has been confirmed, so a repeat is a true duplicate.
	dup, err = d.IsDuplicate(ctx, "never-really-seen")
	require.NoError(t, err)
	require.True(t, dup)
}

type alwaysMaybeFilter struct{}

func (alwaysMaybeFilter) Exists(ctx context.Context, id string) (bool, error) { return true, nil }
func (alwaysMaybeFilter) Add(ctx context.Context, id string) error           { return nil }
