package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewManager(client), mr
}

func TestManager_AcquireRelease(t *testing.T) {
	mgr, _ := setupTestManager(t)
	ctx := context.Background()

	l, err := mgr.Acquire(ctx, "batch_writer_flush:100", 30*time.Second)
	require.NoError(t, err)
	require.Contains(t, mgr.ActiveLockNames(), "batch_writer_flush:100")

	_, err = mgr.Acquire(ctx, "batch_writer_flush:100", 30*time.Second)
	require.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, l.Release(ctx))
	require.NotContains(t, mgr.ActiveLockNames(), "batch_writer_flush:100")

	l2, err := mgr.Acquire(ctx, "batch_writer_flush:100", 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, l2.Release(ctx))
}

func TestLock_ReleaseAfterExpiry(t *testing.T) {
	mgr, mr := setupTestManager(t)
	ctx := context.Background()

	l, err := mgr.Acquire(ctx, "staging_flush", 1*time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	err = l.Release(ctx)
	require.Error(t, err)
}

func TestLock_Extend(t *testing.T) {
	mgr, mr := setupTestManager(t)
	ctx := context.Background()

	l, err := mgr.Acquire(ctx, "batch_writer_flush:100", 1*time.Second)
	require.NoError(t, err)

	require.NoError(t, l.Extend(ctx, 15))

	mr.FastForward(1100 * time.Millisecond)

	require.NoError(t, l.Release(ctx))
}

func TestLock_ExtendAfterLost(t *testing.T) {
	mgr, _ := setupTestManager(t)
	ctx := context.Background()

	l, err := mgr.Acquire(ctx, "name", 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))

	l2, err := mgr.Acquire(ctx, "name", 30*time.Second)
	require.NoError(t, err)
	defer l2.Release(ctx)

	err = l.Extend(ctx, 15)
	require.Error(t, err)
}

func TestManager_CleanupStaleLocks(t *testing.T) {
	mgr, mr := setupTestManager(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(keyPrefix+"orphan", "some-token"))

	l, err := mgr.Acquire(ctx, "healthy", 30*time.Second)
	require.NoError(t, err)
	defer l.Release(ctx)

	removed, err := mgr.CleanupStaleLocks(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	require.True(t, mr.Exists(keyPrefix+"healthy"))
	require.False(t, mr.Exists(keyPrefix+"orphan"))
}
