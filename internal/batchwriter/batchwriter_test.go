package batchwriter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrepp/tweetpulse/internal/lock"
	"github.com/jrepp/tweetpulse/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupTestLocks(t *testing.T) *lock.Manager {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return lock.NewManager(client)
}

func sampleRow(id string) model.TweetRow {
	return model.TweetRow{ID: id, Content: "hello", AuthorID: "a1", CreatedAt: time.Now(), Sentiment: model.SentimentNeutral, Confidence: 0.5}
}

func TestBatchWriter_FlushesOnSize(t *testing.T) {
	w := New(nil, setupTestLocks(t), 2, time.Hour, 3)

	var written int32
	w.writeFunc = func(ctx context.Context, rows []model.TweetRow) error {
		atomic.AddInt32(&written, int32(len(rows)))
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()

	w.Add(sampleRow("1"))
	w.Add(sampleRow("2"))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&written) == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()
}

func TestBatchWriter_FinalFlushOnStop(t *testing.T) {
	w := New(nil, setupTestLocks(t), 100, time.Hour, 3)

	var written int32
	w.writeFunc = func(ctx context.Context, rows []model.TweetRow) error {
		atomic.AddInt32(&written, int32(len(rows)))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(ctx)

	w.Add(sampleRow("1"))
	w.Add(sampleRow("2"))
	w.Add(sampleRow("3"))

	w.Stop()

	require.EqualValues(t, 3, atomic.LoadInt32(&written))
	require.Equal(t, 0, w.Pending())
}

func TestBatchWriter_RequeuesOnWriteFailure(t *testing.T) {
	w := New(nil, setupTestLocks(t), 2, time.Hour, 2)

	var attempts int32
	w.writeFunc = func(ctx context.Context, rows []model.TweetRow) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	w.Add(sampleRow("1"))
	w.Add(sampleRow("2"))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) == 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	w.Stop()

	require.Equal(t, 2, w.Pending())
}
