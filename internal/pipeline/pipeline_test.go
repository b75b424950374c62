package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrepp/tweetpulse/internal/batchwriter"
	"github.com/jrepp/tweetpulse/internal/cache"
	"github.com/jrepp/tweetpulse/internal/dedup"
	"github.com/jrepp/tweetpulse/internal/enrich"
	"github.com/jrepp/tweetpulse/internal/lock"
	"github.com/jrepp/tweetpulse/internal/model"
	"github.com/jrepp/tweetpulse/internal/staging"
	"github.com/jrepp/tweetpulse/internal/storage"
	"github.com/jrepp/tweetpulse/internal/stream"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeStreamStore is an in-process StreamStore so pipeline tests don't need
// a real consumer group, just the Add/Read/Ack contract.
type fakeStreamStore struct {
	mu      sync.Mutex
	entries []stream.Entry
	acked   map[string]bool
}

func newFakeStreamStore() *fakeStreamStore {
	return &fakeStreamStore{acked: make(map[string]bool)}
}

func (f *fakeStreamStore) EnsureGroup(ctx context.Context, startID string) error { return nil }

func (f *fakeStreamStore) Read(ctx context.Context, consumerName string, count int64, block time.Duration) ([]stream.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []stream.Entry
	for _, e := range f.entries {
		if !f.acked[e.ID] {
			out = append(out, e)
		}
	}
	if out == nil {
		time.Sleep(block)
	}
	return out, nil
}

func (f *fakeStreamStore) Ack(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked[id] = true
	return nil
}

func (f *fakeStreamStore) Add(ctx context.Context, fields map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fields["id"]
	f.entries = append(f.entries, stream.Entry{ID: id, Fields: fields})
	return id, nil
}

var _ stream.StreamStore = (*fakeStreamStore)(nil)

func TestPipeline_ProcessOneEndToEnd(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := newFakeStreamStore()
	dedupe := dedup.New(client, dedup.NewMemoryFilter(100))
	enricher := enrich.NewFromConfig("lite", "development", "")
	hotCache := cache.New(client)
	stagingBuf := staging.New(t.TempDir(), 1000)
	storageSink := storage.New(hotCache, stagingBuf)
	locks := lock.NewManager(client)

	var written []model.TweetRow
	var writtenMu sync.Mutex
	writer := batchwriter.New(nil, locks, 10, time.Minute, 3)
	writer.SetWriteFunc(func(ctx context.Context, rows []model.TweetRow) error {
		writtenMu.Lock()
		defer writtenMu.Unlock()
		written = append(written, rows...)
		return nil
	})

	p := New(store, nil, dedupe, enricher, storageSink, writer, locks, 1, "beginning", nil)

	require.NoError(t, p.Start(context.Background()))
	require.Equal(t, StateRunning, p.State())

	_, err := store.Add(context.Background(), map[string]string{
		"id":         "t1",
		"content":    "this is a wonderful and amazing day",
		"author_id": "a1",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		writtenMu.Lock()
		defer writtenMu.Unlock()
		return len(written) == 0 && writer.Pending() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Stop(context.Background()))
	require.Equal(t, StateStopped, p.State())

	writtenMu.Lock()
	defer writtenMu.Unlock()
	require.Len(t, written, 1)
	require.Equal(t, "t1", written[0].ID)
}

func TestPipeline_DuplicateMessageIsNotRequeued(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	dedupe := dedup.New(client, dedup.NewMemoryFilter(100))
	enricher := enrich.NewFromConfig("lite", "development", "")
	hotCache := cache.New(client)
	stagingBuf := staging.New(t.TempDir(), 1000)
	storageSink := storage.New(hotCache, stagingBuf)
	locks := lock.NewManager(client)
	writer := batchwriter.New(nil, locks, 10, time.Minute, 3)
	writer.SetWriteFunc(func(ctx context.Context, rows []model.TweetRow) error { return nil })

	p := New(newFakeStreamStore(), nil, dedupe, enricher, storageSink, writer, locks, 1, "beginning", nil)

	msg := model.RawMessage{ID: "dup1", Content: "hello there"}
	require.NoError(t, p.processOne(context.Background(), msg))
	require.Equal(t, 1, writer.Pending())

	require.NoError(t, p.processOne(context.Background(), msg))
	require.Equal(t, 1, writer.Pending(), "second delivery of the same id must not be re-queued")
}

func TestPipeline_MirrorsToSearchIndex(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	dedupe := dedup.New(client, dedup.NewMemoryFilter(100))
	enricher := enrich.NewFromConfig("lite", "development", "")
	hotCache := cache.New(client)
	stagingBuf := staging.New(t.TempDir(), 1000)
	storageSink := storage.New(hotCache, stagingBuf)
	locks := lock.NewManager(client)
	writer := batchwriter.New(nil, locks, 10, time.Minute, 3)
	writer.SetWriteFunc(func(ctx context.Context, rows []model.TweetRow) error { return nil })

	mirror := newFakeStreamStore()
	p := New(newFakeStreamStore(), nil, dedupe, enricher, storageSink, writer, locks, 1, "beginning", mirror)

	msg := model.RawMessage{ID: "idx1", Content: "breaking news from the search index"}
	require.NoError(t, p.processOne(context.Background(), msg))

	require.Len(t, mirror.entries, 1)
	require.Equal(t, "idx1", mirror.entries[0].ID)
}
