package stream

import (
	"context"
	"testing"
	"time"

	"github.com/jrepp/tweetpulse/internal/model"
	"github.com/stretchr/testify/require"
)

func TestParseRawMessage(t *testing.T) {
	fields := map[string]string{
		"id":            "t1",
		"content":       "hello world",
		"author_id":     "a1",
		"created_at":    "2026-07-30T12:00:00Z",
		"language":      "en",
		"retweet_count": "5",
		"like_count":    "10",
	}

	msg, err := ParseRawMessage("stream-id-1", fields)
	require.NoError(t, err)
	require.Equal(t, "t1", msg.ID)
	require.Equal(t, "hello world", msg.Content)
	require.Equal(t, "en", msg.Language)
	require.Equal(t, int64(5), msg.Engagement.RetweetCount)
	require.Equal(t, int64(10), msg.Engagement.LikeCount)
	require.Equal(t, 2026, msg.CreatedAt.Year())
}

func TestParseRawMessage_MissingContentErrors(t *testing.T) {
	_, err := ParseRawMessage("stream-id-1", map[string]string{"id": "t1"})
	require.Error(t, err)
}

func TestParseRawMessage_FallsBackToStreamIDWhenIDFieldMissing(t *testing.T) {
	msg, err := ParseRawMessage("stream-id-1", map[string]string{"content": "hi"})
	require.NoError(t, err)
	require.Equal(t, "stream-id-1", msg.ID)
}

func TestRun_DeliversEntryToProcessor(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := store.Add(ctx, map[string]string{"id": "t1", "content": "hello"})
	require.NoError(t, err)

	processed := make(chan model.RawMessage, 1)

	go Run(ctx, store, "worker-0", func(ctx context.Context, msg model.RawMessage) error {
		processed <- msg
		return nil
	})

	select {
	case msg := <-processed:
		require.Equal(t, "t1", msg.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message to be processed")
	}

	cancel()
}
