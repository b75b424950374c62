package connector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNatsPayload_ToFields(t *testing.T) {
	payload := natsPayload{
		ID:           "t1",
		Content:      "hello",
		AuthorID:     "a1",
		CreatedAt:    "2026-07-30T12:00:00Z",
		Language:     "en",
		RetweetCount: 3,
		LikeCount:    7,
	}

	fields := payload.toFields()
	require.Equal(t, "t1", fields["id"])
	require.Equal(t, "hello", fields["content"])
	require.Equal(t, "3", fields["retweet_count"])
	require.Equal(t, "7", fields["like_count"])
	require.Equal(t, "0", fields["quote_count"])
	require.Equal(t, "2026-07-30T12:00:00Z", fields["created_at"])
}

func TestNatsPayload_ToFields_DefaultsCreatedAt(t *testing.T) {
	payload := natsPayload{ID: "t1", Content: "hello"}
	fields := payload.toFields()
	require.NotEmpty(t, fields["created_at"])
}
