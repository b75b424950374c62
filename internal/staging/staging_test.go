package staging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrepp/tweetpulse/internal/model"
	"github.com/stretchr/testify/require"
)

func sampleRecord(id string) model.EnrichedRecord {
	return model.EnrichedRecord{
		RawMessage: model.RawMessage{
			ID:        id,
			Content:   "hello world",
			AuthorID:  "author-1",
			CreatedAt: time.Now(),
			Language:  "en",
		},
		CleanedText: "hello world",
		Sentiment:   model.SentimentNeutral,
		Confidence:  0.6,
	}
}

func TestBuffer_FlushesAtLimit(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, 2)

	path, err := b.Append(sampleRecord("1"))
	require.NoError(t, err)
	require.Empty(t, path)
	require.Equal(t, 1, b.Pending())

	path, err = b.Append(sampleRecord("2"))
	require.NoError(t, err)
	require.NotEmpty(t, path)
	require.Equal(t, 0, b.Pending())
	require.FileExists(t, path)
}

func TestBuffer_ExplicitFlush(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, 1000)

	_, err := b.Append(sampleRecord("1"))
	require.NoError(t, err)

	path, err := b.Flush()
	require.NoError(t, err)
	require.NotEmpty(t, path)
	require.Equal(t, 0, b.Pending())
}

func TestBuffer_FlushEmptyIsNoop(t *testing.T) {
	b := New(t.TempDir(), 1000)

	path, err := b.Flush()
	require.NoError(t, err)
	require.Empty(t, path)
}

func TestBuffer_CleanupRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, 1000)

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	b.nowFunc = func() time.Time { return now.Add(-10 * 24 * time.Hour) }
	_, err := b.Append(sampleRecord("old"))
	require.NoError(t, err)
	_, err = b.Flush()
	require.NoError(t, err)

	b.nowFunc = func() time.Time { return now }
	_, err = b.Append(sampleRecord("new"))
	require.NoError(t, err)
	_, err = b.Flush()
	require.NoError(t, err)

	b.nowFunc = func() time.Time { return now }
	removed, err := b.Cleanup(7)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	entries, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestBuffer_CleanupSkipsMalformedNames(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, 1000)

	badPath := filepath.Join(dir, "not-a-staging-file.txt")
	require.NoError(t, os.WriteFile(badPath, []byte("junk"), 0o644))

	removed, err := b.Cleanup(0)
	require.NoError(t, err)
	require.Equal(t, 0, removed)
	require.FileExists(t, badPath)
}
