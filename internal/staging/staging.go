// Package staging implements the staging buffer: an in-memory accumulation
// of enriched records that flushes to a columnar Parquet file on disk when it
// reaches its limit or on an explicit Flush, matching spec §4.5. Files are named from their UTC flush time
// and written with dictionary encoding and Snappy compression.
package staging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jrepp/tweetpulse/internal/model"
	"github.com/parquet-go/parquet-go"
)

const defaultBufferLimit = 1000

// parquetRow is the on-disk row shape. Dictionary encoding is requested on
// the id, author_id, language and sentiment columns; the other columns use
// the writer's default encoding.
type parquetRow struct {
	ID              string `parquet:"id,dict"`
	Content         string `parquet:"content"`
	AuthorID        string `parquet:"author_id,dict"`
	CreatedAt       int64  `parquet:"created_at,timestamp"`
	Language        string `parquet:"language,dict"`
	Sentiment       string `parquet:"sentiment,dict"`
	Confidence      float64 `parquet:"confidence"`
	RetweetCount    int64  `parquet:"retweet_count"`
	LikeCount       int64  `parquet:"like_count"`
	ReplyCount      int64  `parquet:"reply_count"`
	QuoteCount      int64  `parquet:"quote_count"`
	BookmarkCount   int64  `parquet:"bookmark_count"`
	ImpressionCount int64  `parquet:"impression_count"`
}

func toParquetRow(rec model.EnrichedRecord) parquetRow {
	return parquetRow{
		ID:              rec.ID,
		Content:         rec.CleanedText,
		AuthorID:        rec.AuthorID,
		CreatedAt:       rec.CreatedAt.UnixMicro(),
		Language:        rec.Language,
		Sentiment:       string(rec.Sentiment),
		Confidence:      rec.Confidence,
		RetweetCount:    rec.Engagement.RetweetCount,
		LikeCount:       rec.Engagement.LikeCount,
		ReplyCount:      rec.Engagement.ReplyCount,
		QuoteCount:      rec.Engagement.QuoteCount,
		BookmarkCount:   rec.Engagement.BookmarkCount,
		ImpressionCount: rec.Engagement.ImpressionCount,
	}
}

// Buffer accumulates enriched records and flushes them to Parquet files
// under dir once bufferLimit is reached or Flush is called explicitly.
type Buffer struct {
	dir         string
	bufferLimit int

	mu      sync.Mutex
	pending []model.EnrichedRecord

	// nowFunc is overridden in tests to produce deterministic filenames.
	nowFunc func() time.Time
}

// New creates a staging Buffer writing under dir.
func New(dir string, bufferLimit int) *Buffer {
	if bufferLimit <= 0 {
		bufferLimit = defaultBufferLimit
	}
	return &Buffer{dir: dir, bufferLimit: bufferLimit, nowFunc: time.Now}
}

// Append adds rec to the pending buffer, flushing immediately if the
// buffer has reached its limit.
func (b *Buffer) Append(rec model.EnrichedRecord) (string, error) {
	b.mu.Lock()
	b.pending = append(b.pending, rec)
	shouldFlush := len(b.pending) >= b.bufferLimit
	b.mu.Unlock()

	if !shouldFlush {
		return "", nil
	}

	return b.Flush()
}

// Flush writes every pending record to a new Parquet file and clears the
// buffer, returning the path written (or "" if there was nothing to flush).
func (b *Buffer) Flush() (string, error) {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("staging: mkdir %s: %w", b.dir, err)
	}

	filename := fmt.Sprintf("tweets_%s.parquet", b.nowFunc().UTC().Format("20060102150405"))
	path := filepath.Join(b.dir, filename)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("staging: create %s: %w", tmpPath, err)
	}

	writer := parquet.NewGenericWriter[parquetRow](f, parquet.Compression(&parquet.Snappy))

	rows := make([]parquetRow, len(batch))
	for i, rec := range batch {
		rows[i] = toParquetRow(rec)
	}

	if _, err := writer.Write(rows); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("staging: write %s: %w", tmpPath, err)
	}
	if err := writer.Close(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("staging: close %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("staging: close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("staging: rename %s to %s: %w", tmpPath, path, err)
	}

	slog.Info("staging buffer flushed", "path", path, "records", len(rows))

	return path, nil
}

// Pending reports how many records are currently buffered, unflushed.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Cleanup removes staged files older than olderThanDays, inferring each
// file's age from its tweets_<timestamp>.parquet filename rather than
// filesystem mtime, matching the original's cleanup_old_files. Malformed
// filenames are skipped rather than failing the whole sweep.
func (b *Buffer) Cleanup(olderThanDays int) (int, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("staging: read dir %s: %w", b.dir, err)
	}

	cutoff := b.nowFunc().UTC().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		stamp, ok := parseStagingTimestamp(entry.Name())
		if !ok {
			slog.Warn("staging cleanup: skipping unrecognized filename", "name", entry.Name())
			continue
		}

		if stamp.Before(cutoff) {
			path := filepath.Join(b.dir, entry.Name())
			if err := os.Remove(path); err != nil {
				slog.Warn("staging cleanup: failed to remove file", "path", path, "error", err)
				continue
			}
			slog.Info("staging cleanup: removed file", "path", path)
			removed++
		}
	}

	return removed, nil
}

func parseStagingTimestamp(filename string) (time.Time, bool) {
	base := strings.TrimSuffix(filename, ".parquet")
	const prefix = "tweets_"
	if !strings.HasPrefix(base, prefix) {
		return time.Time{}, false
	}

	stamp := strings.TrimPrefix(base, prefix)
	if len(stamp) != 14 {
		return time.Time{}, false
	}
	if _, err := strconv.Atoi(stamp); err != nil {
		return time.Time{}, false
	}

	t, err := time.Parse("20060102150405", stamp)
	if err != nil {
		return time.Time{}, false
	}

	return t.UTC(), true
}
