// Package batchwriter accumulates enriched records and periodically
// upserts them into Postgres in batches, coordinating the flush across
// worker processes with a distributed lock so only one flush per
// batch-size class runs at a time, matching spec §4.6.
package batchwriter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrepp/tweetpulse/internal/lock"
	"github.com/jrepp/tweetpulse/internal/model"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("tweetpulse/batchwriter")

const lockTimeout = 30 * time.Second

// BatchWriter buffers TweetRows and upserts them into Postgres in batches.
type BatchWriter struct {
	pool       *pgxpool.Pool
	locks      *lock.Manager
	batchSize  int
	maxWait    time.Duration
	maxRetries int

	mu      sync.Mutex
	pending []model.TweetRow

	flushCh   chan struct{}
	doneCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once

	// writeFunc performs the actual persistence and defaults to
	// writeBatch. Tests substitute a stub to avoid a live Postgres.
	writeFunc func(ctx context.Context, rows []model.TweetRow) error
}

// New builds a BatchWriter. batchSize and maxWait also determine the
// flush cadence and the shared lock name (batch_writer_flush:<batchSize>).
func New(pool *pgxpool.Pool, locks *lock.Manager, batchSize int, maxWait time.Duration, maxRetries int) *BatchWriter {
	w := &BatchWriter{
		pool:       pool,
		locks:      locks,
		batchSize:  batchSize,
		maxWait:    maxWait,
		maxRetries: maxRetries,
		flushCh:    make(chan struct{}, 1),
		doneCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
	w.writeFunc = w.writeBatch
	return w
}

// SetWriteFunc overrides the persistence function, for tests and for
// alternate storage backends that don't speak pgx. Must be called before Run.
func (w *BatchWriter) SetWriteFunc(f func(ctx context.Context, rows []model.TweetRow) error) {
	w.writeFunc = f
}

// Add appends row to the pending batch, triggering an immediate flush
// attempt once the batch reaches its configured size.
func (w *BatchWriter) Add(row model.TweetRow) {
	w.mu.Lock()
	w.pending = append(w.pending, row)
	full := len(w.pending) >= w.batchSize
	w.mu.Unlock()

	if full {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	}
}

// Run drives the periodic flush loop until the context is canceled or Stop
// is called, then performs one final flush before returning.
func (w *BatchWriter) Run(ctx context.Context) {
	defer close(w.stoppedCh)

	ticker := time.NewTicker(w.maxWait)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background())
			return
		case <-w.doneCh:
			w.flush(context.Background())
			return
		case <-w.flushCh:
			w.flush(ctx)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// Stop signals Run to perform its final flush and return, and blocks until it does.
func (w *BatchWriter) Stop() {
	w.stopOnce.Do(func() { close(w.doneCh) })
	<-w.stoppedCh
}

// flush takes the current pending batch, attempts to persist it under the
// shared distributed lock, and re-queues it on failure so no record is lost.
func (w *BatchWriter) flush(ctx context.Context) {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, span := tracer.Start(ctx, "batchwriter.flush")
	defer span.End()

	lockName := fmt.Sprintf("batch_writer_flush:%d", w.batchSize)

	l, err := w.locks.Acquire(ctx, lockName, lockTimeout)
	if err != nil {
		slog.Warn("batch writer: could not acquire flush lock, re-queuing batch", "lock", lockName, "size", len(batch))
		w.requeue(batch)
		return
	}
	defer func() {
		if err := l.Release(context.Background()); err != nil {
			slog.Warn("batch writer: lock release failed", "lock", lockName, "error", err)
		}
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	var writeErr error
	for attempt := 0; attempt < w.maxRetries; attempt++ {
		writeErr = w.writeFunc(ctx, batch)
		if writeErr == nil {
			return
		}

		slog.Warn("batch writer: write attempt failed", "attempt", attempt+1, "error", writeErr)

		if attempt >= 1 {
			if err := l.Extend(context.Background(), 15); err != nil {
				slog.Warn("batch writer: failed to extend lock mid-retry", "error", err)
			}
		}

		if attempt < w.maxRetries-1 {
			time.Sleep(bo.NextBackOff())
		}
	}

	slog.Error("batch writer: exhausted retries, re-queuing batch", "size", len(batch), "error", writeErr)
	w.requeue(batch)
}

func (w *BatchWriter) requeue(batch []model.TweetRow) {
	w.mu.Lock()
	w.pending = append(batch, w.pending...)
	w.mu.Unlock()
}

// writeBatch upserts every row in one statement per row, sent as a single
// pipelined pgx.Batch so the round trips are batched even though the SQL
// itself is per-row.
func (w *BatchWriter) writeBatch(ctx context.Context, rows []model.TweetRow) error {
	batch := &pgx.Batch{}

	for _, row := range rows {
		batch.Queue(`
			INSERT INTO tweets (
				id, content, author_id, created_at, sentiment, confidence,
				retweet_count, like_count, reply_count, quote_count, bookmark_count, impression_count
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				sentiment = EXCLUDED.sentiment,
				confidence = EXCLUDED.confidence,
				retweet_count = EXCLUDED.retweet_count,
				like_count = EXCLUDED.like_count,
				reply_count = EXCLUDED.reply_count,
				quote_count = EXCLUDED.quote_count,
				bookmark_count = EXCLUDED.bookmark_count,
				impression_count = EXCLUDED.impression_count
		`, row.ID, row.Content, row.AuthorID, row.CreatedAt, string(row.Sentiment), row.Confidence,
			row.RetweetCount, row.LikeCount, row.ReplyCount, row.QuoteCount, row.BookmarkCount, row.ImpressionCount)
	}

	results := w.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch writer: upsert failed: %w", err)
		}
	}

	return nil
}

// Pending reports how many rows are currently buffered, unflushed.
func (w *BatchWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
