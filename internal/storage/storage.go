// Package storage fans each enriched record out to the hot cache and the
// staging buffer concurrently, isolating a failure in either path from the
// other, matching spec §4.5's "store() never propagates a single sink's
// failure to the other" contract.
package storage

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jrepp/tweetpulse/internal/cache"
	"github.com/jrepp/tweetpulse/internal/model"
	"github.com/jrepp/tweetpulse/internal/staging"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("tweetpulse/storage")

// Storage composes the hot cache and staging buffer into the single sink
// the pipeline hands enriched records to.
type Storage struct {
	cache   cache.HotCache
	staging *staging.Buffer
}

// New builds a Storage over the given hot cache and staging buffer.
func New(hotCache cache.HotCache, stagingBuffer *staging.Buffer) *Storage {
	return &Storage{cache: hotCache, staging: stagingBuffer}
}

// Store writes rec to the hot cache and appends it to the staging buffer
// concurrently. Errors from each path are logged independently; the call
// only returns an error if both paths failed, since the record is still
// durable in whichever path succeeded.
func (s *Storage) Store(ctx context.Context, rec model.EnrichedRecord) error {
	ctx, span := tracer.Start(ctx, "storage.Store")
	defer span.End()

	var cacheErr, stagingErr error
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		cacheErr = s.cache.Store(ctx, rec)
		if cacheErr != nil {
			slog.Error("storage: hot cache write failed", "id", rec.ID, "error", cacheErr)
		}
	}()
	go func() {
		defer wg.Done()
		_, stagingErr = s.staging.Append(rec)
		if stagingErr != nil {
			slog.Error("storage: staging append failed", "id", rec.ID, "error", stagingErr)
		}
	}()
	wg.Wait()

	if cacheErr != nil && stagingErr != nil {
		return cacheErr
	}

	return nil
}

// Close flushes any pending staging records. Call once, during pipeline shutdown.
func (s *Storage) Close() error {
	_, err := s.staging.Flush()
	return err
}
