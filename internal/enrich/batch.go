package enrich

import (
	"context"

	"github.com/jrepp/tweetpulse/internal/model"
	"golang.org/x/sync/errgroup"
)

// BatchEnricher fans a batch of raw messages out to an Enricher
// concurrently, mirroring the original's asyncio.gather-based batch path.
type BatchEnricher struct {
	enricher  *Enricher
	batchSize int
}

// NewBatchEnricher wraps enricher with a batch size used only as the
// concurrency width of EnrichAll.
func NewBatchEnricher(enricher *Enricher, batchSize int) *BatchEnricher {
	if batchSize < 1 {
		batchSize = 1
	}
	return &BatchEnricher{enricher: enricher, batchSize: batchSize}
}

// EnrichAll enriches every message in msgs concurrently, bounded to
// batchSize in flight at once, and returns results in the same order as
// the input. A single message's failure fails the whole call, matching the
// original's return_exceptions=False batch semantics.
func (b *BatchEnricher) EnrichAll(ctx context.Context, msgs []model.RawMessage) ([]model.EnrichedRecord, error) {
	out := make([]model.EnrichedRecord, len(msgs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.batchSize)

	for i, msg := range msgs {
		i, msg := i, msg
		g.Go(func() error {
			rec, err := b.enricher.Enrich(ctx, msg)
			if err != nil {
				return err
			}
			out[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
