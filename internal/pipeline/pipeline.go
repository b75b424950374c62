// Package pipeline supervises the full ingestion flow: an upstream
// connector relays raw messages onto a stream, a pool of workers pulls
// them off in a consumer group, and each message is deduplicated,
// enriched, stored, and queued for batch persistence, per spec §4.9.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrepp/tweetpulse/internal/batchwriter"
	"github.com/jrepp/tweetpulse/internal/connector"
	"github.com/jrepp/tweetpulse/internal/dedup"
	"github.com/jrepp/tweetpulse/internal/enrich"
	"github.com/jrepp/tweetpulse/internal/lock"
	"github.com/jrepp/tweetpulse/internal/model"
	"github.com/jrepp/tweetpulse/internal/storage"
	"github.com/jrepp/tweetpulse/internal/stream"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("tweetpulse/pipeline")

// State is the pipeline's lifecycle state.
type State int32

const (
	StateInitialized State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Pipeline wires the deduplication, enrichment, storage, and batch-write
// stages together and drives a fixed pool of stream workers against them.
type Pipeline struct {
	streamStore stream.StreamStore
	connector   connector.Connector
	dedup       *dedup.Deduplicator
	enricher    *enrich.Enricher
	storage     *storage.Storage
	batchWriter *batchwriter.BatchWriter
	locks       *lock.Manager

	// searchIndex mirrors every enriched record onto a secondary
	// StreamStore for downstream search indexing. Optional: nil disables
	// the mirror. A publish failure here is logged, never fatal to the
	// message's primary processing.
	searchIndex stream.StreamStore

	numWorkers   int
	consumerBase string
	startFrom    string

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Pipeline from its fully-constructed collaborators. The
// caller is responsible for wiring concrete drivers (Redis, Postgres, the
// upstream connector) before calling New; Pipeline only orchestrates.
func New(
	streamStore stream.StreamStore,
	upstream connector.Connector,
	deduplicator *dedup.Deduplicator,
	enricher *enrich.Enricher,
	store *storage.Storage,
	writer *batchwriter.BatchWriter,
	locks *lock.Manager,
	numWorkers int,
	startFrom string,
	searchIndex stream.StreamStore,
) *Pipeline {
	p := &Pipeline{
		streamStore:  streamStore,
		connector:    upstream,
		dedup:        deduplicator,
		enricher:     enricher,
		storage:      store,
		batchWriter:  writer,
		locks:        locks,
		numWorkers:   numWorkers,
		consumerBase: "worker",
		startFrom:    startFrom,
		searchIndex:  searchIndex,
	}
	p.state.Store(int32(StateInitialized))
	return p
}

// State reports the pipeline's current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Start brings the pipeline to Running: it sweeps stale locks, ensures the
// consumer group exists, starts the upstream connector, the batch writer's
// flush loop, and numWorkers stream consumers, each reading under its own
// consumer name in the shared group.
func (p *Pipeline) Start(ctx context.Context) error {
	p.state.Store(int32(StateStarting))

	if removed, err := p.locks.CleanupStaleLocks(ctx); err != nil {
		slog.Warn("pipeline: stale lock sweep failed", "error", err)
	} else if removed > 0 {
		slog.Info("pipeline: removed stale locks at startup", "count", removed)
	}

	if err := p.streamStore.EnsureGroup(ctx, stream.StartIDFor(p.startFrom)); err != nil {
		p.state.Store(int32(StateInitialized))
		return fmt.Errorf("pipeline: ensure consumer group: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if p.connector != nil {
		if err := p.connector.Start(runCtx); err != nil {
			cancel()
			p.state.Store(int32(StateInitialized))
			return fmt.Errorf("pipeline: start upstream connector: %w", err)
		}
	}

	// The batch writer is not canceled with runCtx: Stop stops it, and so
	// triggers its final flush, only after the workers have exited.
	go p.batchWriter.Run(context.WithoutCancel(runCtx))

	for i := 0; i < p.numWorkers; i++ {
		consumerName := fmt.Sprintf("%s-%d", p.consumerBase, i)
		p.wg.Add(1)
		go func(name string) {
			defer p.wg.Done()
			stream.Run(runCtx, p.streamStore, name, p.processOne)
		}(consumerName)
	}

	p.state.Store(int32(StateRunning))
	slog.Info("pipeline: running", "workers", p.numWorkers)

	return nil
}

// processOne runs one raw message through dedup, enrichment, storage, and
// the batch writer queue. A duplicate is dropped with no further work.
func (p *Pipeline) processOne(ctx context.Context, msg model.RawMessage) error {
	ctx, span := tracer.Start(ctx, "pipeline.processOne")
	defer span.End()

	duplicate, err := p.dedup.IsDuplicate(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("pipeline: dedup check: %w", err)
	}
	if duplicate {
		return nil
	}

	rec, err := p.enricher.Enrich(ctx, msg)
	if err != nil {
		return fmt.Errorf("pipeline: enrich: %w", err)
	}

	if err := p.storage.Store(ctx, rec); err != nil {
		return fmt.Errorf("pipeline: store: %w", err)
	}

	p.batchWriter.Add(rec.ToRow())

	if p.searchIndex != nil {
		if _, err := p.searchIndex.Add(ctx, rec.ToFields()); err != nil {
			slog.Warn("pipeline: search index mirror publish failed", "id", rec.ID, "error", err)
		}
	}

	return nil
}

// Stop drains the pipeline in order: stop accepting new upstream messages,
// let in-flight stream reads return, stop the connector, flush and stop the
// batch writer, then sweep stale locks left behind by any crashed peer.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.state.Store(int32(StateStopping))

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		slog.Warn("pipeline: workers did not exit within shutdown deadline")
	}

	if p.connector != nil {
		if err := p.connector.Stop(ctx); err != nil {
			slog.Warn("pipeline: connector stop failed", "error", err)
		}
	}

	p.batchWriter.Stop()

	if err := p.storage.Close(); err != nil {
		slog.Warn("pipeline: storage close failed", "error", err)
	}

	if removed, err := p.locks.CleanupStaleLocks(ctx); err != nil {
		slog.Warn("pipeline: stale lock sweep at shutdown failed", "error", err)
	} else if removed > 0 {
		slog.Info("pipeline: removed stale locks at shutdown", "count", removed)
	}

	p.state.Store(int32(StateStopped))
	slog.Info("pipeline: stopped")

	return nil
}
