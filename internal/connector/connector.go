// Package connector adapts an opaque external upstream (spec §6) into the
// ingest stream: a Connector subscribes to wherever tweets arrive from and
// relays each one onto the stream.StreamStore that the enrichment workers
// consume from, decoupling ingestion transport from stream semantics.
package connector

import (
	"context"
)

// Connector is any upstream source that can be started and stopped. Start
// must not block past the point where messages begin flowing; a connector
// runs its relay loop in its own goroutine and stops it when Stop is called.
type Connector interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
