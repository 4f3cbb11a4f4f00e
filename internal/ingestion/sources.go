// Package ingestion streams assignment/exposure events into the unit store.
// Events arrive either live over WebSocket or replayed from a JSONL file;
// the Runner drains whichever source it is given.
package ingestion

import "context"

// Source provides exposure events from an external feed.
type Source interface {
	// Subscribe returns a channel of exposure events. The channel is closed
	// when the context is cancelled, the source is closed, or a finite feed
	// is exhausted. Events may arrive in any order; deduplication happens
	// downstream against the unit store.
	Subscribe(ctx context.Context) (<-chan *ExposureEvent, error)
}
