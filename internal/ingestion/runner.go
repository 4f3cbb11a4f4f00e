package ingestion

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"experiment-lab/internal/domain"
	"experiment-lab/internal/observability"
	"experiment-lab/internal/storage"
)

// Runner drains a Source into the unit store. Events are converted, buffered,
// and written in batches; a batch that collides with already-stored rows
// falls back to per-unit inserts so fresh units still land and duplicates
// are counted instead of failing the batch.
type Runner struct {
	source        Source
	unitStore     storage.UnitStore
	batchSize     int
	flushInterval time.Duration
	logger        *log.Logger

	received   atomic.Int64
	stored     atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
	errors     atomic.Int64
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source        Source
	UnitStore     storage.UnitStore
	BatchSize     int           // Default: 500 units per bulk insert
	FlushInterval time.Duration // Default: 5s - flush partial batches periodically
	Logger        *log.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	flushInterval := opts.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		source:        opts.Source,
		unitStore:     opts.UnitStore,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
	}
}

// Run consumes events until the context is cancelled or the source closes
// its channel. Buffered units are flushed before returning. A closed channel
// means the feed finished (file exhausted or source shut down) and is not an
// error.
func (r *Runner) Run(ctx context.Context) error {
	events, err := r.source.Subscribe(ctx)
	if err != nil {
		return err
	}

	r.logger.Printf("Ingestion runner started, batch size %d, flush interval %v", r.batchSize, r.flushInterval)

	flushTicker := time.NewTicker(r.flushInterval)
	defer flushTicker.Stop()

	batch := make([]*domain.ExperimentUnit, 0, r.batchSize)

	for {
		select {
		case <-ctx.Done():
			// The run context is gone; give the final flush its own deadline.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.flush(flushCtx, batch)
			cancel()
			r.logger.Println("Ingestion runner stopping...")
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				r.flush(ctx, batch)
				r.logger.Println("Event stream closed")
				return nil
			}
			r.received.Add(1)

			unit, err := event.Unit()
			if err != nil {
				r.rejected.Add(1)
				observability.RecordIngestError("invalid")
				r.logger.Printf("Dropping invalid event: %v", err)
				continue
			}

			batch = append(batch, unit)
			if len(batch) >= r.batchSize {
				r.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-flushTicker.C:
			r.flush(ctx, batch)
			batch = batch[:0]
		}
	}
}

// flush writes buffered units to the store.
func (r *Runner) flush(ctx context.Context, batch []*domain.ExperimentUnit) {
	if len(batch) == 0 {
		return
	}

	units := dedupeUnits(batch)
	if dropped := len(batch) - len(units); dropped > 0 {
		r.duplicates.Add(int64(dropped))
		observability.RecordDuplicateUnits(dropped)
	}

	err := r.unitStore.InsertBulk(ctx, units)
	if err == nil {
		r.stored.Add(int64(len(units)))
		observability.RecordUnitsIngested(len(units))
		return
	}

	if !errors.Is(err, storage.ErrDuplicateKey) {
		r.errors.Add(1)
		observability.RecordIngestError("store")
		r.logger.Printf("Bulk insert of %d units failed: %v", len(units), err)
		return
	}

	// At least one unit was already stored. Insert one at a time so the
	// fresh units still land.
	for _, u := range units {
		if err := r.unitStore.Insert(ctx, u); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				r.duplicates.Add(1)
				observability.RecordDuplicateUnits(1)
				continue
			}
			r.errors.Add(1)
			observability.RecordIngestError("store")
			r.logger.Printf("Insert failed for unit %s: %v", u.UnitID, err)
			continue
		}
		r.stored.Add(1)
		observability.RecordUnitsIngested(1)
	}
}

// dedupeUnits removes repeated (experiment_id, unit_id) pairs within a
// batch, keeping the first occurrence.
func dedupeUnits(units []*domain.ExperimentUnit) []*domain.ExperimentUnit {
	seen := make(map[string]struct{}, len(units))
	out := make([]*domain.ExperimentUnit, 0, len(units))
	for _, u := range units {
		key := u.ExperimentID + "|" + u.UnitID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}

// RunnerStats is a snapshot of ingestion counters.
type RunnerStats struct {
	EventsReceived int64
	UnitsStored    int64
	Duplicates     int64
	Rejected       int64
	StoreErrors    int64
}

// Stats returns current runner statistics. Safe to call concurrently with Run.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		EventsReceived: r.received.Load(),
		UnitsStored:    r.stored.Load(),
		Duplicates:     r.duplicates.Load(),
		Rejected:       r.rejected.Load(),
		StoreErrors:    r.errors.Load(),
	}
}
