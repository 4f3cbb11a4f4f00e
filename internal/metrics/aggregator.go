package metrics

import (
	"context"
	"errors"
	"time"

	"experiment-lab/internal/domain"
	"experiment-lab/internal/storage"
)

// ErrNoUnits is returned when no units are available for aggregation.
var ErrNoUnits = errors.New("no units available for aggregation")

// Aggregator computes metric reports from stored experiment units.
// By default only units flagged eligible enter the analysis population.
type Aggregator struct {
	unitStore         storage.UnitStore
	metricReportStore storage.MetricReportStore

	includeIneligible bool
	clock             func() time.Time
}

// NewAggregator creates a new metric aggregator over the given stores.
func NewAggregator(unitStore storage.UnitStore, reportStore storage.MetricReportStore) *Aggregator {
	return &Aggregator{
		unitStore:         unitStore,
		metricReportStore: reportStore,
		clock:             time.Now,
	}
}

// WithIncludeIneligible widens the analysis population to every stored unit.
func (a *Aggregator) WithIncludeIneligible(include bool) *Aggregator {
	a.includeIneligible = include
	return a
}

// WithClock overrides the timestamp source for ComputedAt stamps.
func (a *Aggregator) WithClock(clock func() time.Time) *Aggregator {
	a.clock = clock
	return a
}

// ComputeMetric computes the per-variant report for one binary outcome over
// the stored units of an experiment. Returns ErrNoUnits when the analysis
// population is empty.
func (a *Aggregator) ComputeMetric(ctx context.Context, experimentID string, outcome domain.OutcomeField) (*domain.MetricReport, error) {
	units, err := a.loadUnits(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	report, err := computeReport(units, outcome)
	if err != nil {
		return nil, err
	}
	report.ExperimentID = experimentID

	return report, nil
}

// ComputeSegmentBreakdown computes per-category reports for one binary
// outcome, grouped by a categorical attribute. Returns ErrNoUnits when the
// analysis population is empty.
func (a *Aggregator) ComputeSegmentBreakdown(ctx context.Context, experimentID string, outcome domain.OutcomeField, segment domain.SegmentField) ([]*domain.SegmentMetricRow, error) {
	units, err := a.loadUnits(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	return computeSegmentBreakdown(units, outcome, segment)
}

// ComputeAndStore computes the report for one outcome, stamps it with the
// snapshot identity and computation time, and persists it.
// Returns storage.ErrDuplicateKey if the (snapshot_id, metric) report
// already exists (append-only).
func (a *Aggregator) ComputeAndStore(ctx context.Context, snapshotID, experimentID string, outcome domain.OutcomeField) (*domain.MetricReport, error) {
	report, err := a.ComputeMetric(ctx, experimentID, outcome)
	if err != nil {
		return nil, err
	}

	report.SnapshotID = snapshotID
	report.ComputedAt = a.clock().UnixMilli()

	if err := a.metricReportStore.Insert(ctx, report); err != nil {
		return nil, err
	}

	return report, nil
}

// loadUnits fetches the experiment's units and applies the eligibility
// filter. The population after filtering must be non-empty.
func (a *Aggregator) loadUnits(ctx context.Context, experimentID string) ([]*domain.ExperimentUnit, error) {
	units, err := a.unitStore.GetByExperimentID(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	if !a.includeIneligible {
		eligible := make([]*domain.ExperimentUnit, 0, len(units))
		for _, u := range units {
			if u.Eligible {
				eligible = append(eligible, u)
			}
		}
		units = eligible
	}

	if len(units) == 0 {
		return nil, ErrNoUnits
	}
	return units, nil
}
