package verification

import (
	"context"
	"errors"
	"fmt"

	"experiment-lab/internal/domain"
	"experiment-lab/internal/idhash"
	"experiment-lab/internal/metrics"
	"experiment-lab/internal/storage"
)

// ErrReportNotFound is returned when no stored report matches the requested
// snapshot and metric.
var ErrReportNotFound = errors.New("metric report not found")

// RecomputeVerifier implements Verifier by re-aggregating metric reports
// from the unit store. The recomputed report is stamped with the snapshot
// identity of the units as they are now, so a dataset that changed since
// the stored report was computed shows up as a SnapshotID divergence next
// to the count and rate diffs it caused.
type RecomputeVerifier struct {
	unitStore         storage.UnitStore
	metricReportStore storage.MetricReportStore
	includeIneligible bool
}

// RecomputeVerifierOptions contains configuration for creating a RecomputeVerifier.
type RecomputeVerifierOptions struct {
	UnitStore         storage.UnitStore
	MetricReportStore storage.MetricReportStore

	// IncludeIneligible must match the aggregation setting the stored
	// reports were produced with.
	IncludeIneligible bool
}

// NewRecomputeVerifier creates a new RecomputeVerifier.
func NewRecomputeVerifier(opts RecomputeVerifierOptions) *RecomputeVerifier {
	return &RecomputeVerifier{
		unitStore:         opts.UnitStore,
		metricReportStore: opts.MetricReportStore,
		includeIneligible: opts.IncludeIneligible,
	}
}

// VerifyMetric verifies a single stored metric report by recomputing it.
func (v *RecomputeVerifier) VerifyMetric(ctx context.Context, snapshotID, metric string) (*VerificationResult, error) {
	stored, err := v.metricReportStore.GetBySnapshotID(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	for _, r := range stored {
		if r.Metric == metric {
			return v.verifyReport(ctx, r)
		}
	}
	return nil, fmt.Errorf("%w: snapshot %s metric %s", ErrReportNotFound, snapshotID, metric)
}

// VerifySnapshot verifies all stored metric reports for a snapshot.
func (v *RecomputeVerifier) VerifySnapshot(ctx context.Context, snapshotID string) (*VerificationReport, error) {
	stored, err := v.metricReportStore.GetBySnapshotID(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("snapshot %s has no metric reports: %w", snapshotID, storage.ErrNotFound)
	}

	report := &VerificationReport{
		SnapshotID:   snapshotID,
		TotalReports: len(stored),
		Results:      make([]VerificationResult, 0, len(stored)),
	}

	for _, r := range stored {
		result, err := v.verifyReport(ctx, r)
		if err != nil {
			// Record error as divergence
			report.Results = append(report.Results, VerificationResult{
				Metric:     r.Metric,
				Match:      false,
				StoredLift: r.AbsoluteLift,
				Divergences: []FieldDivergence{
					{Field: "Error", Expected: nil, Actual: err.Error()},
				},
			})
			report.DivergentReports++
			continue
		}

		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedReports++
		} else {
			report.DivergentReports++
		}
	}

	return report, nil
}

// verifyReport recomputes one stored report from the unit store and compares
// all fields.
func (v *RecomputeVerifier) verifyReport(ctx context.Context, stored *domain.MetricReport) (*VerificationResult, error) {
	aggregator := metrics.NewAggregator(v.unitStore, v.metricReportStore).
		WithIncludeIneligible(v.includeIneligible)

	recomputed, err := aggregator.ComputeMetric(ctx, stored.ExperimentID, domain.OutcomeField(stored.Metric))
	if err != nil {
		return nil, err
	}

	// Snapshot identity is derived from the full unit set, before the
	// eligibility filter, matching how the analysis pipeline keys reports.
	units, err := v.unitStore.GetByExperimentID(ctx, stored.ExperimentID)
	if err != nil {
		return nil, err
	}
	recomputed.SnapshotID = idhash.ComputeSnapshotID(stored.ExperimentID, units)

	divergences := CompareMetricReports(stored, recomputed)

	return &VerificationResult{
		Metric:         stored.Metric,
		Match:          len(divergences) == 0,
		Divergences:    divergences,
		StoredLift:     stored.AbsoluteLift,
		RecomputedLift: recomputed.AbsoluteLift,
	}, nil
}
