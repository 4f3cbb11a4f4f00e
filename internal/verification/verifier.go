// Package verification re-derives stored metric reports from the unit store
// and reports any divergence. A clean verification means every stored report
// can be reproduced from the raw units it claims to summarize.
package verification

import (
	"context"
	"math"

	"experiment-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons. Rates and lifts
// recomputed from identical inputs must agree within 0.0000001.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and recomputed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // recomputed value
}

// VerificationResult contains the result of verifying a single metric report.
type VerificationResult struct {
	Metric         string            // verified metric name
	Match          bool              // true if all fields match
	Divergences    []FieldDivergence // list of divergent fields
	StoredLift     float64           // absolute lift from the stored report
	RecomputedLift float64           // absolute lift from the recomputed report
}

// VerificationReport contains results for verifying a snapshot.
type VerificationReport struct {
	SnapshotID       string               // verified snapshot
	TotalReports     int                  // total metric reports verified
	MatchedReports   int                  // reports that matched exactly
	DivergentReports int                  // reports with divergences
	Results          []VerificationResult // individual results
}

// Verifier re-derives stored metric reports and reports divergences.
type Verifier interface {
	// VerifyMetric verifies a single stored metric report.
	// It recomputes the report from the unit store and compares all fields.
	VerifyMetric(ctx context.Context, snapshotID, metric string) (*VerificationResult, error)

	// VerifySnapshot verifies all stored metric reports for a snapshot.
	// Returns a report with individual results.
	VerifySnapshot(ctx context.Context, snapshotID string) (*VerificationReport, error)
}

// CompareMetricReports compares a stored report against a recomputed one and
// returns divergences. Identifiers and counts must match exactly; rates and
// lifts are compared within FloatTolerance. ComputedAt is a wall-clock stamp
// and is not compared.
func CompareMetricReports(stored, recomputed *domain.MetricReport) []FieldDivergence {
	var divergences []FieldDivergence

	if stored.SnapshotID != recomputed.SnapshotID {
		divergences = append(divergences, FieldDivergence{
			Field:    "SnapshotID",
			Expected: stored.SnapshotID,
			Actual:   recomputed.SnapshotID,
		})
	}

	if stored.ExperimentID != recomputed.ExperimentID {
		divergences = append(divergences, FieldDivergence{
			Field:    "ExperimentID",
			Expected: stored.ExperimentID,
			Actual:   recomputed.ExperimentID,
		})
	}

	if stored.Metric != recomputed.Metric {
		divergences = append(divergences, FieldDivergence{
			Field:    "Metric",
			Expected: stored.Metric,
			Actual:   recomputed.Metric,
		})
	}

	// Counts must match exactly
	if stored.ControlN != recomputed.ControlN {
		divergences = append(divergences, FieldDivergence{
			Field:    "ControlN",
			Expected: stored.ControlN,
			Actual:   recomputed.ControlN,
		})
	}

	if stored.ControlSuccesses != recomputed.ControlSuccesses {
		divergences = append(divergences, FieldDivergence{
			Field:    "ControlSuccesses",
			Expected: stored.ControlSuccesses,
			Actual:   recomputed.ControlSuccesses,
		})
	}

	if stored.TreatmentN != recomputed.TreatmentN {
		divergences = append(divergences, FieldDivergence{
			Field:    "TreatmentN",
			Expected: stored.TreatmentN,
			Actual:   recomputed.TreatmentN,
		})
	}

	if stored.TreatmentSuccesses != recomputed.TreatmentSuccesses {
		divergences = append(divergences, FieldDivergence{
			Field:    "TreatmentSuccesses",
			Expected: stored.TreatmentSuccesses,
			Actual:   recomputed.TreatmentSuccesses,
		})
	}

	// Rates and lifts within tolerance
	if !floatEquals(stored.ControlRate, recomputed.ControlRate) {
		divergences = append(divergences, FieldDivergence{
			Field:    "ControlRate",
			Expected: stored.ControlRate,
			Actual:   recomputed.ControlRate,
		})
	}

	if !floatEquals(stored.TreatmentRate, recomputed.TreatmentRate) {
		divergences = append(divergences, FieldDivergence{
			Field:    "TreatmentRate",
			Expected: stored.TreatmentRate,
			Actual:   recomputed.TreatmentRate,
		})
	}

	if !floatEquals(stored.AbsoluteLift, recomputed.AbsoluteLift) {
		divergences = append(divergences, FieldDivergence{
			Field:    "AbsoluteLift",
			Expected: stored.AbsoluteLift,
			Actual:   recomputed.AbsoluteLift,
		})
	}

	if !floatEquals(stored.RelativeLiftPct, recomputed.RelativeLiftPct) {
		divergences = append(divergences, FieldDivergence{
			Field:    "RelativeLiftPct",
			Expected: stored.RelativeLiftPct,
			Actual:   recomputed.RelativeLiftPct,
		})
	}

	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
