package reporting

import (
	"fmt"
	"strings"

	"experiment-lab/internal/domain"
)

// RenderMetricReportsCSV renders metric reports as CSV string.
func RenderMetricReportsCSV(reports []*domain.MetricReport) string {
	var sb strings.Builder

	// Header
	sb.WriteString("snapshot_id,experiment_id,metric,control_n,control_successes,control_rate,")
	sb.WriteString("treatment_n,treatment_successes,treatment_rate,")
	sb.WriteString("absolute_lift,relative_lift_pct,computed_at\n")

	// Rows
	for _, r := range reports {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%d,%d,%.6f,%d,%d,%.6f,%.6f,%.6f,%d\n",
			r.SnapshotID,
			r.ExperimentID,
			r.Metric,
			r.ControlN,
			r.ControlSuccesses,
			r.ControlRate,
			r.TreatmentN,
			r.TreatmentSuccesses,
			r.TreatmentRate,
			r.AbsoluteLift,
			r.RelativeLiftPct,
			r.ComputedAt,
		))
	}

	return sb.String()
}

// RenderInferenceReportsCSV renders inference reports as CSV string.
func RenderInferenceReportsCSV(reports []*domain.InferenceReport) string {
	var sb strings.Builder

	// Header
	sb.WriteString("snapshot_id,experiment_id,metric,control_rate,treatment_rate,")
	sb.WriteString("absolute_lift,relative_lift_pct,ci_lower,ci_upper,p_value,")
	sb.WriteString("statistically_significant,confidence_level,computed_at\n")

	// Rows
	for _, r := range reports {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%t,%.2f,%d\n",
			r.SnapshotID,
			r.ExperimentID,
			r.Metric,
			r.ControlRate,
			r.TreatmentRate,
			r.AbsoluteLift,
			r.RelativeLiftPct,
			r.CILower,
			r.CIUpper,
			r.PValue,
			r.StatisticallySignificant,
			r.ConfidenceLevel,
			r.ComputedAt,
		))
	}

	return sb.String()
}

// RenderSegmentBreakdownCSV renders segment breakdowns as CSV string. All
// breakdowns share one file; the metric and segment columns distinguish
// the slices.
func RenderSegmentBreakdownCSV(breakdowns []SegmentBreakdown) string {
	var sb strings.Builder

	// Header
	sb.WriteString("metric,segment,category,control_n,control_successes,control_rate,")
	sb.WriteString("treatment_n,treatment_successes,treatment_rate,")
	sb.WriteString("absolute_lift,relative_lift_pct\n")

	// Rows
	for _, b := range breakdowns {
		for _, row := range b.Rows {
			sb.WriteString(fmt.Sprintf("%s,%s,%s,%d,%d,%.6f,%d,%d,%.6f,%.6f,%.6f\n",
				b.Metric,
				b.Segment,
				row.Category,
				row.ControlN,
				row.ControlSuccesses,
				row.ControlRate,
				row.TreatmentN,
				row.TreatmentSuccesses,
				row.TreatmentRate,
				row.AbsoluteLift,
				row.RelativeLiftPct,
			))
		}
	}

	return sb.String()
}
