package metrics

import (
	"sort"

	"experiment-lab/internal/domain"
)

// computeReport calculates per-variant counts and rates for one binary
// outcome over a slice of units. Units must be pre-filtered to the analysis
// population (eligibility filtering happens in the Aggregator). Units whose
// variant is outside the fixed domain are not counted; variant integrity is
// the validation suite's concern, not the aggregator's.
func computeReport(units []*domain.ExperimentUnit, outcome domain.OutcomeField) (*domain.MetricReport, error) {
	var (
		controlN, controlSuccesses     int64
		treatmentN, treatmentSuccesses int64
	)
	for _, u := range units {
		hit, err := u.Outcome(outcome)
		if err != nil {
			return nil, err
		}
		switch u.Variant {
		case domain.VariantControl:
			controlN++
			if hit {
				controlSuccesses++
			}
		case domain.VariantTreatment:
			treatmentN++
			if hit {
				treatmentSuccesses++
			}
		}
	}

	controlRate := computeRate(controlSuccesses, controlN)
	treatmentRate := computeRate(treatmentSuccesses, treatmentN)

	return &domain.MetricReport{
		Metric:             string(outcome),
		ControlN:           controlN,
		ControlSuccesses:   controlSuccesses,
		ControlRate:        controlRate,
		TreatmentN:         treatmentN,
		TreatmentSuccesses: treatmentSuccesses,
		TreatmentRate:      treatmentRate,
		AbsoluteLift:       treatmentRate - controlRate,
		RelativeLiftPct:    computeRelativeLiftPct(controlRate, treatmentRate),
	}, nil
}

// computeSegmentBreakdown groups units by one categorical attribute and
// recomputes the per-variant counts within each category. Rows are ordered
// by control-group n DESC; ties keep first-observed category order.
func computeSegmentBreakdown(units []*domain.ExperimentUnit, outcome domain.OutcomeField, segment domain.SegmentField) ([]*domain.SegmentMetricRow, error) {
	groups := make(map[string][]*domain.ExperimentUnit)
	var order []string
	for _, u := range units {
		category, err := u.Segment(segment)
		if err != nil {
			return nil, err
		}
		if _, seen := groups[category]; !seen {
			order = append(order, category)
		}
		groups[category] = append(groups[category], u)
	}

	rows := make([]*domain.SegmentMetricRow, 0, len(order))
	for _, category := range order {
		report, err := computeReport(groups[category], outcome)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &domain.SegmentMetricRow{
			Segment:            string(segment),
			Category:           category,
			ControlN:           report.ControlN,
			ControlSuccesses:   report.ControlSuccesses,
			ControlRate:        report.ControlRate,
			TreatmentN:         report.TreatmentN,
			TreatmentSuccesses: report.TreatmentSuccesses,
			TreatmentRate:      report.TreatmentRate,
			AbsoluteLift:       report.AbsoluteLift,
			RelativeLiftPct:    report.RelativeLiftPct,
		})
	}

	// Stable sort keeps first-observed order when control counts tie.
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ControlN > rows[j].ControlN
	})

	return rows, nil
}

// computeRate calculates successes / n. Empty groups resolve to rate 0
// rather than NaN.
func computeRate(successes, n int64) float64 {
	if n == 0 {
		return 0
	}
	return float64(successes) / float64(n)
}

// computeRelativeLiftPct calculates the lift as a percentage of the control
// rate. A zero control rate resolves to 0 rather than dividing.
func computeRelativeLiftPct(controlRate, treatmentRate float64) float64 {
	if controlRate == 0 {
		return 0
	}
	return (treatmentRate - controlRate) / controlRate * 100
}
