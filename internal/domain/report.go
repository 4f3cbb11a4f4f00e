package domain

// MetricReport is the per-variant aggregate for one binary outcome metric
// over one dataset snapshot. Corresponds to the metric_reports table in
// ClickHouse, keyed by (snapshot_id, metric). Value object, never mutated.
type MetricReport struct {
	SnapshotID         string  // deterministic dataset fingerprint
	ExperimentID       string  //
	Metric             string  // outcome field name (clicked, converted, bounced)
	ControlN           int64   //
	ControlSuccesses   int64   //
	ControlRate        float64 // successes/n, 0 when n is 0
	TreatmentN         int64   //
	TreatmentSuccesses int64   //
	TreatmentRate      float64 // successes/n, 0 when n is 0
	AbsoluteLift       float64 // treatment_rate - control_rate
	RelativeLiftPct    float64 // absolute_lift / control_rate * 100, 0 when control_rate is 0
	ComputedAt         int64   // Unix timestamp in milliseconds
}

// SegmentMetricRow is one row of a segment breakdown: the MetricReport
// fields recomputed within a single category of a segment attribute.
type SegmentMetricRow struct {
	Segment            string  // attribute name (device_category, country)
	Category           string  // observed attribute value
	ControlN           int64   //
	ControlSuccesses   int64   //
	ControlRate        float64 //
	TreatmentN         int64   //
	TreatmentSuccesses int64   //
	TreatmentRate      float64 //
	AbsoluteLift       float64 //
	RelativeLiftPct    float64 //
}
