package domain

// InferenceReport is the statistical read on one MetricReport: interval
// estimate and hypothesis test for the treatment-control rate difference.
// Source rates and lifts are carried through so downstream consumers never
// recompute them. Corresponds to the inference_reports table in ClickHouse,
// keyed by (snapshot_id, metric).
type InferenceReport struct {
	SnapshotID               string  //
	ExperimentID             string  //
	Metric                   string  //
	ControlRate              float64 //
	TreatmentRate            float64 //
	AbsoluteLift             float64 //
	RelativeLiftPct          float64 //
	CILower                  float64 // lower bound on the rate difference
	CIUpper                  float64 // upper bound on the rate difference
	PValue                   float64 // two-sided, pooled z-test
	StatisticallySignificant bool    // p_value < alpha
	ConfidenceLevel          float64 //
	ComputedAt               int64   // Unix timestamp in milliseconds
}
