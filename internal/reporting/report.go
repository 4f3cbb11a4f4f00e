package reporting

import (
	"time"

	"experiment-lab/internal/decision"
	"experiment-lab/internal/domain"
)

// Report is the assembled analysis of one dataset snapshot: the stored
// per-metric results plus the sections the pipeline computes in memory
// (validation, segment breakdowns, decision).
type Report struct {
	// Metadata
	GeneratedAt  time.Time
	ExperimentID string
	SnapshotID   string
	UnitCount    int64

	// Stored per-metric results, ordered by metric name.
	MetricReports    []*domain.MetricReport
	InferenceReports []*domain.InferenceReport

	// Sections attached by the pipeline after generation.
	Validation        *domain.ValidationReport
	SegmentBreakdowns []SegmentBreakdown
	Decision          *decision.Result
}

// SegmentBreakdown holds the per-category rows for one outcome metric
// sliced by one segment attribute.
type SegmentBreakdown struct {
	Metric  string // outcome field name (clicked, converted, bounced)
	Segment string // attribute name (device_category, country)
	Rows    []*domain.SegmentMetricRow
}
