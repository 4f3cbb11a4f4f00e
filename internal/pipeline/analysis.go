// Package pipeline orchestrates the full snapshot analysis: validation,
// metric aggregation, statistical inference, the decision gate and the
// report files they produce.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"experiment-lab/internal/config"
	"experiment-lab/internal/dataset"
	"experiment-lab/internal/decision"
	"experiment-lab/internal/domain"
	"experiment-lab/internal/idhash"
	"experiment-lab/internal/inference"
	"experiment-lab/internal/metrics"
	"experiment-lab/internal/observability"
	"experiment-lab/internal/reporting"
	"experiment-lab/internal/storage"
	"experiment-lab/internal/validation"
)

// Output file names written by Run.
const (
	ReportFile           = "EXPERIMENT_REPORT.md"
	ValidationReportFile = "VALIDATION_REPORT.md"
	DecisionFile         = "DECISION.md"
	MetricReportsCSV     = "metric_reports.csv"
	InferenceReportsCSV  = "inference_reports.csv"
	SegmentBreakdownCSV  = "segment_breakdown.csv"
)

// Options bundles the stores and targets an Analysis runs against.
type Options struct {
	UnitStore            storage.UnitStore
	MetricReportStore    storage.MetricReportStore
	InferenceReportStore storage.InferenceReportStore

	ExperimentID string
	OutputDir    string
}

// Analysis runs the end-to-end snapshot analysis and writes report files.
type Analysis struct {
	opts Options

	validator *validation.Validator
	engine    *inference.Engine
	builder   *decision.Builder
	evaluator *decision.Evaluator
	reportGen *reporting.Generator

	includeIneligible bool
	outcomes          []domain.OutcomeField
	segments          []domain.SegmentField
	segmentOutcome    domain.OutcomeField

	clock func() time.Time
}

// NewAnalysis creates an analysis wired from configuration. Thresholds for
// validation, inference and the decision gate come from cfg; stores and
// targets come from opts.
func NewAnalysis(cfg *config.Config, opts Options) (*Analysis, error) {
	if opts.UnitStore == nil || opts.MetricReportStore == nil || opts.InferenceReportStore == nil {
		return nil, errors.New("pipeline: all three stores are required")
	}
	if opts.ExperimentID == "" {
		opts.ExperimentID = cfg.Experiment.ID
	}

	engine, err := inference.NewEngine(cfg.Analysis.ConfidenceLevel)
	if err != nil {
		return nil, err
	}

	validator := validation.NewValidator(validation.Config{
		AllocationRatio:          cfg.Experiment.AllocationRatio,
		EligibilityWarnThreshold: cfg.Analysis.EligibilityWarnThreshold,
	})

	return &Analysis{
		opts:      opts,
		validator: validator,
		engine:    engine,
		builder:   decision.NewBuilder(decision.DefaultPrimaryMetric, decision.DefaultGuardrailMetric),
		evaluator: decision.NewEvaluator(cfg.Analysis.MinAcceptableLift, cfg.Analysis.MaxGuardrailIncrease),
		reportGen: reporting.NewGenerator(opts.UnitStore, opts.MetricReportStore, opts.InferenceReportStore),

		includeIneligible: cfg.Analysis.IncludeIneligible,
		outcomes:          []domain.OutcomeField{domain.OutcomeClicked, domain.OutcomeConverted, domain.OutcomeBounced},
		segments:          []domain.SegmentField{domain.SegmentDevice, domain.SegmentCountry},
		segmentOutcome:    domain.OutcomeConverted,

		clock: func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock sets a custom clock function for deterministic output. The
// clock stamps validation runs, report rows and rendered files alike.
func (a *Analysis) WithClock(clock func() time.Time) *Analysis {
	a.clock = clock
	a.validator = a.validator.WithClock(clock)
	a.engine = a.engine.WithClock(clock)
	a.reportGen = a.reportGen.WithClock(clock)
	return a
}

// WithOutcomes overrides the aggregated outcome metrics.
func (a *Analysis) WithOutcomes(outcomes ...domain.OutcomeField) *Analysis {
	a.outcomes = outcomes
	return a
}

// WithSegments overrides the segment attributes broken down in the report.
func (a *Analysis) WithSegments(segments ...domain.SegmentField) *Analysis {
	a.segments = segments
	return a
}

// WithSegmentOutcome overrides the outcome metric used for segment
// breakdowns.
func (a *Analysis) WithSegmentOutcome(outcome domain.OutcomeField) *Analysis {
	a.segmentOutcome = outcome
	return a
}

// Run executes the full analysis and writes the output files:
//   - VALIDATION_REPORT.md
//   - DECISION.md
//   - EXPERIMENT_REPORT.md, metric_reports.csv, inference_reports.csv,
//     segment_breakdown.csv (skipped when validation fails)
//
// A failed validation is not an error: the run completes with an
// INSUFFICIENT_DATA decision and no metric outputs. The returned report
// carries whatever sections were produced.
func (a *Analysis) Run(ctx context.Context) (*reporting.Report, error) {
	start := time.Now()
	report, err := a.run(ctx)

	status := "completed"
	switch {
	case err != nil:
		status = "error"
	case report.Decision != nil && report.Decision.Verdict == decision.VerdictInsufficientData:
		status = "insufficient_data"
	}
	observability.RecordAnalysis(status, time.Since(start).Seconds())

	return report, err
}

func (a *Analysis) run(ctx context.Context) (*reporting.Report, error) {
	if err := os.MkdirAll(a.opts.OutputDir, 0755); err != nil {
		return nil, err
	}

	units, err := a.opts.UnitStore.GetByExperimentID(ctx, a.opts.ExperimentID)
	if err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no units stored for experiment %s", a.opts.ExperimentID)
	}

	// 1. Validate. The table form preserves raw cells so the checks can see
	// exactly what was loaded.
	validationReport := a.validator.Run(dataset.FromUnits(units))
	observability.RecordValidationRun(validationReport.Passed())
	if err := a.writeFile(ValidationReportFile, reporting.RenderValidationMarkdown(validationReport)); err != nil {
		return nil, err
	}

	if !validationReport.Passed() {
		return a.finishInsufficientData(validationReport)
	}

	// 2. Snapshot identity. Reports are keyed by dataset content, so a
	// rerun over identical data lands on the same report rows.
	snapshotID := idhash.ComputeSnapshotID(a.opts.ExperimentID, units)

	// 3. Aggregate per-variant metrics. ErrDuplicateKey means a previous
	// run already produced this snapshot's reports; the stored rows win.
	aggregator := metrics.NewAggregator(a.opts.UnitStore, a.opts.MetricReportStore).
		WithIncludeIneligible(a.includeIneligible).
		WithClock(a.clock)
	for _, outcome := range a.outcomes {
		if _, err := aggregator.ComputeAndStore(ctx, snapshotID, a.opts.ExperimentID, outcome); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				continue
			}
			return nil, fmt.Errorf("aggregate %s: %w", outcome, err)
		}
	}

	metricReports, err := a.opts.MetricReportStore.GetBySnapshotID(ctx, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("load metric reports: %w", err)
	}

	// 4. Statistical inference per metric, same duplicate tolerance.
	for _, mr := range metricReports {
		inf, err := a.engine.Analyze(mr)
		if err != nil {
			return nil, fmt.Errorf("analyze %s: %w", mr.Metric, err)
		}
		if err := a.opts.InferenceReportStore.Insert(ctx, inf); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("store inference %s: %w", mr.Metric, err)
		}
	}

	inferenceReports, err := a.opts.InferenceReportStore.GetBySnapshotID(ctx, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("load inference reports: %w", err)
	}

	// 5. Segment breakdowns are recomputed per run, not persisted.
	breakdowns := make([]reporting.SegmentBreakdown, 0, len(a.segments))
	for _, segment := range a.segments {
		rows, err := aggregator.ComputeSegmentBreakdown(ctx, a.opts.ExperimentID, a.segmentOutcome, segment)
		if err != nil {
			return nil, fmt.Errorf("segment breakdown %s: %w", segment, err)
		}
		breakdowns = append(breakdowns, reporting.SegmentBreakdown{
			Metric:  string(a.segmentOutcome),
			Segment: string(segment),
			Rows:    rows,
		})
	}

	// 6. Decision gate.
	input, err := a.builder.Build(validationReport, inferenceReports)
	if err != nil {
		return nil, err
	}
	result := a.evaluator.Evaluate(*input)

	// 7. Assemble and write the report files.
	report, err := a.reportGen.Generate(ctx, a.opts.ExperimentID, snapshotID)
	if err != nil {
		return nil, err
	}
	report.Validation = validationReport
	report.SegmentBreakdowns = breakdowns
	report.Decision = result

	if err := a.writeFile(ReportFile, reporting.RenderMarkdown(report)); err != nil {
		return nil, err
	}
	if err := a.writeFile(DecisionFile, decision.RenderMarkdown(result)); err != nil {
		return nil, err
	}
	if err := a.writeFile(MetricReportsCSV, reporting.RenderMetricReportsCSV(report.MetricReports)); err != nil {
		return nil, err
	}
	if err := a.writeFile(InferenceReportsCSV, reporting.RenderInferenceReportsCSV(report.InferenceReports)); err != nil {
		return nil, err
	}
	if err := a.writeFile(SegmentBreakdownCSV, reporting.RenderSegmentBreakdownCSV(report.SegmentBreakdowns)); err != nil {
		return nil, err
	}

	return report, nil
}

// finishInsufficientData writes the DECISION.md for a failed validation and
// returns a report carrying only the validation and decision sections.
func (a *Analysis) finishInsufficientData(validationReport *domain.ValidationReport) (*reporting.Report, error) {
	input, err := a.builder.Build(validationReport, nil)
	if err != nil {
		return nil, err
	}
	result := a.evaluator.Evaluate(*input)

	if err := a.writeFile(DecisionFile, decision.RenderMarkdown(result)); err != nil {
		return nil, err
	}

	return &reporting.Report{
		GeneratedAt:  a.clock(),
		ExperimentID: a.opts.ExperimentID,
		Validation:   validationReport,
		Decision:     result,
	}, nil
}

func (a *Analysis) writeFile(name, content string) error {
	if err := os.WriteFile(filepath.Join(a.opts.OutputDir, name), []byte(content), 0644); err != nil {
		return err
	}
	observability.RecordReportWritten()
	return nil
}
