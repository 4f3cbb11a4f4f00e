package reporting

import (
	"context"
	"fmt"
	"time"

	"experiment-lab/internal/storage"
)

// Generator assembles reports from stored data.
type Generator struct {
	unitStore            storage.UnitStore
	metricReportStore    storage.MetricReportStore
	inferenceReportStore storage.InferenceReportStore
	now                  func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	unitStore storage.UnitStore,
	metricStore storage.MetricReportStore,
	inferenceStore storage.InferenceReportStore,
) *Generator {
	return &Generator{
		unitStore:            unitStore,
		metricReportStore:    metricStore,
		inferenceReportStore: inferenceStore,
		now:                  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate assembles the stored sections of a snapshot report: metric
// reports, inference reports and the analyzed unit count. The pipeline
// attaches validation, segment and decision sections afterwards.
// Returns storage.ErrNotFound when no metric reports exist for the
// snapshot.
func (g *Generator) Generate(ctx context.Context, experimentID, snapshotID string) (*Report, error) {
	metricReports, err := g.metricReportStore.GetBySnapshotID(ctx, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("load metric reports: %w", err)
	}
	if len(metricReports) == 0 {
		return nil, fmt.Errorf("snapshot %s has no metric reports: %w", snapshotID, storage.ErrNotFound)
	}

	inferenceReports, err := g.inferenceReportStore.GetBySnapshotID(ctx, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("load inference reports: %w", err)
	}

	unitCount, err := g.unitStore.CountByExperimentID(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("count units: %w", err)
	}

	return &Report{
		GeneratedAt:      g.now(),
		ExperimentID:     experimentID,
		SnapshotID:       snapshotID,
		UnitCount:        unitCount,
		MetricReports:    metricReports,
		InferenceReports: inferenceReports,
	}, nil
}
