package storage

import (
	"context"

	"experiment-lab/internal/domain"
)

// UnitStore provides access to experiment_units storage.
type UnitStore interface {
	// Insert adds a new unit. Returns ErrDuplicateKey if (experiment_id, unit_id) exists.
	Insert(ctx context.Context, u *domain.ExperimentUnit) error

	// InsertBulk adds multiple units atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, units []*domain.ExperimentUnit) error

	// GetByExperimentID retrieves all units for an experiment, ordered by AssignedAt ASC, UnitID ASC.
	GetByExperimentID(ctx context.Context, experimentID string) ([]*domain.ExperimentUnit, error)

	// CountByExperimentID returns the number of units stored for an experiment.
	CountByExperimentID(ctx context.Context, experimentID string) (int64, error)
}

// MetricReportStore provides access to metric_reports storage.
type MetricReportStore interface {
	// Insert adds a new report. Returns ErrDuplicateKey if (snapshot_id, metric) exists.
	Insert(ctx context.Context, r *domain.MetricReport) error

	// InsertBulk adds multiple reports atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, reports []*domain.MetricReport) error

	// GetBySnapshotID retrieves all reports for a snapshot, ordered by metric ASC.
	GetBySnapshotID(ctx context.Context, snapshotID string) ([]*domain.MetricReport, error)
}

// InferenceReportStore provides access to inference_reports storage.
type InferenceReportStore interface {
	// Insert adds a new report. Returns ErrDuplicateKey if (snapshot_id, metric) exists.
	Insert(ctx context.Context, r *domain.InferenceReport) error

	// InsertBulk adds multiple reports atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, reports []*domain.InferenceReport) error

	// GetBySnapshotID retrieves all reports for a snapshot, ordered by metric ASC.
	GetBySnapshotID(ctx context.Context, snapshotID string) ([]*domain.InferenceReport, error)
}
