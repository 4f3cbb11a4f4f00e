package clickhouse

import (
	"context"
	"fmt"

	"experiment-lab/internal/domain"
	"experiment-lab/internal/storage"
)

// InferenceReportStore implements storage.InferenceReportStore using ClickHouse.
// Same append-only discipline as MetricReportStore: exists check, then write.
type InferenceReportStore struct {
	conn *Conn
}

// NewInferenceReportStore creates a new InferenceReportStore.
func NewInferenceReportStore(conn *Conn) *InferenceReportStore {
	return &InferenceReportStore{conn: conn}
}

// Compile-time interface check.
var _ storage.InferenceReportStore = (*InferenceReportStore)(nil)

const insertInferenceReportQuery = `
	INSERT INTO inference_reports (
		snapshot_id, experiment_id, metric,
		control_rate, treatment_rate, absolute_lift, relative_lift_pct,
		ci_lower, ci_upper, p_value,
		statistically_significant, confidence_level, computed_at
	) VALUES (
		?, ?, ?,
		?, ?, ?, ?,
		?, ?, ?,
		?, ?, ?
	)
`

// Insert adds a new report. Returns ErrDuplicateKey if (snapshot_id, metric) exists.
func (s *InferenceReportStore) Insert(ctx context.Context, r *domain.InferenceReport) error {
	if err := validateInferenceReport(r); err != nil {
		return err
	}

	exists, err := s.exists(ctx, r.SnapshotID, r.Metric)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	err = s.conn.Exec(ctx, insertInferenceReportQuery,
		r.SnapshotID, r.ExperimentID, r.Metric,
		r.ControlRate, r.TreatmentRate, r.AbsoluteLift, r.RelativeLiftPct,
		r.CILower, r.CIUpper, r.PValue,
		r.StatisticallySignificant, r.ConfidenceLevel, r.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("insert inference report: %w", err)
	}
	return nil
}

// InsertBulk adds multiple reports atomically. Fails entire batch on any duplicate.
func (s *InferenceReportStore) InsertBulk(ctx context.Context, reports []*domain.InferenceReport) error {
	if len(reports) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{})
	for _, r := range reports {
		if err := validateInferenceReport(r); err != nil {
			return err
		}
		key := r.SnapshotID + "|" + r.Metric
		if _, dup := seen[key]; dup {
			return storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
	}

	// Check for duplicates against existing rows
	for _, r := range reports {
		exists, err := s.exists(ctx, r.SnapshotID, r.Metric)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO inference_reports (
			snapshot_id, experiment_id, metric,
			control_rate, treatment_rate, absolute_lift, relative_lift_pct,
			ci_lower, ci_upper, p_value,
			statistically_significant, confidence_level, computed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range reports {
		err = batch.Append(
			r.SnapshotID, r.ExperimentID, r.Metric,
			r.ControlRate, r.TreatmentRate, r.AbsoluteLift, r.RelativeLiftPct,
			r.CILower, r.CIUpper, r.PValue,
			r.StatisticallySignificant, r.ConfidenceLevel, r.ComputedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySnapshotID retrieves all reports for a snapshot, ordered by metric ASC.
func (s *InferenceReportStore) GetBySnapshotID(ctx context.Context, snapshotID string) ([]*domain.InferenceReport, error) {
	query := `
		SELECT
			snapshot_id, experiment_id, metric,
			control_rate, treatment_rate, absolute_lift, relative_lift_pct,
			ci_lower, ci_upper, p_value,
			statistically_significant, confidence_level, computed_at
		FROM inference_reports
		WHERE snapshot_id = ?
		ORDER BY metric ASC
	`

	rows, err := s.conn.Query(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("query inference reports by snapshot: %w", err)
	}
	defer rows.Close()

	var reports []*domain.InferenceReport
	for rows.Next() {
		var r domain.InferenceReport
		err := rows.Scan(
			&r.SnapshotID, &r.ExperimentID, &r.Metric,
			&r.ControlRate, &r.TreatmentRate, &r.AbsoluteLift, &r.RelativeLiftPct,
			&r.CILower, &r.CIUpper, &r.PValue,
			&r.StatisticallySignificant, &r.ConfidenceLevel, &r.ComputedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan inference report row: %w", err)
		}
		reports = append(reports, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inference report rows: %w", err)
	}

	return reports, nil
}

// exists checks if a report with the given key exists.
func (s *InferenceReportStore) exists(ctx context.Context, snapshotID, metric string) (bool, error) {
	query := `SELECT count(*) FROM inference_reports WHERE snapshot_id = ? AND metric = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, snapshotID, metric).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func validateInferenceReport(r *domain.InferenceReport) error {
	if r == nil || r.SnapshotID == "" || r.Metric == "" {
		return storage.ErrInvalidInput
	}
	return nil
}
