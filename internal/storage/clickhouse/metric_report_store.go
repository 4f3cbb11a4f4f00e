package clickhouse

import (
	"context"
	"fmt"

	"experiment-lab/internal/domain"
	"experiment-lab/internal/storage"
)

// MetricReportStore implements storage.MetricReportStore using ClickHouse.
//
// MergeTree does not enforce uniqueness at insert time, so duplicate
// protection is an explicit exists check before every write.
type MetricReportStore struct {
	conn *Conn
}

// NewMetricReportStore creates a new MetricReportStore.
func NewMetricReportStore(conn *Conn) *MetricReportStore {
	return &MetricReportStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MetricReportStore = (*MetricReportStore)(nil)

const insertMetricReportQuery = `
	INSERT INTO metric_reports (
		snapshot_id, experiment_id, metric,
		control_n, control_successes, control_rate,
		treatment_n, treatment_successes, treatment_rate,
		absolute_lift, relative_lift_pct, computed_at
	) VALUES (
		?, ?, ?,
		?, ?, ?,
		?, ?, ?,
		?, ?, ?
	)
`

// Insert adds a new report. Returns ErrDuplicateKey if (snapshot_id, metric) exists.
func (s *MetricReportStore) Insert(ctx context.Context, r *domain.MetricReport) error {
	if err := validateMetricReport(r); err != nil {
		return err
	}

	exists, err := s.exists(ctx, r.SnapshotID, r.Metric)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	err = s.conn.Exec(ctx, insertMetricReportQuery,
		r.SnapshotID, r.ExperimentID, r.Metric,
		r.ControlN, r.ControlSuccesses, r.ControlRate,
		r.TreatmentN, r.TreatmentSuccesses, r.TreatmentRate,
		r.AbsoluteLift, r.RelativeLiftPct, r.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("insert metric report: %w", err)
	}
	return nil
}

// InsertBulk adds multiple reports atomically. Fails entire batch on any duplicate.
func (s *MetricReportStore) InsertBulk(ctx context.Context, reports []*domain.MetricReport) error {
	if len(reports) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{})
	for _, r := range reports {
		if err := validateMetricReport(r); err != nil {
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
		INSERT INTO metric_reports (
			snapshot_id, experiment_id, metric,
			control_n, control_successes, control_rate,
			treatment_n, treatment_successes, treatment_rate,
			absolute_lift, relative_lift_pct, computed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range reports {
		err = batch.Append(
			r.SnapshotID, r.ExperimentID, r.Metric,
			r.ControlN, r.ControlSuccesses, r.ControlRate,
			r.TreatmentN, r.TreatmentSuccesses, r.TreatmentRate,
			r.AbsoluteLift, r.RelativeLiftPct, r.ComputedAt,
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
func (s *MetricReportStore) GetBySnapshotID(ctx context.Context, snapshotID string) ([]*domain.MetricReport, error) {
	query := `
		SELECT
			snapshot_id, experiment_id, metric,
			control_n, control_successes, control_rate,
			treatment_n, treatment_successes, treatment_rate,
			absolute_lift, relative_lift_pct, computed_at
		FROM metric_reports
		WHERE snapshot_id = ?
		ORDER BY metric ASC
	`

	rows, err := s.conn.Query(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("query metric reports by snapshot: %w", err)
	}
	defer rows.Close()

	var reports []*domain.MetricReport
	for rows.Next() {
		var r domain.MetricReport
		err := rows.Scan(
			&r.SnapshotID, &r.ExperimentID, &r.Metric,
			&r.ControlN, &r.ControlSuccesses, &r.ControlRate,
			&r.TreatmentN, &r.TreatmentSuccesses, &r.TreatmentRate,
			&r.AbsoluteLift, &r.RelativeLiftPct, &r.ComputedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan metric report row: %w", err)
		}
		reports = append(reports, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric report rows: %w", err)
	}

	return reports, nil
}

// exists checks if a report with the given key exists.
func (s *MetricReportStore) exists(ctx context.Context, snapshotID, metric string) (bool, error) {
	query := `SELECT count(*) FROM metric_reports WHERE snapshot_id = ? AND metric = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, snapshotID, metric).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func validateMetricReport(r *domain.MetricReport) error {
	if r == nil || r.SnapshotID == "" || r.Metric == "" {
		return storage.ErrInvalidInput
	}
	return nil
}
