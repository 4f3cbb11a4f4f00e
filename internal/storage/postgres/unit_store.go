package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"experiment-lab/internal/domain"
	"experiment-lab/internal/storage"
)

// UnitStore implements storage.UnitStore using PostgreSQL.
type UnitStore struct {
	pool *Pool
}

// NewUnitStore creates a new UnitStore.
func NewUnitStore(pool *Pool) *UnitStore {
	return &UnitStore{pool: pool}
}

// Compile-time interface check.
var _ storage.UnitStore = (*UnitStore)(nil)

const insertUnitQuery = `
	INSERT INTO experiment_units (
		unit_id, experiment_id, variant,
		assigned_at, first_exposed_at, eligible,
		clicked, converted, bounced,
		session_seconds, sessions,
		device_category, country
	) VALUES (
		$1, $2, $3,
		$4, $5, $6,
		$7, $8, $9,
		$10, $11,
		$12, $13
	)
`

// Insert adds a new unit. Returns ErrDuplicateKey if (experiment_id, unit_id) exists.
func (s *UnitStore) Insert(ctx context.Context, u *domain.ExperimentUnit) error {
	if err := validateUnit(u); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, insertUnitQuery,
		u.UnitID, u.ExperimentID, string(u.Variant),
		u.AssignedAt, u.FirstExposedAt, u.Eligible,
		u.Clicked, u.Converted, u.Bounced,
		u.SessionSeconds, u.Sessions,
		u.DeviceCategory, u.Country,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert experiment unit: %w", err)
	}
	return nil
}

// InsertBulk adds multiple units atomically. Fails entire batch on any duplicate.
func (s *UnitStore) InsertBulk(ctx context.Context, units []*domain.ExperimentUnit) error {
	if len(units) == 0 {
		return nil
	}

	for _, u := range units {
		if err := validateUnit(u); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range units {
		_, err := tx.Exec(ctx, insertUnitQuery,
			u.UnitID, u.ExperimentID, string(u.Variant),
			u.AssignedAt, u.FirstExposedAt, u.Eligible,
			u.Clicked, u.Converted, u.Bounced,
			u.SessionSeconds, u.Sessions,
			u.DeviceCategory, u.Country,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert experiment unit in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByExperimentID retrieves all units for an experiment, ordered by AssignedAt ASC, UnitID ASC.
func (s *UnitStore) GetByExperimentID(ctx context.Context, experimentID string) ([]*domain.ExperimentUnit, error) {
	query := `
		SELECT
			unit_id, experiment_id, variant,
			assigned_at, first_exposed_at, eligible,
			clicked, converted, bounced,
			session_seconds, sessions,
			device_category, country
		FROM experiment_units
		WHERE experiment_id = $1
		ORDER BY assigned_at ASC, unit_id ASC
	`

	rows, err := s.pool.Query(ctx, query, experimentID)
	if err != nil {
		return nil, fmt.Errorf("get units by experiment id: %w", err)
	}
	defer rows.Close()

	return scanUnits(rows)
}

// CountByExperimentID returns the number of units stored for an experiment.
func (s *UnitStore) CountByExperimentID(ctx context.Context, experimentID string) (int64, error) {
	query := `SELECT COUNT(*) FROM experiment_units WHERE experiment_id = $1`

	var count int64
	if err := s.pool.QueryRow(ctx, query, experimentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count units by experiment id: %w", err)
	}
	return count, nil
}

// validateUnit rejects units the table schema cannot key.
func validateUnit(u *domain.ExperimentUnit) error {
	if u == nil || u.UnitID == "" || u.ExperimentID == "" {
		return storage.ErrInvalidInput
	}
	return nil
}

// scanUnits scans multiple rows into a slice of ExperimentUnit.
func scanUnits(rows pgx.Rows) ([]*domain.ExperimentUnit, error) {
	var units []*domain.ExperimentUnit

	for rows.Next() {
		var u domain.ExperimentUnit
		var variant string

		err := rows.Scan(
			&u.UnitID, &u.ExperimentID, &variant,
			&u.AssignedAt, &u.FirstExposedAt, &u.Eligible,
			&u.Clicked, &u.Converted, &u.Bounced,
			&u.SessionSeconds, &u.Sessions,
			&u.DeviceCategory, &u.Country,
		)
		if err != nil {
			return nil, fmt.Errorf("scan experiment unit row: %w", err)
		}

		u.Variant = domain.Variant(variant)
		units = append(units, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate experiment unit rows: %w", err)
	}

	return units, nil
}
