// Package postgres stores experiment units in PostgreSQL. The unit table is
// the system of record for assignments and outcomes; report tables live in
// ClickHouse.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the pgxpool handle shared by the stores and the migration runner.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects to the DSN and verifies the server responds before any
// store touches it.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// sqlstateUniqueViolation is what Postgres raises for primary key
// collisions on experiment_units.
const sqlstateUniqueViolation = "23505"

// isDuplicateKeyError reports whether err is a unique-constraint violation,
// which the stores surface as storage.ErrDuplicateKey.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateUniqueViolation
}
