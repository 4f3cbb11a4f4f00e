package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts a throwaway ClickHouse container with the report tables
// created. The returned cleanup tears the container down and must run after
// every test that uses the connection.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60 * time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
		Env: map[string]string{
			"CLICKHOUSE_DB":       "test",
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://%s:%s/test", host, port.Port())

	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)

	runMigrations(t, conn)

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}

// runMigrations applies the report table DDL. Importing the migrations
// package here would be an import cycle, so the statements are inlined
// and must stay in sync with internal/storage/migrations/clickhouse.
func runMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS metric_reports (
			snapshot_id         String,
			experiment_id       String,
			metric              String,
			control_n           Int64,
			control_successes   Int64,
			control_rate        Float64,
			treatment_n         Int64,
			treatment_successes Int64,
			treatment_rate      Float64,
			absolute_lift       Float64,
			relative_lift_pct   Float64,
			computed_at         Int64
		) ENGINE = MergeTree()
		ORDER BY (snapshot_id, metric)
		SETTINGS index_granularity = 8192
	`)
	require.NoError(t, err)

	err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS inference_reports (
			snapshot_id               String,
			experiment_id             String,
			metric                    String,
			control_rate              Float64,
			treatment_rate            Float64,
			absolute_lift             Float64,
			relative_lift_pct         Float64,
			ci_lower                  Float64,
			ci_upper                  Float64,
			p_value                   Float64,
			statistically_significant Bool,
			confidence_level          Float64,
			computed_at               Int64
		) ENGINE = MergeTree()
		ORDER BY (snapshot_id, metric)
		SETTINGS index_granularity = 8192
	`)
	require.NoError(t, err)
}
