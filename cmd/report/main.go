// Package main runs the full snapshot analysis and writes the report files:
// VALIDATION_REPORT.md, EXPERIMENT_REPORT.md, DECISION.md and the CSV
// exports. Data comes from generated fixtures, a JSONL/CSV file, or
// PostgreSQL + ClickHouse.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"experiment-lab/internal/config"
	"experiment-lab/internal/dataset"
	"experiment-lab/internal/pipeline"
	"experiment-lab/internal/storage"
	chstore "experiment-lab/internal/storage/clickhouse"
	"experiment-lab/internal/storage/memory"
	"experiment-lab/internal/storage/migrations"
	pgstore "experiment-lab/internal/storage/postgres"
	"experiment-lab/internal/verification"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "YAML configuration file (built-in defaults when empty)")
	outputDir := flag.String("output-dir", "output", "Output directory for report files")
	experimentID := flag.String("experiment", "", "Experiment ID (defaults to the configured experiment)")
	eventsFile := flag.String("events-file", "", "JSONL or CSV dataset loaded into in-memory stores")
	useFixtures := flag.Bool("use-fixtures", false, "Generate the synthetic fixture dataset in memory")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (overrides config)")
	verify := flag.Bool("verify", false, "Recompute stored metric reports after the run and diff them")
	fixedClock := flag.Bool("fixed-clock", false, "Pin report timestamps for reproducible output")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *postgresDSN == "" {
		*postgresDSN = cfg.Storage.PostgresDSN
	}
	if *clickhouseDSN == "" {
		*clickhouseDSN = cfg.Storage.ClickhouseDSN
	}

	useDatabase := *postgresDSN != "" && *clickhouseDSN != ""
	if !*useFixtures && *eventsFile == "" && !useDatabase {
		fmt.Fprintln(os.Stderr, "Error: no data source. Use --use-fixtures, --events-file, or both --postgres-dsn and --clickhouse-dsn")
		os.Exit(1)
	}

	ctx := context.Background()

	// Create stores
	var (
		unitStore      storage.UnitStore
		metricStore    storage.MetricReportStore
		inferenceStore storage.InferenceReportStore
		cleanup        func()
	)
	if useDatabase {
		unitStore, metricStore, inferenceStore, cleanup, err = createDatabaseStores(ctx, *postgresDSN, *clickhouseDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating stores: %v\n", err)
			os.Exit(1)
		}
	} else {
		unitStore = memory.NewUnitStore()
		metricStore = memory.NewMetricReportStore()
		inferenceStore = memory.NewInferenceReportStore()
		cleanup = func() {}
	}
	defer cleanup()

	// In-memory modes load the dataset up front; database mode analyzes
	// whatever ingestion already stored.
	switch {
	case *useFixtures:
		fmt.Printf("Generating fixture dataset: %d units, seed %d\n", cfg.Experiment.NUsers, cfg.Seed)
		if err := pipeline.LoadFixtures(ctx, cfg, unitStore); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading fixtures: %v\n", err)
			os.Exit(1)
		}
	case *eventsFile != "":
		n, err := loadEventsFile(ctx, *eventsFile, unitStore)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", *eventsFile, err)
			os.Exit(1)
		}
		fmt.Printf("Loaded %d units from %s\n", n, *eventsFile)
	}

	analysis, err := pipeline.NewAnalysis(cfg, pipeline.Options{
		UnitStore:            unitStore,
		MetricReportStore:    metricStore,
		InferenceReportStore: inferenceStore,
		ExperimentID:         *experimentID,
		OutputDir:            *outputDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating analysis: %v\n", err)
		os.Exit(1)
	}

	if *fixedClock {
		// The day after the reference experiment window closes.
		fixedTime := time.Date(2024, 10, 22, 12, 0, 0, 0, time.UTC)
		analysis = analysis.WithClock(func() time.Time { return fixedTime })
	}

	report, err := analysis.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running analysis: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Decision: %s (%s)\n", report.Decision.Verdict, report.Decision.Reason)
	fmt.Println("Reports generated successfully:")
	fmt.Printf("  - %s\n", filepath.Join(*outputDir, pipeline.ValidationReportFile))
	fmt.Printf("  - %s\n", filepath.Join(*outputDir, pipeline.DecisionFile))
	if len(report.MetricReports) > 0 {
		fmt.Printf("  - %s\n", filepath.Join(*outputDir, pipeline.ReportFile))
		fmt.Printf("  - %s\n", filepath.Join(*outputDir, pipeline.MetricReportsCSV))
		fmt.Printf("  - %s\n", filepath.Join(*outputDir, pipeline.InferenceReportsCSV))
		fmt.Printf("  - %s\n", filepath.Join(*outputDir, pipeline.SegmentBreakdownCSV))
	}

	if *verify {
		if report.SnapshotID == "" {
			fmt.Println("Skipping verification: validation failed, no metric reports were stored")
			return
		}
		if err := runVerification(ctx, cfg, unitStore, metricStore, report.SnapshotID); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
}

// loadEventsFile reads a JSONL or CSV dataset and bulk-inserts its units.
func loadEventsFile(ctx context.Context, path string, unitStore storage.UnitStore) (int, error) {
	table, err := dataset.ReadFile(path)
	if err != nil {
		return 0, err
	}
	units, err := table.Units()
	if err != nil {
		return 0, err
	}
	if err := unitStore.InsertBulk(ctx, units); err != nil {
		return 0, fmt.Errorf("insert units: %w", err)
	}
	return len(units), nil
}

// createDatabaseStores connects to PostgreSQL and ClickHouse and applies
// migrations so a fresh database works out of the box.
func createDatabaseStores(ctx context.Context, postgresDSN, clickhouseDSN string) (storage.UnitStore, storage.MetricReportStore, storage.InferenceReportStore, func(), error) {
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		conn.Close()
		pool.Close()
	}
	return pgstore.NewUnitStore(pool), chstore.NewMetricReportStore(conn), chstore.NewInferenceReportStore(conn), cleanup, nil
}

// runVerification recomputes the snapshot's stored metric reports from the
// unit store and prints the field-level diff. A divergence is an exit-1
// condition: it means the stored reports no longer describe the data.
func runVerification(ctx context.Context, cfg *config.Config, unitStore storage.UnitStore, metricStore storage.MetricReportStore, snapshotID string) error {
	verifier := verification.NewRecomputeVerifier(verification.RecomputeVerifierOptions{
		UnitStore:         unitStore,
		MetricReportStore: metricStore,
		IncludeIneligible: cfg.Analysis.IncludeIneligible,
	})

	vr, err := verifier.VerifySnapshot(ctx, snapshotID)
	if err != nil {
		return fmt.Errorf("verification: %w", err)
	}

	fmt.Printf("Verification of snapshot %s: %d/%d reports match\n", vr.SnapshotID, vr.MatchedReports, vr.TotalReports)
	for _, result := range vr.Results {
		if result.Match {
			fmt.Printf("  [ok]   %s\n", result.Metric)
			continue
		}
		fmt.Printf("  [DIFF] %s\n", result.Metric)
		for _, d := range result.Divergences {
			fmt.Printf("         %s: stored %v, recomputed %v\n", d.Field, d.Expected, d.Actual)
		}
	}

	if vr.DivergentReports > 0 {
		return fmt.Errorf("verification failed: %d of %d reports diverged", vr.DivergentReports, vr.TotalReports)
	}
	return nil
}
