// Package main runs the data-quality validation suite over a JSONL/CSV file
// or a stored experiment, prints every check result, and exits non-zero when
// the dataset fails validation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"experiment-lab/internal/config"
	"experiment-lab/internal/dataset"
	"experiment-lab/internal/domain"
	pgstore "experiment-lab/internal/storage/postgres"
	"experiment-lab/internal/validation"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "YAML configuration file (built-in defaults when empty)")
	eventsFile := flag.String("events-file", "", "JSONL or CSV dataset to validate")
	postgresDSN := flag.String("postgres-dsn", "", "Validate a stored experiment instead of a file")
	experimentID := flag.String("experiment", "", "Experiment ID (defaults to the configured experiment)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *postgresDSN == "" {
		*postgresDSN = cfg.Storage.PostgresDSN
	}
	if *experimentID == "" {
		*experimentID = cfg.Experiment.ID
	}

	ctx := context.Background()

	// A file beats the database when both are supplied.
	var table *dataset.Table
	switch {
	case *eventsFile != "":
		table, err = dataset.ReadFile(*eventsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", *eventsFile, err)
			os.Exit(1)
		}
		fmt.Printf("Validating %s: %d rows\n", *eventsFile, table.Len())
	case *postgresDSN != "":
		table, err = loadStoredExperiment(ctx, *postgresDSN, *experimentID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading experiment %s: %v\n", *experimentID, err)
			os.Exit(1)
		}
		fmt.Printf("Validating stored experiment %s: %d rows\n", *experimentID, table.Len())
	default:
		fmt.Fprintln(os.Stderr, "Error: no data source. Use --events-file or --postgres-dsn")
		os.Exit(1)
	}

	validator := validation.NewValidator(validation.Config{
		AllocationRatio:          cfg.Experiment.AllocationRatio,
		EligibilityWarnThreshold: cfg.Analysis.EligibilityWarnThreshold,
	})
	report := validator.Run(table)

	for _, res := range report.Results {
		fmt.Printf("  %s %s: %s\n", statusLabel(res), res.Name, res.Message)
	}

	fmt.Printf("\n%d checks, %d failed, %d warnings\n",
		len(report.Results), len(report.Failures()), len(report.Warnings()))

	if !report.Passed() {
		fmt.Println("Validation FAILED")
		os.Exit(1)
	}
	fmt.Println("Validation passed")
}

func statusLabel(res domain.ValidationResult) string {
	switch {
	case res.Passed:
		return "[PASS]"
	case res.Severity == domain.SeverityWarning:
		return "[WARN]"
	default:
		return "[FAIL]"
	}
}

// loadStoredExperiment reads the experiment's units from PostgreSQL in table
// form, preserving raw cells for the checks.
func loadStoredExperiment(ctx context.Context, dsn, experimentID string) (*dataset.Table, error) {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	units, err := pgstore.NewUnitStore(pool).GetByExperimentID(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}
	return dataset.FromUnits(units), nil
}
