// Package main synthesizes an experiment-unit dataset from configuration,
// writes it as JSONL and/or bulk-inserts it into PostgreSQL, and prints a
// variant and segment summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"experiment-lab/internal/config"
	"experiment-lab/internal/datagen"
	"experiment-lab/internal/dataset"
	"experiment-lab/internal/domain"
	"experiment-lab/internal/storage/migrations"
	pgstore "experiment-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "YAML configuration file (built-in defaults when empty)")
	seed := flag.Int64("seed", 0, "Seed override (0 keeps the configured seed)")
	nUsers := flag.Int("n", 0, "Unit count override (0 keeps the configured count)")
	outFile := flag.String("out", "experiment_units.jsonl", "JSONL output path (empty to skip the file)")
	postgresDSN := flag.String("postgres-dsn", "", "Bulk-insert the dataset into PostgreSQL")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *nUsers > 0 {
		cfg.Experiment.NUsers = *nUsers
	}
	if *outFile == "" && *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: nothing to do. Use --out and/or --postgres-dsn")
		os.Exit(1)
	}

	fmt.Printf("Generating %d units for %s (seed %d)\n", cfg.Experiment.NUsers, cfg.Experiment.ID, cfg.Seed)
	units, err := datagen.New(cfg).Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating units: %v\n", err)
		os.Exit(1)
	}

	if *outFile != "" {
		if err := dataset.WriteJSONLFile(*outFile, units); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *outFile, err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", *outFile)
	}

	if *postgresDSN != "" {
		if err := insertPostgres(context.Background(), *postgresDSN, units); err != nil {
			fmt.Fprintf(os.Stderr, "Error inserting into postgres: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Inserted %d units into PostgreSQL\n", len(units))
	}

	printSummary(units)
}

// insertPostgres connects, applies migrations, and bulk-inserts the units.
func insertPostgres(ctx context.Context, dsn string, units []*domain.ExperimentUnit) error {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	return pgstore.NewUnitStore(pool).InsertBulk(ctx, units)
}

// printSummary prints per-variant outcome rates and the segment mix.
func printSummary(units []*domain.ExperimentUnit) {
	type tally struct {
		n, clicked, converted, bounced, eligible int
	}
	byVariant := map[domain.Variant]*tally{
		domain.VariantControl:   {},
		domain.VariantTreatment: {},
	}
	devices := make(map[string]int)
	countries := make(map[string]int)

	for _, u := range units {
		t := byVariant[u.Variant]
		t.n++
		if u.Clicked {
			t.clicked++
		}
		if u.Converted {
			t.converted++
		}
		if u.Bounced {
			t.bounced++
		}
		if u.Eligible {
			t.eligible++
		}
		devices[u.DeviceCategory]++
		countries[u.Country]++
	}

	fmt.Println()
	fmt.Println("Variant summary:")
	for _, v := range []domain.Variant{domain.VariantControl, domain.VariantTreatment} {
		t := byVariant[v]
		if t.n == 0 {
			fmt.Printf("  %-9s      0 units\n", v)
			continue
		}
		fmt.Printf("  %-9s %6d units  ctr=%.4f  cvr=%.4f  bounce=%.4f  eligible=%.4f\n",
			v, t.n,
			float64(t.clicked)/float64(t.n),
			float64(t.converted)/float64(t.n),
			float64(t.bounced)/float64(t.n),
			float64(t.eligible)/float64(t.n))
	}

	fmt.Println("Device mix:")
	printDistribution(devices, len(units))
	fmt.Println("Country mix:")
	printDistribution(countries, len(units))
}

func printDistribution(counts map[string]int, total int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-9s %6d (%.1f%%)\n", k, counts[k], 100*float64(counts[k])/float64(total))
	}
}
