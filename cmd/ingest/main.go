// Package main streams exposure events into the unit store, either from a
// live WebSocket feed or from a JSONL file replay.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"experiment-lab/internal/config"
	"experiment-lab/internal/ingestion"
	"experiment-lab/internal/observability"
	"experiment-lab/internal/storage"
	"experiment-lab/internal/storage/memory"
	"experiment-lab/internal/storage/migrations"
	pgstore "experiment-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "YAML configuration file (built-in defaults when empty)")
	wsEndpoint := flag.String("ws-endpoint", "", "WebSocket endpoint streaming exposure events")
	eventsFile := flag.String("events-file", "", "JSONL file to replay instead of a live feed")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	batchSize := flag.Int("batch-size", 500, "Units per bulk insert")
	flushInterval := flag.Duration("flush-interval", 5*time.Second, "Partial batch flush interval")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}
	if *postgresDSN == "" {
		*postgresDSN = cfg.Storage.PostgresDSN
	}

	if (*wsEndpoint == "") == (*eventsFile == "") {
		logger.Fatal("Exactly one of --ws-endpoint or --events-file is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err = run(ctx, logger, *wsEndpoint, *eventsFile, *postgresDSN, *useMemory, *batchSize, *flushInterval)

	// Signal completion to shutdown handler
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// run wires the source and store together and consumes the feed until it
// ends or the context is cancelled.
func run(ctx context.Context, logger *log.Logger, wsEndpoint, eventsFile, postgresDSN string, useMemory bool, batchSize int, flushInterval time.Duration) error {
	// Create store (use interface)
	var unitStore storage.UnitStore = memory.NewUnitStore()

	if !useMemory {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		unitStore = pgstore.NewUnitStore(pool)
	}

	var source ingestion.Source
	if wsEndpoint != "" {
		ws := ingestion.NewWSSource(wsEndpoint, nil)
		defer ws.Close()
		source = ws
		logger.Printf("Streaming events from %s", wsEndpoint)
	} else {
		source = ingestion.NewFileSource(eventsFile)
		logger.Printf("Replaying events from %s", eventsFile)
	}

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source:        source,
		UnitStore:     unitStore,
		BatchSize:     batchSize,
		FlushInterval: flushInterval,
		Logger:        logger,
	})

	err := runner.Run(ctx)

	stats := runner.Stats()
	logger.Printf("Ingestion finished: %d received, %d stored, %d duplicates, %d rejected, %d store errors",
		stats.EventsReceived, stats.UnitsStored, stats.Duplicates, stats.Rejected, stats.StoreErrors)

	return err
}
