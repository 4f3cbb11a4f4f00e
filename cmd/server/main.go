// Package main provides the collector service that runs all components
// together:
// - Ingestion (continuous): WebSocket exposure-event feed into the unit store
// - Analysis (scheduled): validation, aggregation, inference, decision gate
// - HTTP: /health, /metrics, /status
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"experiment-lab/internal/config"
	"experiment-lab/internal/ingestion"
	"experiment-lab/internal/observability"
	"experiment-lab/internal/pipeline"
	"experiment-lab/internal/storage"
	chstore "experiment-lab/internal/storage/clickhouse"
	"experiment-lab/internal/storage/memory"
	"experiment-lab/internal/storage/migrations"
	pgstore "experiment-lab/internal/storage/postgres"
)

// Server holds all components of the collector service.
type Server struct {
	// Configuration
	cfg              *config.Config
	wsEndpoint       string
	experimentID     string
	outputDir        string
	analysisInterval time.Duration

	// Stores
	stores *allStores

	// Components
	logger *log.Logger

	// State
	mu               sync.Mutex
	runner           *ingestion.Runner
	ingestionStarted time.Time
	lastAnalysisRun  time.Time
	analysisRunning  bool
	analysisRuns     int
	lastDecision     string
	lastSnapshotID   string
	lastUnitCount    int64
}

// allStores holds all storage implementations.
type allStores struct {
	unitStore      storage.UnitStore
	metricStore    storage.MetricReportStore
	inferenceStore storage.InferenceReportStore
}

func main() {
	// Parse flags (env vars come in through config.Load)
	configPath := flag.String("config", "", "YAML configuration file (built-in defaults when empty)")
	wsEndpoint := flag.String("ws-endpoint", "", "WebSocket endpoint streaming exposure events")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (overrides config)")
	experimentID := flag.String("experiment", "", "Experiment ID (defaults to the configured experiment)")
	outputDir := flag.String("output-dir", "output", "Output directory for report files")
	analysisInterval := flag.Duration("analysis-interval", 1*time.Hour, "Analysis run interval")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL + ClickHouse")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for /health, /metrics and /status")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}
	if *postgresDSN == "" {
		*postgresDSN = cfg.Storage.PostgresDSN
	}
	if *clickhouseDSN == "" {
		*clickhouseDSN = cfg.Storage.ClickhouseDSN
	}
	if *experimentID == "" {
		*experimentID = cfg.Experiment.ID
	}

	// Validate required flags
	if *wsEndpoint == "" {
		logger.Fatal("--ws-endpoint is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Create server
	server := &Server{
		cfg:              cfg,
		wsEndpoint:       *wsEndpoint,
		experimentID:     *experimentID,
		outputDir:        *outputDir,
		analysisInterval: *analysisInterval,
		stores:           stores,
		logger:           logger,
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

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

	// Start HTTP server
	go server.startHTTPServer(*metricsAddr)

	// Run the collector
	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates all required stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			unitStore:      memory.NewUnitStore(),
			metricStore:    memory.NewMetricReportStore(),
			inferenceStore: memory.NewInferenceReportStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL (units)
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse (analysis reports)
	conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &allStores{
		unitStore:      pgstore.NewUnitStore(pool),
		metricStore:    chstore.NewMetricReportStore(conn),
		inferenceStore: chstore.NewInferenceReportStore(conn),
	}

	cleanup := func() {
		conn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// Run starts the collector with all components.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting collector...")

	// Create error channel for goroutines
	errCh := make(chan error, 2)

	// Start ingestion in background
	go func() {
		err := s.runIngestion(ctx)
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("ingestion: %w", err)
		}
	}()

	// Start analysis scheduler in background
	go func() {
		err := s.runAnalysisScheduler(ctx)
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("analysis scheduler: %w", err)
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// runIngestion runs continuous exposure-event ingestion.
func (s *Server) runIngestion(ctx context.Context) error {
	s.logger.Printf("Starting ingestion from %s...", s.wsEndpoint)

	source := ingestion.NewWSSource(s.wsEndpoint, nil)
	defer source.Close()

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source:    source,
		UnitStore: s.stores.unitStore,
		Logger:    log.New(os.Stdout, "[ingestion] ", log.LstdFlags|log.Lshortfile),
	})

	s.mu.Lock()
	s.runner = runner
	s.ingestionStarted = time.Now()
	s.mu.Unlock()

	return runner.Run(ctx)
}

// runAnalysisScheduler runs the analysis on schedule.
func (s *Server) runAnalysisScheduler(ctx context.Context) error {
	s.logger.Printf("Starting analysis scheduler (interval: %v)...", s.analysisInterval)

	ticker := time.NewTicker(s.analysisInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runAnalysis(ctx)
		}
	}
}

// runAnalysis executes one analysis pass over whatever ingestion has stored.
func (s *Server) runAnalysis(ctx context.Context) {
	count, err := s.stores.unitStore.CountByExperimentID(ctx, s.experimentID)
	if err != nil {
		s.logger.Printf("Analysis error: count units: %v", err)
		return
	}
	if count == 0 {
		s.logger.Println("No units stored yet, skipping analysis")
		return
	}

	s.mu.Lock()
	if s.analysisRunning {
		s.mu.Unlock()
		s.logger.Println("Analysis already running, skipping...")
		return
	}
	s.analysisRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.analysisRunning = false
		s.lastAnalysisRun = time.Now()
		s.analysisRuns++
		s.mu.Unlock()
	}()

	s.logger.Printf("Running analysis over %d units...", count)
	start := time.Now()

	analysis, err := pipeline.NewAnalysis(s.cfg, pipeline.Options{
		UnitStore:            s.stores.unitStore,
		MetricReportStore:    s.stores.metricStore,
		InferenceReportStore: s.stores.inferenceStore,
		ExperimentID:         s.experimentID,
		OutputDir:            s.outputDir,
	})
	if err != nil {
		s.logger.Printf("Analysis error: %v", err)
		return
	}

	report, err := analysis.Run(ctx)
	if err != nil {
		s.logger.Printf("Analysis error: %v", err)
		return
	}

	s.mu.Lock()
	s.lastDecision = string(report.Decision.Verdict)
	s.lastSnapshotID = report.SnapshotID
	s.lastUnitCount = count
	s.mu.Unlock()

	s.logger.Printf("Analysis completed in %v: decision %s, snapshot %s",
		time.Since(start), report.Decision.Verdict, report.SnapshotID)
}

// startHTTPServer starts the HTTP server for health/metrics/status.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status           string    `json:"status"`
	ExperimentID     string    `json:"experiment_id"`
	Uptime           string    `json:"uptime"`
	IngestionStarted time.Time `json:"ingestion_started"`

	EventsReceived int64 `json:"events_received"`
	UnitsStored    int64 `json:"units_stored"`
	Duplicates     int64 `json:"duplicates"`
	Rejected       int64 `json:"rejected"`
	StoreErrors    int64 `json:"store_errors"`

	LastAnalysisRun time.Time `json:"last_analysis_run,omitempty"`
	AnalysisRuns    int       `json:"analysis_runs"`
	AnalysisRunning bool      `json:"analysis_running"`
	LastDecision    string    `json:"last_decision,omitempty"`
	LastSnapshotID  string    `json:"last_snapshot_id,omitempty"`
	UnitCount       int64     `json:"unit_count"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatusResponse{
		Status:           "running",
		ExperimentID:     s.experimentID,
		Uptime:           time.Since(s.ingestionStarted).String(),
		IngestionStarted: s.ingestionStarted,
		LastAnalysisRun:  s.lastAnalysisRun,
		AnalysisRuns:     s.analysisRuns,
		AnalysisRunning:  s.analysisRunning,
		LastDecision:     s.lastDecision,
		LastSnapshotID:   s.lastSnapshotID,
		UnitCount:        s.lastUnitCount,
	}
	if s.runner != nil {
		stats := s.runner.Stats()
		resp.EventsReceived = stats.EventsReceived
		resp.UnitsStored = stats.UnitsStored
		resp.Duplicates = stats.Duplicates
		resp.Rejected = stats.Rejected
		resp.StoreErrors = stats.StoreErrors
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
