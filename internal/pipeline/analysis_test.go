package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"experiment-lab/internal/config"
	"experiment-lab/internal/decision"
	"experiment-lab/internal/domain"
	"experiment-lab/internal/storage/memory"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Experiment.NUsers = 2000
	return cfg
}

func newTestAnalysis(t *testing.T, cfg *config.Config, outputDir string) (*Analysis, *memory.UnitStore) {
	unitStore := memory.NewUnitStore()
	analysis, err := NewAnalysis(cfg, Options{
		UnitStore:            unitStore,
		MetricReportStore:    memory.NewMetricReportStore(),
		InferenceReportStore: memory.NewInferenceReportStore(),
		ExperimentID:         cfg.Experiment.ID,
		OutputDir:            outputDir,
	})
	if err != nil {
		t.Fatalf("NewAnalysis failed: %v", err)
	}

	fixedTime := time.Date(2024, 10, 22, 12, 0, 0, 0, time.UTC)
	return analysis.WithClock(func() time.Time { return fixedTime }), unitStore
}

func TestAnalysisRun(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()
	cfg := testConfig()

	analysis, unitStore := newTestAnalysis(t, cfg, tempDir)
	if err := LoadFixtures(ctx, cfg, unitStore); err != nil {
		t.Fatalf("LoadFixtures failed: %v", err)
	}

	report, err := analysis.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	files := []string{
		ReportFile, ValidationReportFile, DecisionFile,
		MetricReportsCSV, InferenceReportsCSV, SegmentBreakdownCSV,
	}
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(tempDir, f)); os.IsNotExist(err) {
			t.Errorf("expected file %s does not exist", f)
		}
	}

	if report.SnapshotID == "" {
		t.Error("report missing snapshot id")
	}
	if report.Validation == nil || !report.Validation.Passed() {
		t.Error("fixture dataset should pass validation")
	}
	if len(report.MetricReports) != 3 {
		t.Errorf("expected 3 metric reports, got %d", len(report.MetricReports))
	}
	if len(report.InferenceReports) != 3 {
		t.Errorf("expected 3 inference reports, got %d", len(report.InferenceReports))
	}
	if len(report.SegmentBreakdowns) != 2 {
		t.Errorf("expected 2 segment breakdowns, got %d", len(report.SegmentBreakdowns))
	}
	if report.Decision == nil {
		t.Fatal("report missing decision")
	}
	if report.Decision.Verdict == decision.VerdictInsufficientData {
		t.Errorf("passing validation should not yield %s", decision.VerdictInsufficientData)
	}
}

func TestAnalysisDeterministic(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	files := []string{ReportFile, DecisionFile, MetricReportsCSV, InferenceReportsCSV, SegmentBreakdownCSV}
	var outputs []map[string]string

	for run := 0; run < 2; run++ {
		tempDir := t.TempDir()
		analysis, unitStore := newTestAnalysis(t, cfg, tempDir)
		if err := LoadFixtures(ctx, cfg, unitStore); err != nil {
			t.Fatalf("run %d: LoadFixtures failed: %v", run, err)
		}

		if _, err := analysis.Run(ctx); err != nil {
			t.Fatalf("run %d failed: %v", run, err)
		}

		runOutput := make(map[string]string)
		for _, f := range files {
			data, err := os.ReadFile(filepath.Join(tempDir, f))
			if err != nil {
				t.Fatalf("run %d: failed to read %s: %v", run, f, err)
			}
			runOutput[f] = string(data)
		}
		outputs = append(outputs, runOutput)
	}

	for _, f := range files {
		if outputs[0][f] != outputs[1][f] {
			t.Errorf("file %s is not deterministic between runs", f)
		}
	}
}

func TestAnalysisRerunTolerance(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()
	cfg := testConfig()

	analysis, unitStore := newTestAnalysis(t, cfg, tempDir)
	if err := LoadFixtures(ctx, cfg, unitStore); err != nil {
		t.Fatalf("LoadFixtures failed: %v", err)
	}

	first, err := analysis.Run(ctx)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// The second run hits the stored reports; the duplicate inserts must be
	// tolerated and the stored rows reused.
	second, err := analysis.Run(ctx)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if first.SnapshotID != second.SnapshotID {
		t.Errorf("snapshot id changed between reruns: %s vs %s", first.SnapshotID, second.SnapshotID)
	}
	if len(first.MetricReports) != len(second.MetricReports) {
		t.Errorf("metric report count changed between reruns")
	}
	for i := range first.MetricReports {
		if *first.MetricReports[i] != *second.MetricReports[i] {
			t.Errorf("metric report %d changed between reruns", i)
		}
	}
}

func TestAnalysisValidationFailure(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()
	cfg := testConfig()

	analysis, unitStore := newTestAnalysis(t, cfg, tempDir)

	// Every unit in one arm: the sample-ratio check fails hard.
	for i := 0; i < 50; i++ {
		u := &domain.ExperimentUnit{
			UnitID:         fmt.Sprintf("user_%03d", i),
			ExperimentID:   cfg.Experiment.ID,
			Variant:        domain.VariantControl,
			AssignedAt:     int64(1000 + i),
			FirstExposedAt: int64(2000 + i),
			Eligible:       true,
			DeviceCategory: "mobile",
			Country:        "US",
		}
		if err := unitStore.Insert(ctx, u); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	report, err := analysis.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Decision == nil || report.Decision.Verdict != decision.VerdictInsufficientData {
		t.Fatalf("expected %s verdict, got %+v", decision.VerdictInsufficientData, report.Decision)
	}
	if len(report.MetricReports) != 0 {
		t.Error("failed validation must not produce metric reports")
	}

	// VALIDATION_REPORT.md and DECISION.md exist; the metric outputs do not.
	for _, f := range []string{ValidationReportFile, DecisionFile} {
		if _, err := os.Stat(filepath.Join(tempDir, f)); os.IsNotExist(err) {
			t.Errorf("expected file %s does not exist", f)
		}
	}
	for _, f := range []string{ReportFile, MetricReportsCSV, InferenceReportsCSV} {
		if _, err := os.Stat(filepath.Join(tempDir, f)); err == nil {
			t.Errorf("file %s should not exist after failed validation", f)
		}
	}
}

func TestAnalysisOutputFormat(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()
	cfg := testConfig()

	analysis, unitStore := newTestAnalysis(t, cfg, tempDir)
	if err := LoadFixtures(ctx, cfg, unitStore); err != nil {
		t.Fatalf("LoadFixtures failed: %v", err)
	}
	if _, err := analysis.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	reportData, _ := os.ReadFile(filepath.Join(tempDir, ReportFile))
	report := string(reportData)
	for _, want := range []string{
		"# Experiment Analysis Report",
		"**Experiment:** homepage_redesign_v1",
		"## Validation",
		"## Metric Aggregates",
		"## Statistical Inference",
		"## Segment Breakdown: converted by device_category",
		"## Segment Breakdown: converted by country",
		"## Decision",
		"**Generated:** 2024-10-22T12:00:00Z",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}

	decisionData, _ := os.ReadFile(filepath.Join(tempDir, DecisionFile))
	if !strings.Contains(string(decisionData), "# Decision Gate Report") {
		t.Error("decision file missing header")
	}

	csvData, _ := os.ReadFile(filepath.Join(tempDir, MetricReportsCSV))
	if !strings.HasPrefix(string(csvData), "snapshot_id,experiment_id,metric,") {
		t.Error("metric CSV missing header")
	}
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	if len(lines) != 4 {
		t.Errorf("metric CSV should have header + 3 rows, got %d lines", len(lines))
	}
}

func TestAnalysisNoUnits(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	analysis, _ := newTestAnalysis(t, cfg, t.TempDir())

	if _, err := analysis.Run(ctx); err == nil {
		t.Fatal("expected error for empty unit store")
	}
}

func TestLoadFixturesDeterministic(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	store1 := memory.NewUnitStore()
	store2 := memory.NewUnitStore()
	if err := LoadFixtures(ctx, cfg, store1); err != nil {
		t.Fatalf("LoadFixtures failed: %v", err)
	}
	if err := LoadFixtures(ctx, cfg, store2); err != nil {
		t.Fatalf("LoadFixtures failed: %v", err)
	}

	units1, err := store1.GetByExperimentID(ctx, cfg.Experiment.ID)
	if err != nil {
		t.Fatalf("GetByExperimentID failed: %v", err)
	}
	units2, err := store2.GetByExperimentID(ctx, cfg.Experiment.ID)
	if err != nil {
		t.Fatalf("GetByExperimentID failed: %v", err)
	}

	if len(units1) != cfg.Experiment.NUsers {
		t.Fatalf("expected %d units, got %d", cfg.Experiment.NUsers, len(units1))
	}
	for i := range units1 {
		if *units1[i] != *units2[i] {
			t.Fatalf("unit %d differs between fixture loads", i)
		}
	}
}
