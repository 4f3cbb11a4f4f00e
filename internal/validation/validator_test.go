package validation

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"experiment-lab/internal/dataset"
	"experiment-lab/internal/domain"
)

// validTable builds a clean dataset with every canonical column present and
// the requested variant split.
func validTable(nControl, nTreatment int) *dataset.Table {
	rows := make([]dataset.Row, 0, nControl+nTreatment)
	for i := 0; i < nControl+nTreatment; i++ {
		variant := "control"
		if i >= nControl {
			variant = "treatment"
		}
		rows = append(rows, dataset.Row{
			"unit_id":          fmt.Sprintf("user_%06d", i),
			"experiment_id":    "homepage_redesign_v1",
			"variant":          variant,
			"assigned_at":      "1700000000000",
			"first_exposed_at": "1700000300000",
			"eligible":         "true",
			"clicked":          "false",
			"converted":        "false",
			"bounced":          "false",
			"session_seconds":  "120",
			"sessions":         "1",
			"device_category":  "mobile",
			"country":          "US",
		})
	}
	cols := make([]string, len(dataset.CanonicalColumns))
	copy(cols, dataset.CanonicalColumns)
	return &dataset.Table{Columns: cols, Rows: rows}
}

// findResult returns the named check result from a report.
func findResult(t *testing.T, report *domain.ValidationReport, name string) domain.ValidationResult {
	t.Helper()
	for _, r := range report.Results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("check %q not found in report", name)
	return domain.ValidationResult{}
}

func TestValidator_CleanDataPassesAllChecks(t *testing.T) {
	validator := NewValidator(DefaultConfig())
	report := validator.Run(validTable(500, 500))

	if !report.Passed() {
		t.Errorf("expected overall pass, failures: %+v", report.Failures())
	}
	if len(report.Results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(report.Results))
	}
	for _, r := range report.Results {
		if !r.Passed {
			t.Errorf("check %q failed on clean data: %s", r.Name, r.Message)
		}
	}
}

func TestValidator_FixedCheckOrder(t *testing.T) {
	validator := NewValidator(DefaultConfig())
	report := validator.Run(validTable(10, 10))

	wantOrder := []string{
		CheckSchema,
		CheckNulls,
		CheckVariants,
		CheckSRM,
		CheckContamination,
		CheckEligibility,
	}
	for i, want := range wantOrder {
		if report.Results[i].Name != want {
			t.Errorf("position %d: expected %q, got %q", i, want, report.Results[i].Name)
		}
	}
}

func TestValidator_SchemaCheckFailsMissingColumn(t *testing.T) {
	table := validTable(50, 50)

	// Drop the clicked column from the input entirely.
	var cols []string
	for _, c := range table.Columns {
		if c != "clicked" {
			cols = append(cols, c)
		}
	}
	table.Columns = cols
	for _, row := range table.Rows {
		delete(row, "clicked")
	}

	report := NewValidator(DefaultConfig()).Run(table)

	schema := findResult(t, report, CheckSchema)
	if schema.Passed {
		t.Error("schema check passed despite missing column")
	}
	if !strings.Contains(schema.Message, "clicked") {
		t.Errorf("schema message does not name the missing column: %s", schema.Message)
	}
	if report.Passed() {
		t.Error("overall validation passed despite schema failure")
	}
}

func TestValidator_NullCheckFails(t *testing.T) {
	table := validTable(50, 50)
	// Blank out variant in a handful of rows.
	for i := 0; i < 10; i++ {
		delete(table.Rows[i], "variant")
	}

	report := NewValidator(DefaultConfig()).Run(table)

	nulls := findResult(t, report, CheckNulls)
	if nulls.Passed {
		t.Error("null check passed despite missing values")
	}
	if !strings.Contains(nulls.Message, "variant") {
		t.Errorf("null message does not name the offending column: %s", nulls.Message)
	}
}

func TestValidator_VariantIntegrityFails(t *testing.T) {
	table := validTable(50, 50)
	table.Rows[0]["variant"] = "variant_c"

	report := NewValidator(DefaultConfig()).Run(table)

	variants := findResult(t, report, CheckVariants)
	if variants.Passed {
		t.Error("variant check passed despite unknown variant")
	}
	if !strings.Contains(variants.Message, "variant_c") {
		t.Errorf("variant message does not name the invalid value: %s", variants.Message)
	}
}

func TestValidator_SRMDetected(t *testing.T) {
	// 9000/1000 at an expected 50/50 split is a flagrant mismatch:
	// χ² = 2 * 4000²/5000 = 6400, far beyond the 10.83 critical value.
	report := NewValidator(DefaultConfig()).Run(validTable(9000, 1000))

	srm := findResult(t, report, CheckSRM)
	if srm.Passed {
		t.Error("SRM check passed despite severe imbalance")
	}
	if !strings.Contains(srm.Message, "SRM detected!") {
		t.Errorf("unexpected SRM message: %s", srm.Message)
	}
	if report.Passed() {
		t.Error("overall validation passed despite SRM")
	}
}

func TestValidator_SRMPassesNearEvenSplit(t *testing.T) {
	// 5020/4980: χ² = 2 * 20²/5000 = 0.16, well under the critical value.
	report := NewValidator(DefaultConfig()).Run(validTable(5020, 4980))

	srm := findResult(t, report, CheckSRM)
	if !srm.Passed {
		t.Errorf("SRM check failed on sampling noise: %s", srm.Message)
	}
	if !strings.Contains(srm.Message, "No SRM detected") {
		t.Errorf("unexpected SRM message: %s", srm.Message)
	}
}

func TestValidator_SRMRespectsAllocationRatio(t *testing.T) {
	// A 90/10 design expects 9000/1000; the same counts that fail a 50/50
	// check pass here.
	cfg := DefaultConfig()
	cfg.AllocationRatio = 0.9

	report := NewValidator(cfg).Run(validTable(9000, 1000))

	srm := findResult(t, report, CheckSRM)
	if !srm.Passed {
		t.Errorf("SRM check failed under matching 90/10 ratio: %s", srm.Message)
	}
}

func TestValidator_ContaminationDetected(t *testing.T) {
	table := validTable(50, 50)
	// Re-observe the first unit under the other variant.
	dup := dataset.Row{}
	for k, v := range table.Rows[0] {
		dup[k] = v
	}
	dup["variant"] = "treatment"
	table.Rows = append(table.Rows, dup)

	report := NewValidator(DefaultConfig()).Run(table)

	contamination := findResult(t, report, CheckContamination)
	if contamination.Passed {
		t.Error("contamination check passed despite duplicated unit")
	}
	if contamination.Message != "1 units in multiple variants!" {
		t.Errorf("unexpected contamination message: %s", contamination.Message)
	}
}

func TestValidator_ContaminationCleanPasses(t *testing.T) {
	report := NewValidator(DefaultConfig()).Run(validTable(100, 100))

	contamination := findResult(t, report, CheckContamination)
	if !contamination.Passed {
		t.Errorf("contamination check failed on clean data: %s", contamination.Message)
	}
}

func TestValidator_EligibilityWarningDoesNotBlock(t *testing.T) {
	table := validTable(100, 100)
	// Drop eligibility to 50%.
	for i := 0; i < 100; i++ {
		table.Rows[i]["eligible"] = "false"
	}

	report := NewValidator(DefaultConfig()).Run(table)

	eligibility := findResult(t, report, CheckEligibility)
	if eligibility.Passed {
		t.Error("eligibility check passed at 50% eligible")
	}
	if eligibility.Severity != domain.SeverityWarning {
		t.Errorf("expected warning severity, got %s", eligibility.Severity)
	}
	if !strings.Contains(eligibility.Message, "Low eligibility rate: 50.0%") {
		t.Errorf("unexpected eligibility message: %s", eligibility.Message)
	}

	// A warning alone never blocks the dataset.
	if !report.Passed() {
		t.Error("overall validation failed on a warning-only finding")
	}
	if len(report.Warnings()) != 1 {
		t.Errorf("expected 1 warning, got %d", len(report.Warnings()))
	}
}

func TestValidator_EligibilityThresholdConfigurable(t *testing.T) {
	table := validTable(100, 100)
	// 95% eligible: fine at the default 0.80 threshold, low at 0.99.
	for i := 0; i < 10; i++ {
		table.Rows[i]["eligible"] = "false"
	}

	report := NewValidator(DefaultConfig()).Run(table)
	if !findResult(t, report, CheckEligibility).Passed {
		t.Error("eligibility check failed at default threshold")
	}

	cfg := DefaultConfig()
	cfg.EligibilityWarnThreshold = 0.99
	report = NewValidator(cfg).Run(table)
	if findResult(t, report, CheckEligibility).Passed {
		t.Error("eligibility check passed despite raised threshold")
	}
}

func TestValidator_EmptyDataset(t *testing.T) {
	cols := make([]string, len(dataset.CanonicalColumns))
	copy(cols, dataset.CanonicalColumns)
	table := &dataset.Table{Columns: cols}

	report := NewValidator(DefaultConfig()).Run(table)

	if len(report.Results) != 6 {
		t.Fatalf("expected 6 results on empty input, got %d", len(report.Results))
	}
	if report.Passed() {
		t.Error("empty dataset passed validation")
	}
}

func TestValidator_ReportMetadata(t *testing.T) {
	fixed := time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC)
	validator := NewValidator(DefaultConfig()).WithClock(func() time.Time { return fixed })

	report := validator.Run(validTable(10, 10))

	if report.ExperimentID != "homepage_redesign_v1" {
		t.Errorf("expected experiment id from rows, got %q", report.ExperimentID)
	}
	if report.RanAt != fixed.UnixMilli() {
		t.Errorf("expected ran_at %d, got %d", fixed.UnixMilli(), report.RanAt)
	}
}
