// Package validation runs data-quality checks over a loaded experiment
// dataset before any analysis. Failed checks are findings, not Go errors:
// every check always runs, and one pass over the data surfaces every
// problem. Halting on failure is the caller's policy.
package validation

import (
	"time"

	"experiment-lab/internal/dataset"
	"experiment-lab/internal/domain"
)

// Check names as they appear in validation reports.
const (
	CheckSchema        = "Schema Check"
	CheckNulls         = "Null Check"
	CheckVariants      = "Variant Integrity"
	CheckSRM           = "Sample Ratio Mismatch (SRM)"
	CheckContamination = "Contamination Check"
	CheckEligibility   = "Eligibility Check"
)

// srmCriticalValue is the chi-square critical value for alpha=0.001 with
// 1 degree of freedom. SRM indicates a broken experiment, so the threshold
// is deliberately stricter than the analysis alpha.
const srmCriticalValue = 10.83

// DefaultRequiredColumns is the column set the schema check expects.
var DefaultRequiredColumns = []string{
	"unit_id",
	"experiment_id",
	"variant",
	"assigned_at",
	"first_exposed_at",
	"eligible",
	"clicked",
	"converted",
	"device_category",
	"country",
}

// DefaultNullCheckColumns is the critical subset that must carry a value in
// every row.
var DefaultNullCheckColumns = []string{
	"unit_id",
	"variant",
	"eligible",
	"clicked",
	"converted",
}

// Config carries the validator's immutable settings.
type Config struct {
	// AllocationRatio is the expected control share for the SRM check.
	AllocationRatio float64

	// EligibilityWarnThreshold is the eligible fraction below which the
	// eligibility check produces a warning.
	EligibilityWarnThreshold float64

	// RequiredColumns overrides the schema check's column set.
	RequiredColumns []string

	// NullCheckColumns overrides the null check's column set.
	NullCheckColumns []string
}

// DefaultConfig returns the standard 50/50 configuration.
func DefaultConfig() Config {
	return Config{
		AllocationRatio:          0.5,
		EligibilityWarnThreshold: 0.80,
		RequiredColumns:          DefaultRequiredColumns,
		NullCheckColumns:         DefaultNullCheckColumns,
	}
}

// Validator runs the full check suite over dataset snapshots.
type Validator struct {
	cfg   Config
	clock func() time.Time
}

// NewValidator creates a validator. Zero-value config fields fall back to
// the defaults.
func NewValidator(cfg Config) *Validator {
	if cfg.AllocationRatio == 0 {
		cfg.AllocationRatio = 0.5
	}
	if cfg.EligibilityWarnThreshold == 0 {
		cfg.EligibilityWarnThreshold = 0.80
	}
	if len(cfg.RequiredColumns) == 0 {
		cfg.RequiredColumns = DefaultRequiredColumns
	}
	if len(cfg.NullCheckColumns) == 0 {
		cfg.NullCheckColumns = DefaultNullCheckColumns
	}
	return &Validator{cfg: cfg, clock: time.Now}
}

// WithClock overrides the timestamp source for RanAt stamps.
func (v *Validator) WithClock(clock func() time.Time) *Validator {
	v.clock = clock
	return v
}

// Run executes every check in fixed order over the table. Checks are
// independent; a failing check never stops the rest.
func (v *Validator) Run(table *dataset.Table) *domain.ValidationReport {
	report := &domain.ValidationReport{
		ExperimentID: tableExperimentID(table),
		RanAt:        v.clock().UnixMilli(),
	}
	report.Results = append(report.Results,
		v.checkSchema(table),
		v.checkNulls(table),
		v.checkVariants(table),
		v.checkSampleRatio(table),
		v.checkContamination(table),
		v.checkEligibility(table),
	)
	return report
}

// tableExperimentID returns the first observed experiment_id, or "" when the
// table carries none.
func tableExperimentID(table *dataset.Table) string {
	for _, row := range table.Rows {
		if row.Has("experiment_id") {
			return row["experiment_id"]
		}
	}
	return ""
}
