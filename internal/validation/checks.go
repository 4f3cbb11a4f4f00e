package validation

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"experiment-lab/internal/dataset"
	"experiment-lab/internal/domain"
)

// checkSchema verifies the required columns are present in the input.
func (v *Validator) checkSchema(table *dataset.Table) domain.ValidationResult {
	var missing []string
	for _, col := range v.cfg.RequiredColumns {
		if !table.HasColumn(col) {
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 {
		return domain.ValidationResult{
			Name:     CheckSchema,
			Passed:   false,
			Message:  fmt.Sprintf("Missing required columns: %v", missing),
			Severity: domain.SeverityError,
		}
	}
	return domain.ValidationResult{
		Name:     CheckSchema,
		Passed:   true,
		Message:  fmt.Sprintf("All %d required columns present", len(v.cfg.RequiredColumns)),
		Severity: domain.SeverityError,
	}
}

// checkNulls counts missing values in the critical column subset. A column
// absent from the input entirely counts as missing in every row.
func (v *Validator) checkNulls(table *dataset.Table) domain.ValidationResult {
	problematic := make(map[string]int)
	for _, col := range v.cfg.NullCheckColumns {
		nulls := 0
		for _, row := range table.Rows {
			if !row.Has(col) {
				nulls++
			}
		}
		if nulls > 0 {
			problematic[col] = nulls
		}
	}

	if len(problematic) > 0 {
		return domain.ValidationResult{
			Name:     CheckNulls,
			Passed:   false,
			Message:  fmt.Sprintf("Found nulls in required fields: %v", problematic),
			Severity: domain.SeverityError,
		}
	}
	return domain.ValidationResult{
		Name:     CheckNulls,
		Passed:   true,
		Message:  "No nulls in required fields",
		Severity: domain.SeverityError,
	}
}

// checkVariants verifies every observed variant belongs to the fixed domain.
func (v *Validator) checkVariants(table *dataset.Table) domain.ValidationResult {
	counts := make(map[string]int)
	for _, row := range table.Rows {
		counts[row["variant"]]++
	}

	var invalid []string
	for variant := range counts {
		if !domain.Variant(variant).IsValid() {
			invalid = append(invalid, variant)
		}
	}
	sort.Strings(invalid)

	if len(invalid) > 0 {
		return domain.ValidationResult{
			Name:     CheckVariants,
			Passed:   false,
			Message:  fmt.Sprintf("Invalid variants found: %q", invalid),
			Severity: domain.SeverityError,
		}
	}
	return domain.ValidationResult{
		Name:     CheckVariants,
		Passed:   true,
		Message:  fmt.Sprintf("Valid variants only: %v", counts),
		Severity: domain.SeverityError,
	}
}

// checkSampleRatio runs a chi-square goodness-of-fit test of the observed
// variant counts against the configured allocation ratio. Deviations beyond
// the alpha=0.001 critical value indicate a randomization or collection
// defect, not a treatment effect.
func (v *Validator) checkSampleRatio(table *dataset.Table) domain.ValidationResult {
	total := table.Len()
	if total == 0 {
		return domain.ValidationResult{
			Name:     CheckSRM,
			Passed:   false,
			Message:  "no units to test",
			Severity: domain.SeverityError,
		}
	}

	var observedControl, observedTreatment int
	for _, row := range table.Rows {
		switch domain.Variant(row["variant"]) {
		case domain.VariantControl:
			observedControl++
		case domain.VariantTreatment:
			observedTreatment++
		}
	}

	expectedControl := float64(total) * v.cfg.AllocationRatio
	expectedTreatment := float64(total) * (1 - v.cfg.AllocationRatio)

	chiSquare := math.Pow(float64(observedControl)-expectedControl, 2)/expectedControl +
		math.Pow(float64(observedTreatment)-expectedTreatment, 2)/expectedTreatment

	if chiSquare > srmCriticalValue {
		return domain.ValidationResult{
			Name:   CheckSRM,
			Passed: false,
			Message: fmt.Sprintf("SRM detected! χ²=%.2f (critical=%.2f). Observed: %d/%d, Expected: %.0f/%.0f",
				chiSquare, srmCriticalValue, observedControl, observedTreatment, expectedControl, expectedTreatment),
			Severity: domain.SeverityError,
		}
	}

	pctDiff := math.Abs(float64(observedControl)-expectedControl) / expectedControl * 100
	return domain.ValidationResult{
		Name:     CheckSRM,
		Passed:   true,
		Message:  fmt.Sprintf("No SRM detected (χ²=%.2f, deviation=%.2f%%)", chiSquare, pctDiff),
		Severity: domain.SeverityError,
	}
}

// checkContamination groups rows by unit identifier and fails when any unit
// appears under more than one distinct variant.
func (v *Validator) checkContamination(table *dataset.Table) domain.ValidationResult {
	variantsByUnit := make(map[string]map[string]struct{})
	for _, row := range table.Rows {
		if !row.Has("unit_id") {
			continue
		}
		unitID := row["unit_id"]
		if variantsByUnit[unitID] == nil {
			variantsByUnit[unitID] = make(map[string]struct{})
		}
		variantsByUnit[unitID][row["variant"]] = struct{}{}
	}

	contaminated := 0
	for _, variants := range variantsByUnit {
		if len(variants) > 1 {
			contaminated++
		}
	}

	if contaminated > 0 {
		return domain.ValidationResult{
			Name:     CheckContamination,
			Passed:   false,
			Message:  fmt.Sprintf("%d units in multiple variants!", contaminated),
			Severity: domain.SeverityError,
		}
	}
	return domain.ValidationResult{
		Name:     CheckContamination,
		Passed:   true,
		Message:  "No contamination detected (1 variant per unit)",
		Severity: domain.SeverityError,
	}
}

// checkEligibility measures the eligible fraction and warns below the
// configured threshold. This is the suite's only warning-severity check; it
// never blocks the overall verdict.
func (v *Validator) checkEligibility(table *dataset.Table) domain.ValidationResult {
	total := table.Len()
	if total == 0 {
		return domain.ValidationResult{
			Name:     CheckEligibility,
			Passed:   false,
			Message:  "no units to test",
			Severity: domain.SeverityWarning,
		}
	}

	eligible := 0
	for _, row := range table.Rows {
		if b, err := strconv.ParseBool(row["eligible"]); err == nil && b {
			eligible++
		}
	}

	pct := float64(eligible) / float64(total) * 100
	if pct < v.cfg.EligibilityWarnThreshold*100 {
		return domain.ValidationResult{
			Name:     CheckEligibility,
			Passed:   false,
			Message:  fmt.Sprintf("Low eligibility rate: %.1f%% (%d/%d)", pct, eligible, total),
			Severity: domain.SeverityWarning,
		}
	}
	return domain.ValidationResult{
		Name:     CheckEligibility,
		Passed:   true,
		Message:  fmt.Sprintf("Eligibility rate: %.1f%% (%d/%d)", pct, eligible, total),
		Severity: domain.SeverityWarning,
	}
}
