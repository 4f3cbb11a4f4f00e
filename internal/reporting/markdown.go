package reporting

import (
	"fmt"
	"strings"
	"time"

	"experiment-lab/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Experiment Analysis Report\n\n")
	sb.WriteString(fmt.Sprintf("**Experiment:** %s  \n", r.ExperimentID))
	sb.WriteString(fmt.Sprintf("**Snapshot:** %s  \n", r.SnapshotID))
	sb.WriteString(fmt.Sprintf("**Generated:** %s  \n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("**Units analyzed:** %d\n\n", r.UnitCount))

	// Validation
	if r.Validation != nil {
		sb.WriteString("## Validation\n\n")
		writeValidationSection(&sb, r.Validation)
	}

	// Metric Aggregates
	sb.WriteString("## Metric Aggregates\n\n")
	if len(r.MetricReports) > 0 {
		sb.WriteString("| Metric | Control | Treatment | Lift (Absolute) | Lift (Relative) |\n")
		sb.WriteString("|--------|---------|-----------|-----------------|-----------------|\n")
		for _, m := range r.MetricReports {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %+.2f%% | %+.1f%% |\n",
				m.Metric,
				formatRateWithCounts(m.ControlRate, m.ControlSuccesses, m.ControlN),
				formatRateWithCounts(m.TreatmentRate, m.TreatmentSuccesses, m.TreatmentN),
				m.AbsoluteLift*100,
				m.RelativeLiftPct))
		}
	} else {
		sb.WriteString("No metric reports available.\n")
	}
	sb.WriteString("\n")

	// Statistical Inference
	sb.WriteString("## Statistical Inference\n\n")
	if len(r.InferenceReports) > 0 {
		ciLabel := confidenceLabel(r.InferenceReports[0].ConfidenceLevel)
		sb.WriteString(fmt.Sprintf("| Metric | Control | Treatment | Lift (Absolute) | Lift (Relative) | %s | P-Value | Significant |\n", ciLabel))
		sb.WriteString("|--------|---------|-----------|-----------------|-----------------|--------|---------|-------------|\n")
		for _, inf := range r.InferenceReports {
			significant := "no"
			if inf.StatisticallySignificant {
				significant = "yes"
			}
			sb.WriteString(fmt.Sprintf("| %s | %.2f%% | %.2f%% | %+.2f%% | %+.1f%% | [%+.2f%%, %+.2f%%] | %.4f | %s |\n",
				inf.Metric,
				inf.ControlRate*100,
				inf.TreatmentRate*100,
				inf.AbsoluteLift*100,
				inf.RelativeLiftPct,
				inf.CILower*100,
				inf.CIUpper*100,
				inf.PValue,
				significant))
		}
	} else {
		sb.WriteString("No inference reports available.\n")
	}
	sb.WriteString("\n")

	// Segment Breakdowns
	for _, breakdown := range r.SegmentBreakdowns {
		sb.WriteString(fmt.Sprintf("## Segment Breakdown: %s by %s\n\n", breakdown.Metric, breakdown.Segment))
		if len(breakdown.Rows) == 0 {
			sb.WriteString("No segment rows available.\n\n")
			continue
		}
		sb.WriteString("| Category | Control | Treatment | Lift (Absolute) | Lift (Relative) |\n")
		sb.WriteString("|----------|---------|-----------|-----------------|-----------------|\n")
		for _, row := range breakdown.Rows {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %+.2f%% | %+.1f%% |\n",
				row.Category,
				formatRateWithCounts(row.ControlRate, row.ControlSuccesses, row.ControlN),
				formatRateWithCounts(row.TreatmentRate, row.TreatmentSuccesses, row.TreatmentN),
				row.AbsoluteLift*100,
				row.RelativeLiftPct))
		}
		sb.WriteString("\n")
	}

	// Decision
	if r.Decision != nil {
		sb.WriteString("## Decision\n\n")
		sb.WriteString(fmt.Sprintf("**Verdict: %s**\n\n", r.Decision.Verdict))
		sb.WriteString(r.Decision.Reason)
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderValidationMarkdown renders a standalone validation report, suitable
// for writing to VALIDATION_REPORT.md.
func RenderValidationMarkdown(v *domain.ValidationReport) string {
	var sb strings.Builder

	sb.WriteString("# Validation Report\n\n")
	sb.WriteString(fmt.Sprintf("**Experiment:** %s  \n", v.ExperimentID))
	if v.RanAt > 0 {
		sb.WriteString(fmt.Sprintf("**Ran:** %s  \n", time.UnixMilli(v.RanAt).UTC().Format(time.RFC3339)))
	}
	sb.WriteString("\n")

	writeValidationSection(&sb, v)

	return sb.String()
}

// writeValidationSection writes the check table plus the overall verdict
// line shared between the standalone and embedded validation renderings.
func writeValidationSection(sb *strings.Builder, v *domain.ValidationReport) {
	sb.WriteString("| Check | Severity | Status | Detail |\n")
	sb.WriteString("|-------|----------|--------|--------|\n")
	for _, res := range v.Results {
		status := "FAIL"
		if res.Passed {
			status = "PASS"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			res.Name, res.Severity, status, res.Message))
	}
	sb.WriteString("\n")

	if v.Passed() {
		warnings := len(v.Warnings())
		switch warnings {
		case 0:
			sb.WriteString("**Overall: PASSED**\n\n")
		case 1:
			sb.WriteString("**Overall: PASSED** (1 warning)\n\n")
		default:
			sb.WriteString(fmt.Sprintf("**Overall: PASSED** (%d warnings)\n\n", warnings))
		}
	} else {
		sb.WriteString(fmt.Sprintf("**Overall: FAILED** (%d of %d checks failed). Metrics computed from this dataset are unreliable.\n\n",
			len(v.Failures()), len(v.Results)))
	}
}

// formatRateWithCounts renders a rate with its raw counts, e.g.
// "3.50% (175/5000)".
func formatRateWithCounts(rate float64, successes, n int64) string {
	return fmt.Sprintf("%.2f%% (%d/%d)", rate*100, successes, n)
}

// confidenceLabel renders the interval column header, e.g. "95% CI".
func confidenceLabel(confidence float64) string {
	return fmt.Sprintf("%.0f%% CI", confidence*100)
}
