package decision

import (
	"fmt"
	"strings"
)

// RenderMarkdown renders a decision Result as a Markdown string, suitable
// for writing to DECISION.md.
func RenderMarkdown(result *Result) string {
	var sb strings.Builder

	sb.WriteString("# Decision Gate Report\n\n")
	sb.WriteString(fmt.Sprintf("## Verdict: %s\n\n", result.Verdict))

	if result.ExperimentID != "" {
		sb.WriteString(fmt.Sprintf("**Experiment:** %s  \n", result.ExperimentID))
	}
	if result.SnapshotID != "" {
		sb.WriteString(fmt.Sprintf("**Snapshot:** %s  \n", result.SnapshotID))
	}
	if result.PrimaryMetric != "" {
		sb.WriteString(fmt.Sprintf("**Primary metric:** %s  \n", result.PrimaryMetric))
	}
	sb.WriteString("\n")

	sb.WriteString(result.Reason)
	sb.WriteString("\n\n")

	// An INSUFFICIENT_DATA verdict carries no checklist.
	if result.Verdict == VerdictInsufficientData {
		return sb.String()
	}

	sb.WriteString("## Ship Criteria\n\n")
	sb.WriteString("| # | Criterion | Threshold | Actual | Pass |\n")
	sb.WriteString("|---|-----------|-----------|--------|------|\n")
	passed := 0
	for i, c := range result.ShipCriteria {
		passStr := "PASS"
		if c.Pass {
			passed++
		} else {
			passStr = "FAIL"
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			i+1, c.Name, c.Threshold, c.Actual, passStr))
	}
	sb.WriteString(fmt.Sprintf("\nShip criteria: %d/%d passed\n\n", passed, len(result.ShipCriteria)))

	sb.WriteString("## Block Triggers\n\n")
	sb.WriteString("| # | Trigger | Condition | Actual | Status |\n")
	sb.WriteString("|---|---------|-----------|--------|--------|\n")
	fired := 0
	for i, c := range result.BlockTriggers {
		statusStr := "NOT TRIGGERED"
		if !c.Pass { // Pass=false means triggered
			statusStr = "TRIGGERED"
			fired++
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			i+1, c.Name, c.Threshold, c.Actual, statusStr))
	}
	sb.WriteString(fmt.Sprintf("\nBlock triggers: %d/%d fired\n", fired, len(result.BlockTriggers)))

	return sb.String()
}
