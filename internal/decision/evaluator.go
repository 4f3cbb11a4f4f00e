package decision

import (
	"fmt"
	"strings"
)

// Evaluator applies the ship gate thresholds. Thresholds are fixed at
// construction; one evaluator serves any number of experiments.
type Evaluator struct {
	minAcceptableLift    float64
	maxGuardrailIncrease float64
}

// NewEvaluator creates a decision evaluator.
// minAcceptableLift is the smallest absolute primary-metric lift worth
// shipping; maxGuardrailIncrease is the largest tolerated guardrail lift.
func NewEvaluator(minAcceptableLift, maxGuardrailIncrease float64) *Evaluator {
	return &Evaluator{
		minAcceptableLift:    minAcceptableLift,
		maxGuardrailIncrease: maxGuardrailIncrease,
	}
}

// Evaluate produces a Result from Input.
// Verdict resolution: INSUFFICIENT_DATA when validation failed; otherwise
// DO_NOT_SHIP if any trigger fires, SHIP if every criterion passes, HOLD
// in between. Criteria and triggers are all evaluated, never short-circuited,
// so the report shows the complete checklist.
func (e *Evaluator) Evaluate(input Input) *Result {
	result := &Result{
		ExperimentID:  input.ExperimentID,
		SnapshotID:    input.SnapshotID,
		PrimaryMetric: input.PrimaryMetric,
	}

	if !input.ValidationPassed {
		result.Verdict = VerdictInsufficientData
		result.Reason = "Validation failed. Metrics were not analyzed; fix the dataset and rerun."
		return result
	}

	result.ShipCriteria = e.evaluateShipCriteria(input)
	result.BlockTriggers = e.evaluateBlockTriggers(input)

	allCriteriaPass := true
	for _, c := range result.ShipCriteria {
		if !c.Pass {
			allCriteriaPass = false
			break
		}
	}

	anyTriggerFired := false
	for _, c := range result.BlockTriggers {
		if !c.Pass { // Pass=false means triggered
			anyTriggerFired = true
			break
		}
	}

	switch {
	case anyTriggerFired:
		result.Verdict = VerdictDoNotShip
		result.Reason = blockReason(result.BlockTriggers)
	case allCriteriaPass:
		result.Verdict = VerdictShip
		result.Reason = fmt.Sprintf(
			"Treatment lifts %s and the confidence interval lower bound %+.4f clears the minimum acceptable lift %.4f.",
			input.PrimaryMetric, input.PrimaryCILower, e.minAcceptableLift)
	default:
		result.Verdict = VerdictHold
		result.Reason = fmt.Sprintf(
			"Treatment lifts %s, but the confidence interval includes values below the minimum acceptable lift %.4f. Extend the test or increase sample size.",
			input.PrimaryMetric, e.minAcceptableLift)
	}

	return result
}

// evaluateShipCriteria evaluates the criteria that must all hold for SHIP.
func (e *Evaluator) evaluateShipCriteria(input Input) []CriterionResult {
	criteria := make([]CriterionResult, 2)

	criteria[0] = CriterionResult{
		Name:      "Positive primary lift",
		Threshold: "> 0",
		Actual:    fmt.Sprintf("%+.4f", input.PrimaryLift),
		Pass:      input.PrimaryLift > 0,
	}

	criteria[1] = CriterionResult{
		Name:      "CI lower bound meets minimum lift",
		Threshold: fmt.Sprintf(">= %.4f", e.minAcceptableLift),
		Actual:    fmt.Sprintf("%+.4f", input.PrimaryCILower),
		Pass:      input.PrimaryCILower >= e.minAcceptableLift,
	}

	return criteria
}

// evaluateBlockTriggers evaluates the triggers that force DO_NOT_SHIP.
// Pass=true means NOT triggered, Pass=false means triggered.
func (e *Evaluator) evaluateBlockTriggers(input Input) []CriterionResult {
	checks := make([]CriterionResult, 0, 3)

	nonPositive := input.PrimaryLift <= 0
	checks = append(checks, CriterionResult{
		Name:      "Non-positive primary lift",
		Threshold: "<= 0",
		Actual:    fmt.Sprintf("%+.4f", input.PrimaryLift),
		Pass:      !nonPositive,
	})

	// The whole interval below the minimum means the lift is confidently
	// inadequate, not merely uncertain.
	ciExcludesMinimum := input.PrimaryCIUpper < e.minAcceptableLift
	checks = append(checks, CriterionResult{
		Name:      "CI excludes minimum lift",
		Threshold: fmt.Sprintf("upper < %.4f", e.minAcceptableLift),
		Actual:    fmt.Sprintf("%+.4f", input.PrimaryCIUpper),
		Pass:      !ciExcludesMinimum,
	})

	if input.HasGuardrail {
		degraded := input.GuardrailLift > e.maxGuardrailIncrease && input.GuardrailSignificant
		checks = append(checks, CriterionResult{
			Name:      fmt.Sprintf("Guardrail degradation (%s)", input.GuardrailMetric),
			Threshold: fmt.Sprintf("lift > %.4f and significant", e.maxGuardrailIncrease),
			Actual:    fmt.Sprintf("%+.4f (significant=%t)", input.GuardrailLift, input.GuardrailSignificant),
			Pass:      !degraded,
		})
	}

	return checks
}

func blockReason(triggers []CriterionResult) string {
	var fired []string
	for _, c := range triggers {
		if !c.Pass {
			fired = append(fired, fmt.Sprintf("%s (actual: %s)", c.Name, c.Actual))
		}
	}
	return "Blocked by: " + strings.Join(fired, "; ") + "."
}
