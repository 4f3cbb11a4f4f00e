package decision

import (
	"strings"
	"testing"
)

// shipInput returns an Input that satisfies every ship criterion and fires
// no block trigger: positive lift with the whole interval above the minimum
// and a quiet guardrail.
func shipInput() Input {
	return Input{
		ExperimentID:        "homepage_redesign_v1",
		SnapshotID:          "a1b2c3d4e5f6a7b8",
		ValidationPassed:    true,
		PrimaryMetric:       "converted",
		PrimaryLift:         0.008,
		PrimaryCILower:      0.0021,
		PrimaryCIUpper:      0.0139,
		PrimaryPValue:       0.009,
		PrimarySignificant:  true,
		HasGuardrail:        true,
		GuardrailMetric:     "bounced",
		GuardrailLift:       0.004,
		GuardrailSignificant: false,
	}
}

func TestEvaluateShip(t *testing.T) {
	evaluator := NewEvaluator(0.0, 0.02)

	result := evaluator.Evaluate(shipInput())

	if result.Verdict != VerdictShip {
		t.Fatalf("expected %s, got %s (reason: %s)", VerdictShip, result.Verdict, result.Reason)
	}
	if len(result.ShipCriteria) != 2 {
		t.Fatalf("expected 2 ship criteria, got %d", len(result.ShipCriteria))
	}
	for i, c := range result.ShipCriteria {
		if !c.Pass {
			t.Errorf("ship criterion %d (%s) should pass", i+1, c.Name)
		}
	}
	if len(result.BlockTriggers) != 3 {
		t.Fatalf("expected 3 block triggers, got %d", len(result.BlockTriggers))
	}
	for i, c := range result.BlockTriggers {
		if !c.Pass {
			t.Errorf("block trigger %d (%s) should not fire", i+1, c.Name)
		}
	}
	if result.ExperimentID != "homepage_redesign_v1" {
		t.Errorf("experiment id not carried through: %q", result.ExperimentID)
	}
	if result.PrimaryMetric != "converted" {
		t.Errorf("primary metric not carried through: %q", result.PrimaryMetric)
	}
}

func TestEvaluateHold(t *testing.T) {
	evaluator := NewEvaluator(0.0, 0.02)

	// Positive lift but the interval dips below the minimum acceptable
	// lift: promising, not proven.
	input := shipInput()
	input.PrimaryLift = 0.004
	input.PrimaryCILower = -0.0011
	input.PrimaryCIUpper = 0.0091
	input.PrimaryPValue = 0.12
	input.PrimarySignificant = false

	result := evaluator.Evaluate(input)

	if result.Verdict != VerdictHold {
		t.Fatalf("expected %s, got %s (reason: %s)", VerdictHold, result.Verdict, result.Reason)
	}
	if !strings.Contains(result.Reason, "Extend") {
		t.Errorf("hold reason should suggest extending the test, got %q", result.Reason)
	}
}

func TestEvaluateDoNotShipNegativeLift(t *testing.T) {
	evaluator := NewEvaluator(0.0, 0.02)

	input := shipInput()
	input.PrimaryLift = -0.003
	input.PrimaryCILower = -0.0089
	input.PrimaryCIUpper = 0.0029

	result := evaluator.Evaluate(input)

	if result.Verdict != VerdictDoNotShip {
		t.Fatalf("expected %s, got %s", VerdictDoNotShip, result.Verdict)
	}
	if !strings.Contains(result.Reason, "Non-positive primary lift") {
		t.Errorf("reason should name the fired trigger, got %q", result.Reason)
	}
}

func TestEvaluateDoNotShipIntervalBelowMinimum(t *testing.T) {
	evaluator := NewEvaluator(0.005, 0.02)

	// Positive and even significant, but the entire interval sits below
	// the minimum acceptable lift.
	input := shipInput()
	input.PrimaryLift = 0.002
	input.PrimaryCILower = 0.0005
	input.PrimaryCIUpper = 0.0035

	result := evaluator.Evaluate(input)

	if result.Verdict != VerdictDoNotShip {
		t.Fatalf("expected %s, got %s", VerdictDoNotShip, result.Verdict)
	}
	if !strings.Contains(result.Reason, "CI excludes minimum lift") {
		t.Errorf("reason should name the interval trigger, got %q", result.Reason)
	}
}

func TestEvaluateDoNotShipGuardrailDegradation(t *testing.T) {
	evaluator := NewEvaluator(0.0, 0.02)

	input := shipInput()
	input.GuardrailLift = 0.035
	input.GuardrailSignificant = true

	result := evaluator.Evaluate(input)

	if result.Verdict != VerdictDoNotShip {
		t.Fatalf("expected %s, got %s", VerdictDoNotShip, result.Verdict)
	}
	if !strings.Contains(result.Reason, "Guardrail degradation (bounced)") {
		t.Errorf("reason should name the guardrail trigger, got %q", result.Reason)
	}
}

func TestEvaluateGuardrailNeedsSignificance(t *testing.T) {
	evaluator := NewEvaluator(0.0, 0.02)

	// Guardrail moved past the threshold but the movement is statistical
	// noise: the trigger must not fire.
	input := shipInput()
	input.GuardrailLift = 0.035
	input.GuardrailSignificant = false

	result := evaluator.Evaluate(input)

	if result.Verdict != VerdictShip {
		t.Fatalf("expected %s, got %s (reason: %s)", VerdictShip, result.Verdict, result.Reason)
	}
}

func TestEvaluateInsufficientData(t *testing.T) {
	evaluator := NewEvaluator(0.0, 0.02)

	input := Input{
		ExperimentID:     "homepage_redesign_v1",
		ValidationPassed: false,
		PrimaryMetric:    "converted",
	}

	result := evaluator.Evaluate(input)

	if result.Verdict != VerdictInsufficientData {
		t.Fatalf("expected %s, got %s", VerdictInsufficientData, result.Verdict)
	}
	if len(result.ShipCriteria) != 0 || len(result.BlockTriggers) != 0 {
		t.Errorf("insufficient data verdict should carry no checklist rows")
	}
	if !strings.Contains(result.Reason, "Validation failed") {
		t.Errorf("reason should explain the validation failure, got %q", result.Reason)
	}
}

func TestEvaluateNoGuardrail(t *testing.T) {
	evaluator := NewEvaluator(0.0, 0.02)

	input := shipInput()
	input.HasGuardrail = false
	input.GuardrailMetric = ""
	input.GuardrailLift = 0.5 // must be ignored

	result := evaluator.Evaluate(input)

	if result.Verdict != VerdictShip {
		t.Fatalf("expected %s, got %s", VerdictShip, result.Verdict)
	}
	if len(result.BlockTriggers) != 2 {
		t.Fatalf("expected 2 block triggers without a guardrail, got %d", len(result.BlockTriggers))
	}
}

func TestEvaluateBoundaryLift(t *testing.T) {
	evaluator := NewEvaluator(0.0, 0.02)

	// Exactly zero lift is non-positive: the trigger fires.
	input := shipInput()
	input.PrimaryLift = 0.0
	input.PrimaryCILower = -0.004
	input.PrimaryCIUpper = 0.004

	result := evaluator.Evaluate(input)

	if result.Verdict != VerdictDoNotShip {
		t.Fatalf("expected %s for zero lift, got %s", VerdictDoNotShip, result.Verdict)
	}
}

func TestEvaluateCILowerExactlyAtMinimum(t *testing.T) {
	evaluator := NewEvaluator(0.002, 0.02)

	// ci_lower == minimum acceptable lift satisfies the criterion.
	input := shipInput()
	input.PrimaryLift = 0.006
	input.PrimaryCILower = 0.002
	input.PrimaryCIUpper = 0.010

	result := evaluator.Evaluate(input)

	if result.Verdict != VerdictShip {
		t.Fatalf("expected %s at the boundary, got %s (reason: %s)", VerdictShip, result.Verdict, result.Reason)
	}
}

func TestRenderMarkdown(t *testing.T) {
	evaluator := NewEvaluator(0.0, 0.02)
	result := evaluator.Evaluate(shipInput())

	md := RenderMarkdown(result)

	for _, want := range []string{
		"# Decision Gate Report",
		"## Verdict: SHIP",
		"**Experiment:** homepage_redesign_v1",
		"**Primary metric:** converted",
		"## Ship Criteria",
		"Ship criteria: 2/2 passed",
		"## Block Triggers",
		"Block triggers: 0/3 fired",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdownInsufficientData(t *testing.T) {
	evaluator := NewEvaluator(0.0, 0.02)
	result := evaluator.Evaluate(Input{
		ExperimentID:     "homepage_redesign_v1",
		ValidationPassed: false,
		PrimaryMetric:    "converted",
	})

	md := RenderMarkdown(result)

	if !strings.Contains(md, "## Verdict: INSUFFICIENT_DATA") {
		t.Errorf("markdown missing verdict header")
	}
	if strings.Contains(md, "## Ship Criteria") {
		t.Errorf("insufficient data report should not render the criteria table")
	}
}
