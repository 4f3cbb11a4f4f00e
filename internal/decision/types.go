package decision

// Verdict is the final decision-gate outcome.
type Verdict string

const (
	// VerdictShip: positive lift and the CI clears the minimum acceptable lift.
	VerdictShip Verdict = "SHIP"
	// VerdictHold: positive lift, but the CI includes values below the minimum.
	VerdictHold Verdict = "HOLD"
	// VerdictDoNotShip: non-positive lift, CI entirely below the minimum, or a
	// guardrail degraded significantly.
	VerdictDoNotShip Verdict = "DO_NOT_SHIP"
	// VerdictInsufficientData: validation failed, metrics were never analyzed.
	VerdictInsufficientData Verdict = "INSUFFICIENT_DATA"
)

// Default metric roles for the gate.
const (
	DefaultPrimaryMetric   = "converted"
	DefaultGuardrailMetric = "bounced"
)

// Input contains the numeric facts the gate evaluates. It is flat on
// purpose: thresholds compare numbers, not store records.
type Input struct {
	ExperimentID string
	SnapshotID   string

	ValidationPassed   bool
	ValidationWarnings int

	PrimaryMetric      string
	PrimaryLift        float64 // absolute, treatment minus control
	PrimaryCILower     float64
	PrimaryCIUpper     float64
	PrimaryPValue      float64
	PrimarySignificant bool

	HasGuardrail         bool
	GuardrailMetric      string
	GuardrailLift        float64 // positive means the guardrail got worse
	GuardrailSignificant bool
}

// CriterionResult represents pass/fail for one criterion.
type CriterionResult struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// Result contains the verdict with the full checklist that produced it.
type Result struct {
	Verdict       Verdict
	ExperimentID  string
	SnapshotID    string
	PrimaryMetric string
	Reason        string

	// ShipCriteria must all pass for SHIP. BlockTriggers use Pass=false to
	// mean triggered; any trigger forces DO_NOT_SHIP.
	ShipCriteria  []CriterionResult
	BlockTriggers []CriterionResult
}
