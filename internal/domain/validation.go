package domain

// Severity classifies a validation finding. Error-severity failures revoke
// trust in the dataset; warnings are informational and never block.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationResult is the outcome of one named check.
type ValidationResult struct {
	Name     string
	Passed   bool
	Message  string
	Severity Severity
}

// ValidationReport collects the results of one validation run in check
// order.
type ValidationReport struct {
	ExperimentID string
	Results      []ValidationResult
	RanAt        int64 // Unix timestamp in milliseconds
}

// Passed reports the overall verdict: the AND over error-severity results
// only. Warning-severity failures never affect it.
func (r *ValidationReport) Passed() bool {
	for _, res := range r.Results {
		if res.Severity == SeverityError && !res.Passed {
			return false
		}
	}
	return true
}

// Warnings returns the warning-severity results that did not pass.
func (r *ValidationReport) Warnings() []ValidationResult {
	var out []ValidationResult
	for _, res := range r.Results {
		if res.Severity == SeverityWarning && !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Failures returns the error-severity results that did not pass.
func (r *ValidationReport) Failures() []ValidationResult {
	var out []ValidationResult
	for _, res := range r.Results {
		if res.Severity == SeverityError && !res.Passed {
			out = append(out, res)
		}
	}
	return out
}
