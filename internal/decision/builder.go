package decision

import (
	"errors"

	"experiment-lab/internal/domain"
)

// ErrPrimaryMetricMissing is returned when no inference report exists for
// the primary metric. The gate cannot run without it.
var ErrPrimaryMetricMissing = errors.New("primary metric inference report missing")

// Builder selects the primary and guardrail inference reports that feed the
// gate and flattens them into an Input.
type Builder struct {
	primaryMetric   string
	guardrailMetric string
}

// NewBuilder creates a builder for the given metric roles. Pass
// DefaultPrimaryMetric / DefaultGuardrailMetric for the standard gate; an
// empty guardrailMetric disables the guardrail trigger.
func NewBuilder(primaryMetric, guardrailMetric string) *Builder {
	return &Builder{
		primaryMetric:   primaryMetric,
		guardrailMetric: guardrailMetric,
	}
}

// Build creates an Input from the validation report and the snapshot's
// inference reports. The guardrail is optional; the primary is not.
func (b *Builder) Build(validation *domain.ValidationReport, inferences []*domain.InferenceReport) (*Input, error) {
	input := &Input{
		PrimaryMetric: b.primaryMetric,
	}

	if validation != nil {
		input.ValidationPassed = validation.Passed()
		input.ValidationWarnings = len(validation.Warnings())
		input.ExperimentID = validation.ExperimentID
	}

	var primary *domain.InferenceReport
	for _, r := range inferences {
		switch r.Metric {
		case b.primaryMetric:
			primary = r
		case b.guardrailMetric:
			if b.guardrailMetric == "" {
				continue
			}
			input.HasGuardrail = true
			input.GuardrailMetric = r.Metric
			input.GuardrailLift = r.AbsoluteLift
			input.GuardrailSignificant = r.StatisticallySignificant
		}
	}

	// A failed validation legitimately has no inference reports; the gate
	// returns INSUFFICIENT_DATA without looking at metric fields.
	if !input.ValidationPassed {
		return input, nil
	}

	if primary == nil {
		return nil, ErrPrimaryMetricMissing
	}

	input.SnapshotID = primary.SnapshotID
	if input.ExperimentID == "" {
		input.ExperimentID = primary.ExperimentID
	}
	input.PrimaryLift = primary.AbsoluteLift
	input.PrimaryCILower = primary.CILower
	input.PrimaryCIUpper = primary.CIUpper
	input.PrimaryPValue = primary.PValue
	input.PrimarySignificant = primary.StatisticallySignificant

	return input, nil
}
