package domain

import "fmt"

// Variant identifies the experiment arm a unit was randomized into.
type Variant string

const (
	VariantControl   Variant = "control"
	VariantTreatment Variant = "treatment"
)

// Variants lists the valid arms in canonical order.
var Variants = []Variant{VariantControl, VariantTreatment}

// IsValid reports whether v belongs to the fixed variant domain.
func (v Variant) IsValid() bool {
	return v == VariantControl || v == VariantTreatment
}

// OutcomeField names a binary outcome attribute of an ExperimentUnit.
type OutcomeField string

const (
	OutcomeClicked   OutcomeField = "clicked"
	OutcomeConverted OutcomeField = "converted"
	OutcomeBounced   OutcomeField = "bounced"
)

// SegmentField names a categorical segment attribute of an ExperimentUnit.
type SegmentField string

const (
	SegmentDevice  SegmentField = "device_category"
	SegmentCountry SegmentField = "country"
)

// ExperimentUnit is one randomized unit (a user) with its assignment and
// observed outcomes. Corresponds to the experiment_units table in PostgreSQL.
type ExperimentUnit struct {
	UnitID         string  // PRIMARY KEY together with experiment_id
	ExperimentID   string  //
	Variant        Variant // control | treatment
	AssignedAt     int64   // Unix timestamp in milliseconds
	FirstExposedAt int64   // Unix timestamp in milliseconds
	Eligible       bool    // false for units excluded from analysis
	Clicked        bool    //
	Converted      bool    //
	Bounced        bool    // guardrail outcome
	SessionSeconds float64 // guardrail, duration of first session
	Sessions       int     // guardrail, sessions during the window
	DeviceCategory string  // mobile | desktop | tablet
	Country        string  //
}

// Outcome returns the unit's value for a named binary outcome attribute.
func (u *ExperimentUnit) Outcome(field OutcomeField) (bool, error) {
	switch field {
	case OutcomeClicked:
		return u.Clicked, nil
	case OutcomeConverted:
		return u.Converted, nil
	case OutcomeBounced:
		return u.Bounced, nil
	default:
		return false, fmt.Errorf("unknown outcome field %q", field)
	}
}

// Segment returns the unit's value for a named categorical attribute.
func (u *ExperimentUnit) Segment(field SegmentField) (string, error) {
	switch field {
	case SegmentDevice:
		return u.DeviceCategory, nil
	case SegmentCountry:
		return u.Country, nil
	default:
		return "", fmt.Errorf("unknown segment field %q", field)
	}
}
