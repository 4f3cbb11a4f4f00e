package ingestion

import (
	"fmt"

	"experiment-lab/internal/domain"
)

// ExposureEvent is the wire form of an assignment/exposure record. The JSON
// schema matches the experiment_units table and the JSONL dataset format, so
// the same payload can arrive over WebSocket or from a file replay.
type ExposureEvent struct {
	UnitID         string  `json:"unit_id"`
	ExperimentID   string  `json:"experiment_id"`
	Variant        string  `json:"variant"`
	AssignedAt     int64   `json:"assigned_at"`
	FirstExposedAt int64   `json:"first_exposed_at"`
	Eligible       bool    `json:"eligible"`
	Clicked        bool    `json:"clicked"`
	Converted      bool    `json:"converted"`
	Bounced        bool    `json:"bounced"`
	SessionSeconds float64 `json:"session_seconds"`
	Sessions       int     `json:"sessions"`
	DeviceCategory string  `json:"device_category"`
	Country        string  `json:"country"`
}

// Unit converts the event into a domain unit, rejecting events that cannot
// be keyed or carry an unknown variant. Data-quality problems beyond that
// (exposure before assignment, missing segments) are left for the validation
// suite to flag.
func (e *ExposureEvent) Unit() (*domain.ExperimentUnit, error) {
	if e.UnitID == "" {
		return nil, fmt.Errorf("exposure event missing unit_id")
	}
	if e.ExperimentID == "" {
		return nil, fmt.Errorf("exposure event missing experiment_id")
	}
	variant := domain.Variant(e.Variant)
	if !variant.IsValid() {
		return nil, fmt.Errorf("exposure event for unit %s has unknown variant %q", e.UnitID, e.Variant)
	}

	return &domain.ExperimentUnit{
		UnitID:         e.UnitID,
		ExperimentID:   e.ExperimentID,
		Variant:        variant,
		AssignedAt:     e.AssignedAt,
		FirstExposedAt: e.FirstExposedAt,
		Eligible:       e.Eligible,
		Clicked:        e.Clicked,
		Converted:      e.Converted,
		Bounced:        e.Bounced,
		SessionSeconds: e.SessionSeconds,
		Sessions:       e.Sessions,
		DeviceCategory: e.DeviceCategory,
		Country:        e.Country,
	}, nil
}
