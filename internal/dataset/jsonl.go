package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"experiment-lab/internal/domain"
)

// unitRecord is the JSONL wire form of an ExperimentUnit.
type unitRecord struct {
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

// WriteJSONL writes units as newline-delimited JSON in input order.
func WriteJSONL(w io.Writer, units []*domain.ExperimentUnit) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, u := range units {
		rec := unitRecord{
			UnitID:         u.UnitID,
			ExperimentID:   u.ExperimentID,
			Variant:        string(u.Variant),
			AssignedAt:     u.AssignedAt,
			FirstExposedAt: u.FirstExposedAt,
			Eligible:       u.Eligible,
			Clicked:        u.Clicked,
			Converted:      u.Converted,
			Bounced:        u.Bounced,
			SessionSeconds: u.SessionSeconds,
			Sessions:       u.Sessions,
			DeviceCategory: u.DeviceCategory,
			Country:        u.Country,
		}
		if err := enc.Encode(&rec); err != nil {
			return fmt.Errorf("encode unit %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// WriteJSONLFile writes units to path, creating or truncating it.
func WriteJSONLFile(path string, units []*domain.ExperimentUnit) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset file: %w", err)
	}
	if err := WriteJSONL(f, units); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
