package datagen

import (
	"reflect"
	"testing"
	"time"

	"experiment-lab/internal/config"
	"experiment-lab/internal/domain"
)

func testConfig(nUsers int, seed int64) *config.Config {
	cfg := config.Default()
	cfg.Experiment.NUsers = nUsers
	cfg.Seed = seed
	return cfg
}

func TestGenerate_Deterministic(t *testing.T) {
	first, err := New(testConfig(2000, 42)).Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	second, err := New(testConfig(2000, 42)).Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !reflect.DeepEqual(first[i], second[i]) {
			t.Fatalf("unit %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestGenerate_SeedChangesData(t *testing.T) {
	first, err := New(testConfig(2000, 42)).Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	second, err := New(testConfig(2000, 43)).Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	same := true
	for i := range first {
		if !reflect.DeepEqual(first[i], second[i]) {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical datasets")
	}
}

func TestGenerate_CountAndIDs(t *testing.T) {
	units, err := New(testConfig(500, 1)).Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(units) != 500 {
		t.Fatalf("len(units) = %d, want 500", len(units))
	}

	if units[0].UnitID != "user_0000000" {
		t.Errorf("first unit id = %q, want user_0000000", units[0].UnitID)
	}
	if units[499].UnitID != "user_0000499" {
		t.Errorf("last unit id = %q, want user_0000499", units[499].UnitID)
	}

	seen := make(map[string]struct{}, len(units))
	for _, u := range units {
		if _, dup := seen[u.UnitID]; dup {
			t.Fatalf("duplicate unit id %s", u.UnitID)
		}
		seen[u.UnitID] = struct{}{}
		if u.ExperimentID != "homepage_redesign_v1" {
			t.Fatalf("unit %s experiment id = %q", u.UnitID, u.ExperimentID)
		}
	}
}

func TestGenerate_AllocationNearRatio(t *testing.T) {
	units, err := New(testConfig(20000, 42)).Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var control int
	for _, u := range units {
		if u.Variant == domain.VariantControl {
			control++
		}
	}
	share := float64(control) / float64(len(units))
	// 0.5 allocation at n=20000: five sigma is well under 0.02.
	if share < 0.48 || share > 0.52 {
		t.Errorf("control share = %.4f, want near 0.5", share)
	}
}

func TestGenerate_ConversionRequiresClick(t *testing.T) {
	units, err := New(testConfig(5000, 42)).Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	for _, u := range units {
		if u.Converted && !u.Clicked {
			t.Fatalf("unit %s converted without clicking", u.UnitID)
		}
	}
}

func TestGenerate_TreatmentLiftsClickRate(t *testing.T) {
	units, err := New(testConfig(20000, 42)).Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var controlN, controlClicks, treatmentN, treatmentClicks int
	for _, u := range units {
		switch u.Variant {
		case domain.VariantControl:
			controlN++
			if u.Clicked {
				controlClicks++
			}
		case domain.VariantTreatment:
			treatmentN++
			if u.Clicked {
				treatmentClicks++
			}
		}
	}

	controlCTR := float64(controlClicks) / float64(controlN)
	treatmentCTR := float64(treatmentClicks) / float64(treatmentN)
	// True lift is 1.5pp (x1.3 on mobile); sampling noise at this n is
	// a few tenths of a point.
	if treatmentCTR <= controlCTR {
		t.Errorf("treatment CTR %.4f not above control CTR %.4f", treatmentCTR, controlCTR)
	}
}

func TestGenerate_TimestampsInsideWindow(t *testing.T) {
	cfg := testConfig(2000, 42)
	units, err := New(cfg).Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	start, _, err := cfg.Experiment.WindowBounds()
	if err != nil {
		t.Fatalf("WindowBounds() error = %v", err)
	}
	windowStartMs := start.UnixMilli()
	assignmentEndMs := start.Add(24 * time.Hour).UnixMilli()

	for _, u := range units {
		if u.AssignedAt < windowStartMs || u.AssignedAt > assignmentEndMs {
			t.Fatalf("unit %s assigned_at %d outside first day [%d, %d]",
				u.UnitID, u.AssignedAt, windowStartMs, assignmentEndMs)
		}
		if u.FirstExposedAt < u.AssignedAt {
			t.Fatalf("unit %s exposed at %d before assignment %d",
				u.UnitID, u.FirstExposedAt, u.AssignedAt)
		}
	}
}

func TestGenerate_GuardrailBounds(t *testing.T) {
	cfg := testConfig(2000, 42)
	units, err := New(cfg).Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	for _, u := range units {
		if u.SessionSeconds < cfg.Guardrails.SessionFloorSec {
			t.Fatalf("unit %s session %.2fs below floor %.2fs",
				u.UnitID, u.SessionSeconds, cfg.Guardrails.SessionFloorSec)
		}
		if u.Sessions < 1 || u.Sessions > cfg.Guardrails.MaxSessions {
			t.Fatalf("unit %s sessions = %d, want 1..%d",
				u.UnitID, u.Sessions, cfg.Guardrails.MaxSessions)
		}
	}
}

func TestGenerate_SegmentsFromConfiguredValues(t *testing.T) {
	cfg := testConfig(2000, 42)
	units, err := New(cfg).Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	for _, u := range units {
		if _, ok := cfg.Segments.DeviceDistribution[u.DeviceCategory]; !ok {
			t.Fatalf("unit %s has unknown device %q", u.UnitID, u.DeviceCategory)
		}
		if _, ok := cfg.Segments.CountryDistribution[u.Country]; !ok {
			t.Fatalf("unit %s has unknown country %q", u.UnitID, u.Country)
		}
	}

	// With n=2000 every configured device category should actually occur.
	devices := make(map[string]int)
	for _, u := range units {
		devices[u.DeviceCategory]++
	}
	for name := range cfg.Segments.DeviceDistribution {
		if devices[name] == 0 {
			t.Errorf("device %q never sampled", name)
		}
	}
}

func TestGenerate_EligibilityNearConfiguredRate(t *testing.T) {
	units, err := New(testConfig(20000, 42)).Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var eligible int
	for _, u := range units {
		if u.Eligible {
			eligible++
		}
	}
	rate := float64(eligible) / float64(len(units))
	if rate < 0.93 || rate > 0.97 {
		t.Errorf("eligibility rate = %.4f, want near 0.95", rate)
	}
}

func TestGenerate_BadWindow(t *testing.T) {
	cfg := testConfig(100, 42)
	cfg.Experiment.WindowStart = "not-a-date"

	if _, err := New(cfg).Generate(); err == nil {
		t.Error("Generate() with unparseable window should fail")
	}
}
