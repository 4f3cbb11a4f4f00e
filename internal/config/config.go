// Package config loads the experiment configuration from YAML with
// environment overrides for connection strings. Values are validated once at
// load time and passed by value into constructors; nothing reads the
// environment after Load returns.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full experiment-lab configuration.
type Config struct {
	Experiment ExperimentConfig `yaml:"experiment"`
	Rates      RatesConfig      `yaml:"rates"`
	Segments   SegmentsConfig   `yaml:"segments"`
	Guardrails GuardrailsConfig `yaml:"guardrails"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Storage    StorageConfig    `yaml:"storage"`
	Seed       int64            `yaml:"seed"`
}

// ExperimentConfig identifies the experiment and its assignment scheme.
type ExperimentConfig struct {
	ID              string  `yaml:"id"`
	NUsers          int     `yaml:"n_users"`
	AllocationRatio float64 `yaml:"allocation_ratio"` // expected control share
	WindowStart     string  `yaml:"window_start"`     // YYYY-MM-DD, UTC
	WindowEnd       string  `yaml:"window_end"`       // YYYY-MM-DD, UTC
}

// WindowBounds parses the experiment window. End must be after start.
func (e ExperimentConfig) WindowBounds() (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", e.WindowStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse window_start %q: %w", e.WindowStart, err)
	}
	end, err := time.Parse("2006-01-02", e.WindowEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse window_end %q: %w", e.WindowEnd, err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("window_end %s not after window_start %s", e.WindowEnd, e.WindowStart)
	}
	return start, end, nil
}

// RatesConfig sets the true base rates used by the synthetic generator.
// Lifts are in percentage points.
type RatesConfig struct {
	ControlCTR         float64 `yaml:"control_ctr"`
	ControlCVR         float64 `yaml:"control_cvr"`
	TreatmentCTRLiftPP float64 `yaml:"treatment_ctr_lift_pp"`
	TreatmentCVRLiftPP float64 `yaml:"treatment_cvr_lift_pp"`
	EligibilityRate    float64 `yaml:"eligibility_rate"`
}

// SegmentsConfig sets the segment mix and the per-device effect
// heterogeneity applied to treatment lifts.
type SegmentsConfig struct {
	DeviceDistribution      map[string]float64 `yaml:"device_distribution"`
	CountryDistribution     map[string]float64 `yaml:"country_distribution"`
	EnableHeterogeneity     bool               `yaml:"enable_heterogeneity"`
	DeviceEffectMultipliers map[string]float64 `yaml:"device_effect_multipliers"`
}

// GuardrailsConfig sets the generator's guardrail-metric behavior.
type GuardrailsConfig struct {
	ControlBounceRate         float64 `yaml:"control_bounce_rate"`
	TreatmentBounceIncreasePP float64 `yaml:"treatment_bounce_increase_pp"`
	SessionMedianControlSec   float64 `yaml:"session_median_control_sec"`
	SessionMedianTreatmentSec float64 `yaml:"session_median_treatment_sec"`
	SessionSigma              float64 `yaml:"session_sigma"`
	SessionFloorSec           float64 `yaml:"session_floor_sec"`
	MaxSessions               int     `yaml:"max_sessions"`
}

// AnalysisConfig drives inference, validation, and the decision gate.
type AnalysisConfig struct {
	ConfidenceLevel          float64 `yaml:"confidence_level"`
	EligibilityWarnThreshold float64 `yaml:"eligibility_warn_threshold"`
	MinAcceptableLift        float64 `yaml:"min_acceptable_lift"`
	MaxGuardrailIncrease     float64 `yaml:"max_guardrail_increase"`
	IncludeIneligible        bool    `yaml:"include_ineligible"` // metrics over all units instead of eligible only
}

// StorageConfig carries backend connection strings. Empty values mean the
// command runs against in-memory stores.
type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
}

// Default returns the built-in configuration, matching the reference
// homepage redesign experiment.
func Default() *Config {
	return &Config{
		Experiment: ExperimentConfig{
			ID:              "homepage_redesign_v1",
			NUsers:          50000,
			AllocationRatio: 0.5,
			WindowStart:     "2024-10-01",
			WindowEnd:       "2024-10-21",
		},
		Rates: RatesConfig{
			ControlCTR:         0.12,
			ControlCVR:         0.035,
			TreatmentCTRLiftPP: 0.015,
			TreatmentCVRLiftPP: 0.008,
			EligibilityRate:    0.95,
		},
		Segments: SegmentsConfig{
			DeviceDistribution: map[string]float64{
				"mobile":  0.55,
				"desktop": 0.38,
				"tablet":  0.07,
			},
			CountryDistribution: map[string]float64{
				"US":    0.45,
				"IN":    0.20,
				"CA":    0.12,
				"UK":    0.10,
				"Other": 0.13,
			},
			EnableHeterogeneity: true,
			DeviceEffectMultipliers: map[string]float64{
				"mobile":  1.3,
				"desktop": 1.0,
				"tablet":  0.8,
			},
		},
		Guardrails: GuardrailsConfig{
			ControlBounceRate:         0.35,
			TreatmentBounceIncreasePP: 0.02,
			SessionMedianControlSec:   180,
			SessionMedianTreatmentSec: 165,
			SessionSigma:              0.8,
			SessionFloorSec:           10,
			MaxSessions:               4,
		},
		Analysis: AnalysisConfig{
			ConfidenceLevel:          0.95,
			EligibilityWarnThreshold: 0.80,
			MinAcceptableLift:        0.0,
			MaxGuardrailIncrease:     0.02,
		},
		Seed: 42,
	}
}

// Load reads the YAML file at path, overlays .env / environment overrides,
// fills defaults, and validates. An empty path returns the validated
// defaults.
func Load(path string) (*Config, error) {
	// Load .env if present; a missing file is not an error.
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides replaces connection strings from the environment when
// present.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickhouseDSN = v
	}
}

// setDefaults fills unset fields from Default. Distribution maps are
// replaced wholesale, never merged key by key.
func setDefaults(cfg *Config) {
	def := Default()

	if cfg.Experiment.ID == "" {
		cfg.Experiment.ID = def.Experiment.ID
	}
	if cfg.Experiment.NUsers <= 0 {
		cfg.Experiment.NUsers = def.Experiment.NUsers
	}
	if cfg.Experiment.AllocationRatio <= 0 {
		cfg.Experiment.AllocationRatio = def.Experiment.AllocationRatio
	}
	if cfg.Experiment.WindowStart == "" {
		cfg.Experiment.WindowStart = def.Experiment.WindowStart
	}
	if cfg.Experiment.WindowEnd == "" {
		cfg.Experiment.WindowEnd = def.Experiment.WindowEnd
	}

	if cfg.Rates.ControlCTR <= 0 {
		cfg.Rates.ControlCTR = def.Rates.ControlCTR
	}
	if cfg.Rates.ControlCVR <= 0 {
		cfg.Rates.ControlCVR = def.Rates.ControlCVR
	}
	if cfg.Rates.TreatmentCTRLiftPP == 0 {
		cfg.Rates.TreatmentCTRLiftPP = def.Rates.TreatmentCTRLiftPP
	}
	if cfg.Rates.TreatmentCVRLiftPP == 0 {
		cfg.Rates.TreatmentCVRLiftPP = def.Rates.TreatmentCVRLiftPP
	}
	if cfg.Rates.EligibilityRate <= 0 {
		cfg.Rates.EligibilityRate = def.Rates.EligibilityRate
	}

	if len(cfg.Segments.DeviceDistribution) == 0 {
		cfg.Segments.DeviceDistribution = def.Segments.DeviceDistribution
	}
	if len(cfg.Segments.CountryDistribution) == 0 {
		cfg.Segments.CountryDistribution = def.Segments.CountryDistribution
	}
	if len(cfg.Segments.DeviceEffectMultipliers) == 0 {
		cfg.Segments.DeviceEffectMultipliers = def.Segments.DeviceEffectMultipliers
	}

	if cfg.Guardrails.ControlBounceRate <= 0 {
		cfg.Guardrails.ControlBounceRate = def.Guardrails.ControlBounceRate
	}
	if cfg.Guardrails.TreatmentBounceIncreasePP == 0 {
		cfg.Guardrails.TreatmentBounceIncreasePP = def.Guardrails.TreatmentBounceIncreasePP
	}
	if cfg.Guardrails.SessionMedianControlSec <= 0 {
		cfg.Guardrails.SessionMedianControlSec = def.Guardrails.SessionMedianControlSec
	}
	if cfg.Guardrails.SessionMedianTreatmentSec <= 0 {
		cfg.Guardrails.SessionMedianTreatmentSec = def.Guardrails.SessionMedianTreatmentSec
	}
	if cfg.Guardrails.SessionSigma <= 0 {
		cfg.Guardrails.SessionSigma = def.Guardrails.SessionSigma
	}
	if cfg.Guardrails.SessionFloorSec <= 0 {
		cfg.Guardrails.SessionFloorSec = def.Guardrails.SessionFloorSec
	}
	if cfg.Guardrails.MaxSessions <= 0 {
		cfg.Guardrails.MaxSessions = def.Guardrails.MaxSessions
	}

	if cfg.Analysis.ConfidenceLevel <= 0 {
		cfg.Analysis.ConfidenceLevel = def.Analysis.ConfidenceLevel
	}
	if cfg.Analysis.EligibilityWarnThreshold <= 0 {
		cfg.Analysis.EligibilityWarnThreshold = def.Analysis.EligibilityWarnThreshold
	}
	if cfg.Analysis.MaxGuardrailIncrease <= 0 {
		cfg.Analysis.MaxGuardrailIncrease = def.Analysis.MaxGuardrailIncrease
	}

	if cfg.Seed == 0 {
		cfg.Seed = def.Seed
	}
}

// Validate checks range constraints. Distribution weights must sum to 1
// within a small tolerance.
func (c *Config) Validate() error {
	if c.Experiment.NUsers <= 0 {
		return fmt.Errorf("experiment.n_users must be positive, got %d", c.Experiment.NUsers)
	}
	if c.Experiment.AllocationRatio <= 0 || c.Experiment.AllocationRatio >= 1 {
		return fmt.Errorf("experiment.allocation_ratio must be in (0,1), got %v", c.Experiment.AllocationRatio)
	}
	if _, _, err := c.Experiment.WindowBounds(); err != nil {
		return err
	}
	if c.Analysis.ConfidenceLevel <= 0 || c.Analysis.ConfidenceLevel >= 1 {
		return fmt.Errorf("analysis.confidence_level must be in (0,1), got %v", c.Analysis.ConfidenceLevel)
	}
	if c.Analysis.EligibilityWarnThreshold <= 0 || c.Analysis.EligibilityWarnThreshold > 1 {
		return fmt.Errorf("analysis.eligibility_warn_threshold must be in (0,1], got %v", c.Analysis.EligibilityWarnThreshold)
	}
	for name, rate := range map[string]float64{
		"rates.control_ctr":      c.Rates.ControlCTR,
		"rates.control_cvr":      c.Rates.ControlCVR,
		"rates.eligibility_rate": c.Rates.EligibilityRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, rate)
		}
	}
	if err := checkDistribution("segments.device_distribution", c.Segments.DeviceDistribution); err != nil {
		return err
	}
	if err := checkDistribution("segments.country_distribution", c.Segments.CountryDistribution); err != nil {
		return err
	}
	return nil
}

func checkDistribution(name string, dist map[string]float64) error {
	if len(dist) == 0 {
		return fmt.Errorf("%s must not be empty", name)
	}
	sum := 0.0
	for k, w := range dist {
		if w < 0 {
			return fmt.Errorf("%s[%s] must be non-negative, got %v", name, k, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("%s weights must sum to 1, got %v", name, sum)
	}
	return nil
}
