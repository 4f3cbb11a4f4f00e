// Package datagen synthesizes experiment-unit datasets from configuration.
// Assignment, exposure, outcomes, and guardrails are all drawn from a single
// seeded source, so a fixed seed reproduces the dataset exactly.
package datagen

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"experiment-lab/internal/config"
	"experiment-lab/internal/domain"
)

const (
	// Units are assigned within the first day of the experiment window.
	assignmentWindowHours = 24.0
	// Exposure lags assignment by an exponential delay with this mean.
	meanExposureDelayHours = 2.0
)

// Generator produces synthetic units for one experiment.
type Generator struct {
	cfg *config.Config
	rng *rand.Rand

	assignHour       distuv.Uniform
	exposureDelay    distuv.Exponential
	sessionControl   distuv.LogNormal
	sessionTreatment distuv.LogNormal
}

// New creates a Generator seeded from cfg.Seed.
func New(cfg *config.Config) *Generator {
	src := rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed))
	return &Generator{
		cfg: cfg,
		rng: rand.New(src),
		assignHour: distuv.Uniform{
			Min: 0,
			Max: assignmentWindowHours,
			Src: src,
		},
		exposureDelay: distuv.Exponential{
			Rate: 1.0 / meanExposureDelayHours,
			Src:  src,
		},
		sessionControl: distuv.LogNormal{
			Mu:    math.Log(cfg.Guardrails.SessionMedianControlSec),
			Sigma: cfg.Guardrails.SessionSigma,
			Src:   src,
		},
		sessionTreatment: distuv.LogNormal{
			Mu:    math.Log(cfg.Guardrails.SessionMedianTreatmentSec),
			Sigma: cfg.Guardrails.SessionSigma,
			Src:   src,
		},
	}
}

// Generate produces the configured number of units. Unit IDs are sequential,
// everything else is sampled.
func (g *Generator) Generate() ([]*domain.ExperimentUnit, error) {
	windowStart, _, err := g.cfg.Experiment.WindowBounds()
	if err != nil {
		return nil, err
	}

	// Category keys are walked in sorted order; map iteration order would
	// break seed reproducibility.
	devices := sortedKeys(g.cfg.Segments.DeviceDistribution)
	countries := sortedKeys(g.cfg.Segments.CountryDistribution)

	units := make([]*domain.ExperimentUnit, 0, g.cfg.Experiment.NUsers)
	for i := 0; i < g.cfg.Experiment.NUsers; i++ {
		u := &domain.ExperimentUnit{
			UnitID:       fmt.Sprintf("user_%07d", i),
			ExperimentID: g.cfg.Experiment.ID,
		}

		if g.rng.Float64() < g.cfg.Experiment.AllocationRatio {
			u.Variant = domain.VariantControl
		} else {
			u.Variant = domain.VariantTreatment
		}

		assignedAt := windowStart.Add(time.Duration(g.assignHour.Rand() * float64(time.Hour)))
		u.AssignedAt = assignedAt.UnixMilli()
		delay := time.Duration(g.exposureDelay.Rand() * float64(time.Hour))
		u.FirstExposedAt = assignedAt.Add(delay).UnixMilli()

		u.Eligible = g.rng.Float64() < g.cfg.Rates.EligibilityRate

		// Segments are sampled independently of variant.
		u.DeviceCategory = g.sampleCategory(devices, g.cfg.Segments.DeviceDistribution)
		u.Country = g.sampleCategory(countries, g.cfg.Segments.CountryDistribution)

		ctr, cvr := g.ratesFor(u.Variant, u.DeviceCategory)
		u.Clicked = g.rng.Float64() < ctr
		if u.Clicked {
			// Conversion requires a click.
			u.Converted = g.rng.Float64() < cvr
		}

		bounceProb := g.cfg.Guardrails.ControlBounceRate
		if u.Variant == domain.VariantTreatment {
			bounceProb += g.cfg.Guardrails.TreatmentBounceIncreasePP
		}
		u.Bounced = g.rng.Float64() < bounceProb

		session := g.sessionControl
		if u.Variant == domain.VariantTreatment {
			session = g.sessionTreatment
		}
		u.SessionSeconds = math.Max(g.cfg.Guardrails.SessionFloorSec, session.Rand())
		u.Sessions = g.rng.IntN(g.cfg.Guardrails.MaxSessions) + 1

		units = append(units, u)
	}

	return units, nil
}

// ratesFor returns the true CTR and CVR for a unit. Treatment lifts are in
// percentage points, scaled per device when heterogeneity is enabled.
func (g *Generator) ratesFor(variant domain.Variant, device string) (ctr, cvr float64) {
	ctr = g.cfg.Rates.ControlCTR
	cvr = g.cfg.Rates.ControlCVR
	if variant != domain.VariantTreatment {
		return ctr, cvr
	}

	ctrLift := g.cfg.Rates.TreatmentCTRLiftPP
	cvrLift := g.cfg.Rates.TreatmentCVRLiftPP
	if g.cfg.Segments.EnableHeterogeneity {
		if m, ok := g.cfg.Segments.DeviceEffectMultipliers[device]; ok {
			ctrLift *= m
			cvrLift *= m
		}
	}
	return ctr + ctrLift, cvr + cvrLift
}

// sampleCategory draws one key from a weighted distribution. Weights sum to
// 1 within config tolerance; the last key absorbs the remainder.
func (g *Generator) sampleCategory(keys []string, weights map[string]float64) string {
	x := g.rng.Float64()
	cum := 0.0
	for _, k := range keys {
		cum += weights[k]
		if x < cum {
			return k
		}
	}
	return keys[len(keys)-1]
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
