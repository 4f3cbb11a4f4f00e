// Package inference implements two-proportion statistical tests for
// experiment analysis: a confidence interval on the treatment-control rate
// difference, a pooled two-sided z-test, and minimum-detectable-effect
// sizing. The interval uses the unpooled standard error while the test pools
// under the null; the asymmetry is standard for proportion comparisons.
package inference

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"experiment-lab/internal/domain"
)

// ErrInvalidInput is returned when inference preconditions are violated.
var ErrInvalidInput = errors.New("invalid input")

// stdNormal provides quantiles and tail probabilities for z-tests.
var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// Engine performs two-proportion inference at a fixed confidence level.
// Stateless beyond the configured level; safe to reuse across metrics.
type Engine struct {
	confidenceLevel float64
	alpha           float64
	clock           func() time.Time
}

// NewEngine creates an engine for the given confidence level.
// Levels outside (0,1) are rejected.
func NewEngine(confidenceLevel float64) (*Engine, error) {
	if confidenceLevel <= 0 || confidenceLevel >= 1 {
		return nil, fmt.Errorf("confidence level must be in (0,1), got %v: %w", confidenceLevel, ErrInvalidInput)
	}
	return &Engine{
		confidenceLevel: confidenceLevel,
		alpha:           1 - confidenceLevel,
		clock:           time.Now,
	}, nil
}

// WithClock overrides the timestamp source for ComputedAt stamps.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// ConfidenceLevel returns the configured confidence level.
func (e *Engine) ConfidenceLevel() float64 { return e.confidenceLevel }

// Alpha returns the two-sided significance threshold, 1 - confidence level.
func (e *Engine) Alpha() float64 { return e.alpha }

// Analyze performs interval estimation and hypothesis testing on a computed
// metric report. Both groups must be non-empty; zero-size groups fail with
// ErrInvalidInput rather than producing NaN.
func (e *Engine) Analyze(report *domain.MetricReport) (*domain.InferenceReport, error) {
	if report == nil {
		return nil, fmt.Errorf("nil metric report: %w", ErrInvalidInput)
	}
	if report.ControlN <= 0 || report.TreatmentN <= 0 {
		return nil, fmt.Errorf("group sizes must be positive, got control %d, treatment %d: %w",
			report.ControlN, report.TreatmentN, ErrInvalidInput)
	}

	n1 := float64(report.ControlN)
	x1 := float64(report.ControlSuccesses)
	p1 := report.ControlRate
	n2 := float64(report.TreatmentN)
	x2 := float64(report.TreatmentSuccesses)
	p2 := report.TreatmentRate

	ciLower, ciUpper := e.proportionDiffCI(p1, n1, p2, n2)
	pValue := proportionZTest(x1, n1, x2, n2)

	return &domain.InferenceReport{
		SnapshotID:               report.SnapshotID,
		ExperimentID:             report.ExperimentID,
		Metric:                   report.Metric,
		ControlRate:              p1,
		TreatmentRate:            p2,
		AbsoluteLift:             report.AbsoluteLift,
		RelativeLiftPct:          report.RelativeLiftPct,
		CILower:                  ciLower,
		CIUpper:                  ciUpper,
		PValue:                   pValue,
		StatisticallySignificant: pValue < e.alpha,
		ConfidenceLevel:          e.confidenceLevel,
		ComputedAt:               e.clock().UnixMilli(),
	}, nil
}

// proportionDiffCI computes the confidence interval for (p2 - p1) using the
// unpooled standard error for independent proportions:
// SE = sqrt(p1(1-p1)/n1 + p2(1-p2)/n2).
func (e *Engine) proportionDiffCI(p1, n1, p2, n2 float64) (float64, float64) {
	diff := p2 - p1
	se := math.Sqrt(p1*(1-p1)/n1 + p2*(1-p2)/n2)
	z := stdNormal.Quantile(1 - e.alpha/2)

	margin := z * se
	return diff - margin, diff + margin
}

// proportionZTest computes the two-sided p-value for H0: p1 = p2 with the
// standard error pooled under the null. When the pooled variance is zero
// (identical degenerate arms) the statistic is defined as 0 and the p-value
// is 1.
func proportionZTest(x1, n1, x2, n2 float64) float64 {
	p1 := x1 / n1
	p2 := x2 / n2

	pPooled := (x1 + x2) / (n1 + n2)
	seNull := math.Sqrt(pPooled * (1 - pPooled) * (1/n1 + 1/n2))

	var zStat float64
	if seNull > 0 {
		zStat = (p2 - p1) / seNull
	}

	return 2 * (1 - stdNormal.CDF(math.Abs(zStat)))
}

// ComputeMDE computes the minimum detectable effect for a two-variant test:
// the smallest absolute lift detectable at the engine's alpha with the given
// baseline rate, per-variant sample size, and power. Uses the simplified
// equal-variance approximation (z_alpha + z_beta) * sqrt(2p(1-p)/n).
func (e *Engine) ComputeMDE(baselineRate float64, nPerVariant int64, power float64) (float64, error) {
	if nPerVariant <= 0 {
		return 0, fmt.Errorf("n per variant must be positive, got %d: %w", nPerVariant, ErrInvalidInput)
	}
	if baselineRate <= 0 || baselineRate >= 1 {
		return 0, fmt.Errorf("baseline rate must be in (0,1), got %v: %w", baselineRate, ErrInvalidInput)
	}
	if power <= 0 || power >= 1 {
		return 0, fmt.Errorf("power must be in (0,1), got %v: %w", power, ErrInvalidInput)
	}

	zAlpha := stdNormal.Quantile(1 - e.alpha/2)
	zBeta := stdNormal.Quantile(power)

	p := baselineRate
	return (zAlpha + zBeta) * math.Sqrt(2*p*(1-p)/float64(nPerVariant)), nil
}
