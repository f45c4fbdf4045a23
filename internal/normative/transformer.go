// Package normative implements the NormativeTransformer (spec §4.6):
// converts raw θ estimates into the interpersonally-comparable z-score,
// T-score and percentile scale.
package normative

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/strengthlab/quartet/internal/calibration"
	"github.com/strengthlab/quartet/internal/model"
)

// standardNormal supplies Φ, the standard normal CDF, rather than a
// hand-rolled erf approximation.
var standardNormal = distuv.Normal{Mu: 0, Sigma: 1}

// uncalibratedMean and uncalibratedSD are the §4.6 fixed reference scale
// applied directly to θ when no calibration norm is available.
const (
	uncalibratedMean = 50.0
	uncalibratedSD   = 15.0
)

// Transformer converts θ to DimensionScore fields (TScore, Percentile),
// leaving Tier assignment to the tier package.
type Transformer struct {
	bundle *calibration.Bundle
}

// New builds a Transformer over the active calibration bundle.
func New(bundle *calibration.Bundle) *Transformer {
	return &Transformer{bundle: bundle}
}

// Transform computes T-score and percentile for one dimension's θ.
// t_score is rounded to 1 decimal place, matching the ScoreResult field's
// display contract. percentile is returned at full precision — it is
// "carried as float internally for tier thresholds" (model.DimensionScore)
// and only rounded to an integer at the display/transport boundary.
func (t *Transformer) Transform(dim model.Dimension, theta float64) (tScore, percentile float64) {
	if t.bundle.IsUncalibrated() {
		raw := uncalibratedMean + uncalibratedSD*theta
		return round1(clamp(raw, 0, 100)), standardNormal.CDF(theta) * 100
	}

	norm := t.bundle.NormOf(dim)
	z := (theta - norm.Mean) / norm.SD
	tScore = clamp(50+10*z, 0, 100)
	percentile = standardNormal.CDF(z) * 100
	return round1(tScore), percentile
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
