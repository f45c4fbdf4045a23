package tier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strengthlab/quartet/internal/calibration"
	"github.com/strengthlab/quartet/internal/model"
)

func scoreWith(dim model.Dimension, percentile, theta float64) model.DimensionScore {
	return model.DimensionScore{Dimension: dim, Percentile: percentile, Theta: theta}
}

func TestClassifyThresholds(t *testing.T) {
	dims := map[model.Dimension]model.DimensionScore{
		model.T1: scoreWith(model.T1, 90, 1),
		model.T2: scoreWith(model.T2, 75.0001, 1),
		model.T3: scoreWith(model.T3, 50, 0),
		model.T4: scoreWith(model.T4, 25, 0),
		model.T5: scoreWith(model.T5, 10, -1),
	}
	tiers, grouped := Classify(dims)
	assert.Equal(t, model.Dominant, tiers[model.T1])
	assert.Equal(t, model.Dominant, tiers[model.T2])
	assert.Equal(t, model.Supporting, tiers[model.T3])
	assert.Equal(t, model.Supporting, tiers[model.T4]) // exactly 25 is not < 25
	assert.Equal(t, model.Lesser, tiers[model.T5])

	require.Len(t, grouped.Dominant, 2)
	assert.Equal(t, model.T1, grouped.Dominant[0]) // higher percentile first
}

func TestClassifyTieBreakByDescendingPercentileThenAscendingID(t *testing.T) {
	dims := map[model.Dimension]model.DimensionScore{
		model.T5: scoreWith(model.T5, 50, 0),
		model.T2: scoreWith(model.T2, 50, 0),
		model.T9: scoreWith(model.T9, 50, 0),
	}
	_, grouped := Classify(dims)
	require.Equal(t, []model.Dimension{model.T2, model.T5, model.T9}, grouped.Supporting)
}

func TestArchetypeMapperExecutingDominant(t *testing.T) {
	bundle := calibration.Uncalibrated("x")
	m := NewArchetypeMapper(bundle)

	dominant := []model.Dimension{model.T1, model.T2, model.T3} // all of EXECUTING
	a := m.Map(dominant)
	assert.Equal(t, "guardian-system-builder", a.ID)
	assert.Equal(t, "guardian-system-builder", a.RuleID)
}

func TestArchetypeMapperMultiDomainComposite(t *testing.T) {
	bundle := calibration.Uncalibrated("x")
	m := NewArchetypeMapper(bundle)

	dominant := []model.Dimension{model.T1, model.T2, model.T4, model.T5} // EXECUTING + INFLUENCING both dominate
	a := m.Map(dominant)
	assert.Equal(t, "executing-influencing", a.ID)
}

func TestArchetypeMapperFallsBackToBalancedIntegrator(t *testing.T) {
	bundle := calibration.Uncalibrated("x")
	m := NewArchetypeMapper(bundle)

	a := m.Map(nil)
	assert.Equal(t, "balanced-integrator", a.ID)
}

func TestArchetypeMapperFirstMatchWins(t *testing.T) {
	bundle, err := calibration.Load(strings.NewReader(`
calibration_version: x
archetype_rules:
  - id: rule-a
    label: A
    domains: [EXECUTING]
  - id: rule-b
    label: B
    domains: [EXECUTING]
`))
	require.NoError(t, err)

	m := NewArchetypeMapper(bundle)
	a := m.Map([]model.Dimension{model.T1, model.T2, model.T3})
	assert.Equal(t, "rule-a", a.ID)
}
