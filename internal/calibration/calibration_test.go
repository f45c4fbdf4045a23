package calibration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strengthlab/quartet/internal/model"
)

const sampleYAML = `
algorithm_version: "1.0.0"
calibration_version: "2026.1"
norms:
  T1: {mean: 0.1, sd: 0.9}
  T2: {mean: -0.2, sd: 1.1}
archetype_rules:
  - id: guardian
    label: Guardian
    domains: [EXECUTING]
  - id: balanced
    label: Balanced Integrator
    domains: []
`

func TestLoad(t *testing.T) {
	b, err := Load(strings.NewReader(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "2026.1", b.CalibrationVersion)
	assert.False(t, b.IsUncalibrated())

	n := b.NormOf(model.T1)
	assert.InDelta(t, 0.1, n.Mean, 1e-9)
	assert.InDelta(t, 0.9, n.SD, 1e-9)

	// Dimension absent from norms falls back to mean 0, sd 1.
	n3 := b.NormOf(model.T3)
	assert.Equal(t, Norm{Mean: 0, SD: 1}, n3)

	require.Len(t, b.ArchetypeRules, 2)
	assert.Equal(t, "guardian", b.ArchetypeRules[0].ID)
}

func TestLoadRejectsBadDimension(t *testing.T) {
	bad := "calibration_version: x\nnorms:\n  T99: {mean: 0, sd: 1}\n"
	_, err := Load(strings.NewReader(bad))
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveSD(t *testing.T) {
	bad := "calibration_version: x\nnorms:\n  T1: {mean: 0, sd: 0}\n"
	_, err := Load(strings.NewReader(bad))
	assert.Error(t, err)
}

func TestLoadRequiresCalibrationVersion(t *testing.T) {
	_, err := Load(strings.NewReader("norms: {}\n"))
	assert.Error(t, err)
}

func TestUncalibrated(t *testing.T) {
	b := Uncalibrated("4.0.0-alpha")
	assert.True(t, b.IsUncalibrated())
	assert.Equal(t, "4.0.0-alpha", b.AlgorithmVersion)
	for _, d := range model.Dimensions {
		assert.Equal(t, Norm{Mean: 0, SD: 1}, b.NormOf(d))
	}
	assert.NotEmpty(t, b.ArchetypeRules)
}

func TestPriorVarianceOfDefault(t *testing.T) {
	b := Uncalibrated("x")
	assert.Equal(t, 1.0, b.PriorVarianceOf(model.T5))
}
