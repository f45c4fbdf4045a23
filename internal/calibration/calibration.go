// Package calibration loads the process-wide immutable calibration bundle
// (spec §4.5, §4.6, §4.8, §6): per-statement item parameters, the θ prior,
// per-dimension norm mean/sd, algorithm/calibration version strings, and
// the archetype rule table. The bundle is a YAML file — gopkg.in/yaml.v3
// is the teacher's own configuration-loading dependency
// (itsneelabh-gomind also depends on it directly).
package calibration

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/strengthlab/quartet/internal/model"
)

// Norm holds the reference population mean and standard deviation for one
// dimension's θ, used by the NormativeTransformer (§4.6).
type Norm struct {
	Mean float64 `yaml:"mean"`
	SD   float64 `yaml:"sd"`
}

// ArchetypeRule is one row of the rule table from §4.8. Domains lists the
// domain(s) whose dominance fires this rule; rules are evaluated in
// declaration order and the first match wins.
type ArchetypeRule struct {
	ID      string   `yaml:"id"`
	Label   string   `yaml:"label"`
	Domains []string `yaml:"domains"`
}

// Bundle is the full calibration configuration, process-wide immutable
// after Load (§3 "Ownership": "the Calibration ... is process-wide
// immutable configuration loaded at startup").
type Bundle struct {
	AlgorithmVersion   string                   `yaml:"algorithm_version"`
	CalibrationVersion string                   `yaml:"calibration_version"`
	Norms              map[model.Dimension]Norm `yaml:"norms"`
	ArchetypeRules     []ArchetypeRule          `yaml:"archetype_rules"`

	// PriorVariance is the diagonal of the θ prior covariance (§4.5
	// "A prior on θ: zero mean, identity covariance (or the calibrated
	// covariance if provided)"). A dimension absent from this map uses
	// variance 1 (the identity-covariance default).
	PriorVariance map[model.Dimension]float64 `yaml:"prior_variance"`
}

// yamlBundle mirrors Bundle's YAML shape; kept separate so Bundle's public
// API isn't constrained by yaml struct tags on exported fields callers
// might want to build programmatically (e.g. in tests).
type yamlBundle struct {
	AlgorithmVersion   string             `yaml:"algorithm_version"`
	CalibrationVersion string             `yaml:"calibration_version"`
	Norms              map[string]Norm    `yaml:"norms"`
	ArchetypeRules     []ArchetypeRule    `yaml:"archetype_rules"`
	PriorVariance      map[string]float64 `yaml:"prior_variance"`
}

// Load reads a calibration bundle YAML document from r.
func Load(r io.Reader) (*Bundle, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("calibration: read: %w", err)
	}
	var yb yamlBundle
	if err := yaml.Unmarshal(raw, &yb); err != nil {
		return nil, fmt.Errorf("calibration: parse yaml: %w", err)
	}

	b := &Bundle{
		AlgorithmVersion:   yb.AlgorithmVersion,
		CalibrationVersion: yb.CalibrationVersion,
		Norms:              make(map[model.Dimension]Norm, len(yb.Norms)),
		ArchetypeRules:     yb.ArchetypeRules,
		PriorVariance:       make(map[model.Dimension]float64, len(yb.PriorVariance)),
	}
	if len(b.ArchetypeRules) == 0 {
		b.ArchetypeRules = DefaultArchetypeRules()
	}
	for k, v := range yb.Norms {
		if !model.ValidDimension(k) {
			return nil, fmt.Errorf("calibration: unknown dimension %q in norms", k)
		}
		if v.SD <= 0 {
			return nil, fmt.Errorf("calibration: dimension %q: norm sd must be > 0, got %v", k, v.SD)
		}
		b.Norms[model.Dimension(k)] = v
	}
	for k, v := range yb.PriorVariance {
		if !model.ValidDimension(k) {
			return nil, fmt.Errorf("calibration: unknown dimension %q in prior_variance", k)
		}
		if v <= 0 {
			return nil, fmt.Errorf("calibration: dimension %q: prior_variance must be > 0, got %v", k, v)
		}
		b.PriorVariance[model.Dimension(k)] = v
	}
	if b.CalibrationVersion == "" {
		return nil, fmt.Errorf("calibration: calibration_version is required")
	}
	return b, nil
}

// PriorVarianceOf returns the θ prior variance for dim, defaulting to 1
// (identity covariance) when unset.
func (b *Bundle) PriorVarianceOf(dim model.Dimension) float64 {
	if v, ok := b.PriorVariance[dim]; ok {
		return v
	}
	return 1
}

// Uncalibrated returns the fallback bundle used when no calibration file
// is configured (§4.6 "When a calibration norm is unavailable..."). Every
// dimension gets the fixed reference mean 0 (applied directly to θ) and sd
// 1, and the bundle is marked calibration_version = "uncalibrated". The
// NormativeTransformer further maps this through its own fixed reference
// scale (mean 50, sd 15) per §4.6 — this bundle only supplies "no
// per-dimension adjustment", not the final display scale.
func Uncalibrated(algorithmVersion string) *Bundle {
	norms := make(map[model.Dimension]Norm, len(model.Dimensions))
	for _, d := range model.Dimensions {
		norms[d] = Norm{Mean: 0, SD: 1}
	}
	return &Bundle{
		AlgorithmVersion:   algorithmVersion,
		CalibrationVersion: "uncalibrated",
		Norms:              norms,
		ArchetypeRules:      DefaultArchetypeRules(),
	}
}

// DefaultArchetypeRules returns the built-in rule table covering the named
// archetypes from spec §4.8, used whenever a bundle doesn't override
// archetype_rules. Evaluated in order; the fallback "Balanced Integrator"
// never fails to match because its Domains list is empty ("no domain
// dominates").
func DefaultArchetypeRules() []ArchetypeRule {
	return []ArchetypeRule{
		{ID: "guardian-system-builder", Label: "Guardian / System Builder", Domains: []string{"EXECUTING"}},
		{ID: "influencer", Label: "Influencer", Domains: []string{"INFLUENCING"}},
		{ID: "people-developer", Label: "People Developer", Domains: []string{"RELATIONSHIP"}},
		{ID: "system-builder", Label: "System Builder", Domains: []string{"STRATEGIC"}},
		{ID: "executing-influencing", Label: "Driver", Domains: []string{"EXECUTING", "INFLUENCING"}},
		{ID: "relationship-strategic", Label: "Trusted Advisor", Domains: []string{"RELATIONSHIP", "STRATEGIC"}},
		{ID: "balanced-integrator", Label: "Balanced Integrator", Domains: []string{}},
	}
}

// NormOf returns the Norm for dim, or the uncalibrated default (mean 0, sd
// 1) if the bundle has no entry for it.
func (b *Bundle) NormOf(dim model.Dimension) Norm {
	if n, ok := b.Norms[dim]; ok {
		return n
	}
	return Norm{Mean: 0, SD: 1}
}

// IsUncalibrated reports whether this bundle is the §4.6 fallback mode.
func (b *Bundle) IsUncalibrated() bool {
	return b.CalibrationVersion == "uncalibrated"
}
