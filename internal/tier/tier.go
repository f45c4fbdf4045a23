// Package tier implements the TierClassifier and ArchetypeMapper (spec
// §4.8): partitioning the 12 dimensions into dominant/supporting/lesser
// bands by percentile, and mapping the dominant tier's domain composition
// to a labeled archetype via a configurable rule table.
package tier

import (
	"sort"

	"github.com/strengthlab/quartet/internal/calibration"
	"github.com/strengthlab/quartet/internal/model"
)

// DominantThreshold and LesserThreshold are the §4.8 tiering cut points.
const (
	DominantThreshold = 75.0
	LesserThreshold   = 25.0
)

// Classify assigns a Tier to each dimension score and returns them grouped
// into model.Tiers, each group ordered by descending percentile, then
// higher θ, then ascending dimension id (§4.8 "stable ordering").
func Classify(dimensions map[model.Dimension]model.DimensionScore) (map[model.Dimension]model.Tier, model.Tiers) {
	tiers := make(map[model.Dimension]model.Tier, len(dimensions))
	for dim, score := range dimensions {
		tiers[dim] = classifyOne(score.Percentile)
	}

	grouped := model.Tiers{}
	for _, dim := range orderedByPercentileDesc(dimensions) {
		switch tiers[dim] {
		case model.Dominant:
			grouped.Dominant = append(grouped.Dominant, dim)
		case model.Lesser:
			grouped.Lesser = append(grouped.Lesser, dim)
		default:
			grouped.Supporting = append(grouped.Supporting, dim)
		}
	}
	return tiers, grouped
}

func classifyOne(percentile float64) model.Tier {
	switch {
	case percentile > DominantThreshold:
		return model.Dominant
	case percentile < LesserThreshold:
		return model.Lesser
	default:
		return model.Supporting
	}
}

// orderedByPercentileDesc returns the dimensions present in dimensions,
// ordered by descending percentile and, for ties (including the §4.8
// "ties at the boundaries" case), by higher θ first and then ascending
// dimension id.
func orderedByPercentileDesc(dimensions map[model.Dimension]model.DimensionScore) []model.Dimension {
	out := make([]model.Dimension, 0, len(dimensions))
	for _, d := range model.Dimensions {
		if _, ok := dimensions[d]; ok {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := dimensions[out[i]], dimensions[out[j]]
		if a.Percentile != b.Percentile {
			return a.Percentile > b.Percentile
		}
		if a.Theta != b.Theta {
			return a.Theta > b.Theta
		}
		return a.Dimension < b.Dimension
	})
	return out
}

// ArchetypeMapper assigns a labeled archetype from a dominant-tier domain
// composition, using the calibration bundle's rule table.
type ArchetypeMapper struct {
	bundle *calibration.Bundle
}

// NewArchetypeMapper builds a mapper over the active calibration bundle's
// archetype_rules.
func NewArchetypeMapper(bundle *calibration.Bundle) *ArchetypeMapper {
	return &ArchetypeMapper{bundle: bundle}
}

// dominatingCount is the §4.8 "majority of dominant-tier dimensions"
// threshold expressed per domain: a domain dominates when at least this
// many of its 3 dimensions are in the dominant tier.
const dominatingCount = 2

// Map returns the archetype for the given dominant-tier dimension list. A
// domain "dominates" when at least dominatingCount of its 3 dimensions
// appear in dominant; the first rule (in declaration order) whose Domains
// set exactly matches the set of dominating domains wins. When no domain
// dominates, only a rule with an empty Domains list matches. When no rule
// matches (e.g. an unnamed combination dominates), the built-in Balanced
// Integrator fallback applies with an empty RuleID.
func (m *ArchetypeMapper) Map(dominant []model.Dimension) model.Archetype {
	perDomain := make(map[model.Domain]int, len(model.Domains))
	for _, d := range dominant {
		perDomain[model.DomainOf(d)]++
	}

	domainSet := make(map[model.Domain]bool)
	for domain, count := range perDomain {
		if count >= dominatingCount {
			domainSet[domain] = true
		}
	}

	for _, rule := range m.bundle.ArchetypeRules {
		if ruleMatches(rule, domainSet) {
			return model.Archetype{ID: rule.ID, Label: rule.Label, RuleID: rule.ID}
		}
	}

	return model.Archetype{ID: "balanced-integrator", Label: "Balanced Integrator", RuleID: ""}
}

func ruleMatches(rule calibration.ArchetypeRule, domainSet map[model.Domain]bool) bool {
	if len(rule.Domains) == 0 {
		return len(domainSet) == 0
	}
	if len(rule.Domains) != len(domainSet) {
		return false
	}
	for _, d := range rule.Domains {
		if !domainSet[model.Domain(d)] {
			return false
		}
	}
	return true
}
