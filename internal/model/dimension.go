// Package model defines the canonical entity types shared across the
// scoring pipeline: Statement, Dimension, Domain, QuartetBlock, Session,
// BlockResponse and ScoreResult. Every entity is a single record type with
// enumerated fields, validated at construction — there is no dynamic field
// access anywhere in this package.
package model

// Dimension is one of the 12 enumerated talent facets measured by the
// instrument. Each Dimension belongs to exactly one Domain.
type Dimension string

const (
	T1  Dimension = "T1"
	T2  Dimension = "T2"
	T3  Dimension = "T3"
	T4  Dimension = "T4"
	T5  Dimension = "T5"
	T6  Dimension = "T6"
	T7  Dimension = "T7"
	T8  Dimension = "T8"
	T9  Dimension = "T9"
	T10 Dimension = "T10"
	T11 Dimension = "T11"
	T12 Dimension = "T12"
)

// Dimensions is the fixed, ordered list of all 12 dimensions. Ordering is
// stable (ascending dimension id) and is relied upon by the TierClassifier's
// tie-break rule (§4.8) and by the BlockDesigner's deterministic dimension
// assignment (§4.2).
var Dimensions = []Dimension{T1, T2, T3, T4, T5, T6, T7, T8, T9, T10, T11, T12}

// Domain is one of the 4 coarse groupings of dimensions.
type Domain string

const (
	Executing    Domain = "EXECUTING"
	Influencing  Domain = "INFLUENCING"
	Relationship Domain = "RELATIONSHIP"
	Strategic    Domain = "STRATEGIC"
)

// Domains is the fixed, ordered list of all 4 domains.
var Domains = []Domain{Executing, Influencing, Relationship, Strategic}

// dimensionToDomain is the fixed 3-3-3-3 dimension-to-domain mapping from
// §6 "Configuration consumed at startup". It never varies across
// deployments, so — unlike the statement pool and calibration bundle — it
// is compiled in rather than loaded from a file.
var dimensionToDomain = map[Dimension]Domain{
	T1: Executing, T2: Executing, T3: Executing,
	T4: Influencing, T5: Influencing, T6: Influencing,
	T7: Relationship, T8: Relationship, T9: Relationship,
	T10: Strategic, T11: Strategic, T12: Strategic,
}

// DomainOf returns the Domain that owns dim. Panics if dim is not one of
// the 12 enumerated dimensions — callers are expected to validate
// dimension values at the system boundary (CSV load, request decode)
// before they ever reach this function.
func DomainOf(dim Dimension) Domain {
	d, ok := dimensionToDomain[dim]
	if !ok {
		panic("model: unknown dimension " + string(dim))
	}
	return d
}

// DimensionsOf returns the 3 dimensions belonging to domain, in the fixed
// ascending order from Dimensions.
func DimensionsOf(domain Domain) []Dimension {
	out := make([]Dimension, 0, 3)
	for _, d := range Dimensions {
		if dimensionToDomain[d] == domain {
			out = append(out, d)
		}
	}
	return out
}

// ValidDimension reports whether s names one of the 12 enumerated
// dimensions.
func ValidDimension(s string) bool {
	_, ok := dimensionToDomain[Dimension(s)]
	return ok
}
