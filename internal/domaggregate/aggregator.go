// Package domaggregate implements the DomainAggregator (spec §4.7):
// per-domain percentile aggregation and the 4-domain-vector balance
// indicators (DBI, relative entropy, Gini complement).
package domaggregate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/strengthlab/quartet/internal/model"
)

// Aggregator computes domain-level statistics from 12 dimension scores.
type Aggregator struct{}

// New builds an Aggregator. It carries no state: every input it needs is
// passed to Aggregate.
func New() *Aggregator { return &Aggregator{} }

// Aggregate computes each domain's mean percentile and the overall balance
// indicators over the resulting 4-vector.
func (a *Aggregator) Aggregate(dimensions map[model.Dimension]model.DimensionScore) (map[model.Domain]model.DomainBalance, model.BalanceIndicators) {
	domains := make(map[model.Domain]model.DomainBalance, len(model.Domains))
	p := make([]float64, len(model.Domains))

	for i, domain := range model.Domains {
		dims := model.DimensionsOf(domain)
		var sum float64
		for _, d := range dims {
			sum += dimensions[d].Percentile
		}
		mean := sum / float64(len(dims))
		domains[domain] = model.DomainBalance{Domain: domain, MeanPercentile: mean}
		p[i] = mean
	}

	return domains, balanceIndicators(p)
}

// balanceIndicators computes DBI, relative entropy and 1−Gini over the
// 4-vector p of domain percentiles, each assumed bounded to [0,100].
func balanceIndicators(p []float64) model.BalanceIndicators {
	return model.BalanceIndicators{
		DBI:             dbi(p),
		RelativeEntropy: relativeEntropy(p),
		GiniComplement:  1 - gini(p),
	}
}

// dbi computes 1 − variance(p)/variance_max, where variance_max is the
// variance of the most unbalanced 4-vector sharing p's mean: as many
// coordinates as possible at the upper bound (100), at most one coordinate
// holding the remainder, and the rest at the lower bound (0). This
// closed-form maximum avoids a numerical search (§4.7 expansion note).
// Both variance terms use gonum/stat's sample-variance (n−1) convention so
// the ratio stays consistent with maxVarianceForMean's own denominator.
func dbi(p []float64) float64 {
	n := float64(len(p))
	mean := stat.Mean(p, nil)
	v := stat.Variance(p, nil)

	vMax := maxVarianceForMean(mean, n, 0, 100)
	if vMax <= 0 {
		return 1
	}
	return 1 - v/vMax
}

// maxVarianceForMean returns the sample variance of the most unbalanced
// n-vector bounded to [lo,hi] with the given mean: fill coordinates up to
// hi one at a time until the total above lo is used up, leaving at most
// one coordinate strictly between the bounds and the rest at lo.
func maxVarianceForMean(mean, n, lo, hi float64) float64 {
	total := (mean - lo) * n
	width := hi - lo

	var sumSq float64
	for i := 0; i < int(n); i++ {
		v := math.Min(math.Max(total, 0), width)
		total -= v
		sumSq += (lo + v - mean) * (lo + v - mean)
	}
	return sumSq / (n - 1)
}

// relativeEntropy is gonum/stat's Shannon entropy of p normalized to a
// probability distribution (p/sum(p)), divided by log(len(p)). A zero-sum
// vector (all domain percentiles 0) has no defined distribution; this
// returns 0, treated as minimally informative rather than undefined.
func relativeEntropy(p []float64) float64 {
	sum := sumOf(p)
	if sum <= 0 {
		return 0
	}

	q := make([]float64, len(p))
	for i, v := range p {
		if v > 0 {
			q[i] = v / sum
		}
	}
	return stat.Entropy(q) / math.Log(float64(len(p)))
}

// gini computes the standard Gini coefficient of p via the mean absolute
// difference formula: sum_i sum_j |p_i - p_j| / (2 n^2 mean). gonum/stat
// has no Gini implementation, so this stays hand-rolled arithmetic.
func gini(p []float64) float64 {
	n := len(p)
	mean := stat.Mean(p, nil)
	if mean == 0 {
		return 0
	}

	sorted := append([]float64{}, p...)
	sort.Float64s(sorted)

	var sumAbsDiff float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sumAbsDiff += math.Abs(sorted[i] - sorted[j])
		}
	}
	return sumAbsDiff / (2 * float64(n) * float64(n) * mean)
}

func sumOf(p []float64) float64 {
	var sum float64
	for _, v := range p {
		sum += v
	}
	return sum
}
