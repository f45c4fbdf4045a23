// Package blockdesign implements the BlockDesigner (spec §4.2): it
// produces an ordered sequence of quartet blocks for a new session such
// that dimension exposure is near-uniform, pairwise dimension
// co-occurrence is as balanced as feasible, and within-block statements
// are matched on social desirability.
package blockdesign

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/strengthlab/quartet/internal/apperr"
	"github.com/strengthlab/quartet/internal/model"
	"github.com/strengthlab/quartet/internal/statements"
)

const (
	// MinBlocks and MaxBlocks are the permitted block_count range (§4.2
	// "Input").
	MinBlocks = 5
	MaxBlocks = 30

	// MaxSocialDesirabilitySpread is constraint 4 from §4.2: within a
	// block, max(social_desirability) - min(social_desirability) <= this.
	MaxSocialDesirabilitySpread = 1.5

	// repairBudget bounds the swap-repair search per block (§4.2
	// "Algorithm at design level"): a bounded number of repair attempts
	// before the designer fails with constraint-unsatisfiable.
	repairBudget = 64

	// limitedCoverageThreshold is the block_count below which the
	// designer attaches a limited-coverage warning (SPEC_FULL.md §9 open
	// question #1): short designs still hit every dimension at least
	// once (since MinBlocks*4 = 20 >= 12), but uniform exposure across
	// dimensions is a much smaller sample.
	limitedCoverageThreshold = 12
)

// Designer produces quartet block sequences from a statement repository.
type Designer struct {
	repo *statements.Repository
}

// New builds a Designer over the given statement repository.
func New(repo *statements.Repository) *Designer {
	return &Designer{repo: repo}
}

// Result is the output of Design: the block sequence plus any informational
// warnings (e.g. limited-coverage for short designs).
type Result struct {
	Blocks   []model.QuartetBlock
	Warnings []model.Warning
}

// Design produces blockCount quartet blocks deterministically from seed
// (§4.2 "Randomization": "Deterministic given seed"). Calling Design twice
// with the same (blockCount, seed) and the same repository returns an
// identical sequence of statement ids (§8 determinism property).
func (d *Designer) Design(ctx context.Context, blockCount int, seed int64) (Result, error) {
	if blockCount < MinBlocks || blockCount > MaxBlocks {
		return Result{}, apperr.New(apperr.InvalidParameter,
			"block_count %d out of range [%d,%d]", blockCount, MinBlocks, MaxBlocks)
	}

	for _, dim := range model.Dimensions {
		if d.repo.CountByDimension(dim) == 0 {
			return Result{}, apperr.New(apperr.PoolInsufficient, "dimension %s has no statements", dim)
		}
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))

	dimPlan := exposurePlan(blockCount, rng)

	dimBlocks, err := assignDimensionsToBlocks(blockCount, dimPlan, rng)
	if err != nil {
		return Result{}, err
	}

	blocks, err := d.fillStatements(ctx, dimBlocks, seed)
	if err != nil {
		return Result{}, err
	}

	var warnings []model.Warning
	if blockCount < limitedCoverageThreshold {
		warnings = append(warnings, model.Warning{
			Kind:    "limited-coverage",
			Message: "block_count is small; dimension exposure balance is based on a small sample",
		})
	}

	return Result{Blocks: blocks, Warnings: warnings}, nil
}

// exposurePlan computes, for blockCount blocks of 4 slots each, the number
// of times each dimension must appear so that counts differ by at most 1
// (§4.2 constraint 2). The remainder slots are distributed across a
// seed-shuffled dimension order so the same few dimensions don't always
// receive the extra exposure.
func exposurePlan(blockCount int, rng *rand.Rand) map[model.Dimension]int {
	totalSlots := blockCount * 4
	base := totalSlots / len(model.Dimensions)
	remainder := totalSlots % len(model.Dimensions)

	order := make([]model.Dimension, len(model.Dimensions))
	copy(order, model.Dimensions)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	plan := make(map[model.Dimension]int, len(model.Dimensions))
	for _, dim := range model.Dimensions {
		plan[dim] = base
	}
	for i := 0; i < remainder; i++ {
		plan[order[i]]++
	}
	return plan
}

// assignDimensionsToBlocks greedily assembles blockCount groups of 4
// distinct dimensions from the exposure plan, at each step preferring
// dimensions with the most remaining exposure (to avoid starvation) and,
// among ties and subsequent picks within a block, the dimension that
// minimizes the block's total pairwise co-occurrence so far (§4.2
// constraint 3: pair-count variance as low as feasible).
func assignDimensionsToBlocks(blockCount int, plan map[model.Dimension]int, rng *rand.Rand) ([][4]model.Dimension, error) {
	remaining := make(map[model.Dimension]int, len(plan))
	for k, v := range plan {
		remaining[k] = v
	}
	pairCount := make(map[model.Dimension]map[model.Dimension]int, len(model.Dimensions))
	for _, d := range model.Dimensions {
		pairCount[d] = make(map[model.Dimension]int, len(model.Dimensions))
	}

	blocks := make([][4]model.Dimension, blockCount)
	for i := 0; i < blockCount; i++ {
		chosen, err := pickBlockDimensions(remaining, pairCount, rng)
		if err != nil {
			return nil, err
		}
		for a := 0; a < 4; a++ {
			remaining[chosen[a]]--
			for b := 0; b < 4; b++ {
				if a == b {
					continue
				}
				pairCount[chosen[a]][chosen[b]]++
			}
		}
		blocks[i] = chosen
	}
	return blocks, nil
}

func pickBlockDimensions(remaining map[model.Dimension]int, pairCount map[model.Dimension]map[model.Dimension]int, rng *rand.Rand) ([4]model.Dimension, error) {
	var chosen [4]model.Dimension
	chosenSet := make(map[model.Dimension]bool, 4)

	for slot := 0; slot < 4; slot++ {
		candidates := make([]model.Dimension, 0, len(model.Dimensions))
		for _, d := range model.Dimensions {
			if remaining[d] > 0 && !chosenSet[d] {
				candidates = append(candidates, d)
			}
		}
		if len(candidates) == 0 {
			return chosen, apperr.New(apperr.ConstraintUnsatisfiable,
				"cannot assemble a 4-distinct-dimension block from remaining exposure")
		}

		sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

		best := candidates[0]
		bestScore := blockScore(best, chosen, slot, remaining, pairCount)
		for _, cand := range candidates[1:] {
			score := blockScore(cand, chosen, slot, remaining, pairCount)
			if score < bestScore || (score == bestScore && rng.IntN(2) == 0) {
				best = cand
				bestScore = score
			}
		}

		chosen[slot] = best
		chosenSet[best] = true
	}
	return chosen, nil
}

// blockScore ranks a dimension's candidacy for the next slot: lower is
// better. It heavily penalizes dimensions with low remaining exposure
// budget (to avoid starving them in later rounds) and, among similarly
// urgent dimensions, prefers ones with lower accumulated pairwise
// co-occurrence against the dimensions already chosen for this block.
func blockScore(cand model.Dimension, chosen [4]model.Dimension, slot int, remaining map[model.Dimension]int, pairCount map[model.Dimension]map[model.Dimension]int) int {
	urgency := -remaining[cand] * 1000
	pairPenalty := 0
	for i := 0; i < slot; i++ {
		pairPenalty += pairCount[cand][chosen[i]]
	}
	return urgency + pairPenalty
}

// fillStatements chooses concrete statements for each dimension slot,
// round-robins across each dimension's statement list (§4.2 "(a)"), and
// runs a bounded local swap-repair pass for the social-desirability
// constraint (§4.2 "(b)").
func (d *Designer) fillStatements(ctx context.Context, dimBlocks [][4]model.Dimension, seed int64) ([]model.QuartetBlock, error) {
	occurrence := make(map[model.Dimension]int, len(model.Dimensions))
	blocks := make([]model.QuartetBlock, len(dimBlocks))
	seenSets := make(map[[4]string]bool, len(dimBlocks))

	for i, dims := range dimBlocks {
		block, err := d.fillOneBlock(ctx, dims, occurrence, seed, i)
		if err != nil {
			return nil, err
		}
		block.Index = i + 1
		key := block.StatementIDSet()
		attempt := 0
		for seenSets[key] && attempt < repairBudget {
			// Constraint 5: no two blocks share the same statement-id
			// multiset. Re-draw by advancing occurrence counters for
			// this block's dimensions and retrying.
			for _, dim := range dims {
				occurrence[dim]++
			}
			block, err = d.fillOneBlock(ctx, dims, occurrence, seed, i)
			if err != nil {
				return nil, err
			}
			block.Index = i + 1
			key = block.StatementIDSet()
			attempt++
		}
		if seenSets[key] {
			return nil, apperr.New(apperr.ConstraintUnsatisfiable,
				"block %d: could not produce a statement set distinct from earlier blocks within budget", i+1)
		}
		seenSets[key] = true
		blocks[i] = block
	}
	return blocks, nil
}

// fillOneBlock chooses one statement per slot via round-robin-by-occurrence
// selection, then repairs the social-desirability spread if needed.
func (d *Designer) fillOneBlock(ctx context.Context, dims [4]model.Dimension, occurrence map[model.Dimension]int, seed int64, blockIdx int) (model.QuartetBlock, error) {
	var block model.QuartetBlock
	for slot, dim := range dims {
		pool := d.repo.ByDimension(dim)
		idx := selectIndex(seed, dim, occurrence[dim], len(pool))
		block.Statements[slot] = pool[idx]
		occurrence[dim]++
	}

	if withinSpread(block) {
		return block, nil
	}
	return d.repairSpread(ctx, block, dims, seed, blockIdx)
}

// selectIndex derives a deterministic pseudo-round-robin index into a
// dimension's statement list: it cycles through the pool in order but
// starts at an offset derived from the session seed, so different
// sessions with different seeds spread their selections across the pool
// instead of all starting at statement 0 (§4.2: "round-robin ... to
// balance statement exposure across many sessions").
func selectIndex(seed int64, dim model.Dimension, occurrence int, poolSize int) int {
	h := hashSeedDimension(seed, dim)
	return int((h + uint64(occurrence)) % uint64(poolSize))
}

func hashSeedDimension(seed int64, dim model.Dimension) uint64 {
	// FNV-1a over the seed bytes and dimension name — cheap, deterministic,
	// and avoids correlating adjacent dimensions' starting offsets.
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	mix := func(b byte) {
		h ^= uint64(b)
		h *= prime
	}
	for i := 0; i < 8; i++ {
		mix(byte(seed >> (8 * i)))
	}
	for i := 0; i < len(dim); i++ {
		mix(dim[i])
	}
	return h
}

func withinSpread(block model.QuartetBlock) bool {
	min, max := math.Inf(1), math.Inf(-1)
	for _, s := range block.Statements {
		if s.SocialDesirability < min {
			min = s.SocialDesirability
		}
		if s.SocialDesirability > max {
			max = s.SocialDesirability
		}
	}
	return max-min <= MaxSocialDesirabilitySpread
}

// repairSpread runs the bounded local swap-repair pass: for each slot it
// concurrently scores every alternative statement in that dimension by how
// much it would tighten the block's social-desirability spread (this is
// the concurrent fan-out grounded on the teacher's errgroup-based bounded
// parallel scoring in internal/conflicts/scorer.go), then greedily applies
// the single best swap and re-checks. Fails with constraint-unsatisfiable
// if the spread constraint still isn't met after repairBudget swaps.
func (d *Designer) repairSpread(ctx context.Context, block model.QuartetBlock, dims [4]model.Dimension, seed int64, blockIdx int) (model.QuartetBlock, error) {
	for attempt := 0; attempt < repairBudget; attempt++ {
		if withinSpread(block) {
			return block, nil
		}

		results := make([]swapCandidate, 4)
		g, _ := errgroup.WithContext(ctx)
		for slot := 0; slot < 4; slot++ {
			slot := slot
			g.Go(func() error {
				results[slot] = d.bestSwapForSlot(block, dims[slot], slot)
				return nil
			})
		}
		_ = g.Wait() // bestSwapForSlot cannot fail; errgroup only joins the four per-slot goroutines (no limit is set).

		best := results[0]
		for _, c := range results[1:] {
			if c.delta < best.delta {
				best = c
			}
		}
		if math.IsInf(best.delta, 1) {
			break
		}
		block.Statements[best.slot] = best.stmt
	}

	if withinSpread(block) {
		return block, nil
	}
	return model.QuartetBlock{}, apperr.New(apperr.ConstraintUnsatisfiable,
		"block %d: social-desirability spread exceeds %.1f after repair budget exhausted", blockIdx+1, MaxSocialDesirabilitySpread)
}

// swapCandidate is the best replacement statement found for one slot during
// a repair pass.
type swapCandidate struct {
	slot  int
	stmt  model.Statement
	delta float64
}

// bestSwapForSlot finds the replacement statement for dim's slot that
// yields the smallest resulting max-min spread, among all statements in
// that dimension's pool.
func (d *Designer) bestSwapForSlot(block model.QuartetBlock, dim model.Dimension, slot int) swapCandidate {
	best := swapCandidate{slot: slot, stmt: block.Statements[slot], delta: math.Inf(1)}
	for _, cand := range d.repo.ByDimension(dim) {
		trial := block
		trial.Statements[slot] = cand
		min, max := math.Inf(1), math.Inf(-1)
		for _, s := range trial.Statements {
			if s.SocialDesirability < min {
				min = s.SocialDesirability
			}
			if s.SocialDesirability > max {
				max = s.SocialDesirability
			}
		}
		spread := max - min
		if spread < best.delta {
			best = swapCandidate{slot: slot, stmt: cand, delta: spread}
		}
	}
	return best
}
