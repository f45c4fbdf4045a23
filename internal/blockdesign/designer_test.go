package blockdesign

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strengthlab/quartet/internal/model"
	"github.com/strengthlab/quartet/internal/statements"
)

// widePoolCSV builds a pool with perDimension statements per dimension,
// spreading social_desirability evenly across [3.0, 5.0] so the
// spread-repair pass always has slack to work with.
func widePoolCSV(perDimension int) string {
	var b strings.Builder
	b.WriteString("statement_id,dimension,text,social_desirability,factor_loading\n")
	for _, dim := range model.Dimensions {
		for i := 0; i < perDimension; i++ {
			sd := 3.0 + 2.0*float64(i)/float64(perDimension-1)
			fmt.Fprintf(&b, "%s-%02d,%s,statement text,%.2f,0.8\n", dim, i, dim, sd)
		}
	}
	return b.String()
}

func mustRepo(t *testing.T, perDimension int) *statements.Repository {
	t.Helper()
	repo, err := statements.Load(strings.NewReader(widePoolCSV(perDimension)))
	require.NoError(t, err)
	return repo
}

func TestDesignUniformExposure(t *testing.T) {
	repo := mustRepo(t, 20)
	d := New(repo)

	result, err := d.Design(context.Background(), 30, 42)
	require.NoError(t, err)
	require.Len(t, result.Blocks, 30)

	exposure := make(map[model.Dimension]int)
	for _, block := range result.Blocks {
		for _, dim := range block.Dimensions() {
			exposure[dim]++
		}
	}
	for _, dim := range model.Dimensions {
		assert.Equal(t, 10, exposure[dim], "dimension %s exposure", dim)
	}
}

func TestDesignNearUniformExposureForOddCount(t *testing.T) {
	repo := mustRepo(t, 20)
	d := New(repo)

	result, err := d.Design(context.Background(), 17, 7)
	require.NoError(t, err)

	exposure := make(map[model.Dimension]int)
	for _, block := range result.Blocks {
		for _, dim := range block.Dimensions() {
			exposure[dim]++
		}
	}
	min, max := 1<<30, 0
	for _, dim := range model.Dimensions {
		if exposure[dim] < min {
			min = exposure[dim]
		}
		if exposure[dim] > max {
			max = exposure[dim]
		}
	}
	assert.LessOrEqual(t, max-min, 1)

	var warned bool
	for _, w := range result.Warnings {
		if w.Kind == "limited-coverage" {
			warned = true
		}
	}
	assert.True(t, warned, "block_count below threshold should warn limited-coverage")
}

func TestDesignDistinctDimensionsPerBlock(t *testing.T) {
	repo := mustRepo(t, 20)
	d := New(repo)

	result, err := d.Design(context.Background(), 30, 1)
	require.NoError(t, err)

	for _, block := range result.Blocks {
		require.NoError(t, block.Validate())
	}
}

func TestDesignNoDuplicateBlocks(t *testing.T) {
	repo := mustRepo(t, 20)
	d := New(repo)

	result, err := d.Design(context.Background(), 30, 99)
	require.NoError(t, err)

	seen := make(map[[4]string]bool)
	for _, block := range result.Blocks {
		key := block.StatementIDSet()
		assert.False(t, seen[key], "duplicate statement set %v", key)
		seen[key] = true
	}
}

func TestDesignSocialDesirabilitySpread(t *testing.T) {
	repo := mustRepo(t, 20)
	d := New(repo)

	result, err := d.Design(context.Background(), 30, 5)
	require.NoError(t, err)

	for i, block := range result.Blocks {
		min, max := block.Statements[0].SocialDesirability, block.Statements[0].SocialDesirability
		for _, s := range block.Statements {
			if s.SocialDesirability < min {
				min = s.SocialDesirability
			}
			if s.SocialDesirability > max {
				max = s.SocialDesirability
			}
		}
		assert.LessOrEqual(t, max-min, MaxSocialDesirabilitySpread, "block %d", i+1)
	}
}

func TestDesignDeterministicGivenSeed(t *testing.T) {
	repo := mustRepo(t, 20)
	d := New(repo)

	r1, err := d.Design(context.Background(), 20, 123)
	require.NoError(t, err)
	r2, err := d.Design(context.Background(), 20, 123)
	require.NoError(t, err)

	require.Len(t, r1.Blocks, len(r2.Blocks))
	for i := range r1.Blocks {
		assert.Equal(t, r1.Blocks[i].StatementIDSet(), r2.Blocks[i].StatementIDSet(), "block %d", i+1)
	}
}

func TestDesignDifferentSeedsDiffer(t *testing.T) {
	repo := mustRepo(t, 20)
	d := New(repo)

	r1, err := d.Design(context.Background(), 20, 1)
	require.NoError(t, err)
	r2, err := d.Design(context.Background(), 20, 2)
	require.NoError(t, err)

	var anyDifferent bool
	for i := range r1.Blocks {
		if r1.Blocks[i].StatementIDSet() != r2.Blocks[i].StatementIDSet() {
			anyDifferent = true
			break
		}
	}
	assert.True(t, anyDifferent, "different seeds should usually produce different statement sequences")
}

func TestDesignRejectsOutOfRangeBlockCount(t *testing.T) {
	repo := mustRepo(t, 20)
	d := New(repo)

	_, err := d.Design(context.Background(), MinBlocks-1, 1)
	assert.Error(t, err)

	_, err = d.Design(context.Background(), MaxBlocks+1, 1)
	assert.Error(t, err)
}

func TestDesignSmallPoolStillDesigns(t *testing.T) {
	// A pool at exactly the StatementRepository's coverage floor
	// (statements.MinPerDimension) must still produce valid blocks.
	repo := mustRepo(t, statements.MinPerDimension)
	d := New(repo)

	result, err := d.Design(context.Background(), MinBlocks, 1)
	require.NoError(t, err)
	require.Len(t, result.Blocks, MinBlocks)
	for _, block := range result.Blocks {
		assert.NoError(t, block.Validate())
	}
}
