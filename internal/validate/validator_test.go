package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strengthlab/quartet/internal/apperr"
	"github.com/strengthlab/quartet/internal/model"
)

func fullCoverageSession() model.Session {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var blocks []model.QuartetBlock
	// Build blocks of 4 consecutive dimensions (wrapping), 3 per dimension
	// via 3 rotations, giving every dimension coverage of 3.
	for rot := 0; rot < 3; rot++ {
		for start := 0; start < 12; start += 4 {
			var stmts [4]model.Statement
			for slot := 0; slot < 4; slot++ {
				dim := model.Dimensions[(start+slot+rot)%12]
				stmts[slot] = model.Statement{ID: string(dim) + "-" + rotLabel(rot, start, slot), Dimension: dim, Text: "x", SocialDesirability: 4, FactorLoading: 0.5}
			}
			blocks = append(blocks, model.QuartetBlock{BlockID: rotLabel(rot, start, 0), Index: len(blocks) + 1, Statements: stmts})
		}
	}
	return model.Session{
		SessionID: "s1",
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
		Status:    model.InProgress,
		Blocks:    blocks,
	}
}

func rotLabel(rot, start, slot int) string {
	return string(rune('a'+rot)) + string(rune('A'+start)) + string(rune('0'+slot))
}

func TestValidateRejectsExpired(t *testing.T) {
	session := fullCoverageSession()
	session.ExpiresAt = session.CreatedAt.Add(-time.Hour)

	v := New(SuspiciousResponseTime{})
	_, err := v.Validate(session, nil, time.Now())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Expired))
}

func TestValidateRejectsAlreadyCompleted(t *testing.T) {
	session := fullCoverageSession()
	session.Status = model.Completed

	v := New(SuspiciousResponseTime{})
	_, err := v.Validate(session, nil, time.Now())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.AlreadyCompleted))
}

func TestValidateRejectsUnknownBlockIndex(t *testing.T) {
	session := fullCoverageSession()
	v := New(SuspiciousResponseTime{})

	_, err := v.Validate(session, []model.BlockResponse{{BlockIndex: 999, MostLikeIndex: 0, LeastLikeIndex: 1}}, session.CreatedAt)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidParameter))
}

func TestValidateRejectsDuplicateBlockIndex(t *testing.T) {
	session := fullCoverageSession()
	v := New(SuspiciousResponseTime{})

	responses := []model.BlockResponse{
		{BlockIndex: 1, MostLikeIndex: 0, LeastLikeIndex: 1},
		{BlockIndex: 1, MostLikeIndex: 2, LeastLikeIndex: 3},
	}
	_, err := v.Validate(session, responses, session.CreatedAt)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidParameter))
}

func TestValidateRejectsMostEqualsLeast(t *testing.T) {
	session := fullCoverageSession()
	v := New(SuspiciousResponseTime{})

	_, err := v.Validate(session, []model.BlockResponse{{BlockIndex: 1, MostLikeIndex: 2, LeastLikeIndex: 2}}, session.CreatedAt)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidParameter))
}

func TestValidateInsufficientCoverage(t *testing.T) {
	session := fullCoverageSession()
	v := New(SuspiciousResponseTime{})

	// Only answer the first block: far short of 3-per-dimension coverage.
	_, err := v.Validate(session, []model.BlockResponse{{BlockIndex: 1, MostLikeIndex: 0, LeastLikeIndex: 1}}, session.CreatedAt)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InsufficientCoverage))
}

func TestValidateFullCoveragePasses(t *testing.T) {
	session := fullCoverageSession()
	v := New(SuspiciousResponseTime{})

	var responses []model.BlockResponse
	for _, b := range session.Blocks {
		responses = append(responses, model.BlockResponse{BlockIndex: b.Index, MostLikeIndex: 0, LeastLikeIndex: 1})
	}
	result, err := v.Validate(session, responses, session.CreatedAt)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
}

func TestValidateSuspiciousResponseTime(t *testing.T) {
	session := fullCoverageSession()
	v := New(SuspiciousResponseTime{MinMs: 200, MaxMs: 60000})

	var responses []model.BlockResponse
	for i, b := range session.Blocks {
		ms := 1000
		if i == 0 {
			ms = 5 // too fast
		}
		responses = append(responses, model.BlockResponse{BlockIndex: b.Index, MostLikeIndex: 0, LeastLikeIndex: 1, ResponseTimeMs: &ms})
	}
	result, err := v.Validate(session, responses, session.CreatedAt)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "suspicious-response-time", result.Warnings[0].Kind)
}
