package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strengthlab/quartet/internal/apperr"
	"github.com/strengthlab/quartet/internal/model"
)

func newTestSession(id string) model.Session {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.Session{
		SessionID: id,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
		Status:    model.Pending,
		Seed:      7,
		Blocks: []model.QuartetBlock{
			{BlockID: "b1", Index: 1, Statements: [4]model.Statement{
				{ID: "T1-00", Dimension: model.T1, Text: "x", SocialDesirability: 4, FactorLoading: 0.5},
				{ID: "T2-00", Dimension: model.T2, Text: "x", SocialDesirability: 4, FactorLoading: 0.5},
				{ID: "T3-00", Dimension: model.T3, Text: "x", SocialDesirability: 4, FactorLoading: 0.5},
				{ID: "T4-00", Dimension: model.T4, Text: "x", SocialDesirability: 4, FactorLoading: 0.5},
			}},
		},
	}
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.GetSession(ctx, "missing")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))

	session := newTestSession("s1")
	require.NoError(t, s.CreateSession(ctx, session))

	err = s.CreateSession(ctx, session)
	require.Error(t, err)

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.Pending, got.Status)
	assert.Len(t, got.Blocks, 1)

	resp := model.BlockResponse{BlockIndex: 1, MostLikeIndex: 0, LeastLikeIndex: 1}
	updated, err := s.AppendResponse(ctx, "s1", resp)
	require.NoError(t, err)
	assert.Equal(t, model.InProgress, updated.Status)
	require.Len(t, updated.Responses, 1)
	assert.Equal(t, resp, updated.Responses[0])

	result := model.ScoreResult{AlgorithmVersion: "1.0.0", CalibrationVersion: "uncalibrated"}
	completed, err := s.CompleteSession(ctx, "s1", result)
	require.NoError(t, err)
	assert.Equal(t, model.Completed, completed.Status)
	require.NotNil(t, completed.Result)
	assert.Equal(t, "1.0.0", completed.Result.AlgorithmVersion)
}

func TestMemStore(t *testing.T) {
	testStore(t, NewMemStore())
}
