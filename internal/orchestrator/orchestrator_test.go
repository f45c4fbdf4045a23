package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strengthlab/quartet/internal/apperr"
	"github.com/strengthlab/quartet/internal/blockdesign"
	"github.com/strengthlab/quartet/internal/calibration"
	"github.com/strengthlab/quartet/internal/model"
	"github.com/strengthlab/quartet/internal/sessionstore"
	"github.com/strengthlab/quartet/internal/statements"
)

func wideRepo(t *testing.T) *statements.Repository {
	t.Helper()
	var b strings.Builder
	b.WriteString("statement_id,dimension,text,social_desirability,factor_loading\n")
	for _, dim := range model.Dimensions {
		for i := 0; i < 20; i++ {
			sd := 3.0 + 2.0*float64(i)/19.0
			fmt.Fprintf(&b, "%s-%02d,%s,statement text,%.2f,0.8\n", dim, i, dim, sd)
		}
	}
	repo, err := statements.Load(strings.NewReader(b.String()))
	require.NoError(t, err)
	return repo
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	repo := wideRepo(t)
	designer := blockdesign.New(repo)
	store := sessionstore.NewMemStore()
	bundle := calibration.Uncalibrated("test")
	return New(designer, store, bundle, DefaultConfig(), nil)
}

// answerFavoring answers every block in the session, picking the `favor`
// dimension's slot as most-like and the `against` dimension's slot as
// least-like when present, or the block's first/second slot otherwise.
func answerFavoring(session model.Session, favor, against model.Dimension) []model.BlockResponse {
	var responses []model.BlockResponse
	for _, block := range session.Blocks {
		most, least := 0, 1
		for i, s := range block.Statements {
			if s.Dimension == favor {
				most = i
			}
			if s.Dimension == against {
				least = i
			}
		}
		if most == least {
			least = (most + 1) % 4
		}
		responses = append(responses, model.BlockResponse{BlockIndex: block.Index, MostLikeIndex: most, LeastLikeIndex: least})
	}
	return responses
}

func TestCreateSessionReturnsBlocks(t *testing.T) {
	o := newTestOrchestrator(t)
	seed := int64(42)
	session, err := o.CreateSession(context.Background(), 30, &seed)
	require.NoError(t, err)
	assert.Len(t, session.Blocks, 30)
	assert.Equal(t, model.Pending, session.Status)
	assert.NotEmpty(t, session.SessionID)
}

func TestSubmitResponsesExecutingDominant(t *testing.T) {
	o := newTestOrchestrator(t)
	seed := int64(1)
	session, err := o.CreateSession(context.Background(), 30, &seed)
	require.NoError(t, err)

	responses := answerFavoring(session, model.T1, model.T10)
	result, err := o.SubmitResponses(context.Background(), session.SessionID, responses)
	require.NoError(t, err)

	assert.Greater(t, result.Dimensions[model.T1].Theta, result.Dimensions[model.T10].Theta)
	assert.NotEmpty(t, result.Archetype.ID)
}

func TestSubmitResponsesUniformAssignsArchetype(t *testing.T) {
	o := newTestOrchestrator(t)
	seed := int64(2)
	session, err := o.CreateSession(context.Background(), 30, &seed)
	require.NoError(t, err)

	var responses []model.BlockResponse
	for _, block := range session.Blocks {
		responses = append(responses, model.BlockResponse{BlockIndex: block.Index, MostLikeIndex: 0, LeastLikeIndex: 1})
	}
	result, err := o.SubmitResponses(context.Background(), session.SessionID, responses)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Archetype.ID)
}

func TestSubmitResponsesIncompleteSessionFails(t *testing.T) {
	o := newTestOrchestrator(t)
	seed := int64(3)
	session, err := o.CreateSession(context.Background(), 30, &seed)
	require.NoError(t, err)

	responses := []model.BlockResponse{{BlockIndex: session.Blocks[0].Index, MostLikeIndex: 0, LeastLikeIndex: 1}}
	_, err = o.SubmitResponses(context.Background(), session.SessionID, responses)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InsufficientCoverage))
}

func TestSubmitResponsesExpiredSessionFails(t *testing.T) {
	o := newTestOrchestrator(t)
	seed := int64(4)
	session, err := o.CreateSession(context.Background(), 30, &seed)
	require.NoError(t, err)

	o.now = func() time.Time { return session.ExpiresAt.Add(time.Hour) }

	responses := answerFavoring(session, model.T1, model.T10)
	_, err = o.SubmitResponses(context.Background(), session.SessionID, responses)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Expired))
}

func TestSubmitResponsesDoubleSubmitFails(t *testing.T) {
	o := newTestOrchestrator(t)
	seed := int64(5)
	session, err := o.CreateSession(context.Background(), 30, &seed)
	require.NoError(t, err)

	responses := answerFavoring(session, model.T1, model.T10)
	_, err = o.SubmitResponses(context.Background(), session.SessionID, responses)
	require.NoError(t, err)

	_, err = o.SubmitResponses(context.Background(), session.SessionID, responses)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.AlreadyCompleted))
}

// TestSubmitResponsesConcurrentSubmitLinearizes fires many simultaneous
// submit_responses calls for the same session_id and checks that exactly
// one succeeds; every other goroutine must observe already-completed
// rather than a corrupted or silently-overwritten result (§5 concurrency).
func TestSubmitResponsesConcurrentSubmitLinearizes(t *testing.T) {
	o := newTestOrchestrator(t)
	seed := int64(7)
	session, err := o.CreateSession(context.Background(), 30, &seed)
	require.NoError(t, err)

	responses := answerFavoring(session, model.T1, model.T10)

	const workers = 16
	var wg sync.WaitGroup
	results := make([]error, workers)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, results[i] = o.SubmitResponses(context.Background(), session.SessionID, responses)
		}(i)
	}
	wg.Wait()

	var successes, alreadyCompleted int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case apperr.Is(err, apperr.AlreadyCompleted):
			alreadyCompleted++
		default:
			t.Fatalf("unexpected error from concurrent submit: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, alreadyCompleted)

	result, err := o.GetResult(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Archetype.ID)
}

func TestGetResultNotFoundBeforeSubmit(t *testing.T) {
	o := newTestOrchestrator(t)
	seed := int64(6)
	session, err := o.CreateSession(context.Background(), 30, &seed)
	require.NoError(t, err)

	_, err = o.GetResult(context.Background(), session.SessionID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestGetResultAfterSubmit(t *testing.T) {
	o := newTestOrchestrator(t)
	seed := int64(7)
	session, err := o.CreateSession(context.Background(), 30, &seed)
	require.NoError(t, err)

	responses := answerFavoring(session, model.T1, model.T10)
	_, err = o.SubmitResponses(context.Background(), session.SessionID, responses)
	require.NoError(t, err)

	result, err := o.GetResult(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Archetype.ID)
}
