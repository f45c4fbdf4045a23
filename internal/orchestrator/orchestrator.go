// Package orchestrator implements the ScoringOrchestrator (spec §4.9):
// the public contract of the core, wiring BlockDesigner → SessionStore →
// ResponseValidator → IRTScorer → NormativeTransformer → DomainAggregator
// → TierClassifier → ArchetypeMapper into the four synchronous operations
// create_session, submit_responses, get_session and get_result.
package orchestrator

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/strengthlab/quartet/internal/apperr"
	"github.com/strengthlab/quartet/internal/blockdesign"
	"github.com/strengthlab/quartet/internal/calibration"
	"github.com/strengthlab/quartet/internal/domaggregate"
	"github.com/strengthlab/quartet/internal/irt"
	"github.com/strengthlab/quartet/internal/model"
	"github.com/strengthlab/quartet/internal/normative"
	"github.com/strengthlab/quartet/internal/sessionstore"
	"github.com/strengthlab/quartet/internal/tier"
	"github.com/strengthlab/quartet/internal/validate"
)

var tracer = otel.Tracer("quartet/orchestrator")

// Config holds the orchestrator's tunable parameters, all sourced from
// §6 configuration.
type Config struct {
	SessionTTL             time.Duration
	IRTTolerance           float64
	IRTMaxIterations       int
	SuspiciousResponseTime validate.SuspiciousResponseTime
}

// DefaultConfig returns the spec's suggested defaults.
func DefaultConfig() Config {
	return Config{
		SessionTTL:       2 * time.Hour,
		IRTTolerance:     1e-6,
		IRTMaxIterations: 200,
	}
}

// Orchestrator is the core's single public entry point.
type Orchestrator struct {
	designer     *blockdesign.Designer
	store        sessionstore.Store
	validator    *validate.Validator
	scorer       *irt.Scorer
	transformer  *normative.Transformer
	aggregator   *domaggregate.Aggregator
	archetypes   *tier.ArchetypeMapper
	bundle       *calibration.Bundle
	cfg          Config
	logger       *slog.Logger
	now          func() time.Time
	newSessionID func() string
	newBlockID   func() string

	// submitLocks linearizes the GetSession -> validate -> score ->
	// AppendResponse -> CompleteSession sequence per session_id, so two
	// concurrent submit_responses calls for the same session can't both
	// pass validation before either has completed the session (§5
	// concurrency: the second call either observes a fully completed
	// session and fails already-completed, or never overlaps at all).
	submitLocks sync.Map // map[string]*sync.Mutex
}

// lockFor returns the mutex guarding sessionID's submit_responses critical
// section, creating it on first use. Entries are never removed; the spec's
// sessions are short-lived (hours) and bounded by the store's own lifetime,
// so the map's steady-state size tracks live-plus-recent session count.
func (o *Orchestrator) lockFor(sessionID string) *sync.Mutex {
	v, _ := o.submitLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// New builds an Orchestrator. logger may be nil, in which case slog.Default
// is used.
func New(designer *blockdesign.Designer, store sessionstore.Store, bundle *calibration.Bundle, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		designer:     designer,
		store:        store,
		validator:    validate.New(cfg.SuspiciousResponseTime),
		scorer:       irt.New(cfg.IRTTolerance, cfg.IRTMaxIterations),
		transformer:  normative.New(bundle),
		aggregator:   domaggregate.New(),
		archetypes:   tier.NewArchetypeMapper(bundle),
		bundle:       bundle,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		newSessionID: uuid.NewString,
		newBlockID:   uuid.NewString,
	}
}

// CreateSession designs a new block sequence and persists a PENDING
// session (§4.9 create_session).
func (o *Orchestrator) CreateSession(ctx context.Context, blockCount int, seed *int64) (model.Session, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.create_session",
		trace.WithAttributes(attribute.Int("block_count", blockCount)))
	defer span.End()

	sessionID := o.newSessionID()
	var effectiveSeed int64
	if seed != nil {
		effectiveSeed = *seed
	} else {
		effectiveSeed = defaultSeed(sessionID)
	}

	result, err := o.designer.Design(ctx, blockCount, effectiveSeed)
	if err != nil {
		return model.Session{}, err
	}
	for i := range result.Blocks {
		result.Blocks[i].BlockID = o.newBlockID()
	}

	now := o.now()
	session := model.Session{
		SessionID: sessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(o.cfg.SessionTTL),
		Status:    model.Pending,
		Blocks:    result.Blocks,
		Seed:      effectiveSeed,
	}

	if err := o.store.CreateSession(ctx, session); err != nil {
		return model.Session{}, err
	}

	o.logger.Info("session created", "session_id", session.SessionID, "block_count", blockCount)
	return session, nil
}

// defaultSeed derives a seed from the new session's id (FNV-64a hash) when
// the caller doesn't supply one, so create_session without a seed still
// gets a varied design that is reproducible from the session id, without
// needing a package-level PRNG (Design Notes §9: no global mutable state).
func defaultSeed(sessionID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	return int64(h.Sum64())
}

// SubmitResponses validates and scores responses for a session, persists
// the result, and transitions the session to COMPLETED (§4.9
// submit_responses).
func (o *Orchestrator) SubmitResponses(ctx context.Context, sessionID string, responses []model.BlockResponse) (model.ScoreResult, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.submit_responses",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	lock := o.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return model.ScoreResult{}, err
	}

	now := o.now()
	validation, err := o.validator.Validate(session, responses, now)
	if err != nil {
		return model.ScoreResult{}, err
	}

	estimate := o.scorer.Fit(session.Blocks, responses, priorVarianceMap(o.bundle))

	dimensionScores := make(map[model.Dimension]model.DimensionScore, len(model.Dimensions))
	for _, dim := range model.Dimensions {
		theta := estimate.Theta[dim]
		tScore, percentile := o.transformer.Transform(dim, theta)
		dimensionScores[dim] = model.DimensionScore{
			Dimension:  dim,
			Theta:      theta,
			TScore:     tScore,
			Percentile: percentile,
		}
	}

	domains, balance := o.aggregator.Aggregate(dimensionScores)

	tiers, grouped := tier.Classify(dimensionScores)
	for dim, t := range tiers {
		score := dimensionScores[dim]
		score.Tier = t
		dimensionScores[dim] = score
	}

	archetype := o.archetypes.Map(grouped.Dominant)

	warnings := validation.Warnings
	// The designer's limited-coverage warning is not stored on the session,
	// so the same block_count < 12 condition is re-checked here.
	if len(session.Blocks) < len(model.Dimensions) {
		warnings = append(warnings, model.Warning{
			Kind:    "limited-coverage",
			Message: "block_count is small; dimension exposure balance is based on a small sample",
		})
	}
	if estimate.Degraded {
		warnings = append(warnings, model.Warning{
			Kind:    "degraded-scoring",
			Message: "IRT optimizer did not converge within budget; returning the tally-based fallback estimate",
		})
	}

	result := model.ScoreResult{
		Dimensions:         dimensionScores,
		Domains:            domains,
		Balance:            balance,
		Tiers:              grouped,
		Archetype:          archetype,
		Confidence:         estimate.Confidence,
		AlgorithmVersion:   o.bundle.AlgorithmVersion,
		CalibrationVersion: o.bundle.CalibrationVersion,
		ComputedAt:         now,
		Warnings:           warnings,
	}

	for _, r := range responses {
		if _, err := o.store.AppendResponse(ctx, sessionID, r); err != nil {
			return model.ScoreResult{}, err
		}
	}
	updated, err := o.store.CompleteSession(ctx, sessionID, result)
	if err != nil {
		return model.ScoreResult{}, err
	}

	o.logger.Info("session scored", "session_id", sessionID, "archetype", archetype.ID, "confidence", estimate.Confidence)
	return *updated.Result, nil
}

// GetSession is the read path for rendering session state (§4.9
// get_session).
func (o *Orchestrator) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	session.Status = session.EffectiveStatus(o.now())
	return session, nil
}

// GetResult is the read path for results (§4.9 get_result).
func (o *Orchestrator) GetResult(ctx context.Context, sessionID string) (model.ScoreResult, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return model.ScoreResult{}, err
	}

	switch session.EffectiveStatus(o.now()) {
	case model.Completed:
		return *session.Result, nil
	case model.Expired:
		return model.ScoreResult{}, apperr.New(apperr.Expired, "session %s expired without completion", sessionID)
	default:
		return model.ScoreResult{}, apperr.New(apperr.NotFound, "session %s has no result yet", sessionID)
	}
}

func priorVarianceMap(bundle *calibration.Bundle) map[model.Dimension]float64 {
	out := make(map[model.Dimension]float64, len(model.Dimensions))
	for _, d := range model.Dimensions {
		out[d] = bundle.PriorVarianceOf(d)
	}
	return out
}
