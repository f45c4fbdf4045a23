// Handlers binds the orchestrator's four operations to the §6 Core API
// surface. Grounded on the teacher's internal/server/handlers.go: request
// decode → call the domain layer → encode response, with apperr.Kind
// mapped to an HTTP status in one place (errorStatus).
package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/strengthlab/quartet/internal/apperr"
	"github.com/strengthlab/quartet/internal/model"
	"github.com/strengthlab/quartet/internal/orchestrator"
)

// Handlers holds the HTTP handler dependencies: the orchestrator and the
// request-body size limit applied to every decode.
type Handlers struct {
	orch              *orchestrator.Orchestrator
	maxBodyBytes      int64
	defaultBlockCount int
	startedAt         time.Time
}

// NewHandlers builds a Handlers bound to orch. defaultBlockCount is used for
// POST /v1/blocks requests that omit block_count; callers should pass
// config.Config.DefaultBlockCount.
func NewHandlers(orch *orchestrator.Orchestrator, maxBodyBytes int64, defaultBlockCount int) *Handlers {
	return &Handlers{orch: orch, maxBodyBytes: maxBodyBytes, defaultBlockCount: defaultBlockCount, startedAt: time.Now()}
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime_seconds"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthResponse{
		Status: "healthy",
		Uptime: int64(time.Since(h.startedAt).Seconds()),
	})
}

type statementDTO struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Dimension string `json:"dimension"`
}

type blockDTO struct {
	BlockID    string         `json:"block_id"`
	Statements []statementDTO `json:"statements"`
}

type createBlocksRequest struct {
	BlockCount *int   `json:"block_count,omitempty"`
	Seed       *int64 `json:"seed,omitempty"`
}

type createBlocksResponse struct {
	SessionID    string     `json:"session_id"`
	Blocks       []blockDTO `json:"blocks"`
	TotalBlocks  int        `json:"total_blocks"`
	Instructions string     `json:"instructions"`
}

const blockInstructions = "Each block presents four statements. Choose the one that is MOST like you and the one that is LEAST like you."

// HandleCreateBlocks handles POST /v1/blocks (§4.9 create_session, §6).
func (h *Handlers) HandleCreateBlocks(w http.ResponseWriter, r *http.Request) {
	var req createBlocksRequest
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid-parameter", "invalid request body")
		return
	}

	blockCount := h.defaultBlockCount
	if req.BlockCount != nil {
		blockCount = *req.BlockCount
	}

	session, err := h.orch.CreateSession(r.Context(), blockCount, req.Seed)
	if err != nil {
		writeOrchError(w, r, err)
		return
	}

	blocks := make([]blockDTO, len(session.Blocks))
	for i, b := range session.Blocks {
		stmts := make([]statementDTO, len(b.Statements))
		for j, s := range b.Statements {
			stmts[j] = statementDTO{ID: s.ID, Text: s.Text, Dimension: string(s.Dimension)}
		}
		blocks[i] = blockDTO{BlockID: b.BlockID, Statements: stmts}
	}

	writeJSON(w, r, http.StatusCreated, createBlocksResponse{
		SessionID:    session.SessionID,
		Blocks:       blocks,
		TotalBlocks:  len(blocks),
		Instructions: blockInstructions,
	})
}

type responseDTO struct {
	BlockID        string `json:"block_id"`
	MostLikeIndex  int    `json:"most_like_index"`
	LeastLikeIndex int    `json:"least_like_index"`
	ResponseTimeMs *int   `json:"response_time_ms,omitempty"`
}

type submitRequest struct {
	SessionID             string        `json:"session_id"`
	Responses             []responseDTO `json:"responses"`
	CompletionTimeSeconds *int          `json:"completion_time_seconds,omitempty"`
}

type submitResponse struct {
	SessionID string             `json:"session_id"`
	Scores    map[string]float64 `json:"scores"`
	Status    string             `json:"status"`
	Message   string             `json:"message"`
}

// HandleSubmitResponses handles POST /v1/submit (§4.9 submit_responses, §6).
// The public payload keys responses by block_id, the stable identifier
// across the create/submit boundary; the orchestrator works in terms of
// the 1-based BlockIndex assigned at design time, so this handler
// translates between the two using the session's own block list.
func (h *Handlers) HandleSubmitResponses(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid-parameter", "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid-parameter", "session_id is required")
		return
	}

	session, err := h.orch.GetSession(r.Context(), req.SessionID)
	if err != nil {
		writeOrchError(w, r, err)
		return
	}

	indexByBlockID := make(map[string]int, len(session.Blocks))
	for _, b := range session.Blocks {
		indexByBlockID[b.BlockID] = b.Index
	}

	responses := make([]model.BlockResponse, len(req.Responses))
	for i, rd := range req.Responses {
		idx, ok := indexByBlockID[rd.BlockID]
		if !ok {
			writeError(w, r, http.StatusBadRequest, "invalid-parameter", "unknown block_id: "+rd.BlockID)
			return
		}
		responses[i] = model.BlockResponse{
			BlockIndex:     idx,
			MostLikeIndex:  rd.MostLikeIndex,
			LeastLikeIndex: rd.LeastLikeIndex,
			ResponseTimeMs: rd.ResponseTimeMs,
		}
	}

	result, err := h.orch.SubmitResponses(r.Context(), req.SessionID, responses)
	if err != nil {
		writeOrchError(w, r, err)
		return
	}

	scores := make(map[string]float64, len(result.Dimensions))
	for dim, ds := range result.Dimensions {
		scores[string(dim)] = ds.TScore
	}

	writeJSON(w, r, http.StatusOK, submitResponse{
		SessionID: req.SessionID,
		Scores:    scores,
		Status:    "completed",
		Message:   "responses scored",
	})
}

type domainDTO struct {
	MeanPercentile float64 `json:"mean_percentile"`
}

type balanceDTO struct {
	DBI             float64 `json:"dbi"`
	RelativeEntropy float64 `json:"relative_entropy"`
	Gini            float64 `json:"gini"`
}

type archetypeDTO struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	RuleID string `json:"rule_id"`
}

type tiersDTO struct {
	Dominant   []string `json:"dominant"`
	Supporting []string `json:"supporting"`
	Lesser     []string `json:"lesser"`
}

type provenanceDTO struct {
	AlgorithmVersion   string    `json:"algorithm_version"`
	CalibrationVersion string    `json:"calibration_version"`
	ComputedAt         time.Time `json:"computed_at"`
}

type warningDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type resultResponse struct {
	SessionID     string               `json:"session_id"`
	ThetaScores   map[string]float64   `json:"theta_scores"`
	TScores       map[string]float64   `json:"t_scores"`
	Percentiles   map[string]float64   `json:"percentiles"`
	DimensionTier map[string]string    `json:"dimension_tiers"`
	Tiers         tiersDTO             `json:"tiers"`
	Domains       map[string]domainDTO `json:"domains"`
	Balance       balanceDTO           `json:"balance"`
	Archetype     archetypeDTO         `json:"archetype"`
	Confidence    float64              `json:"confidence"`
	Provenance    provenanceDTO        `json:"provenance"`
	Warnings      []warningDTO         `json:"warnings,omitempty"`
}

// HandleGetResult handles GET /v1/result?session_id=... (§4.9 get_result, §6).
func (h *Handlers) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid-parameter", "session_id query parameter is required")
		return
	}

	result, err := h.orch.GetResult(r.Context(), sessionID)
	if err != nil {
		writeOrchError(w, r, err)
		return
	}

	theta := make(map[string]float64, len(result.Dimensions))
	tscore := make(map[string]float64, len(result.Dimensions))
	pct := make(map[string]float64, len(result.Dimensions))
	dimTier := make(map[string]string, len(result.Dimensions))
	for dim, ds := range result.Dimensions {
		theta[string(dim)] = ds.Theta
		tscore[string(dim)] = ds.TScore
		pct[string(dim)] = ds.Percentile
		dimTier[string(dim)] = string(ds.Tier)
	}

	domains := make(map[string]domainDTO, len(result.Domains))
	for dom, bal := range result.Domains {
		domains[string(dom)] = domainDTO{MeanPercentile: bal.MeanPercentile}
	}

	var warnings []warningDTO
	for _, wrn := range result.Warnings {
		warnings = append(warnings, warningDTO{Kind: string(wrn.Kind), Message: wrn.Message})
	}

	writeJSON(w, r, http.StatusOK, resultResponse{
		SessionID:     sessionID,
		ThetaScores:   theta,
		TScores:       tscore,
		Percentiles:   pct,
		DimensionTier: dimTier,
		Tiers: tiersDTO{
			Dominant:   dimensionsToStrings(result.Tiers.Dominant),
			Supporting: dimensionsToStrings(result.Tiers.Supporting),
			Lesser:     dimensionsToStrings(result.Tiers.Lesser),
		},
		Domains: domains,
		Balance: balanceDTO{
			DBI:             result.Balance.DBI,
			RelativeEntropy: result.Balance.RelativeEntropy,
			Gini:            result.Balance.GiniComplement,
		},
		Archetype:  archetypeDTO{ID: result.Archetype.ID, Label: result.Archetype.Label, RuleID: result.Archetype.RuleID},
		Confidence: result.Confidence,
		Provenance: provenanceDTO{
			AlgorithmVersion:   result.AlgorithmVersion,
			CalibrationVersion: result.CalibrationVersion,
			ComputedAt:         result.ComputedAt,
		},
		Warnings: warnings,
	})
}

func dimensionsToStrings(dims []model.Dimension) []string {
	out := make([]string, len(dims))
	for i, d := range dims {
		out[i] = string(d)
	}
	return out
}

// writeOrchError maps an apperr.Kind returned from the orchestrator to an
// HTTP status and writes the JSON error envelope (§7 "Surfaced to caller").
func writeOrchError(w http.ResponseWriter, r *http.Request, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "internal-error", "internal server error")
		return
	}

	status := errorStatus(kind)
	var appErr *apperr.Error
	message := err.Error()
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	writeError(w, r, status, string(kind), message)
}

func errorStatus(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidParameter:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Expired:
		return http.StatusGone
	case apperr.AlreadyCompleted:
		return http.StatusConflict
	case apperr.InsufficientCoverage, apperr.ConstraintUnsatisfiable:
		return http.StatusUnprocessableEntity
	case apperr.PoolInsufficient:
		return http.StatusServiceUnavailable
	case apperr.DegradedScoring, apperr.Uncalibrated:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
