// Package quartet is the public API for embedding the forced-choice
// assessment engine (§4.9 ScoringOrchestrator, §6 Core API).
//
// Programmatic consumers import this package to construct and run the
// engine without forking it:
//
//	eng, err := quartet.New(
//	    quartet.WithStatementPoolPath("statements.csv"),
//	    quartet.WithLogger(logger),
//	    quartet.WithResultHook(myAnalyticsHook{}),
//	)
//	if err != nil { ... }
//	if err := eng.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: quartet (root) imports
// internal/*, but internal/* never imports quartet (root). Public types
// (Block, Result, etc.) are standalone structs with no internal imports;
// conversion helpers live here because this is the only file that sees
// both sides of the boundary.
package quartet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/strengthlab/quartet/internal/apperr"
	"github.com/strengthlab/quartet/internal/blockdesign"
	"github.com/strengthlab/quartet/internal/calibration"
	"github.com/strengthlab/quartet/internal/config"
	"github.com/strengthlab/quartet/internal/model"
	"github.com/strengthlab/quartet/internal/orchestrator"
	"github.com/strengthlab/quartet/internal/sessionstore"
	"github.com/strengthlab/quartet/internal/statements"
	"github.com/strengthlab/quartet/internal/telemetry"
	"github.com/strengthlab/quartet/internal/transport"
	"github.com/strengthlab/quartet/migrations"
)

// Engine is the assessment server lifecycle. Construct with New(), run
// with Run(), or call CreateSession/SubmitResponses/GetResult directly to
// embed the scoring pipeline without the HTTP layer.
type Engine struct {
	cfg          config.Config
	orch         *orchestrator.Orchestrator
	store        sessionstore.Store
	srv          *transport.Server
	otelShutdown telemetry.Shutdown
	resultHooks  []ResultHook
	logger       *slog.Logger
	version      string
}

// New loads the statement pool and (optional) calibration bundle, wires
// the session store and orchestrator, and returns a ready-to-run Engine.
// It does NOT start any goroutines or accept HTTP connections — call Run()
// or use CreateSession/SubmitResponses/GetResult directly.
func New(opts ...Option) (*Engine, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.LoadEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.statementPoolPath != "" {
		cfg.StatementPoolPath = o.statementPoolPath
	}
	if o.calibrationPath != "" {
		cfg.CalibrationPath = o.calibrationPath
	}
	if o.sqliteDSN != "" {
		cfg.SQLiteDSN = o.sqliteDSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("quartet starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure, cfg.CalibrationPath != "")
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	pool, err := loadStatementPool(cfg.StatementPoolPath)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("statement pool: %w", err)
	}

	bundle, err := loadCalibrationBundle(cfg.CalibrationPath)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("calibration: %w", err)
	}
	if bundle.IsUncalibrated() {
		logger.Warn("calibration: running uncalibrated", "reason", "QUARTET_CALIBRATION not set — t-scores and percentiles use N(0,1) norms")
	}

	store, err := newSessionStore(context.Background(), cfg.SQLiteDSN, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("session store: %w", err)
	}

	designer := blockdesign.New(pool)
	orch := orchestrator.New(designer, store, bundle, buildOrchestratorConfig(cfg), logger)

	srv := transport.New(transport.ServerConfig{
		Orchestrator:        orch,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		DefaultBlockCount:   cfg.DefaultBlockCount,
	})

	return &Engine{
		cfg:          cfg,
		orch:         orch,
		store:        store,
		srv:          srv,
		otelShutdown: otelShutdown,
		resultHooks:  o.resultHooks,
		logger:       logger,
		version:      version,
	}, nil
}

func buildOrchestratorConfig(cfg config.Config) orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.SessionTTL = cfg.SessionTTL
	oc.IRTTolerance = cfg.IRTTolerance
	oc.IRTMaxIterations = cfg.IRTMaxIterations
	oc.SuspiciousResponseTime.MinMs = cfg.SuspiciousResponseTimeMinMs
	oc.SuspiciousResponseTime.MaxMs = cfg.SuspiciousResponseTimeMaxMs
	return oc
}

func loadStatementPool(path string) (*statements.Repository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return statements.Load(f)
}

func loadCalibrationBundle(path string) (*calibration.Bundle, error) {
	if path == "" {
		return calibration.Uncalibrated("quartet-1"), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return calibration.Load(f)
}

func newSessionStore(ctx context.Context, dsn string, logger *slog.Logger) (sessionstore.Store, error) {
	if dsn == ":memory:" || dsn == "" {
		return sessionstore.NewMemStore(), nil
	}
	return sessionstore.OpenSQLiteStore(ctx, dsn, migrations.FS, logger)
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically —
// callers should not call Shutdown separately.
func (e *Engine) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = e.Shutdown(context.Background())
		return err
	}

	return e.Shutdown(context.Background())
}

// Shutdown gracefully stops accepting HTTP requests, drains in-flight
// requests, then closes the session store and OTEL provider.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.logger.Info("quartet shutting down")

	if err := e.srv.Shutdown(ctx); err != nil {
		e.logger.Error("http shutdown error", "error", err)
	}
	if err := e.store.Close(); err != nil {
		e.logger.Error("session store close error", "error", err)
	}
	_ = e.otelShutdown(context.Background())

	e.logger.Info("quartet stopped")
	return nil
}

// CreateSession designs a new block sequence for blockCount blocks and
// returns it as a public Session. Pass seed=nil for a seed derived from
// the new session's id.
func (e *Engine) CreateSession(ctx context.Context, blockCount int, seed *int64) (Session, error) {
	session, err := e.orch.CreateSession(ctx, blockCount, seed)
	if err != nil {
		return Session{}, err
	}
	return toPublicSession(session), nil
}

// SubmitResponses scores a session's responses, keyed by block_id, and
// fires any registered ResultHooks asynchronously on success.
func (e *Engine) SubmitResponses(ctx context.Context, sessionID string, responses []Response) (Result, error) {
	session, err := e.orch.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	indexByBlockID := make(map[string]int, len(session.Blocks))
	for _, b := range session.Blocks {
		indexByBlockID[b.BlockID] = b.Index
	}

	internalResponses := make([]model.BlockResponse, len(responses))
	for i, r := range responses {
		idx, ok := indexByBlockID[r.BlockID]
		if !ok {
			return Result{}, apperr.New(apperr.InvalidParameter, "unknown block_id: %s", r.BlockID)
		}
		internalResponses[i] = model.BlockResponse{
			BlockIndex:     idx,
			MostLikeIndex:  r.MostLikeIndex,
			LeastLikeIndex: r.LeastLikeIndex,
			ResponseTimeMs: r.ResponseTimeMs,
		}
	}

	scoreResult, err := e.orch.SubmitResponses(ctx, sessionID, internalResponses)
	if err != nil {
		return Result{}, err
	}

	result := toPublicResult(sessionID, scoreResult)
	e.fireResultHooks(result)
	return result, nil
}

// GetResult returns the scored Result for a completed session.
func (e *Engine) GetResult(ctx context.Context, sessionID string) (Result, error) {
	scoreResult, err := e.orch.GetResult(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	return toPublicResult(sessionID, scoreResult), nil
}

func (e *Engine) fireResultHooks(result Result) {
	if len(e.resultHooks) == 0 {
		return
	}
	hooks := e.resultHooks
	logger := e.logger
	go func() {
		hookCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, h := range hooks {
			if err := h.OnScored(hookCtx, result); err != nil {
				logger.Warn("result hook failed", "error", err, "session_id", result.SessionID)
			}
		}
	}()
}

// ── Type converters ─────────────────────────────────────────────────────

func toPublicSession(session model.Session) Session {
	blocks := make([]Block, len(session.Blocks))
	for i, b := range session.Blocks {
		stmts := make([]Statement, len(b.Statements))
		for j, s := range b.Statements {
			stmts[j] = Statement{ID: s.ID, Text: s.Text, Dimension: string(s.Dimension)}
		}
		blocks[i] = Block{BlockID: b.BlockID, Statements: stmts}
	}
	return Session{SessionID: session.SessionID, Blocks: blocks}
}

func toPublicResult(sessionID string, r model.ScoreResult) Result {
	dims := make(map[string]DimensionScore, len(r.Dimensions))
	for dim, ds := range r.Dimensions {
		dims[string(dim)] = DimensionScore{
			Dimension:  string(ds.Dimension),
			Theta:      ds.Theta,
			TScore:     ds.TScore,
			Percentile: ds.Percentile,
			Tier:       string(ds.Tier),
		}
	}
	domains := make(map[string]DomainBalance, len(r.Domains))
	for dom, bal := range r.Domains {
		domains[string(dom)] = DomainBalance{Domain: string(bal.Domain), MeanPercentile: bal.MeanPercentile}
	}
	var warnings []Warning
	for _, w := range r.Warnings {
		warnings = append(warnings, Warning{Kind: string(w.Kind), Message: w.Message})
	}
	return Result{
		SessionID:  sessionID,
		Dimensions: dims,
		Domains:    domains,
		Balance: BalanceIndicators{
			DBI:             r.Balance.DBI,
			RelativeEntropy: r.Balance.RelativeEntropy,
			Gini:            r.Balance.GiniComplement,
		},
		Tiers: Tiers{
			Dominant:   dimensionsToStrings(r.Tiers.Dominant),
			Supporting: dimensionsToStrings(r.Tiers.Supporting),
			Lesser:     dimensionsToStrings(r.Tiers.Lesser),
		},
		Archetype:          Archetype{ID: r.Archetype.ID, Label: r.Archetype.Label, RuleID: r.Archetype.RuleID},
		Confidence:         r.Confidence,
		AlgorithmVersion:   r.AlgorithmVersion,
		CalibrationVersion: r.CalibrationVersion,
		ComputedAt:         r.ComputedAt,
		Warnings:           warnings,
	}
}

func dimensionsToStrings(dims []model.Dimension) []string {
	out := make([]string, len(dims))
	for i, d := range dims {
		out[i] = string(d)
	}
	return out
}
