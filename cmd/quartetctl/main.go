// Command quartetctl is a local operator tool for designing block
// sequences and scoring stored response files, satisfying the
// reproducibility requirement for calibration and regression testing
// without running the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/strengthlab/quartet"
	"github.com/strengthlab/quartet/internal/blockdesign"
	"github.com/strengthlab/quartet/internal/calibration"
	"github.com/strengthlab/quartet/internal/model"
	"github.com/strengthlab/quartet/internal/orchestrator"
	"github.com/strengthlab/quartet/internal/sessionstore"
	"github.com/strengthlab/quartet/internal/statements"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "blocks":
		err = runBlocks(os.Args[2:])
	case "score":
		err = runScore(os.Args[2:])
	case "-version", "--version", "version":
		fmt.Printf("quartetctl version %s\n", version)
		return
	case "-help", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runBlocks designs a new block sequence and prints it as a quartet.Session,
// which score later consumes verbatim via -blocks.
func runBlocks(args []string) error {
	fs := flag.NewFlagSet("blocks", flag.ExitOnError)
	pool := fs.String("pool", "", "Path to the statement pool CSV file (required)")
	count := fs.Int("count", 30, "Number of blocks to design")
	seed := fs.Int64("seed", 0, "Deterministic seed (0 = derived from the session id)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pool == "" {
		return fmt.Errorf("-pool flag is required")
	}

	eng, err := quartet.New(
		quartet.WithStatementPoolPath(*pool),
		quartet.WithSQLiteDSN(":memory:"),
	)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	var seedPtr *int64
	if *seed != 0 {
		seedPtr = seed
	}

	session, err := eng.CreateSession(context.Background(), *count, seedPtr)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return printJSON(session)
}

// runScore scores a stored blocks file against a stored responses file.
// Both files round-trip through the public quartet.Session/quartet.Response
// JSON shapes, so a blocks file produced by `blocks` (or by the HTTP
// POST /v1/blocks response body) can be replayed deterministically.
func runScore(args []string) error {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	pool := fs.String("pool", "", "Path to the statement pool CSV file (required)")
	calibrationPath := fs.String("calibration", "", "Path to the calibration YAML file (empty uses N(0,1) norms)")
	blocksPath := fs.String("blocks", "", "Path to a JSON file containing a quartet.Session (required)")
	responsesPath := fs.String("responses", "", "Path to a JSON file containing a []quartet.Response (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pool == "" || *blocksPath == "" || *responsesPath == "" {
		return fmt.Errorf("-pool, -blocks and -responses flags are all required")
	}

	var session quartet.Session
	if err := readJSONFile(*blocksPath, &session); err != nil {
		return fmt.Errorf("read blocks: %w", err)
	}
	var responses []quartet.Response
	if err := readJSONFile(*responsesPath, &responses); err != nil {
		return fmt.Errorf("read responses: %w", err)
	}

	result, err := scoreStoredSession(session, responses, *pool, *calibrationPath)
	if err != nil {
		return err
	}

	return printJSON(result)
}

// scoreStoredSession rebuilds the orchestrator's collaborators directly
// (bypassing quartet.Engine's HTTP-oriented wiring) so a blocks file can be
// replayed without the process that created it still running.
func scoreStoredSession(session quartet.Session, responses []quartet.Response, poolPath, calibrationPath string) (quartet.Result, error) {
	f, err := os.Open(poolPath)
	if err != nil {
		return quartet.Result{}, fmt.Errorf("open pool: %w", err)
	}
	defer f.Close()
	repo, err := statements.Load(f)
	if err != nil {
		return quartet.Result{}, fmt.Errorf("load pool: %w", err)
	}

	bundle, err := loadBundle(calibrationPath)
	if err != nil {
		return quartet.Result{}, fmt.Errorf("load calibration: %w", err)
	}

	designer := blockdesign.New(repo)
	store := sessionstore.NewMemStore()
	orch := orchestrator.New(designer, store, bundle, orchestrator.DefaultConfig(), nil)

	modelSession := toModelSession(session)
	// The public Statement shape carries only id, text and dimension;
	// restore social desirability and factor loading from the pool.
	for i := range modelSession.Blocks {
		for j, s := range modelSession.Blocks[i].Statements {
			if full, ok := repo.Get(s.ID); ok {
				modelSession.Blocks[i].Statements[j] = full
			}
		}
	}
	ctx := context.Background()
	if err := store.CreateSession(ctx, modelSession); err != nil {
		return quartet.Result{}, fmt.Errorf("replay blocks: %w", err)
	}

	modelResponses := make([]model.BlockResponse, len(responses))
	indexByBlockID := make(map[string]int, len(modelSession.Blocks))
	for _, b := range modelSession.Blocks {
		indexByBlockID[b.BlockID] = b.Index
	}
	for i, r := range responses {
		idx, ok := indexByBlockID[r.BlockID]
		if !ok {
			return quartet.Result{}, fmt.Errorf("unknown block_id: %s", r.BlockID)
		}
		modelResponses[i] = model.BlockResponse{
			BlockIndex:     idx,
			MostLikeIndex:  r.MostLikeIndex,
			LeastLikeIndex: r.LeastLikeIndex,
			ResponseTimeMs: r.ResponseTimeMs,
		}
	}

	scoreResult, err := orch.SubmitResponses(ctx, modelSession.SessionID, modelResponses)
	if err != nil {
		return quartet.Result{}, fmt.Errorf("submit responses: %w", err)
	}

	return toPublicResult(session.SessionID, scoreResult), nil
}

func loadBundle(path string) (*calibration.Bundle, error) {
	if path == "" {
		return calibration.Uncalibrated("quartet-1"), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return calibration.Load(f)
}

// toModelSession reconstructs a PENDING model.Session from a previously
// printed quartet.Session, assigning a generous expiry since the original
// session TTL is not part of the public wire shape.
func toModelSession(session quartet.Session) model.Session {
	blocks := make([]model.QuartetBlock, len(session.Blocks))
	for i, b := range session.Blocks {
		var stmts [4]model.Statement
		for j, s := range b.Statements {
			stmts[j] = model.Statement{ID: s.ID, Text: s.Text, Dimension: model.Dimension(s.Dimension)}
		}
		blocks[i] = model.QuartetBlock{BlockID: b.BlockID, Index: i + 1, Statements: stmts}
	}
	now := time.Now()
	return model.Session{
		SessionID: session.SessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
		Status:    model.Pending,
		Blocks:    blocks,
	}
}

func toPublicResult(sessionID string, r model.ScoreResult) quartet.Result {
	dims := make(map[string]quartet.DimensionScore, len(r.Dimensions))
	for dim, ds := range r.Dimensions {
		dims[string(dim)] = quartet.DimensionScore{
			Dimension:  string(ds.Dimension),
			Theta:      ds.Theta,
			TScore:     ds.TScore,
			Percentile: ds.Percentile,
			Tier:       string(ds.Tier),
		}
	}
	domains := make(map[string]quartet.DomainBalance, len(r.Domains))
	for dom, bal := range r.Domains {
		domains[string(dom)] = quartet.DomainBalance{Domain: string(bal.Domain), MeanPercentile: bal.MeanPercentile}
	}
	var warnings []quartet.Warning
	for _, w := range r.Warnings {
		warnings = append(warnings, quartet.Warning{Kind: string(w.Kind), Message: w.Message})
	}
	return quartet.Result{
		SessionID:  sessionID,
		Dimensions: dims,
		Domains:    domains,
		Balance: quartet.BalanceIndicators{
			DBI:             r.Balance.DBI,
			RelativeEntropy: r.Balance.RelativeEntropy,
			Gini:            r.Balance.GiniComplement,
		},
		Tiers: quartet.Tiers{
			Dominant:   dimensionsToStrings(r.Tiers.Dominant),
			Supporting: dimensionsToStrings(r.Tiers.Supporting),
			Lesser:     dimensionsToStrings(r.Tiers.Lesser),
		},
		Archetype:          quartet.Archetype{ID: r.Archetype.ID, Label: r.Archetype.Label, RuleID: r.Archetype.RuleID},
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

func readJSONFile(path string, target any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(target)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: quartetctl <command> [flags]")
	fmt.Fprintln(os.Stderr, "\nCommands:")
	fmt.Fprintln(os.Stderr, "  blocks   Design a block sequence and print it as JSON")
	fmt.Fprintln(os.Stderr, "  score    Score a stored blocks file against a stored responses file")
	fmt.Fprintln(os.Stderr, "  version  Print version and exit")
	fmt.Fprintln(os.Stderr, "\nExamples:")
	fmt.Fprintln(os.Stderr, "  quartetctl blocks -pool statements.csv -count 24 -seed 42 > session.json")
	fmt.Fprintln(os.Stderr, "  quartetctl score -pool statements.csv -blocks session.json -responses responses.json")
}
