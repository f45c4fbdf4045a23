// Package statements implements the StatementRepository (spec §4.1): a
// read-only, process-wide cache of the statement pool, loaded once at
// startup from a CSV file. No third-party CSV library appears anywhere in
// the example corpus this module was grounded on, so the standard
// library's encoding/csv reader is used directly — see DESIGN.md for the
// standard-library justification.
package statements

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/strengthlab/quartet/internal/apperr"
	"github.com/strengthlab/quartet/internal/model"
)

// MinPerDimension is the pool-level invariant from §3 "Statement": every
// dimension must have at least this many statements.
const MinPerDimension = 10

// Repository is an immutable, read-only statement pool. Once Load
// succeeds, a Repository never changes — a pool change requires a process
// restart (§4.1 "Contract"), which keeps all concurrently active sessions
// observing a consistent pool without any synchronization.
type Repository struct {
	byID        map[string]model.Statement
	byDimension map[model.Dimension][]model.Statement
}

// Load reads the statement pool CSV (header row:
// statement_id,dimension,text,social_desirability,factor_loading) from r
// and builds a Repository. It fails with apperr.PoolInsufficient if any
// dimension has fewer than MinPerDimension statements.
func Load(r io.Reader) (*Repository, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("statements: read header: %w", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	repo := &Repository{
		byID:        make(map[string]model.Statement),
		byDimension: make(map[model.Dimension][]model.Statement),
	}

	row := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("statements: read row %d: %w", row, err)
		}
		row++

		stmt, err := parseRow(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("statements: row %d: %w", row, err)
		}
		if err := stmt.Validate(); err != nil {
			return nil, fmt.Errorf("statements: row %d: %w", row, err)
		}
		if _, dup := repo.byID[stmt.ID]; dup {
			return nil, fmt.Errorf("statements: row %d: duplicate statement_id %q", row, stmt.ID)
		}

		repo.byID[stmt.ID] = stmt
		repo.byDimension[stmt.Dimension] = append(repo.byDimension[stmt.Dimension], stmt)
	}

	if err := repo.checkCoverage(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *Repository) checkCoverage() error {
	for _, dim := range model.Dimensions {
		n := len(r.byDimension[dim])
		if n < MinPerDimension {
			return apperr.New(apperr.PoolInsufficient,
				"dimension %s has %d statements, need at least %d", dim, n, MinPerDimension)
		}
	}
	return nil
}

// Get returns the statement with the given id. The boolean is false when
// no such statement exists.
func (r *Repository) Get(statementID string) (model.Statement, bool) {
	s, ok := r.byID[statementID]
	return s, ok
}

// ByDimension returns the ordered sequence of statements belonging to dim,
// in CSV load order. The returned slice must not be mutated by callers.
func (r *Repository) ByDimension(dim model.Dimension) []model.Statement {
	return r.byDimension[dim]
}

// All returns every statement in the pool, grouped by dimension (T1..T12)
// and in CSV load order within each dimension.
func (r *Repository) All() []model.Statement {
	out := make([]model.Statement, 0, len(r.byID))
	for _, dim := range model.Dimensions {
		out = append(out, r.byDimension[dim]...)
	}
	return out
}

// CountByDimension returns the number of statements available for dim.
func (r *Repository) CountByDimension(dim model.Dimension) int {
	return len(r.byDimension[dim])
}

type columns struct {
	id, dimension, text, sd, loading int
}

func columnIndex(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	required := []string{"statement_id", "dimension", "text", "social_desirability", "factor_loading"}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return columns{}, fmt.Errorf("statements: missing required column %q", col)
		}
	}
	return columns{
		id:        idx["statement_id"],
		dimension: idx["dimension"],
		text:      idx["text"],
		sd:        idx["social_desirability"],
		loading:   idx["factor_loading"],
	}, nil
}

func parseRow(rec []string, cols columns) (model.Statement, error) {
	sd, err := strconv.ParseFloat(rec[cols.sd], 64)
	if err != nil {
		return model.Statement{}, fmt.Errorf("social_desirability: %w", err)
	}
	loading, err := strconv.ParseFloat(rec[cols.loading], 64)
	if err != nil {
		return model.Statement{}, fmt.Errorf("factor_loading: %w", err)
	}
	return model.Statement{
		ID:                 rec[cols.id],
		Dimension:          model.Dimension(rec[cols.dimension]),
		Text:               rec[cols.text],
		SocialDesirability: sd,
		FactorLoading:      loading,
	}, nil
}
