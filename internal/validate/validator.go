// Package validate implements the ResponseValidator (spec §4.4): it
// checks a batch of BlockResponses against a Session before the scoring
// pipeline ever runs, producing either a clean pass (with optional
// warnings) or a specific apperr.Kind failure.
package validate

import (
	"fmt"
	"time"

	"github.com/strengthlab/quartet/internal/apperr"
	"github.com/strengthlab/quartet/internal/model"
)

// MinAnsweredBlocksPerDimension is the §4.4 partial-submission coverage
// floor: every dimension must appear as a "most" or "least" candidate in
// at least this many answered blocks.
const MinAnsweredBlocksPerDimension = 3

// SuspiciousResponseTime holds the configurable response-time bounds from
// §4.4's optional check. A Validator with a zero-value SuspiciousResponseTime
// (both bounds 0) skips the check.
type SuspiciousResponseTime struct {
	MinMs int
	MaxMs int
}

// Validator checks responses against a session.
type Validator struct {
	responseTime SuspiciousResponseTime
}

// New builds a Validator. Pass a zero SuspiciousResponseTime to disable
// the response-time plausibility check.
func New(responseTime SuspiciousResponseTime) *Validator {
	return &Validator{responseTime: responseTime}
}

// Result is the outcome of a successful validation: nothing is fatal, but
// warnings may have been generated (e.g. suspicious response times).
type Result struct {
	Warnings []model.Warning
}

// Validate checks responses against session as of now. On success it
// returns any non-fatal warnings; on failure it returns an *apperr.Error
// with the offending Kind.
func (v *Validator) Validate(session model.Session, responses []model.BlockResponse, now time.Time) (Result, error) {
	switch session.EffectiveStatus(now) {
	case model.Expired:
		return Result{}, apperr.New(apperr.Expired, "session %s is expired", session.SessionID)
	case model.Completed:
		return Result{}, apperr.New(apperr.AlreadyCompleted, "session %s is already completed", session.SessionID)
	}

	seenBlockIndex := make(map[int]bool, len(responses))
	for _, r := range responses {
		if err := r.Validate(); err != nil {
			return Result{}, apperr.Wrap(apperr.InvalidParameter, err, "invalid response for block_index %d", r.BlockIndex)
		}
		if _, ok := session.BlockByIndex(r.BlockIndex); !ok {
			return Result{}, apperr.New(apperr.InvalidParameter, "block_index %d does not reference a block in this session", r.BlockIndex)
		}
		if seenBlockIndex[r.BlockIndex] {
			return Result{}, apperr.New(apperr.InvalidParameter, "duplicate response for block_index %d", r.BlockIndex)
		}
		seenBlockIndex[r.BlockIndex] = true
	}

	if err := v.checkCoverage(session, responses); err != nil {
		return Result{}, err
	}

	var warnings []model.Warning
	if v.responseTime.MaxMs > 0 || v.responseTime.MinMs > 0 {
		warnings = v.suspiciousTimeWarnings(responses)
	}

	return Result{Warnings: warnings}, nil
}

// checkCoverage enforces the §4.4 partial-submission rule: every dimension
// must be a most/least candidate in at least MinAnsweredBlocksPerDimension
// answered blocks.
func (v *Validator) checkCoverage(session model.Session, responses []model.BlockResponse) error {
	count := make(map[model.Dimension]int, len(model.Dimensions))
	for _, r := range responses {
		block, ok := session.BlockByIndex(r.BlockIndex)
		if !ok {
			continue
		}
		for _, dim := range block.Dimensions() {
			count[dim]++
		}
	}

	for _, dim := range model.Dimensions {
		if count[dim] < MinAnsweredBlocksPerDimension {
			return apperr.New(apperr.InsufficientCoverage,
				"dimension %s appears in only %d answered blocks, need at least %d",
				dim, count[dim], MinAnsweredBlocksPerDimension)
		}
	}
	return nil
}

func (v *Validator) suspiciousTimeWarnings(responses []model.BlockResponse) []model.Warning {
	var warnings []model.Warning
	for _, r := range responses {
		if r.ResponseTimeMs == nil {
			continue
		}
		ms := *r.ResponseTimeMs
		if (v.responseTime.MinMs > 0 && ms < v.responseTime.MinMs) ||
			(v.responseTime.MaxMs > 0 && ms > v.responseTime.MaxMs) {
			warnings = append(warnings, model.Warning{
				Kind:    "suspicious-response-time",
				Message: fmt.Sprintf("block_index %d: response_time_ms %d is outside the configured plausible range", r.BlockIndex, ms),
			})
		}
	}
	return warnings
}
