package model

import "fmt"

// QuartetBlock is one forced-choice question: four statements, each from a
// distinct dimension.
type QuartetBlock struct {
	BlockID    string      `json:"block_id"`
	Index      int         `json:"index"` // 1-based position within the session
	Statements [4]Statement `json:"statements"`
}

// Dimensions returns the 4 distinct dimensions present in the block, in
// slot order.
func (b QuartetBlock) Dimensions() [4]Dimension {
	var out [4]Dimension
	for i, s := range b.Statements {
		out[i] = s.Dimension
	}
	return out
}

// Validate checks the block-level invariants from §3 "QuartetBlock":
// exactly 4 distinct statements, from 4 distinct dimensions.
func (b QuartetBlock) Validate() error {
	seenStatement := make(map[string]bool, 4)
	seenDimension := make(map[Dimension]bool, 4)
	for _, s := range b.Statements {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("model: block %s: %w", b.BlockID, err)
		}
		if seenStatement[s.ID] {
			return fmt.Errorf("model: block %s: duplicate statement %s", b.BlockID, s.ID)
		}
		seenStatement[s.ID] = true
		if seenDimension[s.Dimension] {
			return fmt.Errorf("model: block %s: duplicate dimension %s", b.BlockID, s.Dimension)
		}
		seenDimension[s.Dimension] = true
	}
	return nil
}

// StatementIDSet returns the 4 statement ids as a sorted-independent set
// key, used by the BlockDesigner to detect "same multiset of statement ids"
// repeats within a session (§4.2 constraint 5).
func (b QuartetBlock) StatementIDSet() [4]string {
	var ids [4]string
	for i, s := range b.Statements {
		ids[i] = s.ID
	}
	// Simple insertion sort — 4 elements, not worth importing sort for.
	for i := 1; i < 4; i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}
