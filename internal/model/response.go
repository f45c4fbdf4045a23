package model

import "fmt"

// BlockResponse is one respondent answer to a QuartetBlock.
type BlockResponse struct {
	BlockIndex      int  `json:"block_index"` // 1-based, references QuartetBlock.Index
	MostLikeIndex   int  `json:"most_like_index"`
	LeastLikeIndex  int  `json:"least_like_index"`
	ResponseTimeMs  *int `json:"response_time_ms,omitempty"`
}

// Validate checks the field-level invariants from §3 "BlockResponse":
// most_like_index != least_like_index, and both are valid slot indices.
// It does not check block_index against a session's actual block list —
// that is the ResponseValidator's job, since it requires session context.
func (r BlockResponse) Validate() error {
	if r.MostLikeIndex < 0 || r.MostLikeIndex > 3 {
		return fmt.Errorf("model: most_like_index %d out of [0,3]", r.MostLikeIndex)
	}
	if r.LeastLikeIndex < 0 || r.LeastLikeIndex > 3 {
		return fmt.Errorf("model: least_like_index %d out of [0,3]", r.LeastLikeIndex)
	}
	if r.MostLikeIndex == r.LeastLikeIndex {
		return fmt.Errorf("model: most_like_index and least_like_index must differ (both %d)", r.MostLikeIndex)
	}
	if r.ResponseTimeMs != nil && *r.ResponseTimeMs < 0 {
		return fmt.Errorf("model: response_time_ms %d must be >= 0", *r.ResponseTimeMs)
	}
	return nil
}
