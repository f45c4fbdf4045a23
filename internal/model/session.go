package model

import "time"

// Status is a Session's lifecycle state (§3 "Session — Lifecycle").
type Status string

const (
	Pending    Status = "PENDING"
	InProgress Status = "IN_PROGRESS"
	Completed  Status = "COMPLETED"
	Expired    Status = "EXPIRED"
)

// Session is one respondent attempt: the blocks offered, the responses
// recorded, and (once scored) the result.
type Session struct {
	SessionID   string          `json:"session_id"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Status      Status          `json:"status"`
	Blocks      []QuartetBlock  `json:"blocks"`
	Responses   []BlockResponse `json:"responses,omitempty"`
	Result      *ScoreResult    `json:"result,omitempty"`
	Seed        int64           `json:"seed"`
}

// EffectiveStatus computes the Session's status as of now, applying the
// lazy expiration rule from §4.3: a session past ExpiresAt is EXPIRED
// regardless of its stored status, unless it already COMPLETED (§3
// invariant: "once COMPLETED the block list, response set, and score
// result are immutable" — completion is a one-way door that expiration
// cannot undo).
func (s Session) EffectiveStatus(now time.Time) Status {
	if s.Status == Completed {
		return Completed
	}
	if now.After(s.ExpiresAt) {
		return Expired
	}
	return s.Status
}

// ResponseByBlockIndex returns the response recorded for the given
// 1-based block index, if any.
func (s Session) ResponseByBlockIndex(blockIndex int) (BlockResponse, bool) {
	for _, r := range s.Responses {
		if r.BlockIndex == blockIndex {
			return r, true
		}
	}
	return BlockResponse{}, false
}

// BlockByIndex returns the block at the given 1-based index, if any.
func (s Session) BlockByIndex(blockIndex int) (QuartetBlock, bool) {
	for _, b := range s.Blocks {
		if b.Index == blockIndex {
			return b, true
		}
	}
	return QuartetBlock{}, false
}
