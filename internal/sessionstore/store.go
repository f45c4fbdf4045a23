// Package sessionstore defines the Session persistence contract (spec §4.3
// "Ownership": "all reads/writes to session state go through a single
// atomic-operations contract") and two concrete backends: an in-memory
// store for tests and single-process deployments, and a modernc.org/sqlite
// backed store for durable single-node deployments. The teacher's own
// storage layer split session state across ad-hoc Postgres queries
// (internal/storage/sessions.go plus a dozen sibling files); this package
// collapses that into the single narrow interface the design notes call
// for.
package sessionstore

import (
	"context"

	"github.com/strengthlab/quartet/internal/model"
)

// Store is the single contract every session read/write goes through.
// Implementations must make AppendResponse and CompleteSession atomic
// read-modify-write operations: concurrent callers must never observe a
// lost update.
type Store interface {
	// CreateSession persists a newly designed session. Returns
	// apperr.InvalidParameter if a session with the same SessionID already
	// exists.
	CreateSession(ctx context.Context, session model.Session) error

	// GetSession returns the session by id. Returns apperr.NotFound if no
	// such session exists. The returned Session's Status is exactly as
	// stored — callers apply model.Session.EffectiveStatus themselves to
	// account for lazy expiration.
	GetSession(ctx context.Context, sessionID string) (model.Session, error)

	// AppendResponse atomically appends resp to the session's response
	// list and returns the updated session. Returns apperr.NotFound if the
	// session doesn't exist. It does not itself enforce session-state or
	// response-shape invariants — the ResponseValidator does that before
	// calling in.
	AppendResponse(ctx context.Context, sessionID string, resp model.BlockResponse) (model.Session, error)

	// CompleteSession atomically stores result and marks the session
	// COMPLETED, returning the updated session. Returns apperr.NotFound if
	// the session doesn't exist, and apperr.AlreadyCompleted if it is
	// already COMPLETED, so a second completion of the same session never
	// silently overwrites the first.
	CompleteSession(ctx context.Context, sessionID string, result model.ScoreResult) (model.Session, error)

	// Close releases any resources held by the store (connections, file
	// handles). Safe to call on stores that hold none.
	Close() error
}
