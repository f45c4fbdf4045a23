package sessionstore

import (
	"context"
	"sync"

	"github.com/strengthlab/quartet/internal/apperr"
	"github.com/strengthlab/quartet/internal/model"
)

// MemStore is an in-memory Store guarded by a single mutex. It is the
// default for tests and for single-process deployments that accept losing
// in-flight sessions on restart.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string]model.Session
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string]model.Session)}
}

func (m *MemStore) CreateSession(ctx context.Context, session model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.SessionID]; exists {
		return apperr.New(apperr.InvalidParameter, "session %s already exists", session.SessionID)
	}
	m.sessions[session.SessionID] = session
	return nil
}

func (m *MemStore) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return model.Session{}, apperr.New(apperr.NotFound, "session %s not found", sessionID)
	}
	return s, nil
}

func (m *MemStore) AppendResponse(ctx context.Context, sessionID string, resp model.BlockResponse) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return model.Session{}, apperr.New(apperr.NotFound, "session %s not found", sessionID)
	}
	s.Responses = append(append([]model.BlockResponse{}, s.Responses...), resp)
	if s.Status == model.Pending {
		s.Status = model.InProgress
	}
	m.sessions[sessionID] = s
	return s, nil
}

func (m *MemStore) CompleteSession(ctx context.Context, sessionID string, result model.ScoreResult) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return model.Session{}, apperr.New(apperr.NotFound, "session %s not found", sessionID)
	}
	if s.Status == model.Completed {
		return model.Session{}, apperr.New(apperr.AlreadyCompleted, "session %s is already completed", sessionID)
	}
	s.Result = &result
	s.Status = model.Completed
	m.sessions[sessionID] = s
	return s, nil
}

func (m *MemStore) Close() error { return nil }
