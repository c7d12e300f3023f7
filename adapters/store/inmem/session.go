package inmem

import (
	"context"
	"sort"
	"sync"

	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
)

// SessionStore keeps live execution sessions. It is always in-memory since
// sessions do not survive a restart.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.ExecutionSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*model.ExecutionSession)}
}

// Get returns a copy of the session. The copy shares the process handle.
func (s *SessionStore) Get(_ context.Context, workspaceID string) (*model.ExecutionSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[workspaceID]
	if !ok {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

func (s *SessionStore) Put(_ context.Context, sess *model.ExecutionSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.WorkspaceID] = &cp
}

func (s *SessionStore) Delete(_ context.Context, workspaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, workspaceID)
}

func (s *SessionStore) List(_ context.Context) []*model.ExecutionSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ExecutionSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		cp := *sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkspaceID < out[j].WorkspaceID })
	return out
}

var _ domain.SessionStore = (*SessionStore)(nil)
