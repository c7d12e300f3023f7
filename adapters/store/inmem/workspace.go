package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
)

// WorkspaceRepository is a thread-safe in-memory implementation.
type WorkspaceRepository struct {
	mu         sync.RWMutex
	workspaces map[string]*model.Workspace
}

func NewWorkspaceRepository() *WorkspaceRepository {
	return &WorkspaceRepository{
		workspaces: make(map[string]*model.Workspace),
	}
}

func (r *WorkspaceRepository) Create(_ context.Context, w *model.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.ID == "" {
		w.ID = "ws-" + uuid.NewString()
	}
	if _, exists := r.workspaces[w.ID]; exists {
		return model.ErrWorkspaceInvalid
	}
	// Copy to avoid external mutation.
	cp := *w
	r.workspaces[w.ID] = &cp
	return nil
}

func (r *WorkspaceRepository) Get(_ context.Context, id string) (*model.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workspaces[id]
	if !ok {
		return nil, model.ErrWorkspaceNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *WorkspaceRepository) List(_ context.Context) ([]*model.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Workspace, 0, len(r.workspaces))
	for _, v := range r.workspaces {
		cp := *v
		out = append(out, &cp)
	}
	sortByCreated(out)
	return out, nil
}

func (r *WorkspaceRepository) Update(_ context.Context, w *model.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.workspaces[w.ID]
	if !ok {
		return model.ErrWorkspaceNotFound
	}
	if existing.EngineType != w.EngineType {
		return model.ErrWorkspaceInvalid
	}
	cp := *w
	cp.CreatedAt = existing.CreatedAt
	r.workspaces[w.ID] = &cp
	return nil
}

func (r *WorkspaceRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workspaces[id]
	if !ok {
		return model.ErrWorkspaceNotFound
	}
	if w.HasSessionBinding() {
		return model.ErrWorkspaceSessionBound
	}
	delete(r.workspaces, id)
	return nil
}

func (r *WorkspaceRepository) SetBinding(_ context.Context, id string, b model.SessionBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workspaces[id]
	if !ok {
		return model.ErrWorkspaceNotFound
	}
	b.Apply(w)
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *WorkspaceRepository) SetStatus(_ context.Context, id string, from, to model.WorkspaceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workspaces[id]
	if !ok {
		return model.ErrWorkspaceNotFound
	}
	if w.Status != from || !model.CanTransition(from, to) {
		return model.ErrInvalidTransition
	}
	w.Status = to
	w.UpdatedAt = time.Now().UTC()
	return nil
}

var _ domain.WorkspaceRepository = (*WorkspaceRepository)(nil)
