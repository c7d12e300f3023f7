package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
)

type patchKey struct{ workspaceID, patchID string }

// PatchRepository is a thread-safe in-memory implementation.
type PatchRepository struct {
	mu      sync.RWMutex
	patches map[patchKey]*model.Patch
}

func NewPatchRepository() *PatchRepository {
	return &PatchRepository{patches: make(map[patchKey]*model.Patch)}
}

func clonePatch(p *model.Patch) *model.Patch {
	cp := *p
	cp.Envelope = append([]byte(nil), p.Envelope...)
	cp.ReverseDiff = append([]byte(nil), p.ReverseDiff...)
	if p.UndoneAt != nil {
		t := *p.UndoneAt
		cp.UndoneAt = &t
	}
	return &cp
}

func (r *PatchRepository) Create(_ context.Context, p *model.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := patchKey{p.WorkspaceID, p.PatchID}
	if _, exists := r.patches[k]; exists {
		return model.ErrPatchExists
	}
	r.patches[k] = clonePatch(p)
	return nil
}

func (r *PatchRepository) Get(_ context.Context, workspaceID, patchID string) (*model.Patch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patches[patchKey{workspaceID, patchID}]
	if !ok {
		return nil, model.NewError(model.KindPatchNotFound, "patch %s not found in workspace %s", patchID, workspaceID)
	}
	return clonePatch(p), nil
}

func (r *PatchRepository) List(_ context.Context, workspaceID string, limit int) ([]*model.Patch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Patch
	for k, p := range r.patches {
		if k.workspaceID == workspaceID {
			out = append(out, clonePatch(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].PatchID > out[j].PatchID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PatchRepository) MarkUndone(_ context.Context, workspaceID, patchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patches[patchKey{workspaceID, patchID}]
	if !ok {
		return model.NewError(model.KindPatchNotFound, "patch %s not found in workspace %s", patchID, workspaceID)
	}
	if p.UndoneAt != nil {
		return model.ErrPatchAlreadyUndone
	}
	now := time.Now().UTC()
	p.UndoneAt = &now
	return nil
}

var _ domain.PatchRepository = (*PatchRepository)(nil)
