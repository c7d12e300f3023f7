package patch

import (
	"context"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/diffblob"
)

// FindByPatchID returns the patch recorded for the workspace. It fails
// with PatchNotFound when the id is unknown to that workspace.
func (u *UseCase) FindByPatchID(ctx context.Context, workspaceID, patchID string) (*model.Patch, error) {
	if workspaceID == "" || patchID == "" {
		return nil, model.NewError(model.KindPatchNotFound, "patch %q not found", patchID)
	}
	return u.Repos.Patch.Get(ctx, workspaceID, patchID)
}

// ListInput selects patches of a workspace.
type ListInput struct {
	WorkspaceID string `json:"workspace_id"`
	Limit       int    `json:"limit,omitempty"`
}

// ListOutput lists patches, newest first.
type ListOutput struct {
	Patches []*model.Patch `json:"patches"`
}

// List returns the patches of a workspace.
func (u *UseCase) List(ctx context.Context, in *ListInput) (*ListOutput, error) {
	if in == nil || in.WorkspaceID == "" {
		return nil, model.ErrWorkspaceInvalid
	}
	if _, err := u.Repos.Workspace.Get(ctx, in.WorkspaceID); err != nil {
		return nil, err
	}
	ps, err := u.Repos.Patch.List(ctx, in.WorkspaceID, in.Limit)
	if err != nil {
		return nil, err
	}
	return &ListOutput{Patches: ps}, nil
}

// ReverseDiff returns the decompressed reverse diff document of a patch,
// or nil when the backend reported no diff.
func (u *UseCase) ReverseDiff(ctx context.Context, workspaceID, patchID string) ([]byte, error) {
	p, err := u.FindByPatchID(ctx, workspaceID, patchID)
	if err != nil {
		return nil, err
	}
	if len(p.ReverseDiff) == 0 {
		return nil, nil
	}
	return diffblob.Decompress(p.ReverseDiff)
}
