package patch

import (
	"context"
	"errors"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/logging"
)

// UndoInput identifies the patch to reverse.
type UndoInput struct {
	WorkspaceID string `json:"workspace_id"`
	PatchID     string `json:"patch_id"`
}

// UndoOutput carries the reversed patch and the backend answer.
type UndoOutput struct {
	Patch  *model.Patch         `json:"patch"`
	Result *model.ReverseResult `json:"result"`
}

// Undo reverses a recorded patch through the engine backend. The patch is
// marked undone only after the backend confirmed.
func (u *UseCase) Undo(ctx context.Context, in *UndoInput) (*UndoOutput, error) {
	if in == nil || in.WorkspaceID == "" {
		return nil, model.ErrWorkspaceInvalid
	}
	ws, err := u.Repos.Workspace.Get(ctx, in.WorkspaceID)
	if err != nil {
		return nil, err
	}
	p, err := u.FindByPatchID(ctx, ws.ID, in.PatchID)
	if err != nil {
		return nil, err
	}
	if p.WorkspaceID != ws.ID || p.EngineType != ws.EngineType {
		return nil, model.NewError(model.KindUndoFailed, "patch %s does not belong to workspace %s", p.PatchID, ws.ID).
			WithDetail("patch_id", p.PatchID)
	}
	switch {
	case !p.Success:
		return nil, model.NewError(model.KindUndoFailed, "patch %s did not succeed and cannot be undone", p.PatchID).
			WithDetail("patch_id", p.PatchID).
			WithDetail("reason", "failed")
	case p.UndoneAt != nil:
		return nil, model.NewError(model.KindUndoFailed, "patch %s was already undone", p.PatchID).
			WithDetail("patch_id", p.PatchID).
			WithDetail("reason", "already_undone")
	}

	res, err := u.Sessions.Undo(ctx, ws, p.PatchID, p.ETag)
	if err != nil {
		return nil, err
	}
	if err := u.Repos.Patch.MarkUndone(ctx, ws.ID, p.PatchID); err != nil {
		if errors.Is(err, model.ErrPatchAlreadyUndone) {
			return nil, model.WrapError(model.KindUndoFailed, err, "patch %s", p.PatchID).WithDetail("patch_id", p.PatchID)
		}
		// The backend already reverted the workspace; report what happened.
		logging.FromContext(ctx).Warn(ctx, "mark patch undone failed", "workspace", ws.ID, "patch", p.PatchID, "err", err)
	} else if q, err := u.Repos.Patch.Get(ctx, ws.ID, p.PatchID); err == nil {
		p = q
	}
	return &UndoOutput{Patch: p, Result: res}, nil
}
