package workspace

import (
	"context"
	"fmt"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/logging"
)

// TransitionInput moves a workspace to another status.
type TransitionInput struct {
	WorkspaceID string `json:"workspace_id"`
	To          string `json:"to"`
}

// TransitionOutput wraps the workspace after the transition.
type TransitionOutput struct {
	Workspace *model.Workspace `json:"workspace"`
}

// Transition applies one status change of the workspace state machine. The
// write is a compare-and-set on the current status, so a concurrent change
// makes it fail with ErrInvalidTransition instead of being overwritten.
// With Locks set the change is serialized with commands on the workspace.
func (u *UseCase) Transition(ctx context.Context, in *TransitionInput) (*TransitionOutput, error) {
	if in == nil || in.WorkspaceID == "" {
		return nil, model.ErrWorkspaceInvalid
	}
	to := model.WorkspaceStatus(in.To)
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidTransition, in.To)
	}
	if u.Locks != nil {
		unlock, err := u.Locks.Lock(ctx, in.WorkspaceID)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}
	w, err := u.Repos.Workspace.Get(ctx, in.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(w.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, w.Status, to)
	}
	if err := u.Repos.Workspace.SetStatus(ctx, w.ID, w.Status, to); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info(ctx, "workspace status changed", "workspace", w.ID, "from", string(w.Status), "to", string(to))
	w, err = u.Repos.Workspace.Get(ctx, in.WorkspaceID)
	if err != nil {
		return nil, err
	}
	return &TransitionOutput{Workspace: w}, nil
}
