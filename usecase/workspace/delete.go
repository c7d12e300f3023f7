package workspace

import (
	"context"
	"errors"

	"github.com/kompox/patchbay/domain/model"
)

// DeleteInput identifies the workspace to delete.
type DeleteInput struct {
	WorkspaceID string `json:"workspace_id"`
}

// DeleteOutput is empty because delete has no return entity.
type DeleteOutput struct{}

// Delete removes a workspace; empty ID is a no-op. A live session is stopped
// first when Sessions is set, otherwise a bound workspace cannot be deleted.
// The project directory is left on disk.
func (u *UseCase) Delete(ctx context.Context, in *DeleteInput) (*DeleteOutput, error) {
	if in == nil || in.WorkspaceID == "" { // idempotent no-op
		return &DeleteOutput{}, nil
	}
	if u.Sessions != nil {
		if err := u.Sessions.Stop(ctx, in.WorkspaceID); err != nil && !errors.Is(err, model.ErrWorkspaceNotFound) {
			return nil, err
		}
	}
	if err := u.Repos.Workspace.Delete(ctx, in.WorkspaceID); err != nil {
		return nil, err
	}
	return &DeleteOutput{}, nil
}
