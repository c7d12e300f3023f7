package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/naming"
)

// UpdateInput specifies workspace fields that can be changed. The engine
// type is fixed at creation.
type UpdateInput struct {
	WorkspaceID string  `json:"workspace_id"`
	Name        *string `json:"name,omitempty"`
	ProjectDir  *string `json:"project_dir,omitempty"`
}

// UpdateOutput wraps the updated workspace.
type UpdateOutput struct {
	Workspace *model.Workspace `json:"workspace"`
}

// Update applies provided changes to a workspace.
func (u *UseCase) Update(ctx context.Context, in *UpdateInput) (*UpdateOutput, error) {
	if in == nil || in.WorkspaceID == "" {
		return nil, model.ErrWorkspaceInvalid
	}
	existing, err := u.Repos.Workspace.Get(ctx, in.WorkspaceID)
	if err != nil {
		return nil, err
	}
	changed := false
	if in.Name != nil && *in.Name != "" && existing.Name != *in.Name {
		if err := naming.ValidateWorkspaceName(*in.Name); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrWorkspaceInvalid, err)
		}
		existing.Name = *in.Name
		changed = true
	}
	if in.ProjectDir != nil && existing.ProjectDir != *in.ProjectDir {
		if existing.HasSessionBinding() {
			return nil, model.ErrWorkspaceSessionBound
		}
		existing.ProjectDir = *in.ProjectDir
		changed = true
	}
	if changed {
		existing.UpdatedAt = time.Now().UTC()
		if err := u.Repos.Workspace.Update(ctx, existing); err != nil {
			return nil, err
		}
	}
	return &UpdateOutput{Workspace: existing}, nil
}
