// Package patch records the patches applied by engine backends and undoes
// them through the owning engine's session.
package patch

import (
	"context"

	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
)

// Repos holds repositories needed for patch use cases.
type Repos struct {
	Workspace domain.WorkspaceRepository
	Patch     domain.PatchRepository
}

// Undoer sends reverse calls to the backend of a workspace.
type Undoer interface {
	Undo(ctx context.Context, ws *model.Workspace, patchID, etag string) (*model.ReverseResult, error)
}

// UseCase wires repositories needed for patch use cases.
type UseCase struct {
	Repos    *Repos
	Sessions Undoer
}
