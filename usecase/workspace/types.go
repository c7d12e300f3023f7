// Package workspace administers workspaces: CRUD, status transitions and
// creation of project directories from templates.
package workspace

import (
	"context"

	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/internal/keylock"
)

// Repos holds repositories needed for workspace use cases.
type Repos struct {
	Workspace domain.WorkspaceRepository
	Company   domain.CompanyRepository
}

// SessionStopper stops the backend session of a workspace.
type SessionStopper interface {
	Stop(ctx context.Context, workspaceID string) error
}

// UseCase wires repositories needed for workspace use cases.
type UseCase struct {
	Repos *Repos
	// WorkspacesRoot is the parent directory of template project dirs.
	WorkspacesRoot string
	// Sessions, when set, is used by Delete to stop a live session first.
	Sessions SessionStopper
	// Locks, when set, is the per-workspace locker shared with the session
	// manager. Status changes wait for in-flight commands.
	Locks *keylock.Locker
}
