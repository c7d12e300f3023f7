package model

import "time"

// WorkspaceStatus is the lifecycle state of a workspace.
type WorkspaceStatus string

const (
	StatusInitializing WorkspaceStatus = "initializing"
	StatusReady        WorkspaceStatus = "ready"
	StatusBuilding     WorkspaceStatus = "building"
	StatusPublished    WorkspaceStatus = "published"
	StatusError        WorkspaceStatus = "error"
)

// transitions lists the allowed non-error successors of each status.
// StatusError is reachable from every status.
var transitions = map[WorkspaceStatus][]WorkspaceStatus{
	StatusInitializing: {StatusReady},
	StatusReady:        {StatusBuilding},
	StatusBuilding:     {StatusReady, StatusPublished},
	StatusPublished:    {StatusBuilding},
	StatusError:        {StatusInitializing},
}

// Valid reports whether s is a known status.
func (s WorkspaceStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a workspace may move from one status to another.
func CanTransition(from, to WorkspaceStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to == StatusError {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Workspace is a sandboxed project bound to one engine family and one company.
type Workspace struct {
	ID         string
	CompanyID  string
	Name       string
	EngineType EngineType // immutable after creation
	Status     WorkspaceStatus
	TemplateID string
	ProjectDir string
	// Session binding. Advisory only: always re-verified by a health check.
	SessionPort int
	SessionPID  int
	PreviewURL  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AcceptsCommands reports whether commands may run against the workspace.
func (w *Workspace) AcceptsCommands() bool {
	return w.Status == StatusReady || w.Status == StatusPublished
}

// CheckAcceptsCommands fails with WorkspaceNotReady unless the workspace
// accepts commands.
func (w *Workspace) CheckAcceptsCommands() error {
	if w.AcceptsCommands() {
		return nil
	}
	return NewError(KindWorkspaceNotReady, "workspace %s is %s", w.ID, w.Status).
		WithDetail("status", string(w.Status))
}

// HasSessionBinding reports whether a session port or process is recorded.
func (w *Workspace) HasSessionBinding() bool {
	return w.SessionPort != 0 || w.SessionPID != 0
}

// Binding returns the recorded session binding.
func (w *Workspace) Binding() SessionBinding {
	return SessionBinding{Port: w.SessionPort, PID: w.SessionPID, PreviewURL: w.PreviewURL}
}

// SessionBinding is the session-related subset of Workspace fields.
type SessionBinding struct {
	Port       int
	PID        int
	PreviewURL string
}

// Apply copies the binding onto w.
func (b SessionBinding) Apply(w *Workspace) {
	w.SessionPort = b.Port
	w.SessionPID = b.PID
	w.PreviewURL = b.PreviewURL
}
